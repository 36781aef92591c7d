package main

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-reconciler/internal/gcsuploader"
	"github.com/dvloznov/statement-reconciler/internal/jobs"
	"github.com/dvloznov/statement-reconciler/internal/logger"
)

// memObjects is an in-memory bucket keyed by object name.
type memObjects struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

func newMemObjects(names ...string) *memObjects {
	m := &memObjects{bucket: "b", objects: map[string][]byte{}}
	for _, n := range names {
		m.objects[n] = []byte("data")
	}
	return m
}

func (m *memObjects) Archive(ctx context.Context, ownerID, batchID, filename string, data []byte) (string, error) {
	return "", errors.New("not used")
}

func (m *memObjects) Fetch(ctx context.Context, uri string, maxBytes int64) ([]byte, error) {
	return nil, errors.New("not used")
}

func (m *memObjects) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var uris []string
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			uris = append(uris, gcsuploader.URI(m.bucket, name))
		}
	}
	sort.Strings(uris)
	return uris, nil
}

func (m *memObjects) Move(ctx context.Context, uri, dst string) (string, error) {
	_, object, err := gcsuploader.ParseURI(uri)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[object]
	if !ok {
		return "", errors.New("no such object")
	}
	delete(m.objects, object)
	m.objects[dst] = data
	return gcsuploader.URI(m.bucket, dst), nil
}

func (m *memObjects) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for n := range m.objects {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

type recordingPublisher struct {
	jobs []*jobs.IngestStatementJob
}

func (p *recordingPublisher) PublishIngestStatement(ctx context.Context, job *jobs.IngestStatementJob) error {
	job.JobID = "job"
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestParseInboxObject(t *testing.T) {
	tests := []struct {
		object  string
		owner   string
		account string
		file    string
		wantErr bool
	}{
		{"inbox/o1/a1/extrato.csv", "o1", "a1", "extrato.csv", false},
		{"inbox/o1/extrato.csv", "", "", "", true},
		{"inbox/o1/a1/", "", "", "", true},
		{"inbox/o1/a1/nested/x.csv", "", "", "", true},
		{"other/o1/a1/x.csv", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.object, func(t *testing.T) {
			owner, account, file, err := parseInboxObject("inbox/", tt.object)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.account, account)
			assert.Equal(t, tt.file, file)
		})
	}
}

func TestPollClaimsAndQueues(t *testing.T) {
	ctx := logger.WithContext(context.Background(), zerolog.Nop())
	objects := newMemObjects("inbox/o1/a1/jan.ofx", "inbox/o2/a9/feb.csv", "inbox/stray.txt")
	pub := &recordingPublisher{}
	p := &poller{objects: objects, publisher: pub, inbox: "inbox/"}

	n, err := p.poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, pub.jobs, 2)
	assert.Equal(t, "gs://b/processing/o1/a1/jan.ofx", pub.jobs[0].GCSURI)
	assert.Equal(t, "o1", pub.jobs[0].OwnerID)
	assert.Equal(t, "a1", pub.jobs[0].AccountID)

	assert.Equal(t, []string{"inbox/stray.txt", "processing/o1/a1/jan.ofx", "processing/o2/a9/feb.csv"}, objects.names())

	// A second pass finds nothing new.
	n, err = p.poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFileAway(t *testing.T) {
	tests := []struct {
		name    string
		result  error
		wantObj string
	}{
		{"success", nil, "processed/o1/a1/jan.ofx"},
		{"permanent failure", jobs.Permanent(errors.New("bad file")), "failed/o1/a1/jan.ofx"},
		{"transient failure", errors.New("timeout"), "processing/o1/a1/jan.ofx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := logger.WithContext(context.Background(), zerolog.Nop())
			objects := newMemObjects("processing/o1/a1/jan.ofx")
			h := fileAway(objects, func(ctx context.Context, job jobs.Job) error { return tt.result })

			err := h(ctx, &jobs.IngestStatementJob{GCSURI: "gs://b/processing/o1/a1/jan.ofx"})
			assert.Equal(t, tt.result, err)
			assert.Equal(t, []string{tt.wantObj}, objects.names())
		})
	}
}
