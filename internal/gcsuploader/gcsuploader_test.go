package gcsuploader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{"gs://bucket/inbox/owner/acc/file.ofx", "bucket", "inbox/owner/acc/file.ofx", false},
		{"gs://bucket/file.csv", "bucket", "file.csv", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"s3://bucket/file.csv", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.object, object)
		})
	}
}

func TestExtractFilenameFromGCSURI(t *testing.T) {
	assert.Equal(t, "file.ofx", ExtractFilenameFromGCSURI("gs://bucket/folder/file.ofx"))
	assert.Equal(t, "file.ofx", ExtractFilenameFromGCSURI("gs://bucket/file.ofx"))
	assert.Equal(t, "bucket", ExtractFilenameFromGCSURI("gs://bucket"))
}

func TestArchiveObjectName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"extrato.csv", "statements/o1/b1/extrato.csv"},
		{"../../etc/passwd", "statements/o1/b1/passwd"},
		{`C:\Users\me\bank.ofx`, "statements/o1/b1/bank.ofx"},
		{"", "statements/o1/b1/statement"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, ArchiveObjectName("o1", "b1", tt.filename))
		})
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/x-ofx", contentType("a.QFX"))
	assert.Equal(t, "text/csv", contentType("a.csv"))
	assert.Equal(t, "text/plain", contentType("a.txt"))
}
