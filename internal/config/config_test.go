package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil), zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 60, cfg.MatchThreshold)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "inbox/", cfg.GCSInboxPrefix)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.False(t, cfg.AICategoryFallback)
	assert.False(t, cfg.BigQueryEnabled())
}

func TestOverrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"PORT":                 "9090",
		"DATABASE_PATH":        "/data/ledger.db",
		"MATCH_THRESHOLD":      "70",
		"CACHE_TTL":            "30s",
		"AI_CATEGORY_FALLBACK": "true",
		"GCP_PROJECT_ID":       "acme",
		"WORKER_COUNT":         "2",
		"LOG_FORMAT":           "json",
	}), zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/data/ledger.db", cfg.DatabasePath)
	assert.Equal(t, 70, cfg.MatchThreshold)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.True(t, cfg.AICategoryFallback)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.BigQueryEnabled())
}

func TestMalformedValuesFallBack(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"CACHE_TTL":    "soon",
		"WORKER_COUNT": "many",
	}), zerolog.New(buf))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Contains(t, buf.String(), "CACHE_TTL")
	assert.Contains(t, buf.String(), "WORKER_COUNT")
}

func TestOutOfRangeValues(t *testing.T) {
	tests := map[string]map[string]string{
		"threshold above 100": {"MATCH_THRESHOLD": "101"},
		"negative threshold":  {"MATCH_THRESHOLD": "-1"},
		"zero upload limit":   {"MAX_UPLOAD_BYTES": "0"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromLookup(lookupFrom(vars), zerolog.Nop())
			assert.Error(t, err)
		})
	}
}
