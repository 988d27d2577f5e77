package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTuning(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadTuningConfig_Partial(t *testing.T) {
	path := writeTuning(t, "venue.json", `{"change_threshold": 0.5, "change_debounce": "750ms"}`)

	tc, err := LoadTuningConfig(path)
	require.NoError(t, err)
	require.NotNil(t, tc.ChangeThreshold)
	assert.Equal(t, 0.5, *tc.ChangeThreshold)
	assert.Nil(t, tc.RcvBuf)
	assert.Nil(t, tc.LogInterval)
	assert.Nil(t, tc.NATSSubjectPrefix)
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"extension", "venue.yaml", `{}`, ".json extension"},
		{"syntax", "bad.json", `{"change_threshold":`, "failed to parse"},
		{"threshold", "t.json", `{"change_threshold": 0}`, "change_threshold"},
		{"debounce", "d.json", `{"change_debounce": "soon"}`, "change_debounce"},
		{"negative debounce", "nd.json", `{"change_debounce": "-1s"}`, "change_debounce"},
		{"log interval", "l.json", `{"log_interval": "0s"}`, "log_interval"},
		{"rcvbuf", "r.json", `{"rcvbuf": -5}`, "rcvbuf"},
		{"prefix", "p.json", `{"nats_subject_prefix": ""}`, "nats_subject_prefix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(writeTuning(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadTuningConfig_Missing(t *testing.T) {
	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat")
}

func TestLoadTuningConfig_TooLarge(t *testing.T) {
	body := `{"nats_subject_prefix": "` + strings.Repeat("a", 1<<20) + `"}`
	_, err := LoadTuningConfig(writeTuning(t, "big.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestTuningConfig_ApplyTo(t *testing.T) {
	cfg, err := ParseConfig(map[string]string{})
	require.NoError(t, err)

	tc := &TuningConfig{
		ChangeThreshold:   ptrFloat64(0.1),
		ChangeDebounce:    ptrString("2s"),
		RcvBuf:            ptrInt(1 << 16),
		LogInterval:       ptrString("5s"),
		NATSSubjectPrefix: ptrString("venue.a"),
	}
	require.NoError(t, tc.Validate())
	tc.ApplyTo(&cfg)

	assert.Equal(t, 0.1, cfg.ChangeThreshold)
	assert.Equal(t, 2*time.Second, cfg.ChangeDebounce)
	assert.Equal(t, 1<<16, cfg.RcvBuf)
	assert.Equal(t, 5*time.Second, cfg.LogInterval)
	assert.Equal(t, "venue.a", cfg.NATSSubjectPrefix)
	assert.NoError(t, cfg.Validate())
}

func TestTuningConfig_ApplyToLeavesUnsetFields(t *testing.T) {
	cfg, err := ParseConfig(map[string]string{"PSN_CHANGE_THRESHOLD": "3"})
	require.NoError(t, err)
	before := cfg

	(&TuningConfig{}).ApplyTo(&cfg)
	assert.Equal(t, before, cfg)
}
