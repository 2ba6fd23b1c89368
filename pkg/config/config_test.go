package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
detector:
  bogon_file: /etc/ipspoof/bogons.txt
  sym_rw_time: 45
  nf_threshold: 1000
pipeline:
  worker_count: 4
  buffer_size: 1000
source:
  type: replay
  replay_file: /data/flows.csv
`

func TestLoadConfigValid(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg.yaml", []byte(validYAML), 0644))

	cfg, err := LoadConfig(fs, "/cfg.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/etc/ipspoof/bogons.txt", cfg.Detector.BogonFile)
	assert.Equal(t, uint(45), cfg.Detector.SymRWTime)
	assert.Equal(t, "replay", cfg.Source.Type)
}

func TestLoadConfigMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := LoadConfig(fs, "/nope.yaml")
	assert.Error(t, err)
}

func TestApplyDefaultsRotationInterval(t *testing.T) {
	cases := []struct {
		name     string
		symRW    uint
		rotation uint
		want     uint
	}{
		{"all defaults floors at 60", 0, 0, 60},
		{"custom sym_rw_time above floor wins", 100, 0, 100},
		{"explicit rotation_interval is never overridden", 100, 10, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Detector.SymRWTime = tc.symRW
			cfg.Detector.RotationInterval = tc.rotation
			cfg.applyDefaults()
			assert.Equal(t, tc.want, cfg.Detector.RotationInterval)
		})
	}
}

func TestValidateMissingBogonFile(t *testing.T) {
	cfg := &Config{}
	cfg.Pipeline.WorkerCount = 1
	cfg.Pipeline.BufferSize = 1
	cfg.Detector.SymRWTime = 45
	cfg.Detector.NFThreshold = 1000
	cfg.Source.Type = "channel"
	assert.ErrorContains(t, cfg.Validate(), "bogon_file")
}

func TestValidateReplayRequiresFile(t *testing.T) {
	cfg := &Config{}
	cfg.Detector.BogonFile = "bogons.txt"
	cfg.Detector.SymRWTime = 45
	cfg.Detector.NFThreshold = 1000
	cfg.Pipeline.WorkerCount = 1
	cfg.Pipeline.BufferSize = 1
	cfg.Source.Type = "replay"
	assert.ErrorContains(t, cfg.Validate(), "replay_file")
}

func TestValidateUnknownSourceType(t *testing.T) {
	cfg := &Config{}
	cfg.Detector.BogonFile = "bogons.txt"
	cfg.Detector.SymRWTime = 45
	cfg.Detector.NFThreshold = 1000
	cfg.Pipeline.WorkerCount = 1
	cfg.Pipeline.BufferSize = 1
	cfg.Source.Type = "smtp"
	assert.ErrorContains(t, cfg.Validate(), "source.type")
}
