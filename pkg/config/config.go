package config

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config is the top-level shape of the detector's YAML configuration file
// (SPEC_FULL.md §6).
type Config struct {
	Detector struct {
		BogonFile        string `yaml:"bogon_file"`
		SpecificFile     string `yaml:"specific_file"`
		SymRWTime        uint   `yaml:"sym_rw_time"`
		NFThreshold      uint   `yaml:"nf_threshold"`
		RotationInterval uint   `yaml:"rotation_interval"`
		PolicyFile       string `yaml:"policy_file"`
	} `yaml:"detector"`

	Pipeline struct {
		WorkerCount int `yaml:"worker_count"`
		BufferSize  int `yaml:"buffer_size"`
	} `yaml:"pipeline"`

	Log struct {
		Level      string `yaml:"level"`
		Dir        string `yaml:"dir"`
		Filename   string `yaml:"filename"`
		MaxAge     int    `yaml:"max_age"`
		RotateTime int    `yaml:"rotate_time"`
	} `yaml:"log"`

	Source struct {
		Type        string        `yaml:"type"` // "replay", "live", or "channel"
		ReplayFile  string        `yaml:"replay_file"`
		Interface   string        `yaml:"interface"`
		SnapLen     int32         `yaml:"snaplen"`
		Promiscuous bool          `yaml:"promiscuous"`
		Timeout     time.Duration `yaml:"timeout"`
		BPFFilter   string        `yaml:"bpf_filter"`
	} `yaml:"source"`

	Output struct {
		ClickHouseDSN string `yaml:"clickhouse_dsn"`
	} `yaml:"output"`

	API struct {
		Host string `yaml:"host"`
		Port string `yaml:"port"`
	} `yaml:"api"`
}

// DefaultSymRWTime and DefaultNFThreshold are applied by applyDefaults when
// the operator leaves the corresponding field at zero, per spec.md §4.3/§4.4
// ("default value when operator provides 0"). DefaultMinRotationInterval is
// the floor SPEC_FULL.md §6 imposes on the default flow-rate rotation
// interval, max(sym_rw_time, 60); an explicit rotation_interval is kept as
// given.
const (
	DefaultSymRWTime           = 45
	DefaultNFThreshold         = 1000
	DefaultMinRotationInterval = 60
)

func (c *Config) applyDefaults() {
	if c.Detector.SymRWTime == 0 {
		c.Detector.SymRWTime = DefaultSymRWTime
	}
	if c.Detector.NFThreshold == 0 {
		c.Detector.NFThreshold = DefaultNFThreshold
	}
	if c.Detector.RotationInterval == 0 {
		c.Detector.RotationInterval = c.Detector.SymRWTime
		if c.Detector.RotationInterval < DefaultMinRotationInterval {
			c.Detector.RotationInterval = DefaultMinRotationInterval
		}
	}
}

func (c *Config) Validate() error {
	if c.Detector.BogonFile == "" {
		return fmt.Errorf("detector.bogon_file is required")
	}
	if c.Pipeline.WorkerCount <= 0 {
		return fmt.Errorf("pipeline.worker_count must be positive")
	}
	if c.Pipeline.BufferSize <= 0 {
		return fmt.Errorf("pipeline.buffer_size must be positive")
	}
	switch c.Source.Type {
	case "replay", "live", "channel":
	default:
		return fmt.Errorf("source.type must be one of replay, live, channel, got %q", c.Source.Type)
	}
	if c.Source.Type == "replay" && c.Source.ReplayFile == "" {
		return fmt.Errorf("source.replay_file is required when source.type is replay")
	}
	if c.Source.Type == "live" && c.Source.Interface == "" {
		return fmt.Errorf("source.interface is required when source.type is live")
	}
	return nil
}

// LoadConfig reads and validates the YAML config at path using fs, so tests
// can supply an in-memory afero.Fs instead of touching the real filesystem.
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
