package keeper

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML-serializable subset of the keeper configuration.
// Runtime dependencies (logger, metrics registry, adapter source) are wired
// in code.
type FileConfig struct {
	Caller     string `yaml:"caller"`
	Interval   string `yaml:"interval"`
	BufferSize uint   `yaml:"bufferSize"`
}

// LoadFileConfig reads and parses a YAML keeper configuration.
func LoadFileConfig(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ToConfig resolves the file values into a runtime Config. The logger and
// metrics registry still have to be set by the caller.
func (f *FileConfig) ToConfig() (Config, error) {
	if !common.IsHexAddress(f.Caller) {
		return Config{}, fmt.Errorf("config: caller %q is not a valid address", f.Caller)
	}
	interval, err := time.ParseDuration(f.Interval)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse interval %q: %w", f.Interval, err)
	}
	return Config{
		Caller:     common.HexToAddress(f.Caller),
		Interval:   interval,
		BufferSize: f.BufferSize,
	}, nil
}
