package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Modes supported by ringbench.
const (
	ModeChannel       = "channel"
	ModeDemux         = "demux"
	ModeMux           = "mux"
	ModeBroadcast     = "broadcast"
	ModeMPMC          = "mpmc"
	ModeMPMCBroadcast = "mpmc-broadcast"
	ModeLocked        = "locked"
)

// Config describes one benchmark run.
type Config struct {
	Mode      string `yaml:"mode"`
	Capacity  uint64 `yaml:"capacity"`
	Producers int    `yaml:"producers"`
	Consumers int    `yaml:"consumers"`
	// Messages is the number of records sent by each producer.
	Messages int  `yaml:"messages"`
	Batch    int  `yaml:"batch"`
	Lazy     bool `yaml:"lazy"`
	// Wait is the blocking policy of every poll loop: spin, yield, sleep, backoff or default.
	Wait        string        `yaml:"wait"`
	SleepFor    time.Duration `yaml:"sleep_for"`
	Pin         bool          `yaml:"pin"`
	Timeout     time.Duration `yaml:"timeout"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Mode:      ModeChannel,
		Capacity:  1 << 10,
		Producers: 1,
		Consumers: 1,
		Messages:  1_000_000,
		Batch:     64,
		Wait:      "default",
		SleepFor:  time.Microsecond,
		Timeout:   time.Minute,
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration before the queues are built,
// since the constructors panic on invalid arguments.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeChannel, ModeDemux, ModeMux, ModeBroadcast, ModeMPMC, ModeMPMCBroadcast, ModeLocked:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Capacity == 0 || c.Capacity&(c.Capacity-1) != 0 {
		return fmt.Errorf("capacity must be power of 2 and > 0, got %d", c.Capacity)
	}
	if c.Producers <= 0 || c.Consumers <= 0 {
		return fmt.Errorf("producers and consumers must be > 0, got %d and %d", c.Producers, c.Consumers)
	}
	if c.Messages <= 0 {
		return fmt.Errorf("messages must be > 0, got %d", c.Messages)
	}
	if c.Batch <= 0 || uint64(c.Batch) > c.Capacity {
		return fmt.Errorf("batch must be in [1, capacity], got %d", c.Batch)
	}
	switch c.Wait {
	case "spin", "yield", "sleep", "backoff", "default":
	default:
		return fmt.Errorf("unknown wait strategy %q", c.Wait)
	}
	return nil
}

// normalize forces the participant counts a mode implies.
func (c Config) normalize() Config {
	switch c.Mode {
	case ModeChannel:
		c.Producers, c.Consumers = 1, 1
	case ModeDemux, ModeBroadcast:
		c.Producers = 1
	case ModeMux:
		c.Consumers = 1
	}
	return c
}
