// Package config holds the JSON-loadable knobs the CLI harness uses to
// configure a Biu and its backing bus before driving it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the settings needed to stand up a Biu against a bus.
type Config struct {
	// CPUType selects queue capacity and fetch width: "8088", "80c88" or
	// "8086". Default: "8088".
	CPUType string `json:"cpu_type"`

	// ResetAddr is the linear address the prefetch pointer starts at.
	// Default: 0xFFFF0 (the real-mode reset vector).
	ResetAddr uint32 `json:"reset_addr"`

	// CacheEnabled turns on the CachedBus wait-state generator in front of
	// the flat memory bus. Default: false (zero-wait-state memory).
	CacheEnabled bool `json:"cache_enabled"`

	// CacheSize is the cache size in bytes. Default: 2048.
	CacheSize int `json:"cache_size"`

	// CacheAssociativity is the number of ways. Default: 4.
	CacheAssociativity int `json:"cache_associativity"`

	// CacheBlockSize is the cache line size in bytes. Default: 16.
	CacheBlockSize int `json:"cache_block_size"`

	// CacheHitWaitStates is the extra Tw states injected on a cache hit.
	// Default: 0.
	CacheHitWaitStates uint32 `json:"cache_hit_wait_states"`

	// CacheMissWaitStates is the extra Tw states injected on a cache miss.
	// Default: 4.
	CacheMissWaitStates uint32 `json:"cache_miss_wait_states"`

	// FixedWaitStates, when CacheEnabled is false, is applied uniformly to
	// every bus transfer. Default: 0.
	FixedWaitStates uint32 `json:"fixed_wait_states"`

	// BootImage is the path to a flat binary loaded into memory at
	// ImageOrigin before the BIU starts running. Optional.
	BootImage string `json:"boot_image"`

	// ImageOrigin is the linear address BootImage is loaded at. Default:
	// 0xFFFF0 (so a short boot stub can sit right at the reset vector).
	ImageOrigin uint32 `json:"image_origin"`
}

// DefaultConfig returns the zero-wait-state 8088 configuration the CLI
// harness starts from absent an explicit config file.
func DefaultConfig() *Config {
	return &Config{
		CPUType:             "8088",
		ResetAddr:           0xFFFF0,
		CacheEnabled:        false,
		CacheSize:           2048,
		CacheAssociativity:  4,
		CacheBlockSize:      16,
		CacheHitWaitStates:  0,
		CacheMissWaitStates: 4,
		FixedWaitStates:     0,
		ImageOrigin:         0xFFFF0,
	}
}

// LoadConfig loads a Config from a JSON file, starting from defaults so an
// omitted field keeps its default value.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read biu config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse biu config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as indented JSON.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize biu config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write biu config file: %w", err)
	}
	return nil
}

// Validate checks that cfg describes a buildable BIU.
func (c *Config) Validate() error {
	switch c.CPUType {
	case "8088", "80c88", "8086":
	default:
		return fmt.Errorf("cpu_type must be one of 8088, 80c88, 8086, got %q", c.CPUType)
	}
	if c.CacheEnabled {
		if c.CacheSize <= 0 || c.CacheAssociativity <= 0 || c.CacheBlockSize <= 0 {
			return fmt.Errorf("cache_size, cache_associativity and cache_block_size must all be > 0")
		}
		if c.CacheSize%(c.CacheAssociativity*c.CacheBlockSize) != 0 {
			return fmt.Errorf("cache_size must be a multiple of cache_associativity * cache_block_size")
		}
	}
	return nil
}

// Clone returns a deep copy of cfg (Config has no reference fields, so
// this is just a value copy, kept for API parity with configs that do).
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
