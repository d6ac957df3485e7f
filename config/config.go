// Package config holds the settings of a matmul run, read from a TOML
// file and then overridden by command line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/openfluke/matmul/gpu"
	"github.com/pelletier/go-toml/v2"
)

// Power preferences accepted in power_preference.
const (
	HighPerformance = "high-performance"
	LowPower        = "low-power"
)

// DefaultFile is read when it exists and no file is named explicitly.
const DefaultFile = "matmul.toml"

// Config is one run of the CLI.
type Config struct {
	// Size is the edge of the square matrices.
	Size int `toml:"size"`

	// Entry is the kernel entry point to dispatch.
	Entry string `toml:"entry"`

	PowerPreference string `toml:"power_preference"`

	// AllowFallback retries with other adapters when the preferred one is
	// not available.
	AllowFallback bool `toml:"allow_fallback"`

	// MapTimeoutMs bounds each readback. 0 waits until the device answers.
	MapTimeoutMs int `toml:"map_timeout_ms"`

	// Verify compares the product with the host reference.
	Verify bool `toml:"verify"`

	Print bool `toml:"print"`

	// Repeat is the number of independent multiplications run
	// concurrently on the device.
	Repeat int `toml:"repeat"`

	Seed uint64 `toml:"seed"`
}

// Default returns the settings of a bare invocation: one 16x16 product
// with the simple kernel, printed.
func Default() Config {
	return Config{
		Size:            16,
		Entry:           gpu.EntrySimple,
		PowerPreference: HighPerformance,
		Print:           true,
		Repeat:          1,
	}
}

// Load reads path over the defaults. Keys the file does not set keep
// their default value, and unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	if err := Decode(f, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault reads DefaultFile when present and returns Default otherwise.
func LoadDefault() (Config, error) {
	cfg, err := Load(DefaultFile)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Decode reads TOML from r into cfg.
func Decode(r io.Reader, cfg *Config) error {
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg Config) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Validate reports the first setting that cannot be run.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("size must be positive, got %d", c.Size)
	}
	if c.Entry != gpu.EntrySimple && c.Entry != gpu.EntryTiled {
		return fmt.Errorf("entry must be %q or %q, got %q", gpu.EntrySimple, gpu.EntryTiled, c.Entry)
	}
	if c.PowerPreference != HighPerformance && c.PowerPreference != LowPower {
		return fmt.Errorf("power_preference must be %q or %q, got %q", HighPerformance, LowPower, c.PowerPreference)
	}
	if c.MapTimeoutMs < 0 {
		return fmt.Errorf("map_timeout_ms must not be negative, got %d", c.MapTimeoutMs)
	}
	if c.Repeat < 1 {
		return fmt.Errorf("repeat must be at least 1, got %d", c.Repeat)
	}
	return nil
}

// GPUOptions selects the adapter the way the settings ask for.
func (c Config) GPUOptions() gpu.Options {
	return gpu.Options{
		LowPower:      c.PowerPreference == LowPower,
		AllowFallback: c.AllowFallback,
	}
}

// MapTimeout is MapTimeoutMs as a duration.
func (c Config) MapTimeout() time.Duration {
	return time.Duration(c.MapTimeoutMs) * time.Millisecond
}
