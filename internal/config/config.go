// Package config loads ndbridge settings and overload tables from TOML.
//
//	[log]
//	level = "debug"
//
//	[bind]
//	max_rank = 8
//	max_alloc_bytes = 1073741824
//
//	[[overload]]
//	name = "matmul_f32"
//	dtype = "float32"
//	shape = [3, "*", 4]
//	order = "C"
//	device = "cpu"
//	convert = true
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/born-ml/ndbridge/internal/bind"
	"github.com/born-ml/ndbridge/internal/logging"
	"github.com/born-ml/ndbridge/internal/match"
	"github.com/born-ml/ndbridge/internal/parallel"
	"github.com/born-ml/ndbridge/internal/tensor"
)

// Config is the complete ndbridge configuration.
type Config struct {
	Log       LogConfig
	Bind      BindConfig
	Overloads []Overload
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level     string
	Timestamp bool
	NoColor   bool
}

// BindConfig holds Binder settings.
type BindConfig struct {
	MaxRank       int
	MaxAllocBytes int64 // Live bytes of conversion copies; 0 means unlimited
	Parallel      bool
	Workers       int
	MinChunk      int
}

// Overload is one declared signature.
type Overload struct {
	Name    string
	DType   string
	Shape   []string // nil accepts any rank
	Order   string
	Device  string
	Convert bool
	NoCopy  bool
}

// Default returns the built-in configuration.
func Default() Config {
	par := parallel.DefaultConfig()
	return Config{
		Log: LogConfig{
			Level:     "info",
			Timestamp: true,
		},
		Bind: BindConfig{
			MaxRank:  tensor.MaxRank,
			Parallel: par.Enabled,
			Workers:  par.NumWorkers,
			MinChunk: par.MinChunkSize,
		},
	}
}

type fileConfig struct {
	Log struct {
		Level     string `toml:"level"`
		Timestamp bool   `toml:"timestamp"`
		NoColor   bool   `toml:"no_color"`
	} `toml:"log"`
	Bind struct {
		MaxRank       int   `toml:"max_rank"`
		MaxAllocBytes int64 `toml:"max_alloc_bytes"`
		Parallel      bool  `toml:"parallel"`
		Workers       int   `toml:"workers"`
		MinChunk      int   `toml:"min_chunk"`
	} `toml:"bind"`
	Overloads []fileOverload `toml:"overload"`
}

type fileOverload struct {
	Name    string `toml:"name"`
	DType   string `toml:"dtype"`
	Shape   []any  `toml:"shape"`
	Order   string `toml:"order"`
	Device  string `toml:"device"`
	Convert bool   `toml:"convert"`
	NoCopy  bool   `toml:"no_copy"`
}

// Load reads a TOML file and overlays the keys it defines onto Default().
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := checkUndecoded(meta); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return fromFile(&raw, meta)
}

// Parse decodes TOML text, overlaying it onto Default().
func Parse(text string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(text, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := checkUndecoded(meta); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return fromFile(&raw, meta)
}

func checkUndecoded(meta toml.MetaData) error {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	return nil
}

func fromFile(raw *fileConfig, meta toml.MetaData) (Config, error) {
	cfg := Default()

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "timestamp") {
		cfg.Log.Timestamp = raw.Log.Timestamp
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}

	if meta.IsDefined("bind", "max_rank") {
		cfg.Bind.MaxRank = raw.Bind.MaxRank
	}
	if meta.IsDefined("bind", "max_alloc_bytes") {
		cfg.Bind.MaxAllocBytes = raw.Bind.MaxAllocBytes
	}
	if meta.IsDefined("bind", "parallel") {
		cfg.Bind.Parallel = raw.Bind.Parallel
	}
	if meta.IsDefined("bind", "workers") {
		cfg.Bind.Workers = raw.Bind.Workers
	}
	if meta.IsDefined("bind", "min_chunk") {
		cfg.Bind.MinChunk = raw.Bind.MinChunk
	}

	for i, o := range raw.Overloads {
		shape, err := shapeTokens(o.Shape)
		if err != nil {
			return Config{}, fmt.Errorf("load config: overload %d (%s): %w", i, o.Name, err)
		}
		cfg.Overloads = append(cfg.Overloads, Overload{
			Name:    strings.TrimSpace(o.Name),
			DType:   o.DType,
			Shape:   shape,
			Order:   o.Order,
			Device:  o.Device,
			Convert: o.Convert,
			NoCopy:  o.NoCopy,
		})
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// shapeTokens accepts integers and strings in a TOML shape array.
func shapeTokens(raw []any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		switch tok := v.(type) {
		case int64:
			out[i] = fmt.Sprint(tok)
		case string:
			out[i] = tok
		default:
			return nil, fmt.Errorf("shape entry %d: unsupported value %v (%T)", i, v, v)
		}
	}
	return out, nil
}

// Validate checks ranges and that every overload parses.
func (c *Config) Validate() error {
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.Bind.MaxRank < 0 || c.Bind.MaxRank > tensor.MaxRank {
		return fmt.Errorf("bind.max_rank must be in [0, %d], got %d", tensor.MaxRank, c.Bind.MaxRank)
	}
	if c.Bind.MaxAllocBytes < 0 {
		return fmt.Errorf("bind.max_alloc_bytes must be >= 0, got %d", c.Bind.MaxAllocBytes)
	}
	if c.Bind.Workers < 0 || c.Bind.MinChunk < 0 {
		return fmt.Errorf("bind.workers and bind.min_chunk must be >= 0")
	}
	_, err := c.Signatures()
	return err
}

// Signature converts the overload into a match.Signature.
func (o Overload) Signature() (match.Signature, error) {
	sig := match.Signature{
		Name:    o.Name,
		Convert: o.Convert,
		NoCopy:  o.NoCopy,
	}
	var err error
	if sig.DType, err = tensor.ParseDataType(o.DType); err != nil {
		return match.Signature{}, fmt.Errorf("overload %q: %w", o.Name, err)
	}
	if o.Shape != nil {
		sig.Shape = make([]match.Axis, len(o.Shape))
		for i, tok := range o.Shape {
			if sig.Shape[i], err = match.ParseAxis(tok); err != nil {
				return match.Signature{}, fmt.Errorf("overload %q: %w", o.Name, err)
			}
		}
	}
	if sig.Order, err = match.ParseOrder(o.Order); err != nil {
		return match.Signature{}, fmt.Errorf("overload %q: %w", o.Name, err)
	}
	if sig.Device, err = match.ParseDevice(o.Device); err != nil {
		return match.Signature{}, fmt.Errorf("overload %q: %w", o.Name, err)
	}
	if err := sig.Validate(); err != nil {
		return match.Signature{}, err
	}
	return sig, nil
}

// Signatures converts every overload, in declaration order.
func (c *Config) Signatures() ([]match.Signature, error) {
	sigs := make([]match.Signature, len(c.Overloads))
	for i, o := range c.Overloads {
		sig, err := o.Signature()
		if err != nil {
			return nil, err
		}
		sigs[i] = sig
	}
	return sigs, nil
}

// Logging returns the logger settings for profile with this section applied.
func (l LogConfig) Logging(profile logging.Profile) logging.Config {
	cfg := logging.DefaultConfig(profile)
	if lvl, ok := logging.ParseLevel(l.Level); ok {
		cfg.Level = lvl
	}
	cfg.Timestamp = l.Timestamp
	cfg.NoColor = l.NoColor
	return cfg
}

// ParallelConfig returns the conversion fan-out settings.
func (b BindConfig) ParallelConfig() parallel.Config {
	workers := b.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return parallel.Config{
		Enabled:      b.Parallel,
		NumWorkers:   workers,
		MinChunkSize: b.MinChunk,
	}
}

// Options returns bind.Options for this section.
func (b BindConfig) Options(logger *zerolog.Logger) bind.Options {
	par := b.ParallelConfig()
	opts := bind.Options{
		MaxRank:  b.MaxRank,
		Parallel: &par,
		Logger:   logger,
	}
	if b.MaxAllocBytes > 0 {
		opts.Allocator = &tensor.HeapAllocator{Limit: b.MaxAllocBytes}
	}
	return opts
}
