package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/born-ml/ndbridge/internal/logging"
	"github.com/born-ml/ndbridge/internal/match"
	"github.com/born-ml/ndbridge/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[log]
level = "debug"
no_color = true

[bind]
max_rank = 8
max_alloc_bytes = 4096
workers = 2

[[overload]]
name = "f32_3x_4"
dtype = "float32"
shape = [3, "*", 4]
order = "C"
device = "cpu"

[[overload]]
name = "any_batch"
shape = ["...", ]
convert = true
no_copy = true
`

func TestLoad_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ndbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Log.Level = "debug"
	want.Log.NoColor = true
	want.Bind.MaxRank = 8
	want.Bind.MaxAllocBytes = 4096
	want.Bind.Workers = 2
	want.Overloads = []Overload{
		{Name: "f32_3x_4", DType: "float32", Shape: []string{"3", "*", "4"}, Order: "C", Device: "cpu"},
		{Name: "any_batch", Shape: []string{"..."}, Convert: true, NoCopy: true},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, cfg.Log.Timestamp, "keys not in the file keep their defaults")
}

func TestConfig_Signatures(t *testing.T) {
	cfg, err := Parse(sample)
	require.NoError(t, err)

	sigs, err := cfg.Signatures()
	require.NoError(t, err)

	want := []match.Signature{
		{
			Name:   "f32_3x_4",
			DType:  tensor.Float32,
			Shape:  []match.Axis{match.Fixed(3), match.AnyAxis, match.Fixed(4)},
			Order:  match.RequireC,
			Device: match.OnCPU,
		},
		{Name: "any_batch", Shape: []match.Axis{match.Rest}, Convert: true, NoCopy: true},
	}
	if diff := cmp.Diff(want, sigs); diff != "" {
		t.Errorf("Signatures() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"bad dtype", "[[overload]]\nname = \"x\"\ndtype = \"complex64\"\n"},
		{"bad axis", "[[overload]]\nname = \"x\"\nshape = [\"-3\"]\n"},
		{"rest not last", "[[overload]]\nname = \"x\"\nshape = [\"...\", 2]\n"},
		{"bad order", "[[overload]]\nname = \"x\"\norder = \"Z\"\n"},
		{"bad device", "[[overload]]\nname = \"x\"\ndevice = \"tpu\"\n"},
		{"bad shape value", "[[overload]]\nname = \"x\"\nshape = [1.5]\n"},
		{"bad level", "[log]\nlevel = \"loud\"\n"},
		{"rank too large", "[bind]\nmax_rank = 99\n"},
		{"negative alloc", "[bind]\nmax_alloc_bytes = -1\n"},
		{"syntax", "[bind\n"},
		{"unknown key", "[bind]\nmax_ranks = 3\n"},
		{"unknown overload key", "[[overload]]\nname = \"x\"\nnocopy = true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
		})
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ndbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte("[bind]\nmax_ranks = 3\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_ranks")
}

func TestBindConfig_Options(t *testing.T) {
	logger := zerolog.Nop()
	opts := BindConfig{MaxRank: 4, MaxAllocBytes: 128, Parallel: true, Workers: 3, MinChunk: 16}.Options(&logger)

	assert.Equal(t, 4, opts.MaxRank)
	require.NotNil(t, opts.Parallel)
	assert.True(t, opts.Parallel.Enabled)
	assert.Equal(t, 3, opts.Parallel.NumWorkers)
	assert.Equal(t, 16, opts.Parallel.MinChunkSize)

	heap, ok := opts.Allocator.(*tensor.HeapAllocator)
	require.True(t, ok)
	assert.Equal(t, int64(128), heap.Limit)

	assert.Nil(t, BindConfig{}.Options(nil).Allocator, "zero limit uses the default allocator")
}

func TestLogConfig_Logging(t *testing.T) {
	cfg := LogConfig{Level: "warn", NoColor: true}.Logging(logging.ProfileRuntime)
	assert.Equal(t, zerolog.WarnLevel, cfg.Level)
	assert.True(t, cfg.NoColor)
	assert.False(t, cfg.Timestamp)
}
