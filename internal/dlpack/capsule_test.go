package dlpack

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/born-ml/ndbridge/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapsule_ConsumeOnce(t *testing.T) {
	var deletes atomic.Int32
	c := NewCapsule(Tensor{NDim: 0}, false, func() { deletes.Add(1) })
	assert.Equal(t, CurrentVersion, c.Version)

	cell, err := c.Consume()
	require.NoError(t, err)
	assert.True(t, c.Consumed())

	_, err = c.Consume()
	require.ErrorIs(t, err, tensor.ErrUse)
	var useErr *tensor.UseError
	require.ErrorAs(t, err, &useErr)
	assert.Equal(t, "consume", useErr.Op)

	c.Discard()
	assert.Equal(t, int32(0), deletes.Load(), "consumed capsules belong to their cell")

	_, err = cell.Release()
	require.NoError(t, err)
	assert.Equal(t, int32(1), deletes.Load())
}

func TestCapsule_Discard(t *testing.T) {
	var deletes atomic.Int32
	c := NewCapsule(Tensor{}, true, func() { deletes.Add(1) })

	c.Discard()
	c.Discard()
	assert.Equal(t, int32(1), deletes.Load())

	_, err := c.Consume()
	require.ErrorIs(t, err, tensor.ErrUse)
}

// TestCapsule_Abandoned tests that an unreachable, never-consumed capsule still
// runs its deleter once.
func TestCapsule_Abandoned(t *testing.T) {
	var deletes atomic.Int32
	func() {
		_ = NewCapsule(Tensor{}, false, func() { deletes.Add(1) })
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		return deletes.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDataType_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		in      DataType
		want    tensor.DataType
		wantErr bool
	}{
		{"float32", DataType{Code: CodeFloat, Bits: 32, Lanes: 1}, tensor.Float32, false},
		{"uint16", DataType{Code: CodeUInt, Bits: 16, Lanes: 1}, tensor.Uint16, false},
		{"bool", DataType{Code: CodeBool, Bits: 8, Lanes: 1}, tensor.Bool, false},
		{"vector lanes", DataType{Code: CodeInt, Bits: 8, Lanes: 4}, tensor.DataType{Code: tensor.Int, Bits: 8, Lanes: 4}, false},
		{"bfloat16", DataType{Code: CodeBfloat, Bits: 16, Lanes: 1}, tensor.DataType{}, true},
		{"complex64", DataType{Code: CodeComplex, Bits: 64, Lanes: 1}, tensor.DataType{}, true},
		{"zero lanes", DataType{Code: CodeFloat, Bits: 32}, tensor.DataType{}, true},
		{"odd width", DataType{Code: CodeInt, Bits: 12, Lanes: 1}, tensor.DataType{}, true},
		{"wide bool", DataType{Code: CodeBool, Bits: 32, Lanes: 1}, tensor.DataType{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				require.ErrorIs(t, err, tensor.ErrFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, WireDataType(got))
		})
	}
}

func TestDevice_Normalize(t *testing.T) {
	assert.Equal(t, tensor.Device{Kind: tensor.CPU}, Device{Type: DeviceCPU}.Normalize())
	assert.Equal(t, tensor.Device{Kind: tensor.CPU, ID: 2}, Device{Type: DeviceCUDAHost, ID: 2}.Normalize())
	assert.Equal(t, tensor.Device{Kind: tensor.CUDA, ID: 1}, Device{Type: DeviceCUDA, ID: 1}.Normalize())
	assert.Equal(t, tensor.Other, Device{Type: DeviceMetal}.Normalize().Kind)
	assert.Equal(t, tensor.Other, Device{Type: DeviceType(99)}.Normalize().Kind)

	assert.Equal(t, Device{Type: DeviceCUDA, ID: 3}, WireDevice(tensor.Device{Kind: tensor.CUDA, ID: 3}))
	assert.Equal(t, DeviceExtDev, WireDevice(tensor.Device{Kind: tensor.Other}).Type)
}
