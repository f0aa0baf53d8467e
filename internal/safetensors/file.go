package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/born-ml/ndbridge/internal/dlpack"
	"github.com/born-ml/ndbridge/internal/extract"
	"github.com/born-ml/ndbridge/internal/lifetime"
	"github.com/born-ml/ndbridge/internal/tensor"
)

// Options configures Open.
type Options struct {
	Logger *zerolog.Logger // Debug logging (disabled if nil)
}

// File is a memory-mapped safetensors file.
//
// The mapping is owned by a lifetime cell. The File holds one reference until
// Close; every exported array holds another until its consumer releases it.
type File struct {
	path       string
	data       []byte // mmap'd region (read-only)
	header     Header
	dataOffset int64

	mapping *lifetime.Cell
	closed  atomic.Bool
	log     zerolog.Logger
}

// Open maps the file at path with default options.
func Open(path string) (*File, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions maps the file at path read-only and parses its header.
// Tensor data is not touched until an array is consumed.
func OpenWithOptions(path string, opts Options) (*File, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	// The mapping outlives the descriptor.
	defer func() {
		_ = file.Close()
	}()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.Size() < 8 {
		return nil, fmt.Errorf("file too small: %d bytes (minimum 8 bytes required)", stat.Size())
	}

	data, err := mmapFile(file, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	f := &File{
		path: path,
		data: data,
		log:  zerolog.Nop(),
	}
	if opts.Logger != nil {
		f.log = *opts.Logger
	}

	if err := f.parseHeader(); err != nil {
		_ = munmapFile(data)
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	f.mapping = lifetime.New(f.unmap)
	f.log.Debug().
		Str("path", path).
		Int("tensors", len(f.header.Tensors)).
		Uint64("cell", f.mapping.ID()).
		Msg("mapped safetensors file")
	return f, nil
}

func (f *File) parseHeader() error {
	size := int64(len(f.data))
	headerSize := binary.LittleEndian.Uint64(f.data[0:8])
	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	//nolint:gosec // G115: headerSize bounded by MaxHeaderSize
	headerEnd := 8 + int64(headerSize)
	if headerEnd > size {
		return fmt.Errorf("header extends beyond file: header_end=%d, file_size=%d", headerEnd, size)
	}

	if err := json.Unmarshal(f.data[8:headerEnd], &f.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	f.dataOffset = headerEnd
	dataSize := size - headerEnd
	for name := range f.header.Tensors {
		info := f.header.Tensors[name]
		if err := info.validate(name, dataSize); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) unmap() {
	if err := munmapFile(f.data); err != nil {
		f.log.Warn().Err(err).Str("path", f.path).Msg("munmap failed")
		return
	}
	f.log.Debug().Str("path", f.path).Msg("unmapped safetensors file")
}

// Path returns the path the file was opened from.
func (f *File) Path() string {
	return f.path
}

// Names returns the tensor names in alphabetical order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.header.Tensors))
	for name := range f.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metadata returns a copy of the __metadata__ section.
func (f *File) Metadata() map[string]string {
	out := make(map[string]string, len(f.header.Metadata))
	for k, v := range f.header.Metadata {
		out[k] = v
	}
	return out
}

// Info returns the header entry of a tensor.
func (f *File) Info(name string) (TensorInfo, error) {
	info, ok := f.header.Tensors[name]
	if !ok {
		return TensorInfo{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return info, nil
}

// Tensor returns the named tensor as a foreign array.
func (f *File) Tensor(name string) (*Array, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	info, err := f.Info(name)
	if err != nil {
		return nil, err
	}
	return &Array{file: f, name: name, info: info}, nil
}

// Close drops the File's reference on the mapping. The mapping itself is
// released once every exported array has been released too.
func (f *File) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	_, err := f.mapping.Release()
	return err
}

// Mapped reports whether the file is still mapped.
func (f *File) Mapped() bool {
	return !f.mapping.Released()
}

// retain takes one reference on the mapping for an exported array.
func (f *File) retain(op string) error {
	if f.closed.Load() {
		return tensor.NewUseError(op, "%s: %v", f.path, ErrClosed)
	}
	if err := f.mapping.Retain(); err != nil {
		return tensor.NewUseError(op, "%s: %v", f.path, err)
	}
	return nil
}

func (f *File) release() {
	if _, err := f.mapping.Release(); err != nil && !errors.Is(err, lifetime.ErrReleased) {
		f.log.Warn().Err(err).Msg("mapping release failed")
	}
}

// Array is one tensor of a File. It exposes both the exchange and the raw buffer
// protocol; every export holds its own reference on the mapping.
type Array struct {
	file *File
	name string
	info TensorInfo
}

// Name returns the tensor name.
func (a *Array) Name() string { return a.name }

// Info returns the tensor's header entry.
func (a *Array) Info() TensorInfo { return a.info }

// Ecosystem returns "safetensors".
func (a *Array) Ecosystem() string { return Ecosystem }

func (a *Array) ptr() unsafe.Pointer {
	base := unsafe.Pointer(unsafe.SliceData(a.file.data))
	return unsafe.Add(base, a.file.dataOffset+a.info.DataOffsets[0])
}

// ExportCapsule returns a fresh read-only capsule over the mapped data.
func (a *Array) ExportCapsule() (*dlpack.Capsule, error) {
	wire, ok := wireTypes[a.info.DType]
	if !ok {
		return nil, fmt.Errorf("tensor %q: unknown dtype %q", a.name, a.info.DType)
	}
	if err := a.file.retain("export"); err != nil {
		return nil, err
	}
	payload := dlpack.Tensor{
		Data:   a.ptr(),
		Device: dlpack.Device{Type: dlpack.DeviceCPU},
		NDim:   int32(len(a.info.Shape)), //nolint:gosec // G115: rank is bounded by the extractor
		DType:  wire,
		Shape:  append([]int64(nil), a.info.Shape...),
	}
	return dlpack.NewCapsule(payload, true, a.file.release), nil
}

// ExportBuffer returns a read-only raw buffer over the mapped data.
// BF16 tensors have no buffer format and are rejected.
func (a *Array) ExportBuffer() (*extract.Buffer, error) {
	wire, ok := wireTypes[a.info.DType]
	if !ok {
		return nil, fmt.Errorf("tensor %q: unknown dtype %q", a.name, a.info.DType)
	}
	dt, err := wire.Normalize()
	if err != nil {
		return nil, err
	}
	format, ok := extract.FormatCode(dt)
	if !ok {
		return nil, fmt.Errorf("tensor %q: dtype %s has no buffer format", a.name, a.info.DType)
	}
	if err := a.file.retain("export"); err != nil {
		return nil, err
	}
	shape := make([]int, len(a.info.Shape))
	for i, n := range a.info.Shape {
		shape[i] = int(n)
	}
	strides := tensor.Shape(shape).ComputeStrides()
	for i := range strides {
		strides[i] *= dt.Size()
	}
	return &extract.Buffer{
		Ptr:      a.ptr(),
		Format:   format,
		ItemSize: dt.Size(),
		NDim:     len(shape),
		Shape:    shape,
		Strides:  strides,
		ReadOnly: true,
		Release:  a.file.release,
	}, nil
}
