package safetensors

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/ndbridge/internal/convert"
	"github.com/born-ml/ndbridge/internal/handle"
	"github.com/born-ml/ndbridge/internal/tensor"
)

// Writer writes arrays in safetensors format.
type Writer struct {
	arbiter *convert.Arbiter
}

// NewWriter creates a Writer. Non-C-contiguous arrays are gathered into a
// temporary C-order copy through arbiter (a default Arbiter if nil).
func NewWriter(arbiter *convert.Arbiter) *Writer {
	if arbiter == nil {
		arbiter = convert.NewArbiter(convert.Options{})
	}
	return &Writer{arbiter: arbiter}
}

// WriteFile writes arrays to a new file at path with a default Writer.
func WriteFile(path string, arrays map[string]*handle.Handle, metadata map[string]string) error {
	return NewWriter(nil).WriteFile(path, arrays, metadata)
}

// WriteFile writes arrays to a new file at path.
func (w *Writer) WriteFile(path string, arrays map[string]*handle.Handle, metadata map[string]string) error {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := w.Write(file, arrays, metadata); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// Write encodes arrays to out.
//
// Format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]
//
// Tensors are written in alphabetical order by name.
func (w *Writer) Write(out io.Writer, arrays map[string]*handle.Handle, metadata map[string]string) error {
	names := make([]string, 0, len(arrays))
	for name := range arrays {
		names = append(names, name)
	}
	sort.Strings(names)

	payloads := make([][]byte, len(names))
	var release []*tensor.Descriptor
	defer func() {
		for _, d := range release {
			d.Release()
		}
	}()

	header := Header{Metadata: metadata, Tensors: make(map[string]TensorInfo, len(names))}
	var currentOffset int64
	for i, name := range names {
		h := arrays[name]
		if h == nil || h.Closed() {
			return fmt.Errorf("tensor %s: handle is closed", name)
		}
		dtype, err := dtypeFor(h.DType())
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}

		d := h.Descriptor()
		if d.Device().Kind != tensor.CPU {
			return fmt.Errorf("tensor %s: data on %s is not host addressable", name, d.Device())
		}
		if !d.HasOrder(tensor.OrderC) {
			d, err = w.arbiter.Materialize(d, convert.Plan{DType: d.DType(), Order: tensor.OrderC})
			if err != nil {
				return fmt.Errorf("tensor %s: %w", name, err)
			}
			release = append(release, d)
		}
		data, err := d.Bytes()
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		payloads[i] = data

		shape := h.Shape()
		shapeInt64 := make([]int64, len(shape))
		for j, dim := range shape {
			shapeInt64[j] = int64(dim)
		}
		size := int64(len(data))
		header.Tensors[name] = TensorInfo{
			DType:       dtype,
			Shape:       shapeInt64,
			DataOffsets: [2]int64{currentOffset, currentOffset + size},
		}
		currentOffset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	bw := bufio.NewWriter(out)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := bw.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, name := range names {
		if _, err := bw.Write(payloads[i]); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return bw.Flush()
}
