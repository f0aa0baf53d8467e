package tensor

import (
	"fmt"
	"strings"
)

// DeviceKind is the class of memory an array lives in.
type DeviceKind int

// Supported device kinds. Anything that is neither host nor CUDA memory is Other.
const (
	CPU DeviceKind = iota
	CUDA
	Other
)

// String returns a human-readable device kind.
func (k DeviceKind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	default:
		return "other"
	}
}

// ParseDeviceKind parses "cpu", "cuda" or "other".
func ParseDeviceKind(s string) (DeviceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return CPU, nil
	case "cuda", "gpu":
		return CUDA, nil
	case "other":
		return Other, nil
	default:
		return 0, fmt.Errorf("unknown device kind %q", s)
	}
}

// Device identifies where array data resides. ID is informational only.
type Device struct {
	Kind DeviceKind
	ID   int
}

// HostDevice is the default CPU device.
var HostDevice = Device{Kind: CPU}

// String renders the device as "kind:id".
func (d Device) String() string {
	return fmt.Sprintf("%s:%d", d.Kind, d.ID)
}
