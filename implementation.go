package hwenc

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Implementation selects the vendor library implementation a session runs on.
// The low byte is the implementation, higher bits name the acceleration API.
type Implementation int32

const (
	ImplAuto        Implementation = iota // Best available, hardware first
	ImplSoftware                          // CPU reference implementation
	ImplHardware                          // First hardware device
	ImplAutoAny                           // Any implementation on any device
	ImplHardwareAny                       // Hardware on any device
	ImplHardware2
	ImplHardware3
	ImplHardware4
	implCount
)

// Acceleration API flags reported by QueryIMPL.
const (
	ImplViaAny   Implementation = 0x0100
	ImplViaD3D9  Implementation = 0x0200
	ImplViaD3D11 Implementation = 0x0300
	ImplViaVAAPI Implementation = 0x0400
)

// implMeta contains static metadata about an implementation.
type implMeta struct {
	Name     string
	Hardware bool
}

// Static metadata table, indexed by base implementation.
var implInfo = [implCount]implMeta{
	ImplAuto:        {"auto", false},
	ImplSoftware:    {"software", false},
	ImplHardware:    {"hardware", true},
	ImplAutoAny:     {"auto-any", false},
	ImplHardwareAny: {"hardware-any", true},
	ImplHardware2:   {"hardware2", true},
	ImplHardware3:   {"hardware3", true},
	ImplHardware4:   {"hardware4", true},
}

// Set when a session opens on the implementation.
var implAvailable [implCount]atomic.Bool

// Base strips the acceleration API flags.
func (i Implementation) Base() Implementation { return i & 0xff }

// Via returns the acceleration API flags.
func (i Implementation) Via() Implementation { return i &^ 0xff }

func (i Implementation) String() string {
	b := i.Base()
	if b < 0 || b >= implCount {
		return fmt.Sprintf("impl(%#x)", int32(i))
	}
	name := implInfo[b].Name
	switch i.Via() {
	case ImplViaVAAPI:
		name += "/vaapi"
	case ImplViaD3D9:
		name += "/d3d9"
	case ImplViaD3D11:
		name += "/d3d11"
	}
	return name
}

// IsHardware reports whether the implementation runs on a GPU.
func (i Implementation) IsHardware() bool {
	b := i.Base()
	if b < 0 || b >= implCount {
		return false
	}
	return implInfo[b].Hardware
}

// Available reports whether a session was opened on the implementation.
func (i Implementation) Available() bool {
	b := i.Base()
	if b < 0 || b >= implCount {
		return false
	}
	return implAvailable[b].Load()
}

func setImplementationAvailable(i Implementation) {
	if b := i.Base(); b >= 0 && b < implCount {
		implAvailable[b].Store(true)
	}
}

// ParseImplementation parses a name as printed by String, without the API suffix.
func ParseImplementation(s string) (Implementation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ImplAuto, nil
	}
	for i, m := range implInfo {
		if m.Name == s {
			return Implementation(i), nil
		}
	}
	return 0, fmt.Errorf("unknown implementation %q", s)
}

// APIVersion is the vendor API version requested by or reported to a session.
type APIVersion struct {
	Major uint16
	Minor uint16
}

func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// MFXConfig configures an MFX session.
type MFXConfig struct {
	Implementation Implementation
	Version        APIVersion     // Minimum API version, 1.0 when zero
	LibraryPath    string         // Tried before the default search order
	Allocator      FrameAllocator // Optional external frame allocator
}
