// Package gfx implements the graphics dispatch selector (spec.md §4.9): a
// capability-scored chooser over candidate backends (GOP-like, VESA-like,
// and so on), forwarding every call to the highest-scoring backend and
// retrying the next one down the ranked list on NOT_IMPLEMENTED.
//
// Grounded on internal/driver's Command(function, param) vtable shape and
// on biscuit/src/pci's enumerate-then-rank device selection idiom, applied
// here to backend capability scores rather than PCI class codes.
package gfx

import (
	"sort"
	"sync"

	"github.com/Jango73/EXOS-sub006/internal/defs"
)

// Capabilities a backend reports through GET_CAPABILITIES, scored per
// spec.md §4.9.
type Capabilities struct {
	HasHardwareModeset   bool
	HasPageFlip          bool
	HasVBlankInterrupt   bool
	HasCursorPlane       bool
	SupportsTiledSurface bool
	MaxWidth, MaxHeight  uint32
}

// Score weights each capability bit per spec.md §4.9 and adds a
// resolution bonus of one point per whole 1920x1080 area of the maximum
// mode (integer division), so a maximum mode smaller than 1920x1080 adds
// nothing.
func (c Capabilities) Score() int {
	s := 0
	if c.HasHardwareModeset {
		s += 10
	}
	if c.HasPageFlip {
		s += 5
	}
	if c.HasVBlankInterrupt {
		s += 3
	}
	if c.HasCursorPlane {
		s += 2
	}
	if c.SupportsTiledSurface {
		s += 2
	}
	s += int((c.MaxWidth * c.MaxHeight) / (1920 * 1080))
	return s
}

// Backend is the uniform vtable every graphics backend implements,
// matching internal/driver.Driver's Command shape so the same parameter-
// block-over-uintptr calling convention is used throughout the kernel.
type Backend interface {
	Name() string
	Command(function uint32, param uintptr) (uintptr, defs.Err_t)
	Capabilities() Capabilities
}

// Function codes forwarded to the active backend, per spec.md §4.9.
const (
	FuncLoad uint32 = iota + 1
	FuncUnload
	FuncGetVersion
	FuncEnumModes
	FuncGetModeInfo
	FuncSetMode
	FuncCreateContext
	FuncCreateBrush
	FuncCreatePen
	FuncSetPixel
	FuncGetPixel
	FuncLine
	FuncRectangle
	FuncEllipse
	FuncGetCapabilities
	FuncEnumOutputs
	FuncGetOutputInfo
	FuncPresent
	FuncWaitVBlank
	FuncAllocSurface
	FuncFreeSurface
	FuncSetScanout
	FuncTextPutCell
	FuncTextClearRegion
	FuncTextScrollRegion
	FuncTextSetCursor
	FuncTextSetCursorVisible
)

type ranked struct {
	backend Backend
	score   int
}

// Selector holds every registered backend sorted descending by capability
// score, with the highest-ranked backend active by default.
type Selector struct {
	mu     sync.Mutex
	ranks  []ranked
	active int
}

// NewSelector scores and sorts backends, descending, ties broken by
// registration order (sort.SliceStable).
func NewSelector(backends ...Backend) *Selector {
	s := &Selector{}
	for _, b := range backends {
		s.ranks = append(s.ranks, ranked{backend: b, score: b.Capabilities().Score()})
	}
	sort.SliceStable(s.ranks, func(i, j int) bool { return s.ranks[i].score > s.ranks[j].score })
	return s
}

// Active returns the name of the currently active backend, or "" if none
// are registered.
func (s *Selector) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active >= len(s.ranks) {
		return ""
	}
	return s.ranks[s.active].backend.Name()
}

// Dispatch forwards function/param to the active backend; if it returns
// NOT_IMPLEMENTED, the selector advances to the next-ranked backend and
// retries the same call before giving up.
func (s *Selector) Dispatch(function uint32, param uintptr) (uintptr, defs.Err_t) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ranks) == 0 {
		return 0, defs.NODEVICE
	}

	for i := s.active; i < len(s.ranks); i++ {
		res, err := s.ranks[i].backend.Command(function, param)
		if err != defs.NOT_IMPLEMENTED {
			s.active = i
			return res, err
		}
	}
	return 0, defs.NOT_IMPLEMENTED
}

// Backends returns the ranked backend names, highest score first, for
// diagnostics.
func (s *Selector) Backends() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ranks))
	for i, r := range s.ranks {
		out[i] = r.backend.Name()
	}
	return out
}
