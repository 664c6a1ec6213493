package gfx

import "github.com/Jango73/EXOS-sub006/internal/defs"

// gopBackend is a trivial stand-in for a GOP (Graphics Output Protocol)
// backend: the strongest capability set, modeset plus page flip plus
// vblank, so it ranks first against vesaBackend by construction.
type gopBackend struct {
	loaded bool
}

// NewGOPBackend returns a backend exercising the selector's top rank.
func NewGOPBackend() Backend { return &gopBackend{} }

func (b *gopBackend) Name() string { return "gop" }

func (b *gopBackend) Capabilities() Capabilities {
	return Capabilities{
		HasHardwareModeset: true,
		HasPageFlip:        true,
		HasVBlankInterrupt: true,
		HasCursorPlane:     true,
		MaxWidth:           1920,
		MaxHeight:          1080,
	}
}

func (b *gopBackend) Command(function uint32, param uintptr) (uintptr, defs.Err_t) {
	switch function {
	case FuncLoad:
		b.loaded = true
		return 0, defs.SUCCESS
	case FuncUnload:
		b.loaded = false
		return 0, defs.SUCCESS
	case FuncGetVersion:
		return 1, defs.SUCCESS
	case FuncGetCapabilities:
		return 0, defs.SUCCESS
	case FuncSetMode, FuncPresent, FuncWaitVBlank:
		if !b.loaded {
			return 0, defs.NO_PERMISSION
		}
		return 0, defs.SUCCESS
	default:
		return 0, defs.NOT_IMPLEMENTED
	}
}

// vesaBackend is a trivial stand-in for a VESA BIOS Extensions fallback
// backend: a much weaker capability set (no page flip, no vblank IRQ), so
// it ranks below gopBackend, and implements only a subset of functions to
// exercise the selector's fall-through-to-next-backend behavior.
type vesaBackend struct {
	loaded bool
}

// NewVESABackend returns a backend exercising the selector's fallback
// path: it only answers FuncLoad, FuncUnload, FuncSetMode, FuncGetVersion,
// and text-mode calls, leaving drawing primitives NOT_IMPLEMENTED.
func NewVESABackend() Backend { return &vesaBackend{} }

func (b *vesaBackend) Name() string { return "vesa" }

func (b *vesaBackend) Capabilities() Capabilities {
	return Capabilities{
		HasHardwareModeset: true,
		MaxWidth:           1024,
		MaxHeight:          768,
	}
}

func (b *vesaBackend) Command(function uint32, param uintptr) (uintptr, defs.Err_t) {
	switch function {
	case FuncLoad:
		b.loaded = true
		return 0, defs.SUCCESS
	case FuncUnload:
		b.loaded = false
		return 0, defs.SUCCESS
	case FuncGetVersion:
		return 1, defs.SUCCESS
	case FuncSetMode:
		if !b.loaded {
			return 0, defs.NO_PERMISSION
		}
		return 0, defs.SUCCESS
	case FuncTextPutCell, FuncTextClearRegion, FuncTextScrollRegion,
		FuncTextSetCursor, FuncTextSetCursorVisible:
		return 0, defs.SUCCESS
	default:
		return 0, defs.NOT_IMPLEMENTED
	}
}
