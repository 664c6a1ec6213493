package syscalltable

import (
	"encoding/binary"

	"github.com/Jango73/EXOS-sub006/internal/defs"
	"github.com/Jango73/EXOS-sub006/internal/gfx"
)

// Desktop/window/GDI syscall numbers, thin forwarding stubs into
// internal/gfx per spec.md §4.9/§4.10 -- their drawing internals are out
// of scope, so the handler only decodes a param word off the payload and
// forwards it, with the gfx function fixed by the syscall number, to the
// active graphics backend.
const (
	SysGfxSetMode uint32 = SysDesktopBase + iota + 1
	SysGfxSetPixel
	SysGfxLine
	SysGfxPresent
)

// RegisterGfxForwarding wires the desktop/GDI syscall range onto sel,
// decoding each 8-byte payload as a little-endian param uint64 and
// forwarding it, with the gfx function mapped to that syscall number,
// straight to the selector's Dispatch.
func RegisterGfxForwarding(t *Table, sel *gfx.Selector) defs.Err_t {
	forward := func(function uint32) Handler {
		return func(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
			if len(payload) < 8 {
				return 0, defs.BAD_PARAMETER
			}
			param := uintptr(binary.LittleEndian.Uint64(payload))
			return sel.Dispatch(function, param)
		}
	}

	entries := []struct {
		id   uint32
		name string
		fn   uint32
	}{
		{SysGfxSetMode, "GfxSetMode", gfx.FuncSetMode},
		{SysGfxSetPixel, "GfxSetPixel", gfx.FuncSetPixel},
		{SysGfxLine, "GfxLine", gfx.FuncLine},
		{SysGfxPresent, "GfxPresent", gfx.FuncPresent},
	}
	for _, e := range entries {
		err := t.Register(e.id, Entry{
			Name: e.name, Privilege: defs.PrivUser, PayloadSize: 8, Fn: forward(e.fn),
		})
		if err != defs.SUCCESS {
			return err
		}
	}
	return defs.SUCCESS
}
