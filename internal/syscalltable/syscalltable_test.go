package syscalltable

import (
	"testing"

	"github.com/Jango73/EXOS-sub006/internal/defs"
)

func header(size uint32) defs.ABIHeader {
	return defs.ABIHeader{Size: size, Version: defs.ExosABIVersion}
}

func TestDispatchInvokesRegisteredHandler(t *testing.T) {
	tbl := New()
	called := false
	tbl.Register(SysSleep, Entry{
		Name: "Sleep", Privilege: defs.PrivUser, PayloadSize: 8,
		Fn: func(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
			called = true
			return 0, defs.SUCCESS
		},
	})

	if _, err := tbl.Dispatch(SysSleep, 1, defs.PrivUser, header(8), make([]byte, 8)); err != defs.SUCCESS {
		t.Fatalf("Dispatch: %v", err)
	}
	if !called {
		t.Fatal("handler was not invoked")
	}
}

func TestDispatchRejectsUndersizedPayload(t *testing.T) {
	tbl := New()
	tbl.Register(SysSleep, Entry{Name: "Sleep", Privilege: defs.PrivUser, PayloadSize: 16,
		Fn: func(defs.Tid_t, []byte) (uintptr, defs.Err_t) { return 0, defs.SUCCESS }})

	if _, err := tbl.Dispatch(SysSleep, 1, defs.PrivUser, header(8), nil); err != defs.BAD_PARAMETER {
		t.Fatalf("err = %v, want BAD_PARAMETER", err)
	}
}

func TestDispatchRejectsWrongABIVersion(t *testing.T) {
	tbl := New()
	tbl.Register(SysSleep, Entry{Name: "Sleep", Privilege: defs.PrivUser, PayloadSize: 8,
		Fn: func(defs.Tid_t, []byte) (uintptr, defs.Err_t) { return 0, defs.SUCCESS }})

	bad := defs.ABIHeader{Size: 8, Version: defs.ExosABIVersion + 1}
	if _, err := tbl.Dispatch(SysSleep, 1, defs.PrivUser, bad, make([]byte, 8)); err != defs.BAD_PARAMETER {
		t.Fatalf("err = %v, want BAD_PARAMETER", err)
	}
}

func TestDispatchRejectsInsufficientPrivilege(t *testing.T) {
	tbl := New()
	tbl.Register(SysKillProcess, Entry{Name: "KillProcess", Privilege: defs.PrivKernel, PayloadSize: 4,
		Fn: func(defs.Tid_t, []byte) (uintptr, defs.Err_t) { return 0, defs.SUCCESS }})

	if _, err := tbl.Dispatch(SysKillProcess, 1, defs.PrivUser, header(4), make([]byte, 4)); err != defs.NO_PERMISSION {
		t.Fatalf("err = %v, want NO_PERMISSION", err)
	}
}

func TestDispatchUnknownIDReturnsNotImplemented(t *testing.T) {
	tbl := New()
	if _, err := tbl.Dispatch(999, 1, defs.PrivKernel, header(0), nil); err != defs.NOT_IMPLEMENTED {
		t.Fatalf("err = %v, want NOT_IMPLEMENTED", err)
	}
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	tbl := New()
	entry := Entry{Name: "Sleep", Privilege: defs.PrivUser, PayloadSize: 8,
		Fn: func(defs.Tid_t, []byte) (uintptr, defs.Err_t) { return 0, defs.SUCCESS }}
	tbl.Register(SysSleep, entry)
	if err := tbl.Register(SysSleep, entry); err != defs.BAD_PARAMETER {
		t.Fatalf("err = %v, want BAD_PARAMETER", err)
	}
}
