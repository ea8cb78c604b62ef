package name

import (
	"testing"

	"defs"
	"ipc"
	"ustr"
)

func freshRegistry() *Registry_t { return &Registry_t{} }

func TestRegisterLookupUnregisterRoundTrip(t *testing.T) {
	r := freshRegistry()
	ch := ipc.MkChannel()

	rec, err := r.Register(ustr.Ustr("echo"), ch)
	if err != defs.OK {
		t.Fatalf("Register: %v", err)
	}
	if rec.Path().String() != "echo" {
		t.Fatalf("Path() = %q, want %q", rec.Path().String(), "echo")
	}

	got, err := r.Lookup(ustr.Ustr("echo"))
	if err != defs.OK || got != ch {
		t.Fatalf("Lookup: got %p, %v, want %p, OK", got, err, ch)
	}

	r.Unregister(rec)
	if _, err := r.Lookup(ustr.Ustr("echo")); err != defs.INVALID {
		t.Fatalf("Lookup after Unregister = %v, want INVALID", err)
	}
}

func TestDuplicateRegistrationFails(t *testing.T) {
	r := freshRegistry()
	ch1 := ipc.MkChannel()
	ch2 := ipc.MkChannel()

	if _, err := r.Register(ustr.Ustr("svc"), ch1); err != defs.OK {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := r.Register(ustr.Ustr("svc"), ch2); err != defs.INVALID {
		t.Fatalf("duplicate Register = %v, want INVALID", err)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := freshRegistry()
	ch := ipc.MkChannel()
	rec, _ := r.Register(ustr.Ustr("svc"), ch)
	r.Unregister(rec)
	r.Unregister(rec) // must not panic re-removing an absent key
}

func TestLookupMissingNameFails(t *testing.T) {
	r := freshRegistry()
	if _, err := r.Lookup(ustr.Ustr("nope")); err != defs.INVALID {
		t.Fatalf("Lookup of an unregistered name = %v, want INVALID", err)
	}
}
