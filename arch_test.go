package simstate_test

import (
	"testing"

	"github.com/benbjohnson/simstate"
)

func TestArchByName(t *testing.T) {
	for name, want := range map[string]*simstate.Arch{
		"amd64":  simstate.AMD64,
		"X86_64": simstate.AMD64,
		"x86":    simstate.X86,
		"i386":   simstate.X86,
	} {
		if a, err := simstate.ArchByName(name); err != nil {
			t.Fatal(err)
		} else if a != want {
			t.Fatalf("%s: unexpected arch: %s", name, a)
		}
	}

	if _, err := simstate.ArchByName("arm64"); err == nil {
		t.Fatal("expected error")
	}
}

func TestArch_Register(t *testing.T) {
	if r, ok := simstate.AMD64.Register("rdi"); !ok || r.Width != 64 {
		t.Fatalf("unexpected register: %+v", r)
	} else if r, ok := simstate.X86.Register(simstate.X86.Flags); !ok || r.Width != 32 {
		t.Fatalf("unexpected register: %+v", r)
	} else if _, ok := simstate.X86.Register("rdi"); ok {
		t.Fatal("expected no register")
	}
}

func TestArch_PtrSize(t *testing.T) {
	if n := simstate.AMD64.PtrSize(); n != 8 {
		t.Fatalf("unexpected size: %d", n)
	} else if n := simstate.X86.PtrSize(); n != 4 {
		t.Fatalf("unexpected size: %d", n)
	}
}
