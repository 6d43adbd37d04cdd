package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFlagsCommand(t *testing.T) {
	t.Run("ADD", func(t *testing.T) {
		out := MustExecute(t, "flags", "add", "32", "0xFFFFFFFF", "0xFFFFFFFF")
		if !strings.Contains(out, "packed: 101010\n") {
			t.Fatalf("unexpected output: %s", out)
		} else if !strings.Contains(out, "rflags: 0x91\n") {
			t.Fatalf("unexpected output: %s", out)
		}
	})

	t.Run("CMP", func(t *testing.T) {
		out := MustExecute(t, "flags", "cmp", "8", "1", "1")
		if !strings.Contains(out, "CF=0 PF=1 AF=0 ZF=1 SF=0 OF=0") {
			t.Fatalf("unexpected output: %s", out)
		}
	})

	t.Run("ErrUnknownOp", func(t *testing.T) {
		if _, err := Execute("flags", "bogus", "8", "1", "1"); err == nil || !strings.Contains(err.Error(), "no flag action") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ErrInvalidWidth", func(t *testing.T) {
		if _, err := Execute("flags", "add", "12", "1", "1"); err == nil || !strings.Contains(err.Error(), "invalid width") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestStrlenCommand(t *testing.T) {
	t.Run("Concrete", func(t *testing.T) {
		if out := MustExecute(t, "strlen", "41414100"); out != "lengths: [3]\n" {
			t.Fatalf("unexpected output: %q", out)
		}
	})

	t.Run("Symbolic", func(t *testing.T) {
		if out := MustExecute(t, "strlen", "41????00"); out != "lengths: [1 2 3]\n" {
			t.Fatalf("unexpected output: %q", out)
		}
	})

	t.Run("Unterminated", func(t *testing.T) {
		out := MustExecute(t, "strlen", "--max-strlen", "2", "4141")
		if out != "lengths: [2]\nno terminator within 2 bytes\n" {
			t.Fatalf("unexpected output: %q", out)
		}
	})

	t.Run("Config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "simstate.yaml")
		if err := os.WriteFile(path, []byte("arch: x86\nmax-strlen: 3\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if out := MustExecute(t, "strlen", "--config", path, "????"); out != "lengths: [0 1 2 3]\nno terminator within 3 bytes\n" {
			t.Fatalf("unexpected output: %q", out)
		} else if out := MustExecute(t, "strlen", "--config", path, "??00"); out != "lengths: [0 1]\n" {
			t.Fatalf("unexpected output: %q", out)
		}
	})

	t.Run("ErrOddLength", func(t *testing.T) {
		if _, err := Execute("strlen", "414"); err == nil || !strings.Contains(err.Error(), "odd number") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

// Execute runs the command tree with args and returns its standard output.
func Execute(args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := New()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), err
}

// MustExecute runs the command tree and fails on error.
func MustExecute(tb testing.TB, args ...string) string {
	tb.Helper()
	out, err := Execute(args...)
	if err != nil {
		tb.Fatal(err)
	}
	return out
}
