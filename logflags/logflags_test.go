package logflags

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestSetup(t *testing.T) {
	t.Run("ErrLogOutputWithoutLog", func(t *testing.T) {
		if err := Setup(false, "state"); err != errLogstrWithoutLog {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("Layers", func(t *testing.T) {
		defer reset()
		if err := Setup(true, "memory, procedures"); err != nil {
			t.Fatal(err)
		} else if !Memory() || !Procedures() {
			t.Fatal("expected layers enabled")
		} else if State() || Solver() {
			t.Fatal("expected layers disabled")
		}
	})

	t.Run("DefaultLayer", func(t *testing.T) {
		defer reset()
		if err := Setup(true, ""); err != nil {
			t.Fatal(err)
		} else if !State() {
			t.Fatal("expected state layer enabled")
		}
	})
}

func TestLogger(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	if err := Setup(true, "solver"); err != nil {
		t.Fatal(err)
	}

	SolverLogger().Debugf("query %d", 1)
	MemoryLogger().Debugf("hidden")
	if s := buf.String(); !strings.Contains(s, "query 1") || !strings.Contains(s, "layer=solver") {
		t.Fatalf("unexpected output: %s", s)
	} else if strings.Contains(s, "hidden") {
		t.Fatalf("disabled layer logged: %s", s)
	}
}

func TestLogger_Disabled(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	if err := Setup(true, "solver"); err != nil {
		t.Fatal(err)
	}

	if StateLogger() != MemoryLogger() || MemoryLogger() != ProceduresLogger() {
		t.Fatal("expected disabled layers to share a logger")
	} else if SolverLogger() == SolverLogger() {
		t.Fatal("expected enabled layer to build a new logger")
	}

	StateLogger().Infof("hidden")
	if buf.Len() != 0 {
		t.Fatalf("disabled layer logged: %s", buf.String())
	}
}

// reset disables all layers and restores the default output.
func reset() {
	state, memory, solver, procedures = false, false, false, false
	out = os.Stderr
}
