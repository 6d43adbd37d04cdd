// Package logflags configures the per-layer loggers used by the engine.
package logflags

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var state = false
var memory = false
var solver = false
var procedures = false

var out io.Writer = os.Stderr

// disabled is returned for every layer that is not enabled.
var disabled = func() *logrus.Entry {
	logger := logrus.New()
	logger.Out = io.Discard
	logger.Level = logrus.PanicLevel
	return logrus.NewEntry(logger)
}()

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	if !flag {
		return disabled
	}
	logger := logrus.New().WithFields(fields)
	logger.Logger.Out = out
	logger.Logger.Level = logrus.DebugLevel
	return logger
}

// State returns true if state forking and merging should be logged.
func State() bool {
	return state
}

// StateLogger returns a logger for state operations.
func StateLogger() *logrus.Entry {
	return makeLogger(state, logrus.Fields{"layer": "state"})
}

// Memory returns true if symbolic memory accesses should be logged.
func Memory() bool {
	return memory
}

// MemoryLogger returns a logger for memory operations.
func MemoryLogger() *logrus.Entry {
	return makeLogger(memory, logrus.Fields{"layer": "memory"})
}

// Solver returns true if solver queries should be logged.
func Solver() bool {
	return solver
}

// SolverLogger returns a logger for solver queries.
func SolverLogger() *logrus.Entry {
	return makeLogger(solver, logrus.Fields{"layer": "solver"})
}

// Procedures returns true if library models should be logged.
func Procedures() bool {
	return procedures
}

// ProceduresLogger returns a logger for library models.
func ProceduresLogger() *logrus.Entry {
	return makeLogger(procedures, logrus.Fields{"layer": "procedures"})
}

// SetOutput sets the destination of all loggers created after the call.
func SetOutput(w io.Writer) {
	out = w
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup enables the layers listed in logstr, a comma separated list.
func Setup(logFlag bool, logstr string) error {
	if !logFlag {
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "state"
	}
	for _, layer := range strings.Split(logstr, ",") {
		switch strings.TrimSpace(layer) {
		case "state":
			state = true
		case "memory":
			memory = true
		case "solver":
			solver = true
		case "procedures":
			procedures = true
		}
	}
	return nil
}
