package main

import (
	"fmt"
	"os"
	"time"

	"github.com/benbjohnson/simstate"
	"github.com/benbjohnson/simstate/logflags"
	"github.com/benbjohnson/simstate/z3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const simstateCommandLongDesc = `Simstate exercises a symbolic machine-state engine.

It models registers and byte-granular memory that may hold concrete or
symbolic values, computes x86 condition flags and runs symbolic models of
C library functions, using Z3 to enumerate feasible results.`

func main() {
	if err := New().Execute(); err != nil {
		os.Exit(1)
	}
}

// Main holds the options shared by every subcommand.
type Main struct {
	configPath string
	log        bool
	logOutput  string

	opts simstate.Options
}

// New returns an initialized command tree.
func New() *cobra.Command {
	m := &Main{opts: simstate.DefaultOptions()}

	rootCommand := &cobra.Command{
		Use:          "simstate",
		Short:        "Simstate is a symbolic machine-state engine.",
		Long:         simstateCommandLongDesc,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return m.setup(cmd.Flags())
		},
	}

	rootCommand.PersistentFlags().StringVarP(&m.configPath, "config", "c", "", "Path to a YAML options file.")
	rootCommand.PersistentFlags().BoolVarP(&m.log, "log", "", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVarP(&m.logOutput, "log-output", "", "", "Comma separated list of layers that should produce debug output (state, memory, solver, procedures).")
	addOptionFlags(rootCommand.PersistentFlags())

	rootCommand.AddCommand(newFlagsCommand(m))
	rootCommand.AddCommand(newStrlenCommand(m))
	return rootCommand
}

// addOptionFlags registers flags overriding individual options.
func addOptionFlags(fs *pflag.FlagSet) {
	fs.String("arch", "", "Architecture (amd64, x86).")
	fs.Uint("max-strlen", 0, "Largest length reported by string scans.")
	fs.Uint("max-buffer-size", 0, "Largest number of bytes touched by buffer operations.")
	fs.Uint("solver-timeout", 0, "Solver timeout in milliseconds.")
}

// setup configures logging and resolves options from the config file and
// any explicitly set flags.
func (m *Main) setup(fs *pflag.FlagSet) error {
	if err := logflags.Setup(m.log, m.logOutput); err != nil {
		return err
	}

	if m.configPath != "" {
		opts, err := simstate.LoadOptions(m.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		m.opts = opts
	}

	if fs.Changed("arch") {
		m.opts.Arch, _ = fs.GetString("arch")
	}
	if fs.Changed("max-strlen") {
		m.opts.MaxStrlen, _ = fs.GetUint("max-strlen")
	}
	if fs.Changed("max-buffer-size") {
		m.opts.MaxBufferSize, _ = fs.GetUint("max-buffer-size")
	}
	if fs.Changed("solver-timeout") {
		m.opts.SolverTimeout, _ = fs.GetUint("solver-timeout")
	}
	return m.opts.Validate()
}

// newState returns a state built from the resolved options along with a
// function that releases the solver.
func (m *Main) newState() (*simstate.State, func(), error) {
	arch, err := simstate.ArchByName(m.opts.Arch)
	if err != nil {
		return nil, nil, err
	}

	z3Solver := z3.NewSolver()
	z3Solver.Timeout = time.Duration(m.opts.SolverTimeout) * time.Millisecond

	var solver simstate.Solver = z3Solver
	if m.opts.SolverCacheSize > 0 {
		if solver, err = simstate.NewCachingSolver(z3Solver, m.opts.SolverCacheSize); err != nil {
			z3Solver.Close()
			return nil, nil, err
		}
	}

	state := simstate.NewState(arch, solver, nil)
	state.Options = m.opts
	return state, func() { z3Solver.Close() }, nil
}
