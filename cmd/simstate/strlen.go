package main

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/benbjohnson/simstate"
	"github.com/benbjohnson/simstate/procedures"
	"github.com/spf13/cobra"
)

// strlenBase is the address the input string is written to.
const strlenBase = 0x1000

// newStrlenCommand returns the "strlen" subcommand.
func newStrlenCommand(m *Main) *cobra.Command {
	return &cobra.Command{
		Use:   "strlen <bytes>",
		Short: "Enumerate the possible lengths of a partially symbolic string.",
		Long: `Enumerate the possible lengths of a partially symbolic string.

Bytes are given in hex. Each "??" is an unconstrained symbolic byte, for
example 4141??00. Memory past the input is unconstrained.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return m.runStrlen(cmd, args[0])
		},
	}
}

func (m *Main) runStrlen(cmd *cobra.Command, input string) error {
	cells, err := parseCells(input)
	if err != nil {
		return err
	}

	state, closeFn, err := m.newState()
	if err != nil {
		return err
	}
	defer closeFn()

	arch := state.Arch()
	for i, cell := range cells {
		addr := simstate.NewConstantExpr(strlenBase+uint64(i), arch.Bits)
		if err := state.StoreMem(addr, cell, simstate.BigEndian); err != nil {
			return err
		}
	}

	result, err := procedures.Strlen.Inline(state, simstate.NewConstantExpr(strlenBase, arch.Bits))
	if err != nil {
		return err
	}

	values, err := state.ExprValue(result.RetExpr).AnyN(int(state.Options.MaxStrlen) + 1)
	if err != nil {
		return err
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "lengths: %v\n", values)
	if result.BoundExceeded {
		fmt.Fprintf(out, "no terminator within %d bytes\n", state.Options.MaxStrlen)
	}
	return nil
}

// parseCells decodes hex bytes into memory cells. "??" yields a symbolic byte.
func parseCells(s string) ([]simstate.Expr, error) {
	s = strings.ReplaceAll(s, " ", "")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd number of hex digits: %q", s)
	}

	cells := make([]simstate.Expr, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		if s[i:i+2] == "??" {
			cells = append(cells, simstate.NewSymbolExpr(fmt.Sprintf("arg_%d", i/2), simstate.Width8))
			continue
		}
		b, err := hex.DecodeString(s[i : i+2])
		if err != nil {
			return nil, fmt.Errorf("invalid byte at offset %d: %w", i/2, err)
		}
		cells = append(cells, simstate.NewConstantExpr8(uint64(b[0])))
	}
	return cells, nil
}
