package main

import (
	"fmt"
	"strconv"

	"github.com/benbjohnson/simstate"
	"github.com/benbjohnson/simstate/ccall"
	"github.com/spf13/cobra"
)

// newFlagsCommand returns the "flags" subcommand.
func newFlagsCommand(m *Main) *cobra.Command {
	var prior uint64
	cmd := &cobra.Command{
		Use:   "flags <op> <width> <left> <right>",
		Short: "Compute the condition flags of an arithmetic or logic operation.",
		Long: `Compute the condition flags of an arithmetic or logic operation.

Op is an x86 mnemonic such as add, sub, cmp, test, shl or imul. Width is the
operand width in bits. Operands accept decimal, hex (0x) or binary (0b).`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlags(cmd, args, prior)
		},
	}
	cmd.Flags().Uint64Var(&prior, "prior", 0, "Packed flags before the operation.")
	return cmd
}

func runFlags(cmd *cobra.Command, args []string, prior uint64) error {
	action, ok := ccall.ActionByName(args[0])
	if !ok {
		return fmt.Errorf("no flag action for %q", args[0])
	}

	width, err := strconv.ParseUint(args[1], 10, 8)
	if err != nil {
		return fmt.Errorf("invalid width: %w", err)
	} else if width != 8 && width != 16 && width != 32 && width != 64 {
		return fmt.Errorf("invalid width: %d", width)
	}

	left, err := strconv.ParseUint(args[2], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid left operand: %w", err)
	}
	right, err := strconv.ParseUint(args[3], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid right operand: %w", err)
	}

	w := uint(width)
	packed := action(w,
		simstate.NewConstantExpr(left, w),
		simstate.NewConstantExpr(right, w),
		simstate.NewConstantExpr(prior, ccall.FlagsWidth),
	)

	flags, ok := packed.(*simstate.ConstantExpr)
	if !ok {
		return fmt.Errorf("flags did not fold to a constant: %s", packed)
	}
	rflags := ccall.RFLAGS(flags).(*simstate.ConstantExpr)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "packed: %06b\n", flags.Value)
	fmt.Fprintf(out, "rflags: %#x\n", rflags.Value)
	for _, f := range []struct {
		name string
		bit  uint
	}{
		{"CF", ccall.FlagCF}, {"PF", ccall.FlagPF}, {"AF", ccall.FlagAF},
		{"ZF", ccall.FlagZF}, {"SF", ccall.FlagSF}, {"OF", ccall.FlagOF},
	} {
		fmt.Fprintf(out, "%s=%d ", f.name, (flags.Value>>f.bit)&1)
	}
	fmt.Fprintln(out)
	return nil
}
