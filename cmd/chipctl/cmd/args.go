package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xtools-at/esp5791/pkg/clierror"
)

// ExactArgsWithUsage returns a validator that requires exactly n arguments.
// If the count is wrong, it shows the command's usage with argument names.
func ExactArgsWithUsage(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return argsError(cmd, n, n, len(args))
		}
		return nil
	}
}

// RangeArgsWithUsage returns a validator that requires between min and max arguments.
func RangeArgsWithUsage(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < min || len(args) > max {
			return argsError(cmd, min, max, len(args))
		}
		return nil
	}
}

func argsError(cmd *cobra.Command, min, max, got int) error {
	argNames := extractArgNames(cmd.Use)

	expected := fmt.Sprintf("%d", min)
	if min != max {
		expected = fmt.Sprintf("%d-%d", min, max)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "requires %s argument(s), received %d\n\n", expected, got)
	fmt.Fprintf(&msg, "Usage: %s %s\n", cmd.CommandPath(), strings.Join(argNames, " "))
	if len(argNames) > 0 {
		msg.WriteString("\nArguments:\n")
		for _, arg := range argNames {
			clean := strings.Trim(arg, "<>[]")
			fmt.Fprintf(&msg, "  %s\n", clean)
		}
	}
	fmt.Fprintf(&msg, "\nRun '%s --help' for details.", cmd.CommandPath())

	return clierror.InvalidInput(msg.String())
}

// extractArgNames extracts argument names from a Use string.
// For example: "transfer <signature> <block-number>" returns ["<signature>", "<block-number>"]
func extractArgNames(use string) []string {
	parts := strings.Fields(use)
	var args []string
	for _, part := range parts[1:] {
		if strings.HasPrefix(part, "<") || strings.HasPrefix(part, "[") {
			args = append(args, part)
		}
	}
	return args
}
