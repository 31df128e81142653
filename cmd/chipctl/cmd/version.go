package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xtools-at/esp5791/internal/version"
	"github.com/xtools-at/esp5791/pkg/transport"
)

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  ExactArgsWithUsage(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			radio := "not built in (rebuild with -tags ble)"
			if transport.BLEAvailable() {
				radio = "available"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "chipctl version %s\n", version.Full())
			fmt.Fprintf(cmd.OutOrStdout(), "BLE radio: %s\n", radio)
			return nil
		},
	}
}
