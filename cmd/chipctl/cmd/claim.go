package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(claimCmd)
}

var claimCmd = &cobra.Command{
	Use:   "claim [peripheral-id]",
	Short: "Sign a fresh challenge with a chip and redeem it",
	Long: `Run a complete claim: read the latest block, have the chip sign the
claimant address and block hash, and submit the signature to the verifier.

A rejected or stale signature is never resubmitted. Run claim again to sign
a new challenge over a newer block.

Examples:
  chipctl claim
  chipctl claim AA:BB:CC:DD:EE:01
  chipctl claim --simulate`,
	Args: RangeArgsWithUsage(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flow, closeFlow, err := openFlow(cmd.Context(), true, common.Address{})
		if err != nil {
			return err
		}
		defer closeFlow()

		res, err := flow.Claim(cmd.Context(), peripheralArg(args))
		if err != nil {
			if res != nil && res.ClaimID != "" {
				logger.Debug("claim failed", "claim_id", res.ClaimID, "error", err)
			}
			return err
		}

		o := newClaimOutput(res)
		if outputFormat != "table" {
			return formatOutput(cmd.OutOrStdout(), o)
		}
		printClaim(cmd.OutOrStdout(), o)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", okFmt("Token claimed"))
		return nil
	},
}
