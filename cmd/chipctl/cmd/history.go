package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtools-at/esp5791/pkg/clierror"
	"github.com/xtools-at/esp5791/pkg/store"
	"github.com/xtools-at/esp5791/pkg/timeutil"
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.Flags().String("outcome", "", "Filter by outcome: pending, signed, failed, rejected, redeemed, aborted")
	historyCmd.Flags().String("chip", "", "Filter by chip address")
	historyCmd.Flags().Duration("since", 0, "Only claims newer than this (e.g. 24h)")
	historyCmd.Flags().Int("limit", 20, "Maximum number of claims to show")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded claim attempts",
	Long: `List claim attempts, newest first. Every sign and claim is recorded with
its outcome and, for failures, the reason.

Examples:
  chipctl history
  chipctl history --outcome rejected --since 24h
  chipctl history show 3f2a`,
	Args: ExactArgsWithUsage(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, _ := cmd.Flags().GetString("outcome")
		chip, _ := cmd.Flags().GetString("chip")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.ClaimFilter{Outcome: outcome, ChipAddress: chip, Limit: limit}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}
		claims, err := historyStore.QueryClaims(filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if outputFormat != "table" {
			if claims == nil {
				claims = []*store.Claim{}
			}
			return formatOutput(out, claims)
		}
		if len(claims) == 0 {
			fmt.Fprintln(out, "No claims recorded.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tCHIP\tBLOCK\tOUTCOME\tREASON")
		for _, c := range claims {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				shortID(c.ID), timeutil.Relative(c.CreatedAt), orDash(truncate(c.ChipAddress, 14)), c.BlockNumber,
				outcomeColor(c.Outcome), orDash(c.Reason))
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <claim-id>",
	Short: "Show one claim attempt",
	Long: `Show a claim attempt by ID or unique ID prefix.

Examples:
  chipctl history show 3f2a9c1e`,
	Args: ExactArgsWithUsage(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := historyStore.GetClaim(args[0])
		if errors.Is(err, store.ErrNotFound) {
			return clierror.NotFound("claim", args[0])
		}
		if err != nil {
			return clierror.InvalidInput(err.Error())
		}

		out := cmd.OutOrStdout()
		if outputFormat != "table" {
			return formatOutput(out, c)
		}
		fmt.Fprintf(out, "ID:          %s\n", c.ID)
		fmt.Fprintf(out, "Outcome:     %s\n", outcomeColor(c.Outcome))
		if c.Reason != "" {
			fmt.Fprintf(out, "Reason:      %s\n", c.Reason)
		}
		fmt.Fprintf(out, "Created:     %s\n", formatTime(c.CreatedAt))
		fmt.Fprintf(out, "Updated:     %s\n", formatTime(c.UpdatedAt))
		fmt.Fprintf(out, "Session:     %s\n", orDash(c.SessionID))
		fmt.Fprintf(out, "Peripheral:  %s\n", orDash(c.PeripheralID))
		fmt.Fprintf(out, "Chip:        %s\n", orDash(c.ChipAddress))
		fmt.Fprintf(out, "Claimant:    %s\n", orDash(c.Claimant))
		fmt.Fprintf(out, "Chain:       %d\n", c.ChainID)
		fmt.Fprintf(out, "Block:       %d %s\n", c.BlockNumber, dimFmt(c.BlockHash))
		fmt.Fprintf(out, "Signature:   %s\n", orDash(c.Signature))
		fmt.Fprintf(out, "Tx:          %s\n", orDash(c.TxHash))
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
