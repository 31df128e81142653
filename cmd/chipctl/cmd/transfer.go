package cmd

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/xtools-at/esp5791/pkg/attestation"
	"github.com/xtools-at/esp5791/pkg/clierror"
	"github.com/xtools-at/esp5791/pkg/verifier"
)

func init() {
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(updateChipsCmd)
	seedCmd.Flags().StringSlice("chips", nil, "Chip addresses, comma separated")
	seedCmd.Flags().StringSlice("token-ids", nil, "Token IDs, comma separated, one per chip")
	updateChipsCmd.Flags().StringSlice("old", nil, "Chip addresses to replace")
	updateChipsCmd.Flags().StringSlice("new", nil, "Replacement chip addresses, one per old chip")
}

type receiptOutput struct {
	TxHash      string `json:"tx_hash" yaml:"tx_hash"`
	BlockNumber uint64 `json:"block_number" yaml:"block_number"`
	GasUsed     uint64 `json:"gas_used" yaml:"gas_used"`
}

func printReceipt(cmd *cobra.Command, what string, r *verifier.Receipt) error {
	o := receiptOutput{TxHash: r.TxHash.Hex(), BlockNumber: r.BlockNumber, GasUsed: r.GasUsed}
	if outputFormat != "table" {
		return formatOutput(cmd.OutOrStdout(), o)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s in block %d\nTx: %s\n", okFmt(what), o.BlockNumber, o.TxHash)
	return nil
}

var transferCmd = &cobra.Command{
	Use:   "transfer <signature> <block-number>",
	Short: "Submit a signature captured earlier with 'chipctl sign'",
	Long: `Submit a chip signature to the verifier. The block number must be the
one the chip signed over; the verifier rejects signatures over blocks
outside its freshness window.

Examples:
  chipctl transfer 0x5e1f...1b 19023311`,
	Args: ExactArgsWithUsage(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sig, err := hexutil.Decode(args[0])
		if err != nil {
			return clierror.InvalidInput(fmt.Sprintf("signature: %v", err))
		}
		if len(sig) != attestation.SignatureSize {
			return clierror.InvalidInput(fmt.Sprintf("signature must be %d bytes, got %d", attestation.SignatureSize, len(sig)))
		}
		block, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil || block == 0 {
			return clierror.InvalidInput(fmt.Sprintf("block number %q is not a positive integer", args[1]))
		}

		v, closeVerifier, err := openVerifier(cmd.Context())
		if err != nil {
			return err
		}
		defer closeVerifier()

		receipt, err := v.Transfer(cmd.Context(), sig, block)
		if err != nil {
			return err
		}
		return printReceipt(cmd, "Token transferred", receipt)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Map chips to token IDs on the verifier",
	Long: `Register chips with the verifier contract. Each chip address is mapped to
the token ID at the same position. Requires the contract owner key.

Examples:
  chipctl seed --chips 0xAbc...,0xDef... --token-ids 1,2`,
	Args: ExactArgsWithUsage(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		chipArgs, _ := cmd.Flags().GetStringSlice("chips")
		tokenArgs, _ := cmd.Flags().GetStringSlice("token-ids")

		chips, err := parseAddresses("chips", chipArgs)
		if err != nil {
			return err
		}
		tokenIDs := make([]*big.Int, len(tokenArgs))
		for i, s := range tokenArgs {
			id, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
			if !ok || id.Sign() < 0 {
				return clierror.InvalidInput(fmt.Sprintf("token id %q is not a non-negative integer", s))
			}
			tokenIDs[i] = id
		}
		if len(chips) != len(tokenIDs) {
			return clierror.InvalidInput(fmt.Sprintf("%d chips but %d token ids", len(chips), len(tokenIDs)))
		}

		v, closeVerifier, err := openVerifier(cmd.Context())
		if err != nil {
			return err
		}
		defer closeVerifier()

		receipt, err := v.Seed(cmd.Context(), chips, tokenIDs)
		if err != nil {
			return err
		}
		return printReceipt(cmd, fmt.Sprintf("%d chip(s) seeded", len(chips)), receipt)
	},
}

var updateChipsCmd = &cobra.Command{
	Use:   "update-chips",
	Short: "Replace chip addresses on the verifier",
	Long: `Replace registered chips, for example after a chip was lost. Each old
address is replaced by the new address at the same position. Requires the
contract owner key.

Examples:
  chipctl update-chips --old 0xAbc... --new 0xDef...`,
	Args: ExactArgsWithUsage(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldArgs, _ := cmd.Flags().GetStringSlice("old")
		newArgs, _ := cmd.Flags().GetStringSlice("new")
		oldChips, err := parseAddresses("old", oldArgs)
		if err != nil {
			return err
		}
		newChips, err := parseAddresses("new", newArgs)
		if err != nil {
			return err
		}
		if len(oldChips) != len(newChips) {
			return clierror.InvalidInput(fmt.Sprintf("%d old chips but %d new chips", len(oldChips), len(newChips)))
		}

		v, closeVerifier, err := openVerifier(cmd.Context())
		if err != nil {
			return err
		}
		defer closeVerifier()

		receipt, err := v.UpdateChips(cmd.Context(), oldChips, newChips)
		if err != nil {
			return err
		}
		return printReceipt(cmd, fmt.Sprintf("%d chip(s) updated", len(oldChips)), receipt)
	},
}

func parseAddresses(flag string, values []string) ([]common.Address, error) {
	if len(values) == 0 {
		return nil, clierror.InvalidInput(fmt.Sprintf("--%s is required", flag))
	}
	out := make([]common.Address, len(values))
	for i, v := range values {
		addr, err := attestation.ParseAddress(v)
		if err != nil {
			return nil, clierror.InvalidInput(fmt.Sprintf("--%s: %v", flag, err))
		}
		out[i] = addr
	}
	return out, nil
}
