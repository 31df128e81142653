package cmd

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/xtools-at/esp5791/pkg/attestation"
	"github.com/xtools-at/esp5791/pkg/claim"
	"github.com/xtools-at/esp5791/pkg/clierror"
	"github.com/xtools-at/esp5791/pkg/transport"
)

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().String("account", "", "Claimant address (default: derived from ESP5791_PRIVATE_KEY)")
}

// claimOutput is the output form of a claim attempt.
type claimOutput struct {
	ClaimID     string `json:"claim_id" yaml:"claim_id"`
	Network     string `json:"network" yaml:"network"`
	Claimant    string `json:"claimant" yaml:"claimant"`
	BlockNumber uint64 `json:"block_number" yaml:"block_number"`
	BlockHash   string `json:"block_hash" yaml:"block_hash"`
	ChipAddress string `json:"chip_address,omitempty" yaml:"chip_address,omitempty"`
	Signature   string `json:"signature,omitempty" yaml:"signature,omitempty"`
	PublicKey   string `json:"public_key,omitempty" yaml:"public_key,omitempty"`
	TxHash      string `json:"tx_hash,omitempty" yaml:"tx_hash,omitempty"`
}

func newClaimOutput(res *claim.Result) claimOutput {
	o := claimOutput{
		ClaimID:     res.ClaimID,
		Network:     res.Network.String(),
		Claimant:    res.Challenge.Claimant.Hex(),
		BlockNumber: res.Challenge.Checkpoint.Number,
		BlockHash:   res.Challenge.Checkpoint.Hash.Hex(),
	}
	if att := res.Attestation; att != nil {
		o.ChipAddress = att.ChipAddress.Hex()
		o.Signature = hexutil.Encode(att.Signature)
		if len(att.PublicKey) > 0 {
			o.PublicKey = hexutil.Encode(att.PublicKey)
		}
	}
	if res.Receipt != nil {
		o.TxHash = res.Receipt.TxHash.Hex()
	}
	return o
}

func printClaim(w io.Writer, o claimOutput) {
	fmt.Fprintf(w, "Claim:      %s\n", o.ClaimID)
	fmt.Fprintf(w, "Network:    %s\n", o.Network)
	fmt.Fprintf(w, "Claimant:   %s\n", o.Claimant)
	fmt.Fprintf(w, "Block:      %d %s\n", o.BlockNumber, dimFmt(o.BlockHash))
	if o.ChipAddress != "" {
		fmt.Fprintf(w, "Chip:       %s\n", idFmt(o.ChipAddress))
		fmt.Fprintf(w, "Signature:  %s\n", o.Signature)
	}
	if o.TxHash != "" {
		fmt.Fprintf(w, "Tx:         %s\n", o.TxHash)
	}
}

// peripheralArg turns an optional peripheral argument into a handle. No
// argument means discover the first chip in range.
func peripheralArg(args []string) transport.PeripheralHandle {
	if len(args) == 0 {
		return transport.PeripheralHandle{}
	}
	lastPeripheral = args[0]
	return transport.PeripheralHandle{ID: args[0]}
}

var signCmd = &cobra.Command{
	Use:   "sign [peripheral-id]",
	Short: "Have a chip sign a fresh challenge without submitting it",
	Long: `Read the latest block, have the chip sign the claimant address and
block hash, and print the signature. Nothing is sent to the verifier; use
'chipctl transfer' to submit the signature later.

Without a peripheral ID the first chip in range is used.

Examples:
  chipctl sign
  chipctl sign AA:BB:CC:DD:EE:01 --account 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266
  chipctl sign --simulate -o json`,
	Args: RangeArgsWithUsage(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var claimant common.Address
		if account, _ := cmd.Flags().GetString("account"); account != "" {
			addr, err := attestation.ParseAddress(account)
			if err != nil {
				return clierror.InvalidInput(err.Error())
			}
			claimant = addr
		}

		flow, closeFlow, err := openFlow(cmd.Context(), false, claimant)
		if err != nil {
			return err
		}
		defer closeFlow()

		res, err := flow.Sign(cmd.Context(), peripheralArg(args))
		if err != nil {
			return err
		}

		o := newClaimOutput(res)
		if outputFormat != "table" {
			return formatOutput(cmd.OutOrStdout(), o)
		}
		printClaim(cmd.OutOrStdout(), o)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s chipctl transfer %s %d\n", dimFmt("Submit with:"), o.Signature, o.BlockNumber)
		return nil
	},
}
