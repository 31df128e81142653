package cmd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtools-at/esp5791/pkg/scanner"
	"github.com/xtools-at/esp5791/pkg/store"
	"github.com/xtools-at/esp5791/pkg/timeutil"
	"github.com/xtools-at/esp5791/pkg/transport"
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(peripheralsCmd)
	scanCmd.Flags().Duration("duration", 10*time.Second, "How long to scan")
	peripheralsCmd.Flags().String("scan", "", "Show the sightings of one scan ID")
}

// discovered is the output form of one scan result.
type discovered struct {
	ID         string   `json:"id" yaml:"id"`
	Label      string   `json:"label,omitempty" yaml:"label,omitempty"`
	ServiceIDs []string `json:"service_ids" yaml:"service_ids"`
}

type scanResult struct {
	ScanID      string       `json:"scan_id" yaml:"scan_id"`
	Peripherals []discovered `json:"peripherals" yaml:"peripherals"`
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby chips",
	Long: `Scan for peripherals advertising the chip service and report each one
once. Every reported peripheral is recorded in the discovery log.

Examples:
  chipctl scan
  chipctl scan --duration 30s
  chipctl scan --any-device -o json`,
	Args: ExactArgsWithUsage(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, _ := cmd.Flags().GetDuration("duration")

		source, err := openScanner()
		if err != nil {
			return err
		}
		sc, err := scanner.New(source,
			scanner.WithFilter(cfg.SessionConfig().Filter),
			scanner.WithLog(historyStore),
			scanner.WithLogger(logger),
		)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), duration)
		defer cancel()

		out := cmd.OutOrStdout()
		var (
			mu    sync.Mutex
			found []discovered
		)
		if outputFormat == "table" {
			fmt.Fprintf(out, "Scanning for %s\n", duration)
		}
		h, err := sc.StartScan(ctx, func(p transport.PeripheralHandle, serviceIDs []uint16) {
			d := discovered{ID: p.ID, Label: p.Label, ServiceIDs: serviceStrings(serviceIDs)}
			mu.Lock()
			defer mu.Unlock()
			found = append(found, d)
			if outputFormat == "table" {
				fmt.Fprintf(out, "%s %s %s\n", okFmt("found"), idFmt(p.ID), orDash(p.Label))
			}
		})
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
		case <-h.Done():
		}
		if err := sc.StopScan(h); err != nil {
			return err
		}
		if err := h.Err(); err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		if outputFormat != "table" {
			if found == nil {
				found = []discovered{}
			}
			return formatOutput(out, scanResult{ScanID: h.ID(), Peripherals: found})
		}
		fmt.Fprintf(out, "%d chip(s) found %s\n", len(found), dimFmt("(scan "+h.ID()+")"))
		return nil
	},
}

var peripheralsCmd = &cobra.Command{
	Use:   "peripherals",
	Short: "List peripherals from the discovery log",
	Long: `List every peripheral recorded by earlier scans, most recently seen first.

Examples:
  chipctl peripherals
  chipctl peripherals --scan 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
	Args: ExactArgsWithUsage(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		scanID, _ := cmd.Flags().GetString("scan")

		if scanID != "" {
			sightings, err := historyStore.QuerySightings(store.SightingFilter{ScanID: scanID})
			if err != nil {
				return err
			}
			if outputFormat != "table" {
				return formatOutput(out, sightings)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PERIPHERAL\tLABEL\tSERVICES\tRSSI\tSEEN")
			for _, s := range sightings {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					s.PeripheralID, orDash(s.Label), strings.Join(serviceStrings(s.ServiceIDs), ","), s.RSSI, formatTime(s.SeenAt))
			}
			return w.Flush()
		}

		peripherals, err := historyStore.ListPeripherals()
		if err != nil {
			return err
		}
		if outputFormat != "table" {
			return formatOutput(out, peripherals)
		}
		if len(peripherals) == 0 {
			fmt.Fprintln(out, "No peripherals recorded. Run 'chipctl scan' first.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PERIPHERAL\tLABEL\tSIGHTINGS\tFIRST SEEN\tLAST SEEN")
		for _, p := range peripherals {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				p.ID, orDash(p.Label), p.Sightings, formatTime(p.FirstSeen), timeutil.Relative(p.LastSeen))
		}
		return w.Flush()
	},
}

func serviceStrings(ids []uint16) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf("0x%04X", id)
	}
	return out
}
