// Package cmd implements the chipctl CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xtools-at/esp5791/internal/config"
	"github.com/xtools-at/esp5791/internal/version"
	"github.com/xtools-at/esp5791/pkg/clierror"
	"github.com/xtools-at/esp5791/pkg/store"
)

var (
	// Global flags
	outputFormat string
	dbPath       string
	configPath   string
	verbose      bool
	simulate     bool
	rpcURLFlag   string
	contractFlag string
	anyDevice    bool
	hashed       bool

	// Per-invocation state, set up in PersistentPreRunE
	cfg          *config.Config
	historyStore *store.Store
	logger       = slog.Default()
	sim          *simulation
)

var rootCmd = &cobra.Command{
	Use:   "chipctl",
	Short: "Claim tokens with ESP5791 physical chips",
	Long: `chipctl talks to ESP5791 chips over Bluetooth LE and redeems their
signatures with a verifier contract.

A claim reads the latest block, has the chip sign the claimant address
and block hash, and submits the signature to the verifier. Every scan
and claim attempt is recorded locally.

Use --simulate to run against a simulated chip, chain and verifier.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for commands that need no config or store
		switch cmd.Name() {
		case "completion", "help", "version":
			return nil
		}
		return setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for chipctl.

To load completions:

Bash:
  # Add to ~/.bashrc:
  source <(chipctl completion bash)

  # Or install system-wide (Linux):
  chipctl completion bash > /etc/bash_completion.d/chipctl

Zsh:
  # Add to ~/.zshrc:
  source <(chipctl completion zsh)

Fish:
  # Add to ~/.config/fish/completions/:
  chipctl completion fish > ~/.config/fish/completions/chipctl.fish

PowerShell:
  # Add to your PowerShell profile:
  chipctl completion powershell | Out-String | Invoke-Expression`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		default:
			return fmt.Errorf("unknown shell: %s", args[0])
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	flags.StringVar(&dbPath, "db", "", "Database path (default: ~/.local/share/chipctl/chipctl.db)")
	flags.StringVar(&configPath, "config", "", "Config file (default: ~/.config/esp5791/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log debug detail to stderr")
	flags.BoolVar(&simulate, "simulate", false, "Use a simulated chip, chain and verifier")
	flags.StringVar(&rpcURLFlag, "rpc-url", "", "Chain node JSON-RPC URL (env: "+config.EnvRPCURL+")")
	flags.StringVar(&contractFlag, "contract", "", "Verifier contract address (env: "+config.EnvContract+")")
	flags.BoolVar(&anyDevice, "any-device", false, "Accept any peripheral, not only chips (development only)")
	flags.BoolVar(&hashed, "hashed", false, "Send keccak256 of the challenge instead of the raw payload")
	rootCmd.AddCommand(completionCmd)
}

// Execute runs the root command and returns the process exit code.
// Interrupt cancels the running command.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		teardown()
		return clierror.ExitSuccess
	}
	cliErr := toCLIError(err)
	teardown()
	clierror.PrintError(os.Stderr, cliErr, outputFormat)
	return cliErr.ExitCode
}

// setup loads configuration and opens the history store. Flags override
// the environment, which overrides the config file.
func setup(cmd *cobra.Command) error {
	// PersistentPostRun is skipped when a command fails.
	teardown()
	logger = newLogger(cmd.ErrOrStderr(), verbose)
	lastPeripheral = ""

	path := configPath
	if path == "" {
		path = config.Path()
	}
	loaded, err := config.Load(path)
	if err != nil {
		return clierror.InvalidConfig(err.Error())
	}
	if err := loaded.LoadFromEnv(); err != nil {
		return clierror.InvalidConfig(err.Error())
	}
	if rpcURLFlag != "" {
		loaded.RPCURL = rpcURLFlag
	}
	if contractFlag != "" {
		loaded.Contract = contractFlag
	}
	if anyDevice {
		loaded.AnyDevice = true
	}
	if hashed {
		loaded.Hashed = true
	}
	if err := loaded.Validate(); err != nil {
		return clierror.InvalidConfig(err.Error())
	}
	cfg = loaded

	storePath := dbPath
	if storePath == "" {
		storePath = cfg.DBPath
	}
	if storePath == "" {
		storePath = store.DefaultPath()
	}
	historyStore, err = store.Open(storePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if simulate {
		sim, err = newSimulation(cfg)
		if err != nil {
			return err
		}
		logger.Debug("simulation enabled", "chip", sim.chip.Handle().ID, "chip_address", sim.chip.Address().Hex())
	}
	return nil
}

func teardown() {
	if historyStore != nil {
		historyStore.Close()
		historyStore = nil
	}
	sim = nil
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// formatOutput handles output formatting based on the --output flag.
func formatOutput(w io.Writer, data interface{}) error {
	switch outputFormat {
	case "json":
		return outputJSON(w, data)
	case "yaml":
		return outputYAML(w, data)
	default:
		// Table format is handled by each command
		return nil
	}
}

func outputJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func outputYAML(w io.Writer, data interface{}) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, string(out))
	return err
}
