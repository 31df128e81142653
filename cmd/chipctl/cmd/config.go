package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xtools-at/esp5791/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the chipctl configuration",
}

// configView is the effective configuration with the key redacted.
type configView struct {
	File       string         `json:"file" yaml:"file"`
	Settings   *config.Config `json:"settings" yaml:"settings"`
	PrivateKey string         `json:"private_key" yaml:"private_key"`
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after applying the config file, environment and
flags. The private key is never printed.`,
	Args: ExactArgsWithUsage(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := "not set"
		if cfg.PrivateKey != "" {
			key = "set (" + config.EnvPrivateKey + ")"
		}
		view := configView{File: configFile(), Settings: cfg, PrivateKey: key}

		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			return outputJSON(out, view)
		}
		return outputYAML(out, view)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current settings",
	Long: `Write the effective configuration to the config file. Set the private
key with ESP5791_PRIVATE_KEY; it is never written to disk.

Examples:
  chipctl config init --rpc-url http://127.0.0.1:8545 --contract 0x5FbDB2315678afecb367f032d93F642f64180aa3`,
	Args: ExactArgsWithUsage(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := configFile()
		if !force && fileExists(path) {
			return fmt.Errorf("%s already exists; use --force to overwrite", path)
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okFmt("Wrote"), path)
		return nil
	},
}

func configFile() string {
	if configPath != "" {
		return configPath
	}
	return config.Path()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
