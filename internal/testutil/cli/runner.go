package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/xtools-at/esp5791/internal/config"
)

// Names of the per-workspace files passed through --db and --config.
const (
	DBFile     = "chipctl.db"
	ConfigFile = "config.yaml"
)

// CommandResult captures the output and error from a command execution.
type CommandResult struct {
	Stdout string
	Stderr string
	Err    error
}

// Run executes a cobra command with the given arguments and captures output.
// Flags keep whatever values earlier runs left; use a Workspace for chipctl
// commands.
func Run(cmd *cobra.Command, args ...string) *CommandResult {
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return &CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Err:    err,
	}
}

// ResetFlags restores every flag of c and its subcommands to its default
// and clears Changed.
func ResetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		ResetFlags(sub)
	}
}

// Workspace runs a root command against a database and config file in a
// private temporary directory. The node, contract and key environment
// variables are cleared for the rest of the test, so it must not be used
// from parallel tests.
type Workspace struct {
	Dir  string
	root *cobra.Command
}

// NewWorkspace creates a workspace for root.
func NewWorkspace(t *testing.T, root *cobra.Command) *Workspace {
	t.Helper()
	t.Setenv(config.EnvRPCURL, "")
	t.Setenv(config.EnvContract, "")
	t.Setenv(config.EnvPrivateKey, "")
	return &Workspace{Dir: t.TempDir(), root: root}
}

// DBPath returns the database path passed with --db.
func (w *Workspace) DBPath() string {
	return filepath.Join(w.Dir, DBFile)
}

// ConfigPath returns the config path passed with --config.
func (w *Workspace) ConfigPath() string {
	return filepath.Join(w.Dir, ConfigFile)
}

// WriteConfig writes content as the workspace config file.
func (w *Workspace) WriteConfig(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(w.ConfigPath(), []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
}

// Run resets the root flags and executes args with the workspace --db and
// --config prepended.
func (w *Workspace) Run(args ...string) *CommandResult {
	ResetFlags(w.root)
	base := []string{"--db", w.DBPath(), "--config", w.ConfigPath()}
	return Run(w.root, append(base, args...)...)
}

// AssertSuccess fails the test if the command returned an error.
func (r *CommandResult) AssertSuccess(t *testing.T) {
	t.Helper()
	if r.Err != nil {
		t.Fatalf("expected command to succeed, got error: %v\nstdout: %s\nstderr: %s",
			r.Err, r.Stdout, r.Stderr)
	}
}

// AssertError fails the test if the command did not return an error.
func (r *CommandResult) AssertError(t *testing.T) {
	t.Helper()
	if r.Err == nil {
		t.Fatalf("expected command to fail, but it succeeded\nstdout: %s", r.Stdout)
	}
}

// AssertContains fails the test if stdout does not contain the expected string.
func (r *CommandResult) AssertContains(t *testing.T, expected string) {
	t.Helper()
	if !strings.Contains(r.Stdout, expected) {
		t.Errorf("expected stdout to contain %q, got:\n%s", expected, r.Stdout)
	}
}
