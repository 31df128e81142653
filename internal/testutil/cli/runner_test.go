package cli

import (
	"errors"
	"os"
	"testing"

	"github.com/spf13/cobra"

	"github.com/xtools-at/esp5791/internal/config"
)

// newRoot builds a small command tree shaped like chipctl: persistent
// --db/--config on the root and a subcommand with its own flags.
func newRoot(seen map[string]string) *cobra.Command {
	root := &cobra.Command{Use: "chipctl", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("db", "", "")
	root.PersistentFlags().String("config", "", "")

	sub := &cobra.Command{
		Use: "seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _ := cmd.Flags().GetString("db")
			cfg, _ := cmd.Flags().GetString("config")
			chips, _ := cmd.Flags().GetStringSlice("chips")
			force, _ := cmd.Flags().GetBool("force")
			seen["db"] = db
			seen["config"] = cfg
			seen["rpc"] = os.Getenv(config.EnvRPCURL)
			seen["key"] = os.Getenv(config.EnvPrivateKey)
			seen["chips"] = ""
			for _, c := range chips {
				seen["chips"] += c + ";"
			}
			if force {
				seen["force"] = "true"
			} else {
				seen["force"] = "false"
			}
			cmd.Println("seeded")
			return nil
		},
	}
	sub.Flags().StringSlice("chips", nil, "")
	sub.Flags().Bool("force", false, "")
	root.AddCommand(sub)
	return root
}

func TestRun_CapturesOutput(t *testing.T) {
	t.Parallel()
	t.Log("Testing that Run captures stdout, stderr and the returned error")

	cmd := &cobra.Command{
		Use:           "test",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println("hello world")
			cmd.PrintErrln("warning")
			return errors.New("command failed")
		},
	}

	result := Run(cmd)
	result.AssertError(t)
	if result.Stdout != "hello world\n" {
		t.Errorf("expected stdout 'hello world\\n', got %q", result.Stdout)
	}
	if result.Stderr != "warning\n" {
		t.Errorf("expected stderr 'warning\\n', got %q", result.Stderr)
	}
	if result.Err.Error() != "command failed" {
		t.Errorf("expected error 'command failed', got %v", result.Err)
	}
}

func TestResetFlags_RestoresDefaults(t *testing.T) {
	t.Parallel()
	seen := map[string]string{}
	root := newRoot(seen)

	result := Run(root, "--db", "/tmp/x.db", "seed", "--chips", "a,b", "--force")
	result.AssertSuccess(t)
	if seen["chips"] != "a;b;" || seen["force"] != "true" {
		t.Fatalf("flags not applied: %v", seen)
	}

	t.Log("After a reset every flag is back at its default and unchanged")
	ResetFlags(root)
	seed, _, err := root.Find([]string{"seed"})
	if err != nil {
		t.Fatalf("find seed: %v", err)
	}
	for _, name := range []string{"chips", "force"} {
		f := seed.Flags().Lookup(name)
		if f.Changed {
			t.Errorf("--%s still marked changed", name)
		}
	}
	if chips, _ := seed.Flags().GetStringSlice("chips"); len(chips) != 0 {
		t.Errorf("--chips = %v, want empty", chips)
	}
	if db, _ := root.PersistentFlags().GetString("db"); db != "" {
		t.Errorf("--db = %q, want empty", db)
	}
}

func TestWorkspace_PassesPathsAndClearsEnv(t *testing.T) {
	// Cannot run in parallel - modifies environment
	t.Setenv(config.EnvRPCURL, "http://node.invalid:8545")
	t.Setenv(config.EnvPrivateKey, "deadbeef")

	seen := map[string]string{}
	ws := NewWorkspace(t, newRoot(seen))

	result := ws.Run("seed")
	result.AssertSuccess(t)
	result.AssertContains(t, "seeded")

	if seen["db"] != ws.DBPath() {
		t.Errorf("--db = %q, want %q", seen["db"], ws.DBPath())
	}
	if seen["config"] != ws.ConfigPath() {
		t.Errorf("--config = %q, want %q", seen["config"], ws.ConfigPath())
	}
	if seen["rpc"] != "" || seen["key"] != "" {
		t.Errorf("environment leaked into the run: rpc=%q key=%q", seen["rpc"], seen["key"])
	}
}

func TestWorkspace_ResetsFlagsBetweenRuns(t *testing.T) {
	// Cannot run in parallel - modifies environment
	seen := map[string]string{}
	ws := NewWorkspace(t, newRoot(seen))

	ws.Run("seed", "--chips", "a", "--force").AssertSuccess(t)
	if seen["force"] != "true" {
		t.Fatalf("--force not applied: %v", seen)
	}

	t.Log("A second run starts from defaults")
	ws.Run("seed").AssertSuccess(t)
	if seen["force"] != "false" || seen["chips"] != "" {
		t.Errorf("flags leaked between runs: %v", seen)
	}
}

func TestWorkspace_SeparateDirectories(t *testing.T) {
	// Cannot run in parallel - modifies environment
	a := NewWorkspace(t, newRoot(map[string]string{}))
	b := NewWorkspace(t, newRoot(map[string]string{}))
	if a.Dir == b.Dir {
		t.Errorf("workspaces share %s", a.Dir)
	}
}

func TestWorkspace_WriteConfig(t *testing.T) {
	// Cannot run in parallel - modifies environment
	ws := NewWorkspace(t, newRoot(map[string]string{}))
	ws.WriteConfig(t, "rpc_url: http://127.0.0.1:8545\n")

	data, err := os.ReadFile(ws.ConfigPath())
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(data) != "rpc_url: http://127.0.0.1:8545\n" {
		t.Errorf("config = %q", data)
	}
	info, err := os.Stat(ws.ConfigPath())
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}
}
