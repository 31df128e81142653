// Package cli runs chipctl commands in tests.
//
// A Workspace gives each test its own database and config file and clears
// the node, contract and key environment:
//
//	ws := cli.NewWorkspace(t, rootCmd)
//	ws.WriteConfig(t, "rpc_url: http://127.0.0.1:8545\n")
//	result := ws.Run("history", "-o", "json")
//	result.AssertSuccess(t)
//
// Commands that need no workspace, such as help or completion, use Run
// directly after ResetFlags.
package cli
