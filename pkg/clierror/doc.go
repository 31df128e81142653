// Package clierror provides structured error handling for CLI commands.
//
// CLI errors include an exit code, a stable code string, a user-facing
// message and an optional hint. Exit codes follow the failure classes of a
// claim: the environment, device selection, the radio link, the verifier, or
// the user aborting.
//
// # Usage
//
//	if errors.Is(err, session.ErrTimeout) {
//	    return clierror.Timeout("waiting for signature")
//	}
package clierror
