// Package session runs the challenge exchange with one chip.
//
// A Session is single-use. It moves through
//
//	idle -> discovering -> connecting -> connected -> awaiting_ack -> awaiting_signature -> complete
//
// and ends in failed (with a Reason) on any error, or in disconnected when the
// peripheral drops the link after connecting. Every step has its own
// deadline; the signature wait has the longest. The signature is taken from
// a notification when the chip supports them, otherwise by polling reads
// after a short settle delay.
//
// Sessions are created through a Manager, which rejects a second session
// against a peripheral that already has a live one.
//
//	mgr, _ := session.NewManager(adapter)
//	s, err := mgr.NewSession(handle)
//	if err != nil {
//	    return err // ErrBusy
//	}
//	att, err := s.Run(ctx, challenge)
package session
