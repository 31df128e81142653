package attestation

import (
	"time"
)

// DefaultFreshnessBound is the default maximum checkpoint age at submission.
// The verifier contract accepts roughly 100 blocks; this keeps the local
// check inside that window.
const DefaultFreshnessBound = 20 * time.Minute

// GateDecision represents the result of a freshness check.
type GateDecision struct {
	Allowed bool
	Reason  string
	Age     time.Duration
}

// Gate rejects attestations whose checkpoint is too old to be redeemed.
// Checkpoints without a timestamp are blocked.
type Gate struct {
	FreshnessBound time.Duration
}

// NewGate creates a gate with DefaultFreshnessBound.
func NewGate() *Gate {
	return &Gate{FreshnessBound: DefaultFreshnessBound}
}

// Decide evaluates cp at now.
//
// Pass time.Now() at the callsite so the decision and the submission that
// follows use the same clock reading.
func (g *Gate) Decide(cp Checkpoint, now time.Time) GateDecision {
	bound := g.FreshnessBound
	if bound <= 0 {
		bound = DefaultFreshnessBound
	}
	if cp.Time.IsZero() {
		return GateDecision{Allowed: false, Reason: "checkpoint has no timestamp"}
	}
	age := cp.Age(now)
	if age > bound {
		return GateDecision{
			Allowed: false,
			Reason:  "stale: " + age.Round(time.Second).String(),
			Age:     age,
		}
	}
	return GateDecision{Allowed: true, Age: age}
}

// Check returns ErrStaleCheckpoint if a cannot be submitted at now.
func (g *Gate) Check(a *Attestation, now time.Time) error {
	if err := a.Validate(); err != nil {
		return err
	}
	d := g.Decide(a.Checkpoint, now)
	if !d.Allowed {
		return newError(ErrCodeStaleCheckpoint, "block %d: %s", a.Checkpoint.Number, d.Reason)
	}
	return nil
}
