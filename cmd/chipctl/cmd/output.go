package cmd

import (
	"time"

	"github.com/fatih/color"

	"github.com/xtools-at/esp5791/pkg/store"
)

var (
	okFmt   = color.New(color.FgGreen).SprintFunc()
	warnFmt = color.New(color.FgYellow).SprintFunc()
	errFmt  = color.New(color.FgRed, color.Bold).SprintFunc()
	dimFmt  = color.New(color.Faint).SprintFunc()
	idFmt   = color.New(color.FgCyan).SprintFunc()
)

// outcomeColor renders a claim outcome for table output.
func outcomeColor(outcome string) string {
	switch outcome {
	case store.OutcomeRedeemed, store.OutcomeSigned:
		return okFmt(outcome)
	case store.OutcomePending, store.OutcomeAborted:
		return warnFmt(outcome)
	case store.OutcomeFailed, store.OutcomeRejected:
		return errFmt(outcome)
	default:
		return outcome
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
