package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/outreach/internal/targets"
)

// ItemFailure describes one item that ended with outcome failed.
type ItemFailure struct {
	TargetID string
	Step     string
	Error    string
}

// Report is the result of one run.
type Report struct {
	RunID    string
	Campaign string
	DryRun   bool
	TestMode bool

	Total     int // records supplied
	Pending   int // eligible pending items
	Exhausted int // pending items skipped by the attempt cap

	Processed    int
	Done         int
	Failed       int
	LedgerErrors int
	Interrupted  bool

	Failures []ItemFailure
	Preview  []targets.Record

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary renders a short human readable description of the run.
func (r *Report) Summary() string {
	var b strings.Builder

	mode := "live"
	switch {
	case r.DryRun:
		mode = "dry-run"
	case r.TestMode:
		mode = "test"
	}

	fmt.Fprintf(&b, "Campaign %q (%s run %s)\n", r.Campaign, mode, r.RunID)
	fmt.Fprintf(&b, "  targets:   %d\n", r.Total)
	fmt.Fprintf(&b, "  pending:   %d\n", r.Pending)
	if r.Exhausted > 0 {
		fmt.Fprintf(&b, "  exhausted: %d\n", r.Exhausted)
	}

	if r.DryRun {
		if len(r.Preview) > 0 {
			b.WriteString("  preview:\n")
			for _, rec := range r.Preview {
				fmt.Fprintf(&b, "    - %s (%s)\n", rec.TargetID, rec.Label())
			}
		}
		return b.String()
	}

	fmt.Fprintf(&b, "  processed: %d\n", r.Processed)
	fmt.Fprintf(&b, "  done:      %d\n", r.Done)
	fmt.Fprintf(&b, "  failed:    %d\n", r.Failed)
	if r.LedgerErrors > 0 {
		fmt.Fprintf(&b, "  ledger errors: %d\n", r.LedgerErrors)
	}
	if r.TestMode {
		b.WriteString("  test mode: nothing was confirmed or recorded\n")
	}
	if r.Interrupted {
		b.WriteString("  interrupted before all items were processed\n")
	}
	if d := r.Duration(); d > 0 {
		fmt.Fprintf(&b, "  duration:  %s\n", d.Round(time.Second))
	}
	return b.String()
}
