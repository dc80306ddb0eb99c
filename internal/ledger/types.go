// Package ledger persists the outcome of every delivery attempt as an
// append-only log.
//
// The ledger is the sole source of truth for "already done": any entry with
// outcome done for a (target_id, campaign_key) pair marks the pair complete,
// regardless of earlier failed entries. Entries are never updated or deleted.
package ledger

import (
	"context"
	"errors"
	"time"
)

// Outcome is the result recorded for one attempt.
type Outcome string

const (
	OutcomeDone   Outcome = "done"
	OutcomeFailed Outcome = "failed"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeDone || o == OutcomeFailed
}

// Columns is the persisted column order.
var Columns = []string{"target_id", "recipient_label", "campaign_key", "outcome", "timestamp"}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("ledger: store closed")

// Entry is one append-only ledger row.
type Entry struct {
	TargetID       string
	RecipientLabel string
	CampaignKey    string
	Outcome        Outcome
	Timestamp      time.Time
}

// Store is the persistence contract of the ledger.
type Store interface {
	// LoadDoneSet returns target ids with at least one done entry for campaignKey.
	// Missing or empty storage yields an empty set.
	LoadDoneSet(ctx context.Context, campaignKey string) (map[string]struct{}, error)

	// FailedAttempts counts failed entries per target id for campaignKey.
	FailedAttempts(ctx context.Context, campaignKey string) (map[string]int, error)

	// Append durably persists one entry. When it returns nil the entry is
	// visible to subsequent loads, including from another process.
	Append(ctx context.Context, e Entry) error

	// Entries returns every entry in append order.
	Entries(ctx context.Context) ([]Entry, error)

	Close() error
}

// CampaignSummary aggregates ledger entries of one campaign.
type CampaignSummary struct {
	CampaignKey  string
	DoneTargets  int
	FailedRows   int
	PendingRetry int // targets with failed rows and no done row
	LastActivity time.Time
}

// Summarize groups entries per campaign key, ordered by first appearance.
func Summarize(entries []Entry) []CampaignSummary {
	type acc struct {
		summary CampaignSummary
		done    map[string]struct{}
		failed  map[string]struct{}
	}

	order := make([]string, 0)
	byKey := make(map[string]*acc)

	for _, e := range entries {
		a, ok := byKey[e.CampaignKey]
		if !ok {
			a = &acc{
				summary: CampaignSummary{CampaignKey: e.CampaignKey},
				done:    make(map[string]struct{}),
				failed:  make(map[string]struct{}),
			}
			byKey[e.CampaignKey] = a
			order = append(order, e.CampaignKey)
		}
		switch e.Outcome {
		case OutcomeDone:
			a.done[e.TargetID] = struct{}{}
		case OutcomeFailed:
			a.failed[e.TargetID] = struct{}{}
			a.summary.FailedRows++
		}
		if e.Timestamp.After(a.summary.LastActivity) {
			a.summary.LastActivity = e.Timestamp
		}
	}

	result := make([]CampaignSummary, 0, len(order))
	for _, key := range order {
		a := byKey[key]
		a.summary.DoneTargets = len(a.done)
		for id := range a.failed {
			if _, done := a.done[id]; !done {
				a.summary.PendingRetry++
			}
		}
		result = append(result, a.summary)
	}
	return result
}

// doneSet and failedCounts implement the shared scan semantics for drivers
// that read the full log.
func doneSet(entries []Entry, campaignKey string) map[string]struct{} {
	done := make(map[string]struct{})
	for _, e := range entries {
		if e.CampaignKey == campaignKey && e.Outcome == OutcomeDone {
			done[e.TargetID] = struct{}{}
		}
	}
	return done
}

func failedCounts(entries []Entry, campaignKey string) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		if e.CampaignKey == campaignKey && e.Outcome == OutcomeFailed {
			counts[e.TargetID]++
		}
	}
	return counts
}
