// Package runner sequences one batch run: resolve the pending set, acquire a
// session, drive every pending item through the delivery protocol, record the
// outcome and pause between items.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aatumaykin/outreach/internal/actor"
	"github.com/aatumaykin/outreach/internal/ledger"
	"github.com/aatumaykin/outreach/internal/logger"
	"github.com/aatumaykin/outreach/internal/payload"
	"github.com/aatumaykin/outreach/internal/targets"
)

const defaultPreviewLimit = 10

// Outcome labels used in metrics beyond the ledger outcomes.
const outcomeTested = "tested"

// AcquireFunc obtains the session used for a run.
type AcquireFunc func(ctx context.Context) (actor.Session, error)

// Pauser inserts the delay between two items.
type Pauser interface {
	Pause(ctx context.Context) (time.Duration, error)
}

// Options configure a single run.
type Options struct {
	Campaign string
	// Message is the payload template, rendered per target.
	Message      string
	DryRun       bool
	TestMode     bool
	MaxAttempts  int
	PreviewLimit int

	// OnTransition, when set, observes every state change.
	OnTransition func(from, to State, targetID string)
}

// Runner executes runs against one ledger.
type Runner struct {
	opts    Options
	store   ledger.Store
	acquire AcquireFunc
	pacer   Pauser
	logger  *logger.Logger
	metrics *Metrics

	now   func() time.Time
	state State
}

// New creates a runner. metrics may be nil.
func New(opts Options, store ledger.Store, acquire AcquireFunc, pacer Pauser, log *logger.Logger, metrics *Metrics) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = defaultPreviewLimit
	}
	return &Runner{
		opts:    opts,
		store:   store,
		acquire: acquire,
		pacer:   pacer,
		logger:  log,
		metrics: metrics,
		now:     time.Now,
		state:   StateIdle,
	}
}

// State returns the current state.
func (r *Runner) State() State {
	return r.state
}

// Run processes records for the configured campaign. Per-item failures are
// recorded and do not stop the run; a session that cannot be acquired or a
// ledger that cannot be read aborts it. The returned report is never nil.
func (r *Runner) Run(ctx context.Context, records []targets.Record) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Campaign:  r.opts.Campaign,
		DryRun:    r.opts.DryRun,
		TestMode:  r.opts.TestMode,
		Total:     len(records),
		StartedAt: r.now(),
	}
	log := r.logger.With(
		logger.Field{Key: "run_id", Value: report.RunID},
		logger.Field{Key: "campaign", Value: r.opts.Campaign},
	)
	defer func() {
		report.FinishedAt = r.now()
		r.metrics.RunFinished(report.FinishedAt)
	}()

	r.state = StateIdle
	r.transition(StateResolving, "")

	pending, err := r.resolve(ctx, records, report)
	if err != nil {
		r.transition(StateDone, "")
		return report, err
	}
	r.metrics.SetPending(len(pending))

	log.Info("pending set resolved",
		logger.Field{Key: "targets", Value: report.Total},
		logger.Field{Key: "pending", Value: report.Pending},
		logger.Field{Key: "exhausted", Value: report.Exhausted})

	if r.opts.DryRun {
		limit := min(r.opts.PreviewLimit, len(pending))
		report.Preview = append([]targets.Record(nil), pending[:limit]...)
		r.transition(StateDone, "")
		return report, nil
	}

	if len(pending) == 0 {
		log.Info("nothing to do")
		r.transition(StateDone, "")
		return report, nil
	}

	session, err := r.acquire(ctx)
	if err != nil {
		r.transition(StateDone, "")
		if !errors.Is(err, actor.ErrAcquireFailed) {
			err = fmt.Errorf("%w: %w", actor.ErrAcquireFailed, err)
		}
		return report, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("failed to close session", logger.Field{Key: "error", Value: err.Error()})
		}
	}()

	var runErr error
	for i, rec := range pending {
		if err := ctx.Err(); err != nil {
			report.Interrupted = true
			runErr = fmt.Errorf("run interrupted: %w", err)
			break
		}

		r.processItem(ctx, log, session, rec, report)

		if i == len(pending)-1 {
			break
		}

		r.transition(StateDelaying, "")
		d, err := r.pacer.Pause(ctx)
		if err != nil {
			report.Interrupted = true
			runErr = fmt.Errorf("run interrupted: %w", err)
			break
		}
		r.metrics.RecordDelay(d)
		log.Debug("paused between items", logger.Field{Key: "delay", Value: d.String()})
	}

	r.transition(StateDone, "")
	log.Info("run finished",
		logger.Field{Key: "processed", Value: report.Processed},
		logger.Field{Key: "done", Value: report.Done},
		logger.Field{Key: "failed", Value: report.Failed},
		logger.Field{Key: "ledger_errors", Value: report.LedgerErrors})

	return report, runErr
}

func (r *Runner) resolve(ctx context.Context, records []targets.Record, report *Report) ([]targets.Record, error) {
	done, err := r.store.LoadDoneSet(ctx, r.opts.Campaign)
	if err != nil {
		return nil, fmt.Errorf("load done set: %w", err)
	}
	pending := targets.Resolve(records, done)

	if r.opts.MaxAttempts > 0 {
		failed, err := r.store.FailedAttempts(ctx, r.opts.Campaign)
		if err != nil {
			return nil, fmt.Errorf("load failed attempts: %w", err)
		}
		var exhausted []targets.Record
		pending, exhausted = targets.Exhausted(pending, failed, r.opts.MaxAttempts)
		report.Exhausted = len(exhausted)
	}

	report.Pending = len(pending)
	return pending, nil
}

// processItem drives one target through the delivery protocol and records
// the outcome. It never returns an error: failures become failed entries.
func (r *Runner) processItem(ctx context.Context, log *logger.Logger, session actor.Session, rec targets.Record, report *Report) {
	start := r.now()
	log = log.With(logger.Field{Key: "target_id", Value: rec.TargetID})

	err := r.deliver(ctx, session, rec)
	report.Processed++

	outcome := ledger.OutcomeDone
	if err != nil {
		outcome = ledger.OutcomeFailed
		report.Failed++
		report.Failures = append(report.Failures, failureOf(rec, err))
		log.Warn("item failed", logger.Field{Key: "error", Value: err.Error()})
	} else {
		report.Done++
		log.Info("item delivered", logger.Field{Key: "test_mode", Value: r.opts.TestMode})
	}

	r.transition(StateRecording, rec.TargetID)

	label := string(outcome)
	if r.opts.TestMode && outcome == ledger.OutcomeDone {
		label = outcomeTested
	}
	r.metrics.RecordItem(label, r.now().Sub(start))

	if r.opts.TestMode {
		return
	}

	entry := ledger.Entry{
		TargetID:       rec.TargetID,
		RecipientLabel: rec.Label(),
		CampaignKey:    r.opts.Campaign,
		Outcome:        outcome,
		Timestamp:      r.now(),
	}
	// The outcome must be persisted even when the run is being interrupted.
	if err := r.store.Append(context.WithoutCancel(ctx), entry); err != nil {
		report.LedgerErrors++
		r.metrics.IncLedgerErrors()
		log.Error("failed to record outcome", err, logger.Field{Key: "outcome", Value: string(outcome)})
	}
}

func (r *Runner) deliver(ctx context.Context, session actor.Session, rec targets.Record) error {
	r.transition(StateNavigating, rec.TargetID)
	if err := session.Navigate(ctx, rec); err != nil {
		return err
	}
	if err := session.OpenDeliveryChannel(ctx); err != nil {
		return err
	}

	r.transition(StateComposing, rec.TargetID)
	if err := session.Compose(ctx, payload.Render(r.opts.Message, rec)); err != nil {
		return err
	}

	if r.opts.TestMode {
		return nil
	}

	r.transition(StateConfirming, rec.TargetID)
	return session.Confirm(ctx)
}

func (r *Runner) transition(to State, targetID string) {
	from := r.state
	r.state = to
	r.logger.Debug("state transition",
		logger.Field{Key: "from", Value: from.String()},
		logger.Field{Key: "to", Value: to.String()},
		logger.Field{Key: "target_id", Value: targetID})
	if r.opts.OnTransition != nil {
		r.opts.OnTransition(from, to, targetID)
	}
}

func failureOf(rec targets.Record, err error) ItemFailure {
	f := ItemFailure{TargetID: rec.TargetID, Error: err.Error()}
	var stepErr *actor.StepError
	if errors.As(err, &stepErr) {
		f.Step = stepErr.Step
	}
	return f
}
