// Package poller waits for asynchronous provider jobs to reach a terminal state.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
)

// Outcome is the way a wait ended.
type Outcome string

const (
	// OutcomeDone means the job finished and produced a result URL.
	OutcomeDone Outcome = "done"
	// OutcomeFailed means the provider reported the job as failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeTimeout means the job never reached a terminal state within MaxWait.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeCancelled means the caller's context ended before the job finished.
	OutcomeCancelled Outcome = "cancelled"
)

func (o Outcome) String() string {
	return string(o)
}

// StatusChecker queries the current state of a job.
type StatusChecker interface {
	GetTalk(ctx context.Context, talkID string) (*model.Talk, error)
}

// StatusCheckerFunc adapts a function to StatusChecker.
type StatusCheckerFunc func(ctx context.Context, talkID string) (*model.Talk, error)

func (f StatusCheckerFunc) GetTalk(ctx context.Context, talkID string) (*model.Talk, error) {
	return f(ctx, talkID)
}

// Config controls the polling cadence.
type Config struct {
	// MaxWait is the total wall-clock budget. The deadline is checked between
	// intervals, so a wait may overrun it by up to one Interval.
	MaxWait time.Duration
	// Interval is the fixed pause between two status queries.
	Interval time.Duration
	// QueryTimeout bounds a single status query. Zero means no per-query bound.
	QueryTimeout time.Duration
}

// DefaultConfig returns the production cadence: 3s interval, 120s budget.
func DefaultConfig() Config {
	return Config{
		MaxWait:      120 * time.Second,
		Interval:     3 * time.Second,
		QueryTimeout: 10 * time.Second,
	}
}

// Result describes how a wait ended.
type Result struct {
	Outcome Outcome
	// URL is set only for OutcomeDone.
	URL string
	// LastStatus is the last status the provider reported, if any.
	LastStatus model.TalkStatus
	// ProviderError is the provider's failure message for OutcomeFailed.
	ProviderError string
	// LastErr is the last transient query error, if any.
	LastErr error
	// Attempts is the number of status queries issued.
	Attempts int
	// Elapsed is the wall-clock time spent waiting.
	Elapsed time.Duration
}

// OK reports whether the job produced a result URL.
func (r Result) OK() bool {
	return r.Outcome == OutcomeDone
}

// Wait polls checker every cfg.Interval until the job is done, fails, the
// budget runs out, or ctx ends.
//
// Query errors and non-terminal statuses are retried; they never end the wait
// on their own.
func Wait(ctx context.Context, talkID string, checker StatusChecker, cfg Config) Result {
	def := DefaultConfig()
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}

	start := time.Now()
	var res Result

	finish := func(o Outcome) Result {
		res.Outcome = o
		res.Elapsed = time.Since(start)
		return res
	}

	for time.Since(start) < cfg.MaxWait {
		res.Attempts++

		talk, err := check(ctx, talkID, checker, cfg.QueryTimeout)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return finish(OutcomeCancelled)
			}
			res.LastErr = err
			slog.Debug("job status check failed",
				"talk_id", talkID,
				"attempt", res.Attempts,
				"error", err,
			)
		case talk.IsDone():
			res.LastStatus = talk.Status
			res.URL = talk.ResultURL
			return finish(OutcomeDone)
		case talk.IsFailed():
			res.LastStatus = talk.Status
			res.ProviderError = talk.Error
			return finish(OutcomeFailed)
		default:
			res.LastStatus = talk.Status
			slog.Debug("job still running",
				"talk_id", talkID,
				"status", talk.Status.String(),
				"elapsed", time.Since(start).Round(time.Second),
			)
		}

		if !sleep(ctx, cfg.Interval) {
			return finish(OutcomeCancelled)
		}
	}

	return finish(OutcomeTimeout)
}

var errNilTalk = errors.New("status checker returned no talk")

func check(ctx context.Context, talkID string, checker StatusChecker, timeout time.Duration) (*model.Talk, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	talk, err := checker.GetTalk(ctx, talkID)
	if err != nil {
		return nil, err
	}
	if talk == nil {
		return nil, errNilTalk
	}
	return talk, nil
}

// sleep pauses for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
