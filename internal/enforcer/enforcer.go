package enforcer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"subscription-bridge/internal/metrics"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrRunInProgress is returned when a pass is requested while another runs.
var ErrRunInProgress = errors.New("enforcement run already in progress")

// Remover evicts a user from the group until the given time.
type Remover interface {
	BanMember(ctx context.Context, chatID string, userID int64, until time.Time) error
}

// ExpiredLister lists users whose subscription ended before now.
type ExpiredLister interface {
	ListExpiredSince(ctx context.Context, now time.Time) ([]int64, error)
}

type Options struct {
	GroupID     string
	Schedule    string
	BanDuration time.Duration
	Pause       time.Duration
	Now         func() time.Time
}

// Report summarizes one enforcement pass.
type Report struct {
	Candidates int
	Removed    int
	Failed     int
}

// Enforcer removes users with lapsed subscriptions from the group. It never
// touches subscription records; a renewed user is simply no longer listed.
type Enforcer struct {
	opts    Options
	remover Remover
	lister  ExpiredLister
	log     zerolog.Logger

	running sync.Mutex
	cron    *cron.Cron
}

func New(opts Options, remover Remover, lister ExpiredLister, logger zerolog.Logger) *Enforcer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BanDuration <= 0 {
		opts.BanDuration = time.Minute
	}
	return &Enforcer{
		opts:    opts,
		remover: remover,
		lister:  lister,
		log:     logger.With().Str("component", "enforcer").Logger(),
	}
}

// Enabled reports whether a group is configured.
func (e *Enforcer) Enabled() bool {
	return e.opts.GroupID != ""
}

// Start schedules periodic passes. Runs are bound to ctx.
func (e *Enforcer) Start(ctx context.Context) error {
	if !e.Enabled() {
		e.log.Info().Msg("no group configured; membership enforcement disabled")
		return nil
	}

	logger := cronLogger{log: e.log}
	e.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	_, err := e.cron.AddFunc(e.opts.Schedule, func() {
		if _, err := e.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
			e.log.Error().Err(err).Msg("scheduled enforcement run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule enforcer %q: %w", e.opts.Schedule, err)
	}

	e.cron.Start()
	e.log.Info().Str("schedule", e.opts.Schedule).Msg("membership enforcer started")
	return nil
}

// Stop halts scheduling. The returned context is done once a running pass finishes.
func (e *Enforcer) Stop() context.Context {
	if e.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return e.cron.Stop()
}

// RunOnce performs a single pass. Only one pass runs at a time; a concurrent
// call gets ErrRunInProgress. A failed removal is logged and the pass moves on.
func (e *Enforcer) RunOnce(ctx context.Context) (Report, error) {
	if !e.Enabled() {
		return Report{}, nil
	}
	if !e.running.TryLock() {
		return Report{}, ErrRunInProgress
	}
	defer e.running.Unlock()

	started := time.Now()
	defer func() {
		metrics.EnforcerRunSeconds.Observe(time.Since(started).Seconds())
	}()

	now := e.opts.Now()
	userIDs, err := e.lister.ListExpiredSince(ctx, now)
	if err != nil {
		return Report{}, fmt.Errorf("list expired subscriptions: %w", err)
	}

	report := Report{Candidates: len(userIDs)}
	for i, userID := range userIDs {
		if i > 0 && e.opts.Pause > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(e.opts.Pause):
			}
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		err := e.remover.BanMember(ctx, e.opts.GroupID, userID, now.Add(e.opts.BanDuration))
		metrics.RecordEviction(err == nil)
		if err != nil {
			report.Failed++
			e.log.Warn().Err(err).Int64("user_id", userID).Msg("could not remove expired member")
			continue
		}
		report.Removed++
		e.log.Info().Int64("user_id", userID).Msg("expired member removed")
	}

	e.log.Info().
		Int("candidates", report.Candidates).
		Int("removed", report.Removed).
		Int("failed", report.Failed).
		Dur("took", time.Since(started)).
		Msg("enforcement run finished")

	return report, nil
}

// cronLogger routes cron's logr-style output into zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
