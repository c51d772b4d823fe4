// Package coordinator drives the replacement of one newly created
// environment's bundle through an immediate check and a single deferred
// check.
//
// A new environment directory usually appears before its ssl folder is
// populated. The coordinator therefore tries once immediately and, if the
// bundle is not there yet, once more after the configured wait:
//
//	Observed -> REPLACED
//	Observed -> ImmediateCheckFailed -> Waiting -> FinalCheckSucceeded -> REPLACED
//	Observed -> ImmediateCheckFailed -> Waiting -> FinalCheckFailed -> NOT_FOUND_AFTER_WAIT
//
// There is no further retry. Each sequence runs in its own goroutine so a
// pending wait never delays the next environment.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/princespaghetti/envcerts/internal/bundle"
	"github.com/princespaghetti/envcerts/internal/environment"
	"github.com/princespaghetti/envcerts/internal/metrics"
	"github.com/princespaghetti/envcerts/internal/outcome"
)

// State is a step of one coordination sequence.
type State int

const (
	StateObserved State = iota
	StateImmediateCheckFailed
	StateWaiting
	StateFinalCheckSucceeded
	StateFinalCheckFailed
)

func (s State) String() string {
	switch s {
	case StateObserved:
		return "observed"
	case StateImmediateCheckFailed:
		return "immediate-check-failed"
	case StateWaiting:
		return "waiting"
	case StateFinalCheckSucceeded:
		return "final-check-succeeded"
	case StateFinalCheckFailed:
		return "final-check-failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Applier is the replacement primitive the coordinator drives.
// *bundle.Replacer implements it.
type Applier interface {
	Apply(ctx context.Context, envRoot string) (bundle.Status, error)
	Describe(status bundle.Status) string
	BundleFileName() string
}

// Coordinator runs one sequence per dispatched environment.
type Coordinator struct {
	replacer Applier
	sink     outcome.Sink
	wait     time.Duration
	clock    Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	onState  func(env string, s State)

	wg sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the time source used for the deferred wait and timestamps.
func WithClock(c Clock) Option {
	return func(co *Coordinator) {
		co.clock = c
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) {
		co.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(co *Coordinator) {
		co.metrics = m
	}
}

// WithStateObserver registers fn to be called on every state transition.
func WithStateObserver(fn func(env string, s State)) Option {
	return func(co *Coordinator) {
		co.onState = fn
	}
}

// New creates a Coordinator that waits wait before the final check and
// writes terminal outcomes to sink.
func New(replacer Applier, sink outcome.Sink, wait time.Duration, opts ...Option) *Coordinator {
	c := &Coordinator{
		replacer: replacer,
		sink:     sink,
		wait:     wait,
		clock:    RealClock{},
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Dispatch starts the sequence for env in a new goroutine and returns
// immediately.
func (c *Coordinator) Dispatch(ctx context.Context, env environment.Environment, eventID string) {
	c.metrics.SequenceStarted()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.metrics.SequenceFinished()
		c.Run(ctx, env, eventID)
	}()
}

// Wait blocks until every dispatched sequence has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Run executes the sequence for env synchronously. It returns the emitted
// outcome, or false when ctx was cancelled before a terminal outcome.
func (c *Coordinator) Run(ctx context.Context, env environment.Environment, eventID string) (outcome.Outcome, bool) {
	log := c.logger.With("env", env.Name, "event_id", eventID)
	c.transition(log, env, StateObserved)

	status, err := c.replacer.Apply(ctx, env.Root)
	if err != nil {
		return c.failed(ctx, log, env, "immediate check", err)
	}
	if status != bundle.StatusMissing {
		return c.emit(log, env, kindFor(status), c.replacer.Describe(status))
	}

	c.transition(log, env, StateImmediateCheckFailed)
	c.transition(log, env, StateWaiting)

	select {
	case <-c.clock.After(c.wait):
	case <-ctx.Done():
		log.Info("coordination abandoned during wait", "reason", ctx.Err())
		return outcome.Outcome{}, false
	}

	status, err = c.replacer.Apply(ctx, env.Root)
	if err != nil {
		return c.failed(ctx, log, env, "final check", err)
	}
	if status == bundle.StatusMissing {
		c.transition(log, env, StateFinalCheckFailed)
		msg := fmt.Sprintf("%s not found after %d seconds", c.replacer.BundleFileName(), int(c.wait/time.Second))
		return c.emit(log, env, outcome.KindNotFoundAfterWait, msg)
	}

	c.transition(log, env, StateFinalCheckSucceeded)
	return c.emit(log, env, kindFor(status), c.replacer.Describe(status))
}

func (c *Coordinator) transition(log *slog.Logger, env environment.Environment, s State) {
	log.Debug("coordination state", "state", s.String())
	if c.onState != nil {
		c.onState(env.Name, s)
	}
}

func (c *Coordinator) failed(ctx context.Context, log *slog.Logger, env environment.Environment, check string, err error) (outcome.Outcome, bool) {
	if ctx.Err() != nil {
		log.Info("coordination abandoned", "check", check, "reason", ctx.Err())
		return outcome.Outcome{}, false
	}
	log.Error("replacement failed", "check", check, "error", err)
	return c.emit(log, env, outcome.KindFailed, fmt.Sprintf("%s: %v", check, err))
}

func (c *Coordinator) emit(log *slog.Logger, env environment.Environment, kind outcome.Kind, msg string) (outcome.Outcome, bool) {
	o := outcome.New(c.clock.Now(), kind, env.Name, msg)
	if err := c.sink.Record(o); err != nil {
		log.Error("failed to record outcome", "kind", string(kind), "error", err)
	}
	c.metrics.OutcomeRecorded(string(kind))
	log.Info("replacement outcome", "kind", string(kind), "message", msg)
	return o, true
}

func kindFor(status bundle.Status) outcome.Kind {
	if status == bundle.StatusUpToDate {
		return outcome.KindAlreadyUpToDate
	}
	return outcome.KindReplaced
}
