// Package poller follows a research task until its report can be shown.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/etdc/insight/pkg/domain"
	"github.com/etdc/insight/pkg/observability"
	"github.com/etdc/insight/pkg/state"
	"golang.org/x/sync/errgroup"
)

// Config controls polling cadence
type Config struct {
	// Interval between status requests for the research task
	Interval time.Duration
	// FollowUpDelay between sub-task rounds while some are unfinished
	FollowUpDelay time.Duration
	// MaxConsecutiveFailures before polling gives up
	MaxConsecutiveFailures int
	// MaxConcurrency bounds the sub-task fan-out
	MaxConcurrency int
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() Config {
	return Config{
		Interval:               10 * time.Second,
		FollowUpDelay:          10 * time.Second,
		MaxConsecutiveFailures: 5,
		MaxConcurrency:         8,
	}
}

// StatusHook receives every research task status
type StatusHook func(status *domain.TaskStatus)

// SubTaskHook receives every sub-task result applied to the result set.
// It is called from fan-out goroutines and must be safe for concurrent use.
type SubTaskHook func(result domain.SubTaskResult)

// Outcome describes a research task whose report is ready
type Outcome struct {
	TaskID  domain.TaskID
	Status  *domain.TaskStatus
	Results *state.ResultSet
	Rounds  int
	Elapsed time.Duration
}

// Poller follows research tasks through the gateway
type Poller struct {
	gateway     domain.Gateway
	config      Config
	logger      observability.Logger
	telemetry   *observability.Telemetry
	metrics     *observability.Metrics
	statusHook  StatusHook
	subTaskHook SubTaskHook
}

// Option configures a Poller
type Option func(*Poller)

// WithLogger sets the logger
func WithLogger(logger observability.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

// WithTelemetry enables spans and metrics
func WithTelemetry(telemetry *observability.Telemetry, metrics *observability.Metrics) Option {
	return func(p *Poller) {
		p.telemetry = telemetry
		p.metrics = metrics
	}
}

// WithStatusHook registers a research task status hook
func WithStatusHook(hook StatusHook) Option {
	return func(p *Poller) { p.statusHook = hook }
}

// WithSubTaskHook registers a sub-task result hook
func WithSubTaskHook(hook SubTaskHook) Option {
	return func(p *Poller) { p.subTaskHook = hook }
}

// New creates a poller
func New(gateway domain.Gateway, config Config, opts ...Option) *Poller {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.FollowUpDelay <= 0 {
		config.FollowUpDelay = defaults.FollowUpDelay
	}
	if config.MaxConsecutiveFailures < 1 {
		config.MaxConsecutiveFailures = defaults.MaxConsecutiveFailures
	}
	if config.MaxConcurrency < 1 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}

	p := &Poller{
		gateway:   gateway,
		config:    config,
		logger:    observability.NewNopLogger(),
		telemetry: observability.NewNoopTelemetry(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll follows the task with a fresh result set
func (p *Poller) Poll(ctx context.Context, id domain.TaskID) (*Outcome, error) {
	return p.Run(ctx, state.NewResultSet(id))
}

// Run follows the task of results until every sub-task finished. It returns
// domain.ErrTaskNotFound for an invalid id or a failed task, the context
// error on cancellation, and the last request error once the breaker opens.
// The result set is closed when Run returns.
func (p *Poller) Run(ctx context.Context, results *state.ResultSet) (*Outcome, error) {
	defer results.Close()
	id := results.TaskID()
	if !id.Valid() {
		return nil, fmt.Errorf("task %q: %w", id, domain.ErrTaskNotFound)
	}

	ctx, span := p.telemetry.StartResearchWatch(ctx, id.String())
	defer span.End()

	startTime := time.Now()
	p.metrics.RecordPollStarted()

	outcome, err := p.run(ctx, results)

	p.metrics.RecordPollFinished(ctx, time.Since(startTime), outcomeLabel(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	outcome.Elapsed = time.Since(startTime)
	p.logger.Info(ctx, "research report ready", map[string]interface{}{
		"task_id":  id.String(),
		"rounds":   outcome.Rounds,
		"elapsed":  outcome.Elapsed.String(),
		"subtasks": len(outcome.Results.Snapshot()),
	})
	return outcome, nil
}

func (p *Poller) run(ctx context.Context, results *state.ResultSet) (*Outcome, error) {
	id := results.TaskID()
	breaker := NewBreaker(p.config.MaxConsecutiveFailures)
	outcome := &Outcome{TaskID: id, Results: results}

	status, err := p.waitForParent(ctx, results, breaker, outcome)
	if err != nil {
		return nil, err
	}
	outcome.Status = status

	refs := status.ProcessRefs()
	if len(refs) == 0 {
		return outcome, nil
	}
	results.Expect(refs)
	breaker.Reset()

	for {
		pending := results.Pending()
		if len(pending) == 0 {
			return outcome, nil
		}

		outcome.Rounds++
		if err := p.fanOut(ctx, results, pending, breaker); err != nil {
			return nil, err
		}
		if results.AllTerminal() {
			return outcome, nil
		}

		p.logger.Debug(ctx, "sub-tasks still running", map[string]interface{}{
			"task_id": id.String(),
			"pending": len(results.Pending()),
		})
		if err := sleep(ctx, p.config.FollowUpDelay); err != nil {
			return nil, err
		}
	}
}

// waitForParent polls the research task itself until it is terminal
func (p *Poller) waitForParent(ctx context.Context, results *state.ResultSet, breaker *Breaker, outcome *Outcome) (*domain.TaskStatus, error) {
	id := results.TaskID()

	for {
		outcome.Rounds++

		var status *domain.TaskStatus
		err := p.telemetry.InstrumentPollRound(ctx, id.String(), "parent", func(ctx context.Context) error {
			var err error
			status, err = p.gateway.GetStatus(ctx, id)
			return err
		})
		p.metrics.RecordPollRound(ctx, "parent")

		switch {
		case err == nil:
			breaker.RecordSuccess()
		case errors.Is(err, domain.ErrTaskNotFound):
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			p.logger.Warn(ctx, "status request failed", map[string]interface{}{
				"task_id":  id.String(),
				"error":    err.Error(),
				"failures": breaker.Failures() + 1,
			})
			if openErr := breaker.RecordFailure(err); openErr != nil {
				return nil, fmt.Errorf("task %s: %w", id, openErr)
			}
			if err := sleep(ctx, p.config.Interval); err != nil {
				return nil, err
			}
			continue
		}

		results.SetParent(status)
		if p.statusHook != nil {
			p.statusHook(status)
		}

		switch status.State.Kind() {
		case domain.StatusFailure:
			p.logger.Info(ctx, "research task failed", map[string]interface{}{"task_id": id.String()})
			return nil, fmt.Errorf("task %s failed: %w", id, domain.ErrTaskNotFound)
		case domain.StatusSuccess:
			return status, nil
		}

		if err := sleep(ctx, p.config.Interval); err != nil {
			return nil, err
		}
	}
}

// fanOut fetches every pending sub-task concurrently. Individual failures
// leave the sub-task pending; a round in which every request failed counts
// against the breaker.
func (p *Poller) fanOut(ctx context.Context, results *state.ResultSet, pending []domain.ProcessRef, breaker *Breaker) error {
	id := results.TaskID()

	var succeeded, failed atomic.Int32
	var mu sync.Mutex
	var lastErr error

	err := p.telemetry.InstrumentPollRound(ctx, id.String(), "subtasks", func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.config.MaxConcurrency)

		for _, ref := range pending {
			ref := ref
			g.Go(func() error {
				status, err := p.gateway.GetStatus(gctx, ref.TaskID)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					failed.Add(1)
					mu.Lock()
					lastErr = err
					mu.Unlock()
					p.logger.Warn(gctx, "sub-task status request failed", map[string]interface{}{
						"task_id":      id.String(),
						"process_type": string(ref.ProcessType),
						"subtask_id":   ref.TaskID.String(),
						"error":        err.Error(),
					})
					return nil
				}
				succeeded.Add(1)
				p.apply(gctx, results, ref, status)
				return nil
			})
		}

		return g.Wait()
	})
	p.metrics.RecordPollRound(ctx, "subtasks")

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	if succeeded.Load() > 0 {
		breaker.RecordSuccess()
		return nil
	}
	if failed.Load() > 0 {
		if openErr := breaker.RecordFailure(lastErr); openErr != nil {
			return fmt.Errorf("task %s: %w", id, openErr)
		}
	}
	return nil
}

func (p *Poller) apply(ctx context.Context, results *state.ResultSet, ref domain.ProcessRef, status *domain.TaskStatus) {
	result := domain.SubTaskResult{
		Type:      ref.ProcessType,
		TaskID:    ref.TaskID,
		State:     status.State,
		Payload:   status.Response(),
		FetchedAt: time.Now(),
	}
	if !results.Apply(result) {
		return
	}

	p.metrics.RecordSubTaskResult(ctx, string(result.Type), string(result.State.Kind()))
	p.logger.Debug(ctx, "sub-task result applied", map[string]interface{}{
		"process_type": string(result.Type),
		"state":        string(result.State),
		"bytes":        len(result.Payload),
	})
	if p.subTaskHook != nil {
		p.subTaskHook(result)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ready"
	case errors.Is(err, domain.ErrTaskNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
