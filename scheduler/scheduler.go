package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	flowengine "github.com/kumarswaresh/flowengine"
)

// Invoker is the slice of the execution engine the scheduler needs.
// Satisfied by engine.Engine (avoids an import cycle).
type Invoker interface {
	Invoke(ctx context.Context, workflowID string, input map[string]any, opts ...flowengine.InvokeOption) (*flowengine.InvokeResult, error)
}

// Scheduler owns one recurring timer per enabled schedule trigger.
// Single-process and best-effort: nothing persists across restarts,
// timers are re-established from registry state at the next startup.
type Scheduler struct {
	registry *flowengine.Registry
	invoker  Invoker
	parser   cron.Parser
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the scheduler
type Option func(*Scheduler)

// WithLogger sets a custom logger for the scheduler
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// New creates a scheduler over the given registry and invoker
func New(registry *flowengine.Registry, invoker Invoker, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry: registry,
		invoker:  invoker,
		parser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
		logger: zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start scans the registry for enabled schedule triggers, computes one
// fixed interval per trigger from its cron expression and launches the
// recurring timers. Triggers with unparseable expressions are skipped
// with a warning.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	started := 0
	for _, trigger := range s.registry.ScheduleTriggers() {
		expression := cronExpression(trigger)
		interval, err := s.Interval(expression)
		if err != nil {
			s.logger.Warn().
				Str("trigger_id", trigger.ID).
				Str("expression", expression).
				Err(err).
				Msg("Skipping trigger with invalid cron expression")
			continue
		}

		workflows := s.registry.WorkflowsForTrigger(trigger.ID)
		if len(workflows) == 0 {
			s.logger.Warn().
				Str("trigger_id", trigger.ID).
				Msg("Schedule trigger has no workflows bound to it")
			continue
		}

		s.logger.Info().
			Str("event", flowengine.EventTriggerScheduled).
			Str("trigger_id", trigger.ID).
			Dur("interval", interval).
			Strs("workflows", workflows).
			Msg("Trigger scheduled")

		s.wg.Add(1)
		go s.loop(runCtx, trigger.ID, interval, workflows)
		started++
	}

	s.logger.Info().Int("triggers", started).Msg("Scheduler started")
	return nil
}

// loop fires one trigger's workflows on a fixed-interval ticker
func (s *Scheduler) loop(ctx context.Context, triggerID string, interval time.Duration, workflows []string) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, triggerID, workflows)
		}
	}
}

// fire invokes every workflow bound to the trigger with empty input
func (s *Scheduler) fire(ctx context.Context, triggerID string, workflows []string) {
	for _, workflowID := range workflows {
		receipt, err := s.invoker.Invoke(ctx, workflowID, map[string]any{},
			flowengine.WithTrigger(string(flowengine.TriggerTypeSchedule), triggerID))
		if err != nil {
			s.logger.Error().
				Str("trigger_id", triggerID).
				Str("workflow_id", workflowID).
				Err(err).
				Msg("Scheduled invocation failed")
			continue
		}
		s.logger.Info().
			Str("event", flowengine.EventTriggerFired).
			Str("trigger_id", triggerID).
			Str("workflow_id", workflowID).
			Str("execution_id", receipt.ExecutionID).
			Msg("Trigger fired")
	}
}

// Interval computes the fixed interval for a cron expression: the gap
// between its next two occurrences. The interval is fixed at
// registration time; expressions with varying gaps tick at the first
// observed gap.
func (s *Scheduler) Interval(expression string) (time.Duration, error) {
	if expression == "" {
		return 0, fmt.Errorf("empty cron expression")
	}
	schedule, err := s.parser.Parse(expression)
	if err != nil {
		return 0, fmt.Errorf("parse cron expression %q: %w", expression, err)
	}

	first := schedule.Next(time.Now())
	second := schedule.Next(first)
	interval := second.Sub(first)
	if interval <= 0 {
		return 0, fmt.Errorf("cron expression %q does not recur", expression)
	}
	return interval, nil
}

// Stop cancels all trigger timers and waits for them to exit
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

// cronExpression reads the trigger's cron expression from its config
func cronExpression(trigger *flowengine.TriggerConfig) string {
	if trigger.Config == nil {
		return ""
	}
	if expr, ok := trigger.Config["cron"].(string); ok {
		return expr
	}
	if expr, ok := trigger.Config["schedule"].(string); ok {
		return expr
	}
	return ""
}
