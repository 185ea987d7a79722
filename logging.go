package flowengine

import (
	"time"

	"github.com/rs/zerolog"
)

// Log event names
const (
	// Execution-level events
	EventExecutionStarted   = "execution_started"
	EventExecutionCompleted = "execution_completed"
	EventExecutionFailed    = "execution_failed"
	EventExecutionCancelled = "execution_cancelled"

	// Step-level events
	EventStepStarted   = "step_started"
	EventStepRetrying  = "step_retrying"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"
	EventStepSkipped   = "step_skipped"

	// Scheduler events
	EventTriggerScheduled = "trigger_scheduled"
	EventTriggerFired     = "trigger_fired"
)

// LogExecutionStarted logs when an execution starts
func LogExecutionStarted(logger zerolog.Logger, executionID, workflowID string) {
	logger.Info().
		Str("event", EventExecutionStarted).
		Str("execution_id", executionID).
		Str("workflow_id", workflowID).
		Msg("Execution started")
}

// LogExecutionCompleted logs successful execution completion
func LogExecutionCompleted(logger zerolog.Logger, executionID string, duration time.Duration) {
	logger.Info().
		Str("event", EventExecutionCompleted).
		Str("execution_id", executionID).
		Dur("duration", duration).
		Msg("Execution completed")
}

// LogExecutionFailed logs execution failure
func LogExecutionFailed(logger zerolog.Logger, executionID string, err error) {
	logger.Error().
		Str("event", EventExecutionFailed).
		Str("execution_id", executionID).
		Err(err).
		Msg("Execution failed")
}

// LogExecutionCancelled logs execution cancellation
func LogExecutionCancelled(logger zerolog.Logger, executionID string) {
	logger.Warn().
		Str("event", EventExecutionCancelled).
		Str("execution_id", executionID).
		Msg("Execution cancelled")
}

// LogStepStarted logs when a step starts execution
func LogStepStarted(logger zerolog.Logger, executionID, stepID string, stepType StepType) {
	logger.Info().
		Str("event", EventStepStarted).
		Str("execution_id", executionID).
		Str("step_id", stepID).
		Str("step_type", stepType.String()).
		Msg("Step started")
}

// LogStepRetrying logs a retry attempt with its backoff delay
func LogStepRetrying(logger zerolog.Logger, executionID, stepID string, attempt int, delay time.Duration) {
	logger.Warn().
		Str("event", EventStepRetrying).
		Str("execution_id", executionID).
		Str("step_id", stepID).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("Step retrying")
}

// LogStepCompleted logs successful step completion
func LogStepCompleted(logger zerolog.Logger, executionID, stepID string, duration time.Duration) {
	logger.Info().
		Str("event", EventStepCompleted).
		Str("execution_id", executionID).
		Str("step_id", stepID).
		Dur("duration", duration).
		Msg("Step completed")
}

// LogStepFailed logs step failure
func LogStepFailed(logger zerolog.Logger, executionID, stepID string, err error, retries int) {
	logger.Error().
		Str("event", EventStepFailed).
		Str("execution_id", executionID).
		Str("step_id", stepID).
		Err(err).
		Int("retries", retries).
		Msg("Step failed")
}

// LogStepSkipped logs when a condition step prunes its branch
func LogStepSkipped(logger zerolog.Logger, executionID, stepID string) {
	logger.Info().
		Str("event", EventStepSkipped).
		Str("execution_id", executionID).
		Str("step_id", stepID).
		Msg("Step skipped")
}

// ExecutionLogger creates a logger enriched with execution context
func ExecutionLogger(baseLogger zerolog.Logger, executionID, workflowID string) zerolog.Logger {
	return baseLogger.With().
		Str("execution_id", executionID).
		Str("workflow_id", workflowID).
		Logger()
}
