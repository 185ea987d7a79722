package flowengine

import "time"

// RetryPolicy holds the engine-wide defaults for retry strategies.
// Step- and workflow-level ErrorHandlingConfig values override it.
type RetryPolicy struct {
	MaxRetries        int           `json:"maxRetries"`
	BackoffMultiplier float64       `json:"backoffMultiplier"`
	InitialDelay      time.Duration `json:"initialDelay"`
}

// DefaultRetryPolicy provides sensible defaults
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:        3,
	BackoffMultiplier: 2.0,
	InitialDelay:      time.Second,
}

// Config is the construction configuration for the registry, engine and
// scheduler. Definitions are loaded once; edits require a restart.
type Config struct {
	Workflows  []*WorkflowDefinition `json:"workflows"`
	Triggers   []*TriggerConfig      `json:"triggers,omitempty"`
	Actions    []*ActionConfig       `json:"actions,omitempty"`
	Conditions []*ConditionConfig    `json:"conditions,omitempty"`

	// MaxExecutionTime is advisory: the engine never preempts an
	// execution, callers wrap Invoke in a deadline when they need one.
	MaxExecutionTime time.Duration `json:"maxExecutionTime,omitempty"`
	EnableScheduling bool          `json:"enableScheduling,omitempty"`
	RetryPolicy      RetryPolicy   `json:"retryPolicy"`

	// MaxLoopIterations bounds loop steps that do not set their own limit
	MaxLoopIterations int `json:"maxLoopIterations,omitempty"`
}

// DefaultConfig provides configuration defaults
var DefaultConfig = Config{
	MaxExecutionTime:  5 * time.Minute,
	EnableScheduling:  false,
	RetryPolicy:       DefaultRetryPolicy,
	MaxLoopIterations: 100,
}

// withDefaults fills zero-valued fields from DefaultConfig
func (c Config) withDefaults() Config {
	if c.MaxExecutionTime <= 0 {
		c.MaxExecutionTime = DefaultConfig.MaxExecutionTime
	}
	if c.RetryPolicy.MaxRetries <= 0 {
		c.RetryPolicy.MaxRetries = DefaultRetryPolicy.MaxRetries
	}
	if c.RetryPolicy.BackoffMultiplier <= 0 {
		c.RetryPolicy.BackoffMultiplier = DefaultRetryPolicy.BackoffMultiplier
	}
	if c.RetryPolicy.InitialDelay <= 0 {
		c.RetryPolicy.InitialDelay = DefaultRetryPolicy.InitialDelay
	}
	if c.MaxLoopIterations <= 0 {
		c.MaxLoopIterations = DefaultConfig.MaxLoopIterations
	}
	return c
}

// InvokeOptions holds per-invocation options
type InvokeOptions struct {
	Context       map[string]any
	Priority      Priority
	TriggerType   string
	TriggerSource string
}

// InvokeOption configures a single workflow invocation
type InvokeOption func(*InvokeOptions)

// WithExecutionContext attaches a caller-supplied context map that is
// visible to conditions and action delegates for the whole execution
func WithExecutionContext(ctx map[string]any) InvokeOption {
	return func(o *InvokeOptions) {
		o.Context = ctx
	}
}

// WithPriority sets the execution priority hint
func WithPriority(p Priority) InvokeOption {
	return func(o *InvokeOptions) {
		o.Priority = p
	}
}

// WithTrigger records what initiated the execution
func WithTrigger(triggerType, source string) InvokeOption {
	return func(o *InvokeOptions) {
		o.TriggerType = triggerType
		o.TriggerSource = source
	}
}
