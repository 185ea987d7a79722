// Package actions provides the dispatch glue between action steps and
// their side-effecting delegates. Concrete connectors (HTTP, email,
// Slack, database, file operations) live outside this module and
// register here; the pure transform action ships built in.
package actions

import (
	"context"

	flowengine "github.com/kumarswaresh/flowengine"
)

// Action is one executable delegate behind an action step. An
// implementation may cache, rate-limit or retry internally; that is
// opaque to the engine and composes with step-level error policies.
type Action interface {
	// Type is the action type this delegate serves (api_call, email,
	// slack, database, file_operation, transform).
	Type() string

	// Execute runs the delegate with the resolved action template, the
	// raw step config, the flowing data and the execution context.
	Execute(ctx context.Context, action *flowengine.ActionConfig, stepConfig, data, execCtx map[string]any) (any, error)
}
