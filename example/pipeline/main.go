// Command pipeline runs an order-processing demo: a registry with one
// workflow, the in-memory store, a cron-scheduled trigger and a small
// HTTP API for invoking and inspecting executions.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	flowengine "github.com/kumarswaresh/flowengine"
	"github.com/kumarswaresh/flowengine/actions"
	"github.com/kumarswaresh/flowengine/builder"
	"github.com/kumarswaresh/flowengine/engine"
	"github.com/kumarswaresh/flowengine/scheduler"
	"github.com/kumarswaresh/flowengine/store"
)

var wfEngine *engine.Engine

// orderWorkflow validates an order, skips low-value ones, enriches each
// line item in a loop and summarizes the result with a transform.
func orderWorkflow() *flowengine.WorkflowDefinition {
	return builder.NewWorkflow("order-processing", "Order Processing").
		WithDescription("Validates, filters and summarizes incoming orders").
		WithTriggers("nightly-batch").
		Then(builder.ConditionStep("check-total", "order-over-minimum")).
		Then(builder.LoopStep("enrich-items", "items", "tag-item",
			builder.WithConfig("maxIterations", 50))).
		Then(builder.ActionStep("summarize", "order-summary",
			builder.WithRetry(2, 2.0, 100))).
		Step(builder.ActionStep("tag-item", "item-tag")).
		MustBuild()
}

func initializeApp() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	cfg := flowengine.DefaultConfig
	cfg.Workflows = []*flowengine.WorkflowDefinition{orderWorkflow()}
	cfg.Triggers = []*flowengine.TriggerConfig{{
		ID:      "nightly-batch",
		Type:    flowengine.TriggerTypeSchedule,
		Enabled: true,
		Config:  map[string]any{"cron": "0 2 * * *"},
	}}
	cfg.Actions = []*flowengine.ActionConfig{
		{ID: "item-tag", Type: flowengine.ActionTypeTransform,
			Config: map[string]any{"query": `$context.loopItem + {reviewed: true}`}},
		{ID: "order-summary", Type: flowengine.ActionTypeTransform,
			Config: map[string]any{"query": `{orderId: .orderId, items: (.loopResults | length), total: .total}`}},
	}
	cfg.Conditions = []*flowengine.ConditionConfig{
		{ID: "order-over-minimum", Type: flowengine.ConditionComparison,
			Field: "total", Operator: "gte", Value: 25.0},
	}

	registry, err := flowengine.NewRegistry(cfg, flowengine.WithRegistryLogger(log.Logger))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build registry")
	}

	wfEngine = engine.New(registry, store.NewMemoryStore(), actions.NewRegistry(),
		engine.WithLogger(log.Logger))

	sched := scheduler.New(registry, wfEngine, scheduler.WithLogger(log.Logger))
	if err := sched.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	log.Info().Msg("Workflow engine initialized successfully")
}

func registerRoutes(app *fiber.App) {
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "service": "flowengine-pipeline"})
	})

	v1 := app.Group("/api/v1")
	executions := v1.Group("/executions")

	executions.Post("/order-processing", handleInvoke)
	executions.Get("/", handleListActive)
	executions.Get("/:executionId", handleGetExecution)
	executions.Post("/:executionId/cancel", handleCancel)
}

func handleInvoke(c fiber.Ctx) error {
	var input map[string]any
	if err := c.Bind().JSON(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	receipt, err := wfEngine.Invoke(c.Context(), "order-processing", input,
		flowengine.WithTrigger(string(flowengine.TriggerTypeAPI), c.IP()))
	if err != nil {
		log.Error().Err(err).Msg("Failed to invoke workflow")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(receipt)
}

func handleGetExecution(c fiber.Ctx) error {
	executionID := c.Params("executionId")

	exec, err := wfEngine.GetExecution(c.Context(), executionID)
	if err != nil {
		log.Error().Err(err).Str("execution_id", executionID).Msg("Failed to get execution")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get execution",
		})
	}
	if exec == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Execution not found",
		})
	}
	return c.JSON(exec)
}

func handleListActive(c fiber.Ctx) error {
	active, err := wfEngine.ListActive(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list executions",
		})
	}
	return c.JSON(fiber.Map{"executions": active})
}

func handleCancel(c fiber.Ctx) error {
	executionID := c.Params("executionId")

	if !wfEngine.Cancel(c.Context(), executionID) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Execution is not running",
		})
	}
	return c.JSON(fiber.Map{
		"executionId": executionID,
		"status":      flowengine.ExecutionStatusCancelled,
	})
}

func main() {
	initializeApp()

	app := fiber.New()
	registerRoutes(app)

	go func() {
		addr := ":3000"
		log.Info().Str("address", addr).Msg("Starting HTTP server")
		if err := app.Listen(addr); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server stopped")
}
