package flowengine

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// definitionSchemaJSON is the JSON Schema for WorkflowDefinition
// documents loaded from external config. Embedded as a constant to
// avoid filesystem dependencies.
const definitionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowengine.dev/schemas/workflow.json",
  "type": "object",
  "required": ["id", "name", "steps"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "name": { "type": "string", "minLength": 1 },
    "description": { "type": "string" },
    "triggers": {
      "type": "array",
      "items": { "type": "string" }
    },
    "steps": {
      "type": "array",
      "items": { "$ref": "#/$defs/step" }
    },
    "errorHandling": { "$ref": "#/$defs/errorHandling" },
    "metadata": { "type": "object" }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "type": {
          "type": "string",
          "enum": ["action", "condition", "loop", "parallel", "delay"]
        },
        "config": { "type": "object" },
        "nextSteps": {
          "type": "array",
          "items": { "type": "string" }
        },
        "onError": { "$ref": "#/$defs/errorHandling" }
      },
      "additionalProperties": false
    },
    "errorHandling": {
      "type": "object",
      "required": ["strategy"],
      "properties": {
        "strategy": {
          "type": "string",
          "enum": ["stop", "continue", "retry", "fallback"]
        },
        "maxRetries": { "type": "integer", "minimum": 0 },
        "backoffMultiplier": { "type": "number", "exclusiveMinimum": 0 },
        "initialDelayMs": { "type": "integer", "minimum": 0 },
        "fallbackStep": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

var (
	definitionSchemaOnce sync.Once
	definitionSchema     *jsonschema.Schema
	definitionSchemaErr  error
)

func compiledDefinitionSchema() (*jsonschema.Schema, error) {
	definitionSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(definitionSchemaJSON))
		if err != nil {
			definitionSchemaErr = fmt.Errorf("unmarshal workflow schema: %w", err)
			return
		}
		if err := c.AddResource("https://flowengine.dev/schemas/workflow.json", doc); err != nil {
			definitionSchemaErr = fmt.Errorf("add workflow schema resource: %w", err)
			return
		}
		definitionSchema, definitionSchemaErr = c.Compile("https://flowengine.dev/schemas/workflow.json")
	})
	return definitionSchema, definitionSchemaErr
}

// LoadDefinition parses a JSON workflow definition, validates it against
// the embedded schema and registers it.
func (r *Registry) LoadDefinition(raw []byte) (*WorkflowDefinition, error) {
	schema, err := compiledDefinitionSchema()
	if err != nil {
		return nil, NewWorkflowError(ErrCodeInternalError, "workflow schema unavailable").WithCause(err)
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, NewWorkflowError(ErrCodeValidation, "workflow definition is not valid JSON").WithCause(err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, NewWorkflowErrorf(ErrCodeValidation, "workflow definition rejected by schema: %v", err).WithCause(err)
	}

	var def WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, NewWorkflowError(ErrCodeValidation, "failed to decode workflow definition").WithCause(err)
	}

	if err := r.RegisterWorkflow(&def); err != nil {
		return nil, err
	}
	return &def, nil
}
