package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	flowengine "github.com/kumarswaresh/flowengine"
)

// MemoryStore implements flowengine.ExecutionStore with an in-process
// mutex-guarded map. This is the reference store: execution state is
// not durable beyond process memory.
type MemoryStore struct {
	executions map[string]*flowengine.Execution
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory execution store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions: make(map[string]*flowengine.Execution),
	}
}

func (s *MemoryStore) Create(ctx context.Context, exec *flowengine.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[exec.ExecutionID]; exists {
		return fmt.Errorf("execution %s already exists", exec.ExecutionID)
	}
	s.executions[exec.ExecutionID] = exec.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, executionID string) (*flowengine.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, exists := s.executions[executionID]
	if !exists {
		return nil, nil
	}
	return exec.Clone(), nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]*flowengine.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*flowengine.Execution
	for _, exec := range s.executions {
		if exec.Status == flowengine.ExecutionStatusRunning {
			active = append(active, exec.Clone())
		}
	}
	return active, nil
}

func (s *MemoryStore) AppendStep(ctx context.Context, executionID string, result *flowengine.StepExecutionResult) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, exists := s.executions[executionID]
	if !exists {
		return 0, fmt.Errorf("execution %s not found", executionID)
	}
	rc := *result
	exec.Steps = append(exec.Steps, &rc)
	return len(exec.Steps) - 1, nil
}

func (s *MemoryStore) UpdateStep(ctx context.Context, executionID string, index int, result *flowengine.StepExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, exists := s.executions[executionID]
	if !exists {
		return fmt.Errorf("execution %s not found", executionID)
	}
	if index < 0 || index >= len(exec.Steps) {
		return fmt.Errorf("step index %d out of range for execution %s", index, executionID)
	}
	rc := *result
	exec.Steps[index] = &rc
	return nil
}

// finish applies a terminal transition; false when already terminal
func (s *MemoryStore) finish(executionID string, apply func(*flowengine.Execution)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, exists := s.executions[executionID]
	if !exists {
		return false, fmt.Errorf("execution %s not found", executionID)
	}
	if exec.Status.IsTerminal() {
		return false, nil
	}
	apply(exec)
	now := time.Now()
	exec.EndTime = &now
	return true, nil
}

func (s *MemoryStore) Complete(ctx context.Context, executionID string, output map[string]any) (bool, error) {
	return s.finish(executionID, func(exec *flowengine.Execution) {
		exec.Status = flowengine.ExecutionStatusCompleted
		exec.Output = output
	})
}

func (s *MemoryStore) Fail(ctx context.Context, executionID string, execErr *flowengine.WorkflowError) (bool, error) {
	return s.finish(executionID, func(exec *flowengine.Execution) {
		exec.Status = flowengine.ExecutionStatusFailed
		if execErr != nil {
			exec.Error = execErr.Error()
		}
	})
}

func (s *MemoryStore) Cancel(ctx context.Context, executionID string) (bool, error) {
	return s.finish(executionID, func(exec *flowengine.Execution) {
		exec.Status = flowengine.ExecutionStatusCancelled
	})
}

func (s *MemoryStore) Status(ctx context.Context, executionID string) (flowengine.ExecutionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, exists := s.executions[executionID]
	if !exists {
		return "", fmt.Errorf("execution %s not found", executionID)
	}
	return exec.Status, nil
}

var _ flowengine.ExecutionStore = (*MemoryStore)(nil)
