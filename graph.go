package flowengine

import "sort"

// stepGraph is the adjacency view of a workflow definition used for
// registration-time analysis. Traversal itself works on the definition
// directly; this only answers structural questions.
type stepGraph struct {
	steps    map[string]*WorkflowStep
	incoming map[string]int
	order    []string
}

// newStepGraph builds the graph view from a definition
func newStepGraph(def *WorkflowDefinition) *stepGraph {
	g := &stepGraph{
		steps:    make(map[string]*WorkflowStep, len(def.Steps)),
		incoming: make(map[string]int, len(def.Steps)),
	}
	for _, step := range def.Steps {
		g.steps[step.ID] = step
		g.order = append(g.order, step.ID)
	}
	for _, step := range def.Steps {
		for _, next := range step.NextSteps {
			g.incoming[next]++
		}
		// Containment counts as an incoming edge: a loop's inner step or
		// a parallel step's children are entered through their container,
		// never as workflow entry steps.
		for _, child := range childRefs(step) {
			g.incoming[child]++
		}
	}
	return g
}

// childRefs returns the step ids a container step runs from its config
func childRefs(step *WorkflowStep) []string {
	if step.Config == nil {
		return nil
	}
	switch step.Type {
	case StepTypeLoop:
		if id, ok := step.Config["step"].(string); ok && id != "" {
			return []string{id}
		}
	case StepTypeParallel:
		switch ids := step.Config["steps"].(type) {
		case []string:
			return ids
		case []any:
			var out []string
			for _, v := range ids {
				if id, ok := v.(string); ok {
					out = append(out, id)
				}
			}
			return out
		}
	}
	return nil
}

// EntrySteps returns the ids of steps with no incoming edge, in
// definition order
func (g *stepGraph) EntrySteps() []string {
	var entries []string
	for _, id := range g.order {
		if g.incoming[id] == 0 {
			entries = append(entries, id)
		}
	}
	return entries
}

// ConvergentSteps returns step ids reachable from two or more incoming
// edges. Such steps execute once per edge, so they are flagged at
// registration instead of being silently deduplicated.
func (g *stepGraph) ConvergentSteps() []string {
	var convergent []string
	for id, n := range g.incoming {
		if n > 1 {
			convergent = append(convergent, id)
		}
	}
	sort.Strings(convergent)
	return convergent
}

// HasCycle performs DFS to detect a step that is its own ancestor
func (g *stepGraph) HasCycle() bool {
	visited := make(map[string]bool, len(g.steps))
	recStack := make(map[string]bool, len(g.steps))

	for id := range g.steps {
		if !visited[id] {
			if g.hasCycle(id, visited, recStack) {
				return true
			}
		}
	}
	return false
}

func (g *stepGraph) hasCycle(id string, visited, recStack map[string]bool) bool {
	visited[id] = true
	recStack[id] = true

	if step, ok := g.steps[id]; ok {
		for _, next := range step.NextSteps {
			if !visited[next] {
				if g.hasCycle(next, visited, recStack) {
					return true
				}
			} else if recStack[next] {
				return true
			}
		}
	}

	recStack[id] = false
	return false
}

// DanglingRefs returns nextStep references that name no registered step
func (g *stepGraph) DanglingRefs() []string {
	var dangling []string
	seen := make(map[string]bool)
	for _, id := range g.order {
		refs := append([]string{}, g.steps[id].NextSteps...)
		refs = append(refs, childRefs(g.steps[id])...)
		for _, next := range refs {
			if _, ok := g.steps[next]; !ok && !seen[next] {
				seen[next] = true
				dangling = append(dangling, next)
			}
		}
	}
	sort.Strings(dangling)
	return dangling
}
