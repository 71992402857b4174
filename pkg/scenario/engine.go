// Package scenario implements stateful flows. Each active scenario tracks
// one current state in memory; a step fires when the scenario sits in the
// step's declared state, the step targets the request's endpoint and its
// conditions hold. Firing a step with a next state advances the scenario.
package scenario

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/virtserve/virtserve/internal/matching"
	"github.com/virtserve/virtserve/pkg/virt"
)

// Store is the slice of the repository the engine reads and writes.
type Store interface {
	ActiveScenarios(ctx context.Context) ([]*virt.Scenario, error)
	Scenario(ctx context.Context, id string) (*virt.Scenario, error)
	Steps(ctx context.Context, scenarioID string) ([]*virt.ScenarioStep, error)
	UpdateScenarioState(ctx context.Context, id, state string) error
}

// StepMatch is a fired step together with its owning scenario.
type StepMatch struct {
	ScenarioID   string
	ScenarioName string
	Step         *virt.ScenarioStep
}

type tracked struct {
	scenario *virt.Scenario
	steps    []*virt.ScenarioStep
	current  string
}

// Engine tracks scenario state. State reads and transitions are
// synchronous; the durable write of a transition runs on its own
// goroutine so the response path never waits on the store. A crash
// between the in-memory transition and the write loses that transition
// on restart.
type Engine struct {
	store  Store
	logger *slog.Logger

	mu        sync.RWMutex
	scenarios map[string]*tracked
	order     []string
}

// NewEngine creates an empty scenario engine backed by store.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		logger:    logger,
		scenarios: make(map[string]*tracked),
	}
}

// LoadAll replaces the tracked set with every active scenario, seeding
// each tracked state from the persisted current state.
func (e *Engine) LoadAll(ctx context.Context) error {
	scenarios, err := e.store.ActiveScenarios(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]*tracked, len(scenarios))
	order := make([]string, 0, len(scenarios))
	for _, sc := range scenarios {
		steps, err := e.store.Steps(ctx, sc.ID)
		if err != nil {
			return err
		}
		sort.SliceStable(steps, func(i, j int) bool {
			return steps[i].Priority < steps[j].Priority
		})
		current := sc.CurrentState
		if current == "" {
			current = sc.InitialState
		}
		next[sc.ID] = &tracked{scenario: sc, steps: steps, current: current}
		order = append(order, sc.ID)
	}

	e.mu.Lock()
	e.scenarios = next
	e.order = order
	e.mu.Unlock()

	e.logger.Info("scenario engine loaded", "scenarios", len(order))
	return nil
}

// TryMatch finds the first step that fires for a request against an
// endpoint, advancing the owning scenario's state when the step names a
// next state. Returns nil when no step fires.
func (e *Engine) TryMatch(req *virt.RequestContext, endpointID string, protocol virt.Protocol) *StepMatch {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.order {
		tr, ok := e.scenarios[id]
		if !ok {
			continue
		}
		for _, step := range tr.steps {
			if step.StateName != tr.current || step.EndpointID != endpointID {
				continue
			}
			conditions, _ := matching.DecodeConditions(step.Conditions)
			if !matching.EvaluateConditions(conditions, step.LogicMode, req, protocol) {
				continue
			}
			if step.NextState != "" && step.NextState != tr.current {
				e.transition(tr, step.NextState)
			}
			return &StepMatch{
				ScenarioID:   tr.scenario.ID,
				ScenarioName: tr.scenario.Name,
				Step:         step,
			}
		}
	}
	return nil
}

// transition updates the tracked state synchronously and hands the
// durable write to its own goroutine, detached from the request.
func (e *Engine) transition(tr *tracked, next string) {
	prev := tr.current
	tr.current = next
	e.logger.Debug("scenario transition",
		"scenario", tr.scenario.ID, "from", prev, "to", next)

	id := tr.scenario.ID
	go func() {
		if err := e.store.UpdateScenarioState(context.Background(), id, next); err != nil {
			e.logger.Error("persisting scenario state failed",
				"scenario", id, "state", next, "error", err)
		}
	}()
}

// Reset returns a scenario to its initial state, both tracked and
// persisted.
func (e *Engine) Reset(ctx context.Context, scenarioID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tr, ok := e.scenarios[scenarioID]
	if !ok {
		sc, err := e.store.Scenario(ctx, scenarioID)
		if err != nil {
			return err
		}
		if sc == nil {
			return nil
		}
		return e.store.UpdateScenarioState(ctx, scenarioID, sc.InitialState)
	}

	tr.current = tr.scenario.InitialState
	return e.store.UpdateScenarioState(ctx, scenarioID, tr.current)
}

// GetCurrentState returns the tracked in-memory state, independent of
// persistence latency.
func (e *Engine) GetCurrentState(scenarioID string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tr, ok := e.scenarios[scenarioID]
	if !ok {
		return "", false
	}
	return tr.current, true
}
