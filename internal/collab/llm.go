package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vishnualpha/sensuQ-sub001/internal/errors"
	"github.com/vishnualpha/sensuQ-sub001/internal/logger"
)

// LLMCollaborator implements every collaborator role over one completion
// client. A shared circuit breaker stops hammering a failing backend;
// while it is open, calls fail fast and the engine degrades to its
// heuristic fallbacks.
type LLMCollaborator struct {
	client  Client
	breaker *errors.CircuitBreaker
	log     *logger.Logger

	mu       sync.Mutex
	executed map[string]bool
	nextID   int
}

// NewLLMCollaborator wires a completion client into the collaborator roles.
func NewLLMCollaborator(client Client, log *logger.Logger) *LLMCollaborator {
	if log == nil {
		log = logger.NewDefault()
	}
	return &LLMCollaborator{
		client:   client,
		breaker:  errors.NewDefaultCircuitBreaker(),
		log:      log.WithComponent("collab"),
		executed: make(map[string]bool),
	}
}

// complete runs one guarded completion.
func (c *LLMCollaborator) complete(ctx context.Context, operation, system, user string) (string, error) {
	var response string
	err := c.breaker.Execute(func() error {
		var err error
		response, err = c.client.Complete(ctx, system, user)
		return err
	})
	if err != nil {
		return "", errors.NewCollaborator(operation, err)
	}
	return response, nil
}

// Identify asks the backend to describe the page. The screenshot is
// accepted for interface compatibility; the text backends work from HTML.
func (c *LLMCollaborator) Identify(ctx context.Context, screenshot []byte, html, url string) (*PageIdentification, error) {
	response, err := c.complete(ctx, "identify", identifySystemPrompt, buildIdentifyPrompt(html, url))
	if err != nil {
		return nil, err
	}

	raw, err := extractJSON(response)
	if err != nil {
		return nil, errors.NewCollaborator("identify", err)
	}

	var ident PageIdentification
	if err := json.Unmarshal([]byte(raw), &ident); err != nil {
		return nil, errors.NewCollaborator("identify", fmt.Errorf("decode identification: %w", err))
	}
	return Sanitize(&ident, url), nil
}

// GenerateScenarios asks the backend for interaction plans, filtering
// out any already-executed scenario by name.
func (c *LLMCollaborator) GenerateScenarios(ctx context.Context, page *PageIdentification, url string) ([]*Scenario, error) {
	response, err := c.complete(ctx, "plan", planSystemPrompt, buildPlanPrompt(page, url))
	if err != nil {
		return nil, err
	}

	raw, err := extractJSON(response)
	if err != nil {
		return nil, errors.NewCollaborator("plan", err)
	}

	var scenarios []*Scenario
	if err := json.Unmarshal([]byte(raw), &scenarios); err != nil {
		return nil, errors.NewCollaborator("plan", fmt.Errorf("decode scenarios: %w", err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*Scenario
	for _, sc := range scenarios {
		if sc == nil || len(sc.Steps) == 0 {
			continue
		}
		if sc.ID == "" {
			c.nextID++
			sc.ID = fmt.Sprintf("scenario-%d", c.nextID)
		}
		if c.executed[sc.ID] {
			continue
		}
		out = append(out, sc)
	}
	return out, nil
}

// MarkExecuted records that a scenario ran, successfully or not.
func (c *LLMCollaborator) MarkExecuted(scenarioID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executed[scenarioID] = true
}

// AnalyzeFailure asks the backend to repair a failed scenario step.
func (c *LLMCollaborator) AnalyzeFailure(ctx context.Context, fc FailureContext) (*Adaptation, error) {
	response, err := c.complete(ctx, "analyze", analyzeSystemPrompt, buildAnalyzePrompt(fc))
	if err != nil {
		return nil, err
	}

	raw, err := extractJSON(response)
	if err != nil {
		return nil, errors.NewCollaborator("analyze", err)
	}

	var adaptation Adaptation
	if err := json.Unmarshal([]byte(raw), &adaptation); err != nil {
		return nil, errors.NewCollaborator("analyze", fmt.Errorf("decode adaptation: %w", err))
	}
	return &adaptation, nil
}

// VerifyIntentAchieved asks the backend whether the goal was met despite
// a step failure.
func (c *LLMCollaborator) VerifyIntentAchieved(ctx context.Context, goal, html string) (bool, error) {
	response, err := c.complete(ctx, "verify", verifySystemPrompt, buildVerifyPrompt(goal, html))
	if err != nil {
		return false, err
	}

	raw, err := extractJSON(response)
	if err != nil {
		return false, errors.NewCollaborator("verify", err)
	}

	var verdict struct {
		Achieved bool `json:"achieved"`
	}
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return false, errors.NewCollaborator("verify", fmt.Errorf("decode verdict: %w", err))
	}
	return verdict.Achieved, nil
}

var (
	_ ElementIdentifier = (*LLMCollaborator)(nil)
	_ ScenarioPlanner   = (*LLMCollaborator)(nil)
	_ FailureAdapter    = (*LLMCollaborator)(nil)
)
