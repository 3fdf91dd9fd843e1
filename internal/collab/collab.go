// Package collab defines the external collaborator seams of the
// exploration engine: element identification, scenario planning, and
// failure adaptation. The engine treats every collaborator as
// unreliable; malformed or failed responses degrade to empty results
// rather than aborting a crawl.
package collab

import (
	"context"
	"strings"

	"github.com/vishnualpha/sensuQ-sub001/internal/navigator"
)

// IdentifiedElement is one actionable control reported for a page.
// Priority ranks elements for interaction probing, higher first.
type IdentifiedElement struct {
	Selector    string            `json:"selector"`
	ElementType string            `json:"element_type"`
	Text        string            `json:"text,omitempty"`
	Purpose     string            `json:"purpose,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Priority    int               `json:"priority,omitempty"`
}

// PageIdentification is the collaborator's description of a rendered page.
type PageIdentification struct {
	ScreenName          string              `json:"screen_name"`
	PageType            string              `json:"page_type"`
	InteractiveElements []IdentifiedElement `json:"interactive_elements"`
}

// ElementIdentifier inspects a rendered page and names its screen,
// classifies it, and lists its interactive elements.
type ElementIdentifier interface {
	Identify(ctx context.Context, screenshot []byte, html, url string) (*PageIdentification, error)
}

// Scenario is a multi-step interaction plan for one page.
type Scenario struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Goal     string           `json:"goal,omitempty"`
	Steps    []navigator.Step `json:"steps"`
	Executed bool             `json:"executed"`
}

// ScenarioPlanner proposes interaction scenarios for a page and tracks
// which have been executed so replanning never repeats work.
type ScenarioPlanner interface {
	GenerateScenarios(ctx context.Context, page *PageIdentification, url string) ([]*Scenario, error)
	MarkExecuted(scenarioID string)
}

// FailureContext describes a scenario step that could not execute.
type FailureContext struct {
	URL          string           `json:"url"`
	ScenarioName string           `json:"scenario_name"`
	Steps        []navigator.Step `json:"steps"`
	FailedIndex  int              `json:"failed_index"`
	ErrorMessage string           `json:"error_message"`
	HTML         string           `json:"html,omitempty"`
}

// Adaptation is a proposed repair for a failed scenario step.
type Adaptation struct {
	// Revised replaces the remaining steps starting at the failed index.
	// Empty means the collaborator sees no viable repair.
	Revised []navigator.Step `json:"revised"`
	Reason  string           `json:"reason,omitempty"`
}

// FailureAdapter analyzes failed scenario steps and proposes revised
// continuations, and verifies whether a scenario's intent was achieved
// despite a step failure.
type FailureAdapter interface {
	AnalyzeFailure(ctx context.Context, fc FailureContext) (*Adaptation, error)
	VerifyIntentAchieved(ctx context.Context, goal, html string) (bool, error)
}

// knownElementTypes are the categories the engine understands.
var knownElementTypes = map[string]bool{
	"button":   true,
	"link":     true,
	"input":    true,
	"textarea": true,
	"select":   true,
	"checkbox": true,
	"radio":    true,
	"form":     true,
}

// Sanitize coerces a collaborator response into a usable identification:
// elements without selectors are dropped, unknown element types collapse
// to "button", and a missing screen name falls back to the URL path.
func Sanitize(ident *PageIdentification, url string) *PageIdentification {
	if ident == nil {
		return &PageIdentification{ScreenName: fallbackScreenName(url), PageType: "unknown"}
	}

	out := &PageIdentification{
		ScreenName: strings.TrimSpace(ident.ScreenName),
		PageType:   strings.TrimSpace(strings.ToLower(ident.PageType)),
	}
	if out.ScreenName == "" {
		out.ScreenName = fallbackScreenName(url)
	}
	if out.PageType == "" {
		out.PageType = "unknown"
	}

	for _, el := range ident.InteractiveElements {
		el.Selector = strings.TrimSpace(el.Selector)
		if el.Selector == "" {
			continue
		}
		el.ElementType = strings.ToLower(strings.TrimSpace(el.ElementType))
		if !knownElementTypes[el.ElementType] {
			el.ElementType = "button"
		}
		out.InteractiveElements = append(out.InteractiveElements, el)
	}
	return out
}

// fallbackScreenName derives a readable name from the URL path.
func fallbackScreenName(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 && i < len(trimmed)-1 {
		name := trimmed[i+1:]
		if !strings.Contains(name, ".") && !strings.Contains(name, ":") {
			return name
		}
	}
	return "home"
}
