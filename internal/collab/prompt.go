package collab

import (
	"encoding/json"
	"fmt"
	"strings"
)

const identifySystemPrompt = `You analyze rendered web application pages for an exploration engine.
Given page HTML and its URL, respond with ONLY a JSON object:
{
  "screen_name": "short human-readable name",
  "page_type": "one of: login, dashboard, list, detail, form, settings, landing, unknown",
  "interactive_elements": [
    {"selector": "css selector", "element_type": "button|link|input|textarea|select|checkbox|radio|form", "text": "visible label", "purpose": "what it does", "attributes": {"name": "..."}, "priority": 1}
  ]
}
"attributes" carries the element's HTML attributes; "priority" ranks elements by how likely interacting with them reveals new application state (3 = primary action, 1 = minor).
Prefer stable selectors: IDs, data-testid, aria-label, name attributes. Never invent elements not present in the HTML.`

const planSystemPrompt = `You plan interaction scenarios for a web application exploration engine.
Given a page description, respond with ONLY a JSON array of scenarios:
[
  {"name": "short name", "goal": "what the scenario verifies", "steps": [
    {"action": "click|fill|type|select|check|uncheck|waitForSelector", "selector": "css selector", "value": "input value if any"}
  ]}
]
Use the placeholder {auth_username} for username fields and {auth_password} for password fields, never literal credentials.
Propose at most 3 scenarios. Steps must only reference elements from the page description.`

const analyzeSystemPrompt = `You repair failed browser interaction steps for a web exploration engine.
Given a scenario, the index of the failed step, and the error, respond with ONLY a JSON object:
{"revised": [ {"action": "...", "selector": "...", "value": "..."} ], "reason": "one sentence"}
"revised" replaces the steps from the failed index onward. Return an empty array when no repair is viable.`

const verifySystemPrompt = `You judge whether a web interaction achieved its goal.
Given a goal and the resulting page HTML, respond with ONLY a JSON object: {"achieved": true|false}.`

func buildIdentifyPrompt(html, url string) string {
	return fmt.Sprintf("URL: %s\n\nHTML:\n%s", url, truncate(html, 30000))
}

func buildPlanPrompt(page *PageIdentification, url string) string {
	desc, _ := json.MarshalIndent(page, "", "  ")
	return fmt.Sprintf("URL: %s\n\nPage description:\n%s", url, desc)
}

func buildAnalyzePrompt(fc FailureContext) string {
	steps, _ := json.MarshalIndent(fc.Steps, "", "  ")
	return fmt.Sprintf("URL: %s\nScenario: %s\nSteps:\n%s\nFailed step index (1-based): %d\nError: %s\n\nCurrent HTML:\n%s",
		fc.URL, fc.ScenarioName, steps, fc.FailedIndex, fc.ErrorMessage, truncate(fc.HTML, 20000))
}

func buildVerifyPrompt(goal, html string) string {
	return fmt.Sprintf("Goal: %s\n\nResulting HTML:\n%s", goal, truncate(html, 20000))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// extractJSON pulls the first balanced JSON object or array out of a
// response that may wrap it in prose or markdown fences.
func extractJSON(response string) (string, error) {
	response = strings.TrimSpace(response)
	if fenced := strings.Index(response, "```"); fenced != -1 {
		rest := response[fenced+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end != -1 {
			response = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.IndexAny(response, "[{")
	if start == -1 {
		return "", fmt.Errorf("no JSON found in response")
	}

	open := response[start]
	var close byte = ']'
	if open == '{' {
		close = '}'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return response[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON in response")
}
