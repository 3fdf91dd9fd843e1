package collab

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/vishnualpha/sensuQ-sub001/internal/navigator"
)

// fakeClient returns scripted completions.
type fakeClient struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeClient) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", fmt.Errorf("no scripted response")
	}
	r := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return r, nil
}

func TestSanitizeCoercesMalformedIdentification(t *testing.T) {
	ident := &PageIdentification{
		ScreenName: "  ",
		PageType:   "Mystery",
		InteractiveElements: []IdentifiedElement{
			{Selector: "#ok", ElementType: "BUTTON"},
			{Selector: "", ElementType: "link"},
			{Selector: "#weird", ElementType: "hologram"},
		},
	}

	out := Sanitize(ident, "https://app.example.com/orders")
	if out.ScreenName != "orders" {
		t.Errorf("ScreenName = %q, want orders", out.ScreenName)
	}
	if len(out.InteractiveElements) != 2 {
		t.Fatalf("elements = %d, want 2 (empty selector dropped)", len(out.InteractiveElements))
	}
	if out.InteractiveElements[0].ElementType != "button" {
		t.Errorf("element type = %q, want lowercased button", out.InteractiveElements[0].ElementType)
	}
	if out.InteractiveElements[1].ElementType != "button" {
		t.Errorf("unknown type coerced to %q, want button", out.InteractiveElements[1].ElementType)
	}
}

func TestSanitizeNilIdentification(t *testing.T) {
	out := Sanitize(nil, "https://app.example.com/")
	if out == nil || out.PageType != "unknown" {
		t.Errorf("Sanitize(nil) = %+v", out)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"bare array", `[1, 2]`, `[1, 2]`},
		{"prose wrapped", `Here you go: {"a": "b"} hope that helps`, `{"a": "b"}`},
		{"markdown fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"nested brackets", `[{"steps": [1, 2]}]`, `[{"steps": [1, 2]}]`},
		{"braces in strings", `{"msg": "a } b"}`, `{"msg": "a } b"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.input)
			if err != nil {
				t.Fatalf("extractJSON: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := extractJSON("no json here"); err == nil {
		t.Error("extractJSON accepted input without JSON")
	}
}

func TestLLMIdentify(t *testing.T) {
	client := &fakeClient{responses: []string{`The page looks like this:
{"screen_name": "Order History", "page_type": "list", "interactive_elements": [
  {"selector": "#export", "element_type": "button", "text": "Export"}
]}`}}

	c := NewLLMCollaborator(client, nil)
	ident, err := c.Identify(context.Background(), nil, "<html></html>", "https://app.example.com/orders")
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if ident.ScreenName != "Order History" || ident.PageType != "list" {
		t.Errorf("identification = %+v", ident)
	}
	if len(ident.InteractiveElements) != 1 {
		t.Errorf("elements = %d, want 1", len(ident.InteractiveElements))
	}
}

func TestLLMGenerateScenariosAndMarkExecuted(t *testing.T) {
	response := `[
  {"name": "submit search", "goal": "search works", "steps": [
    {"action": "fill", "selector": "#q", "value": "widgets"},
    {"action": "click", "selector": "#go"}
  ]},
  {"name": "empty scenario", "steps": []}
]`
	client := &fakeClient{responses: []string{response, response}}
	c := NewLLMCollaborator(client, nil)

	page := &PageIdentification{ScreenName: "Search", PageType: "form"}
	scenarios, err := c.GenerateScenarios(context.Background(), page, "https://app.example.com/search")
	if err != nil {
		t.Fatalf("GenerateScenarios: %v", err)
	}
	if len(scenarios) != 1 {
		t.Fatalf("scenarios = %d, want 1 (empty plan dropped)", len(scenarios))
	}
	if scenarios[0].ID == "" {
		t.Error("scenario not assigned an ID")
	}
	if scenarios[0].Steps[0].Action != navigator.ActionFill {
		t.Errorf("first step action = %s", scenarios[0].Steps[0].Action)
	}

	c.MarkExecuted(scenarios[0].ID)
	again, err := c.GenerateScenarios(context.Background(), page, "https://app.example.com/search")
	if err != nil {
		t.Fatalf("second GenerateScenarios: %v", err)
	}
	for _, sc := range again {
		if sc.ID == scenarios[0].ID {
			t.Error("executed scenario re-proposed")
		}
	}
}

func TestLLMAnalyzeFailure(t *testing.T) {
	client := &fakeClient{responses: []string{`{"revised": [
  {"action": "click", "selector": "[data-testid=\"submit\"]"}
], "reason": "button selector drifted"}`}}

	c := NewLLMCollaborator(client, nil)
	adaptation, err := c.AnalyzeFailure(context.Background(), FailureContext{
		URL:          "https://app.example.com/form",
		ScenarioName: "submit form",
		Steps:        []navigator.Step{navigator.ClickStep("#submit")},
		FailedIndex:  1,
		ErrorMessage: "element not found",
	})
	if err != nil {
		t.Fatalf("AnalyzeFailure: %v", err)
	}
	if len(adaptation.Revised) != 1 {
		t.Fatalf("revised = %d steps, want 1", len(adaptation.Revised))
	}
	if adaptation.Revised[0].Selector != `[data-testid="submit"]` {
		t.Errorf("revised selector = %q", adaptation.Revised[0].Selector)
	}
}

func TestLLMVerifyIntentAchieved(t *testing.T) {
	client := &fakeClient{responses: []string{`{"achieved": true}`}}
	c := NewLLMCollaborator(client, nil)

	ok, err := c.VerifyIntentAchieved(context.Background(), "item added to cart", "<html>Cart (1)</html>")
	if err != nil {
		t.Fatalf("VerifyIntentAchieved: %v", err)
	}
	if !ok {
		t.Error("achieved = false, want true")
	}
}

func TestLLMCircuitBreakerFailsFast(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("backend unreachable")}
	c := NewLLMCollaborator(client, nil)

	// Trip the breaker.
	for i := 0; i < 6; i++ {
		c.Identify(context.Background(), nil, "<html></html>", "https://x.example.com")
	}

	callsBefore := client.calls
	if _, err := c.Identify(context.Background(), nil, "<html></html>", "https://x.example.com"); err == nil {
		t.Fatal("Identify succeeded on open circuit")
	}
	if client.calls != callsBefore {
		t.Errorf("backend called %d more times on open circuit", client.calls-callsBefore)
	}
}

const sampleHTML = `<!DOCTYPE html>
<html><head><title>Widget Shop</title></head><body>
<h1>Widgets</h1>
<form id="search-form">
  <input type="text" name="q" placeholder="Search widgets">
  <button id="search-btn">Search</button>
</form>
<nav>
  <a href="/products">Products</a>
  <a href="/about">About us</a>
  <a href="javascript:void(0)">Noop</a>
</nav>
<input type="hidden" name="csrf" value="tok">
<select data-testid="sort-order"><option>Newest</option></select>
<input type="checkbox" aria-label="In stock only">
</body></html>`

func TestStaticIdentifier(t *testing.T) {
	ident, err := NewStaticIdentifier(nil).Identify(context.Background(), nil, sampleHTML, "https://shop.example.com/")
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if ident.ScreenName != "Widget Shop" {
		t.Errorf("ScreenName = %q, want Widget Shop", ident.ScreenName)
	}
	if ident.PageType != "form" {
		t.Errorf("PageType = %q, want form", ident.PageType)
	}

	bySelector := make(map[string]IdentifiedElement)
	for _, el := range ident.InteractiveElements {
		bySelector[el.Selector] = el
	}

	if el, ok := bySelector["#search-btn"]; !ok || el.ElementType != "button" {
		t.Errorf("search button missing or mistyped: %+v", el)
	} else {
		if el.Attributes["id"] != "search-btn" {
			t.Errorf("button attributes = %v, want id captured", el.Attributes)
		}
		if el.Priority <= bySelector[`input[name="q"]`].Priority {
			t.Errorf("button priority %d not above input priority %d",
				el.Priority, bySelector[`input[name="q"]`].Priority)
		}
	}
	if el, ok := bySelector[`input[name="q"]`]; !ok || el.ElementType != "input" {
		t.Errorf("search input missing or mistyped: %+v", el)
	} else if el.Attributes["placeholder"] != "Search widgets" {
		t.Errorf("input attributes = %v, want placeholder captured", el.Attributes)
	}
	if el, ok := bySelector[`[data-testid="sort-order"]`]; !ok || el.ElementType != "select" {
		t.Errorf("select missing or mistyped: %+v", el)
	}
	if el, ok := bySelector[`[aria-label="In stock only"]`]; !ok || el.ElementType != "checkbox" {
		t.Errorf("checkbox missing or mistyped: %+v", el)
	}
	for sel := range bySelector {
		if strings.Contains(sel, "csrf") {
			t.Error("hidden input reported as interactive")
		}
	}
	for _, el := range ident.InteractiveElements {
		if el.ElementType == "link" && strings.HasPrefix(el.Purpose, "javascript:") {
			t.Error("javascript pseudo-link reported")
		}
	}
}

func TestStaticIdentifierLoginDetection(t *testing.T) {
	html := `<html><head><title>Sign In</title></head><body>
<form><input type="text" name="user"><input type="password" name="pass"><button>Login</button></form>
</body></html>`

	ident, err := NewStaticIdentifier(nil).Identify(context.Background(), nil, html, "https://app.example.com/login")
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if ident.PageType != "login" {
		t.Errorf("PageType = %q, want login", ident.PageType)
	}
}
