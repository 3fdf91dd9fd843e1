package navigator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

// call records one page interaction.
type call struct {
	method   string
	selector string
	value    string
}

// scriptedPage records interactions and fails on a chosen selector.
type scriptedPage struct {
	calls        []call
	failSelector string
}

func (p *scriptedPage) record(method, selector, value string) error {
	p.calls = append(p.calls, call{method, selector, value})
	if p.failSelector != "" && selector == p.failSelector {
		return fmt.Errorf("selector %q not found", selector)
	}
	return nil
}

func (p *scriptedPage) Navigate(ctx context.Context, url string) error {
	return p.record("navigate", url, "")
}
func (p *scriptedPage) URL(ctx context.Context) (string, error)   { return "", nil }
func (p *scriptedPage) Title(ctx context.Context) (string, error) { return "", nil }
func (p *scriptedPage) HTML(ctx context.Context) (string, error)  { return "", nil }
func (p *scriptedPage) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, nil
}
func (p *scriptedPage) Eval(ctx context.Context, js string) (json.RawMessage, error) {
	return nil, nil
}
func (p *scriptedPage) Click(ctx context.Context, selector string) error {
	return p.record("click", selector, "")
}
func (p *scriptedPage) Fill(ctx context.Context, selector, value string) error {
	return p.record("fill", selector, value)
}
func (p *scriptedPage) Type(ctx context.Context, selector, value string) error {
	return p.record("type", selector, value)
}
func (p *scriptedPage) Select(ctx context.Context, selector, value string) error {
	return p.record("select", selector, value)
}
func (p *scriptedPage) SetChecked(ctx context.Context, selector string, checked bool) error {
	return p.record("setChecked", selector, fmt.Sprintf("%t", checked))
}
func (p *scriptedPage) PressEnter(ctx context.Context, selector string) error {
	return p.record("pressEnter", selector, "")
}
func (p *scriptedPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return p.record("waitVisible", selector, "")
}
func (p *scriptedPage) WaitIdle(ctx context.Context, timeout time.Duration) error {
	return nil
}
func (p *scriptedPage) ClearBrowserData(ctx context.Context) error {
	return p.record("clearBrowserData", "", "")
}

func TestExecuteRunsStepsInOrder(t *testing.T) {
	page := &scriptedPage{}
	n := New(Credentials{}, nil)

	steps := []Step{
		GotoStep("https://app.example.com"),
		ClickStep("#menu"),
		FillStep("#search", "widgets"),
		SelectStep("#sort", "newest"),
		CheckStep("#in-stock"),
	}
	if err := n.Execute(context.Background(), page, steps); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := []call{
		{"navigate", "https://app.example.com", ""},
		{"click", "#menu", ""},
		{"fill", "#search", "widgets"},
		{"select", "#sort", "newest"},
		{"setChecked", "#in-stock", "true"},
	}
	if len(page.calls) != len(want) {
		t.Fatalf("got %d calls, want %d", len(page.calls), len(want))
	}
	for i := range want {
		if page.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, page.calls[i], want[i])
		}
	}
}

func TestExecuteAbortsOnFirstFailure(t *testing.T) {
	page := &scriptedPage{failSelector: "#missing"}
	n := New(Credentials{}, nil)

	steps := []Step{
		GotoStep("https://app.example.com"),
		ClickStep("#missing"),
		ClickStep("#never-reached"),
	}
	err := n.Execute(context.Background(), page, steps)
	if err == nil {
		t.Fatal("Execute succeeded, want step error")
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("error type = %T, want *StepError", err)
	}
	if stepErr.Index != 2 {
		t.Errorf("Index = %d, want 2", stepErr.Index)
	}
	if len(page.calls) != 2 {
		t.Errorf("calls after failure = %d, want 2", len(page.calls))
	}
}

func TestExecuteHonorsCancellation(t *testing.T) {
	page := &scriptedPage{}
	n := New(Credentials{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Execute(ctx, page, []Step{GotoStep("https://app.example.com")})
	if err == nil {
		t.Fatal("Execute succeeded under cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled in chain", err)
	}
	if len(page.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(page.calls))
	}
}

func TestCredentialPlaceholderResolution(t *testing.T) {
	page := &scriptedPage{}
	n := New(Credentials{Username: "alice", Password: "s3cret"}, nil)

	steps := []Step{
		FillStep("#username", PlaceholderUsername),
		FillStep("#password", PlaceholderPassword),
		FillStep("#comment", "plain text"),
	}
	if err := n.Execute(context.Background(), page, steps); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if page.calls[0].value != "alice" {
		t.Errorf("username value = %q, want alice", page.calls[0].value)
	}
	if page.calls[1].value != "s3cret" {
		t.Errorf("password value = %q, want s3cret", page.calls[1].value)
	}
	if page.calls[2].value != "plain text" {
		t.Errorf("plain value = %q, mangled by resolution", page.calls[2].value)
	}
}

func TestUnresolvedPlaceholderPassesThrough(t *testing.T) {
	n := New(Credentials{}, nil)
	if got := n.Resolve(PlaceholderUsername); got != PlaceholderUsername {
		t.Errorf("Resolve = %q, want literal placeholder", got)
	}
}

func TestStepsNeverStorePlaintextCredentials(t *testing.T) {
	step := FillStep("#password", PlaceholderPassword)
	data, err := json.Marshal(step)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Step
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Value != PlaceholderPassword {
		t.Errorf("persisted value = %q, want placeholder", decoded.Value)
	}
}

func TestAppendStepDoesNotMutateParent(t *testing.T) {
	parent := []Step{GotoStep("https://app.example.com"), ClickStep("#a")}
	childA := AppendStep(parent, ClickStep("#b"))
	childB := AppendStep(parent, ClickStep("#c"))

	if len(parent) != 2 {
		t.Fatalf("parent length changed to %d", len(parent))
	}
	if childA[2].Selector != "#b" || childB[2].Selector != "#c" {
		t.Errorf("children share backing array: %v %v", childA[2], childB[2])
	}
}

func TestExecuteUnknownAction(t *testing.T) {
	n := New(Credentials{}, nil)
	err := n.Execute(context.Background(), &scriptedPage{}, []Step{{Action: "teleport"}})
	if err == nil {
		t.Fatal("Execute accepted unknown action")
	}
}
