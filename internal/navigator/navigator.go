// Package navigator replays recorded action sequences against a fresh
// browser session to reach a previously discovered page state.
package navigator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vishnualpha/sensuQ-sub001/internal/browser"
	"github.com/vishnualpha/sensuQ-sub001/internal/logger"
)

// Action identifies a primitive browser step.
type Action string

// Primitive step actions.
const (
	ActionGoto             Action = "goto"
	ActionClick            Action = "click"
	ActionFill             Action = "fill"
	ActionType             Action = "type"
	ActionSelect           Action = "select"
	ActionCheck            Action = "check"
	ActionUncheck          Action = "uncheck"
	ActionWait             Action = "wait"
	ActionWaitForSelector  Action = "waitForSelector"
	ActionPressEnter       Action = "pressEnter"
	ActionClearBrowserData Action = "clearBrowserData"
)

// Reserved placeholder values resolved against configured credentials at
// execution time, so a recorded path replays under any credential set.
const (
	PlaceholderUsername = "{auth_username}"
	PlaceholderPassword = "{auth_password}"
)

// Step is one primitive browser action in a replay log.
type Step struct {
	Action   Action        `json:"action"`
	URL      string        `json:"url,omitempty"`
	Selector string        `json:"selector,omitempty"`
	Value    string        `json:"value,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// GotoStep builds a navigation step.
func GotoStep(url string) Step {
	return Step{Action: ActionGoto, URL: url}
}

// ClickStep builds a click step.
func ClickStep(selector string) Step {
	return Step{Action: ActionClick, Selector: selector}
}

// FillStep builds a fill step.
func FillStep(selector, value string) Step {
	return Step{Action: ActionFill, Selector: selector, Value: value}
}

// TypeStep builds a keystroke-typing step.
func TypeStep(selector, value string) Step {
	return Step{Action: ActionType, Selector: selector, Value: value}
}

// SelectStep builds a select-option step.
func SelectStep(selector, value string) Step {
	return Step{Action: ActionSelect, Selector: selector, Value: value}
}

// CheckStep builds a checkbox-check step.
func CheckStep(selector string) Step {
	return Step{Action: ActionCheck, Selector: selector}
}

// UncheckStep builds a checkbox-uncheck step.
func UncheckStep(selector string) Step {
	return Step{Action: ActionUncheck, Selector: selector}
}

// WaitStep builds a fixed-duration wait step.
func WaitStep(d time.Duration) Step {
	return Step{Action: ActionWait, Duration: d}
}

// WaitForSelectorStep builds a wait-until-visible step.
func WaitForSelectorStep(selector string, timeout time.Duration) Step {
	return Step{Action: ActionWaitForSelector, Selector: selector, Timeout: timeout}
}

// PressEnterStep builds an Enter-keypress step.
func PressEnterStep(selector string) Step {
	return Step{Action: ActionPressEnter, Selector: selector}
}

// ClearBrowserDataStep builds a session-clearing step.
func ClearBrowserDataStep() Step {
	return Step{Action: ActionClearBrowserData}
}

// AppendStep returns a new slice holding parent's steps plus one more.
// The parent log is never mutated; multiple children branch from it.
func AppendStep(parent []Step, step Step) []Step {
	out := make([]Step, len(parent)+1)
	copy(out, parent)
	out[len(parent)] = step
	return out
}

// Credentials are the values substituted for the reserved placeholders.
type Credentials struct {
	Username string
	Password string
}

// StepError reports the 1-based index of the step that aborted a replay.
// Callers treat it as "this worker cannot reach this node".
type StepError struct {
	Index int
	Step  Step
	Err   error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index, e.Step.Action, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Navigator executes replay logs against a page.
type Navigator struct {
	creds Credentials
	log   *logger.Logger
}

// New creates a navigator with the given credential configuration.
func New(creds Credentials, log *logger.Logger) *Navigator {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Navigator{
		creds: creds,
		log:   log.WithComponent("navigator"),
	}
}

// Execute runs steps strictly in order against page. The first failing
// step aborts the remainder and is surfaced as a *StepError with its
// 1-based index. Cancellation is checked between steps.
func (n *Navigator) Execute(ctx context.Context, page browser.Page, steps []Step) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Index: i + 1, Step: step, Err: err}
		}
		if err := n.executeStep(ctx, page, step); err != nil {
			return &StepError{Index: i + 1, Step: step, Err: err}
		}
	}
	return nil
}

// executeStep dispatches one primitive step.
func (n *Navigator) executeStep(ctx context.Context, page browser.Page, step Step) error {
	switch step.Action {
	case ActionGoto:
		return page.Navigate(ctx, step.URL)
	case ActionClick:
		return page.Click(ctx, step.Selector)
	case ActionFill:
		return page.Fill(ctx, step.Selector, n.Resolve(step.Value))
	case ActionType:
		return page.Type(ctx, step.Selector, n.Resolve(step.Value))
	case ActionSelect:
		return page.Select(ctx, step.Selector, step.Value)
	case ActionCheck:
		return page.SetChecked(ctx, step.Selector, true)
	case ActionUncheck:
		return page.SetChecked(ctx, step.Selector, false)
	case ActionWait:
		select {
		case <-time.After(step.Duration):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case ActionWaitForSelector:
		return page.WaitVisible(ctx, step.Selector, step.Timeout)
	case ActionPressEnter:
		return page.PressEnter(ctx, step.Selector)
	case ActionClearBrowserData:
		return page.ClearBrowserData(ctx)
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

// Resolve substitutes the reserved credential placeholders. With no
// credentials configured the literal placeholder passes through; the
// step keeps running so unauthenticated replays stay deterministic.
func (n *Navigator) Resolve(value string) string {
	if !strings.Contains(value, "{auth_") {
		return value
	}
	if n.creds.Username != "" {
		value = strings.ReplaceAll(value, PlaceholderUsername, n.creds.Username)
	}
	if n.creds.Password != "" {
		value = strings.ReplaceAll(value, PlaceholderPassword, n.creds.Password)
	}
	if strings.Contains(value, "{auth_") {
		n.log.Warnf("Unresolved credential placeholder in step value")
	}
	return value
}
