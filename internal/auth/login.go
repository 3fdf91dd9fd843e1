// Package auth detects login forms on rendered pages and drives the
// form-login flow. Recorded login steps carry credential placeholders,
// never literal values.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vishnualpha/sensuQ-sub001/internal/browser"
	"github.com/vishnualpha/sensuQ-sub001/internal/logger"
	"github.com/vishnualpha/sensuQ-sub001/internal/navigator"
)

// LoginForm describes a detected login form by its field selectors.
// SubmitSelector may be empty; submission then falls back to pressing
// Enter in the password field.
type LoginForm struct {
	UsernameSelector string `json:"usernameSelector"`
	PasswordSelector string `json:"passwordSelector"`
	SubmitSelector   string `json:"submitSelector"`
	Semantic         bool   `json:"semantic"`
}

// Handler detects and completes login forms.
type Handler struct {
	settleDelay time.Duration
	log         *logger.Logger
}

// NewHandler creates a login handler.
func NewHandler(log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		settleDelay: time.Second,
		log:         log.WithComponent("auth"),
	}
}

// detectScript finds a visible password field plus its companion
// username field and submit control, building the most stable selector
// available for each. Semantic marks forms whose attributes or nearby
// text identify them as login rather than registration.
const detectScript = `() => {
	function visible(el) {
		if (!el) return false;
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) return false;
		const style = window.getComputedStyle(el);
		return style.display !== 'none' && style.visibility !== 'hidden';
	}

	function selectorFor(el, tag) {
		if (el.id) return '#' + CSS.escape(el.id);
		const testid = el.getAttribute('data-testid');
		if (testid) return '[data-testid="' + testid + '"]';
		const name = el.getAttribute('name');
		if (name) return tag + '[name="' + name + '"]';
		const type = el.getAttribute('type');
		if (type) return tag + '[type="' + type + '"]';
		return tag;
	}

	const passwords = Array.from(document.querySelectorAll('input[type="password"]')).filter(visible);
	if (passwords.length === 0) return { found: false };
	const password = passwords[0];

	const form = password.closest('form') || document;
	const userHints = /user|email|login|account/i;

	let username = null;
	for (const el of form.querySelectorAll('input[type="email"], input[type="text"], input:not([type])')) {
		if (!visible(el)) continue;
		const attrs = (el.name || '') + ' ' + (el.id || '') + ' ' + (el.placeholder || '') + ' ' + (el.type || '');
		if (userHints.test(attrs) || el.type === 'email') { username = el; break; }
		if (!username) username = el;
	}

	let submit = form.querySelector('button[type="submit"], input[type="submit"]');
	if (!submit || !visible(submit)) {
		submit = null;
		for (const el of form.querySelectorAll('button, [role="button"]')) {
			if (visible(el) && /log\s*in|sign\s*in|submit|continue/i.test(el.textContent || '')) { submit = el; break; }
		}
	}

	const formText = (form.textContent || '').substring(0, 500);
	const semantic = /log\s*in|sign\s*in/i.test(formText) ||
		/login|signin/i.test(window.location.pathname);

	return {
		found: semantic || (username !== null && submit !== null),
		usernameSelector: username ? selectorFor(username, 'input') : '',
		passwordSelector: selectorFor(password, 'input'),
		submitSelector: submit ? selectorFor(submit, submit.tagName.toLowerCase()) : '',
		semantic: semantic
	};
}`

// DetectLoginForm inspects the page for a submittable login form. A
// form qualifies when it has at least one visible password field and
// either semantic login markers or a username field with a submit
// control. Hidden password fields never trigger detection.
func (h *Handler) DetectLoginForm(ctx context.Context, page browser.Page) (*LoginForm, bool, error) {
	raw, err := page.Eval(ctx, detectScript)
	if err != nil {
		return nil, false, fmt.Errorf("detect login form: %w", err)
	}

	var result struct {
		Found bool `json:"found"`
		LoginForm
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("decode detection result: %w", err)
	}
	if !result.Found || result.PasswordSelector == "" {
		return nil, false, nil
	}
	if !result.Semantic && result.UsernameSelector == "" {
		return nil, false, nil
	}

	form := result.LoginForm
	return &form, true, nil
}

// fieldSettleDelay separates the fills so field-level validation and
// reactive form state keep up with the input.
const fieldSettleDelay = 500 * time.Millisecond

// BuildSteps produces the replayable login step sequence for a detected
// form, with placeholder values. Semantic forms without a recognizable
// username field get the password fill alone.
func BuildSteps(form *LoginForm) []navigator.Step {
	var steps []navigator.Step
	if form.UsernameSelector != "" {
		steps = append(steps,
			navigator.FillStep(form.UsernameSelector, navigator.PlaceholderUsername),
			navigator.WaitStep(fieldSettleDelay),
		)
	}
	steps = append(steps,
		navigator.FillStep(form.PasswordSelector, navigator.PlaceholderPassword),
		navigator.WaitStep(fieldSettleDelay),
	)
	if form.SubmitSelector != "" {
		steps = append(steps, navigator.ClickStep(form.SubmitSelector))
	} else {
		steps = append(steps, navigator.PressEnterStep(form.PasswordSelector))
	}
	return steps
}

// PerformLogin fills and submits the form with creds, waits for the
// page to settle, and verifies the form is gone. On success it returns
// the placeholder step sequence for the page's replay path.
func (h *Handler) PerformLogin(ctx context.Context, page browser.Page, form *LoginForm, creds navigator.Credentials) ([]navigator.Step, error) {
	steps := BuildSteps(form)

	nav := navigator.New(creds, h.log)
	if err := nav.Execute(ctx, page, steps); err != nil {
		return nil, fmt.Errorf("submit login form: %w", err)
	}

	_ = page.WaitIdle(ctx, 5*time.Second)
	select {
	case <-time.After(h.settleDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ok, err := h.verifyLoggedIn(ctx, page)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("login form still present after submit")
	}

	h.log.Info("Login form submitted and form dismissed")
	return steps, nil
}

// verifyLoggedIn treats the disappearance of all visible password
// fields as success. Wrong credentials leave the form (and usually an
// error banner) in place.
func (h *Handler) verifyLoggedIn(ctx context.Context, page browser.Page) (bool, error) {
	raw, err := page.Eval(ctx, `() => {
		let n = 0;
		document.querySelectorAll('input[type="password"]').forEach(el => {
			const rect = el.getBoundingClientRect();
			const style = window.getComputedStyle(el);
			if (rect.width > 0 && rect.height > 0 && style.display !== 'none' && style.visibility !== 'hidden') n++;
		});
		return n;
	}`)
	if err != nil {
		return false, fmt.Errorf("verify login: %w", err)
	}

	var count int
	if err := json.Unmarshal(raw, &count); err != nil {
		return false, fmt.Errorf("decode password count: %w", err)
	}
	return count == 0, nil
}
