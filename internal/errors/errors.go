// Package errors provides error categorization for the exploration engine.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes errors for handling decisions.
type Kind int

const (
	// Unknown is an uncategorized error.
	Unknown Kind = iota
	// Navigation represents a failure to reach or load a page.
	Navigation
	// Interaction represents an element interaction failure (click, fill).
	Interaction
	// Scenario represents a failure inside a multi-step interaction scenario.
	Scenario
	// QueueItem represents a queue item that could not be processed.
	QueueItem
	// Session represents a browser session failure (launch, reset, close).
	Session
	// Collaborator represents a vision/LLM collaborator failure.
	Collaborator
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case Navigation:
		return "navigation"
	case Interaction:
		return "interaction"
	case Scenario:
		return "scenario"
	case QueueItem:
		return "queue_item"
	case Session:
		return "session"
	case Collaborator:
		return "collaborator"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsRetryable returns whether errors of this kind should be retried.
// Only navigation failures get a retry; interaction failures go through
// self-healing instead, and collaborator failures degrade to empty results.
func (k Kind) IsRetryable() bool {
	return k == Navigation
}

// ExploreError represents a categorized exploration error.
type ExploreError struct {
	Kind      Kind
	URL       string
	Operation string
	Message   string
	Cause     error
	StepIndex int // 1-based index of the failing step, 0 if not step-related
}

// Error implements the error interface.
func (e *ExploreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s: %v",
			e.Kind.String(), e.Operation, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Kind.String(), e.Operation, e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *ExploreError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target by kind.
func (e *ExploreError) Is(target error) bool {
	t, ok := target.(*ExploreError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a new ExploreError.
func New(kind Kind, url, operation, message string, cause error) *ExploreError {
	return &ExploreError{
		Kind:      kind,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewNavigation creates a navigation error.
func NewNavigation(url string, cause error) *ExploreError {
	return New(Navigation, url, "navigate", "failed to reach page", cause)
}

// NewInteraction creates an element interaction error.
func NewInteraction(url, selector string, cause error) *ExploreError {
	return New(Interaction, url, "interact", fmt.Sprintf("element %q", selector), cause)
}

// NewScenario creates a scenario step error carrying the failing step index.
func NewScenario(url string, stepIndex int, cause error) *ExploreError {
	err := New(Scenario, url, "scenario", fmt.Sprintf("step %d failed", stepIndex), cause)
	err.StepIndex = stepIndex
	return err
}

// NewSession creates a browser session error.
func NewSession(operation string, cause error) *ExploreError {
	return New(Session, "", operation, "browser session failure", cause)
}

// NewCollaborator creates a collaborator error.
func NewCollaborator(operation string, cause error) *ExploreError {
	return New(Collaborator, "", operation, "collaborator call failed", cause)
}

// NewCancelled creates a cancelled error.
func NewCancelled(url, operation string) *ExploreError {
	return New(Cancelled, url, operation, "operation cancelled", nil)
}

// KindOf extracts the error kind from an error chain.
func KindOf(err error) Kind {
	var ee *ExploreError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return Unknown
}

// StepIndexOf extracts the failing step index from an error chain, 0 if absent.
func StepIndexOf(err error) int {
	var ee *ExploreError
	if errors.As(err, &ee) {
		return ee.StepIndex
	}
	return 0
}

// IsCancelled reports whether the error stems from context cancellation.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	var ee *ExploreError
	if errors.As(err, &ee) && ee.Kind == Cancelled {
		return true
	}
	return strings.Contains(err.Error(), "context canceled")
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ee *ExploreError
	if errors.As(err, &ee) {
		return ee.Kind.IsRetryable()
	}
	return false
}
