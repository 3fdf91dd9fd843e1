package spastate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vishnualpha/sensuQ-sub001/internal/browser"
	"github.com/vishnualpha/sensuQ-sub001/internal/logger"
)

// ChangeType classifies the dominant delta between two snapshots.
type ChangeType string

// Change classifications, in cascade priority order.
const (
	ChangeModalOpened       ChangeType = "modal_opened"
	ChangeModalClosed       ChangeType = "modal_closed"
	ChangeRouteChange       ChangeType = "route_change"
	ChangeHashChange        ChangeType = "hash_change"
	ChangeDynamicFields     ChangeType = "dynamic_fields"
	ChangeLoginFormAppeared ChangeType = "login_form_appeared"
	ChangeContentChange     ChangeType = "content_change"
	ChangeUIChange          ChangeType = "ui_change"
	ChangeMinor             ChangeType = "minor"
	ChangeNone              ChangeType = "none"
)

// Classification is the result of comparing two snapshots. Only a
// significant result yields a virtual-page candidate.
type Classification struct {
	HasChanges  bool       `json:"hasChanges"`
	Significant bool       `json:"significant"`
	Type        ChangeType `json:"type"`
	Description string     `json:"description"`
	NewFields   []string   `json:"newFields,omitempty"`
}

// Detector captures and diffs page state snapshots.
type Detector struct {
	settleDelay time.Duration
	log         *logger.Logger
}

// NewDetector creates a detector.
func NewDetector(log *logger.Logger) *Detector {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Detector{
		settleDelay: 500 * time.Millisecond,
		log:         log.WithComponent("spastate"),
	}
}

// Capture extracts a structural snapshot of the page, restricted to
// visible elements, and seals it with a content-addressed hash.
func (d *Detector) Capture(ctx context.Context, page browser.Page, id string) (*Snapshot, error) {
	raw, err := page.Eval(ctx, captureScript)
	if err != nil {
		return nil, fmt.Errorf("capture snapshot: %w", err)
	}

	snap := &Snapshot{ID: id}
	if err := json.Unmarshal(raw, snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	snap.ID = id
	snap.ContentHash = snap.hash()
	return snap, nil
}

// WaitForSettlement gives the page a bounded grace period before any
// snapshot is taken: network idle or timeout, whichever first, plus a
// fixed extra delay to let in-flight animations land.
func (d *Detector) WaitForSettlement(ctx context.Context, page browser.Page, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if err := page.WaitIdle(ctx, timeout); err != nil {
		d.log.Debugf("Settlement wait interrupted: %v", err)
		return
	}
	select {
	case <-time.After(d.settleDelay):
	case <-ctx.Done():
	}
}

// Compare classifies the delta between two snapshots. The cascade is
// ordered and first-match-wins: several deltas can co-occur after one
// interaction, and only the dominant one should produce a graph node.
func (d *Detector) Compare(before, after *Snapshot) Classification {
	if before == nil || after == nil {
		return Classification{Type: ChangeNone}
	}
	if before.ContentHash == after.ContentHash {
		return Classification{Type: ChangeNone}
	}

	// 1. Modal opened.
	if len(before.Modals) == 0 && len(after.Modals) > 0 {
		return Classification{
			HasChanges:  true,
			Significant: true,
			Type:        ChangeModalOpened,
			Description: fmt.Sprintf("%d modal(s) appeared", len(after.Modals)),
		}
	}

	// 2. Modal closed.
	if len(before.Modals) > 0 && len(after.Modals) == 0 {
		return Classification{
			HasChanges:  true,
			Significant: true,
			Type:        ChangeModalClosed,
			Description: "modal dismissed",
		}
	}

	// 3. Route change.
	if before.Path != after.Path {
		return Classification{
			HasChanges:  true,
			Significant: true,
			Type:        ChangeRouteChange,
			Description: fmt.Sprintf("path %s -> %s", before.Path, after.Path),
		}
	}

	// 4. Hash change.
	if before.Fragment != after.Fragment && after.Fragment != "" {
		return Classification{
			HasChanges:  true,
			Significant: true,
			Type:        ChangeHashChange,
			Description: fmt.Sprintf("fragment %s -> %s", before.Fragment, after.Fragment),
		}
	}

	// 5. Dynamic fields: multi-step form reveal or collapse.
	fieldDelta := after.FieldCount() - before.FieldCount()
	if fieldDelta >= 2 || fieldDelta <= -2 {
		return Classification{
			HasChanges:  true,
			Significant: true,
			Type:        ChangeDynamicFields,
			Description: fmt.Sprintf("visible field count %d -> %d", before.FieldCount(), after.FieldCount()),
			NewFields:   newFieldKeys(before, after),
		}
	}

	// 6. Login form appeared.
	if before.Controls.PasswordFields == 0 && after.Controls.PasswordFields > 0 {
		return Classification{
			HasChanges:  true,
			Significant: true,
			Type:        ChangeLoginFormAppeared,
			Description: "password field appeared",
		}
	}

	// 7. Content change.
	if !contentEqual(before.MainContent, after.MainContent) {
		childDelta := after.MainContent.ChildCount - before.MainContent.ChildCount
		if childDelta >= 2 || childDelta <= -2 {
			return Classification{
				HasChanges:  true,
				Significant: true,
				Type:        ChangeContentChange,
				Description: fmt.Sprintf("main content children %d -> %d", before.MainContent.ChildCount, after.MainContent.ChildCount),
			}
		}
	}

	// 8. Aggregate UI shift.
	uiDelta := absDelta(before.Controls.Buttons, after.Controls.Buttons) +
		absDelta(before.Controls.Inputs, after.Controls.Inputs) +
		absDelta(before.Controls.Textareas, after.Controls.Textareas) +
		absDelta(before.Controls.Selects, after.Controls.Selects) +
		absDelta(before.Controls.Forms, after.Controls.Forms)
	if uiDelta >= 3 {
		return Classification{
			HasChanges:  true,
			Significant: true,
			Type:        ChangeUIChange,
			Description: fmt.Sprintf("aggregate control delta %d", uiDelta),
		}
	}

	return Classification{
		HasChanges:  true,
		Significant: false,
		Type:        ChangeMinor,
		Description: "below materialization thresholds",
	}
}

// newFieldKeys returns identifiers of fields present after but not before.
func newFieldKeys(before, after *Snapshot) []string {
	seen := make(map[string]bool, len(before.Fields))
	for _, f := range before.Fields {
		seen[f.Key()] = true
	}
	var out []string
	for _, f := range after.Fields {
		if !seen[f.Key()] {
			out = append(out, f.Key())
		}
	}
	return out
}

func contentEqual(a, b ContentSignature) bool {
	if a.Tag != b.Tag || a.LeadText != b.LeadText || a.ChildCount != b.ChildCount {
		return false
	}
	if len(a.Classes) != len(b.Classes) {
		return false
	}
	for i := range a.Classes {
		if a.Classes[i] != b.Classes[i] {
			return false
		}
	}
	return true
}

func absDelta(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
