// Package spastate captures structural snapshots of a page and
// classifies the delta between two snapshots, so that SPA state changes
// that never touch the URL still become first-class graph nodes.
package spastate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ContentSignature fingerprints the main content container.
type ContentSignature struct {
	Tag        string   `json:"tag"`
	Classes    []string `json:"classes"`
	LeadText   string   `json:"leadText"`
	ChildCount int      `json:"childCount"`
}

// ControlCounts partitions visible interactive controls by category.
type ControlCounts struct {
	Buttons        int `json:"buttons"`
	Links          int `json:"links"`
	Inputs         int `json:"inputs"`
	Textareas      int `json:"textareas"`
	Selects        int `json:"selects"`
	Forms          int `json:"forms"`
	PasswordFields int `json:"passwordFields"`
	EmailFields    int `json:"emailFields"`
}

// FieldSignature identifies one visible form field.
type FieldSignature struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder"`
}

// Key returns a stable identity string for the field.
func (f FieldSignature) Key() string {
	return f.Name + "|" + f.Type + "|" + f.ID + "|" + f.Placeholder
}

// Snapshot is a structural fingerprint of a page at an instant.
// Ephemeral: held only long enough to diff against a later snapshot.
type Snapshot struct {
	ID          string           `json:"id"`
	Path        string           `json:"path"`
	Fragment    string           `json:"fragment"`
	Title       string           `json:"title"`
	MainContent ContentSignature `json:"mainContent"`
	Modals      []string         `json:"modals"`
	Controls    ControlCounts    `json:"controls"`
	Fields      []FieldSignature `json:"fields"`
	ContentHash string           `json:"contentHash"`
}

// FieldCount returns the number of captured visible form fields.
func (s *Snapshot) FieldCount() int {
	return len(s.Fields)
}

// hash computes the content-addressed identity over normalized fields.
// Capturing twice on an unchanged DOM must yield the same hash, so the
// serialization sorts everything unordered.
func (s *Snapshot) hash() string {
	var b strings.Builder
	fmt.Fprintf(&b, "path=%s;frag=%s;title=%s;", s.Path, s.Fragment, s.Title)
	fmt.Fprintf(&b, "main=%s.%s:%q:%d;",
		s.MainContent.Tag,
		strings.Join(s.MainContent.Classes, "."),
		s.MainContent.LeadText,
		s.MainContent.ChildCount)

	modals := append([]string(nil), s.Modals...)
	sort.Strings(modals)
	fmt.Fprintf(&b, "modals=%s;", strings.Join(modals, ","))

	c := s.Controls
	fmt.Fprintf(&b, "controls=%d,%d,%d,%d,%d,%d,%d,%d;",
		c.Buttons, c.Links, c.Inputs, c.Textareas, c.Selects, c.Forms,
		c.PasswordFields, c.EmailFields)

	keys := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		keys = append(keys, f.Key())
	}
	sort.Strings(keys)
	fmt.Fprintf(&b, "fields=%s", strings.Join(keys, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// StateIdentifier derives the virtual-page identity from a snapshot.
// Keyed purely by content hash so the same SPA state reached via two
// different triggers collapses to one graph node.
func StateIdentifier(s *Snapshot) string {
	return "state-" + s.ContentHash[:12]
}

// captureScript extracts the snapshot fields in one evaluation. The
// visibility predicate mirrors what a user can see: laid out, not
// display:none, not visibility:hidden, opacity above 0.1.
const captureScript = `() => {
	function visible(el) {
		if (!el) return false;
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) return false;
		const style = window.getComputedStyle(el);
		if (style.display === 'none') return false;
		if (style.visibility === 'hidden') return false;
		if (parseFloat(style.opacity) <= 0.1) return false;
		return true;
	}

	function countVisible(selector) {
		let n = 0;
		document.querySelectorAll(selector).forEach(el => { if (visible(el)) n++; });
		return n;
	}

	const main = document.querySelector('main, [role="main"], #root, #app, .main-content, body');
	let mainContent = { tag: '', classes: [], leadText: '', childCount: 0 };
	if (main) {
		mainContent = {
			tag: main.tagName.toLowerCase(),
			classes: Array.from(main.classList).slice(0, 3),
			leadText: (main.textContent || '').trim().substring(0, 80),
			childCount: main.children.length
		};
	}

	const modalSelectors = '[role="dialog"], [aria-modal="true"], .modal, .dialog, .popup, .overlay, [class*="modal"]';
	const modals = [];
	document.querySelectorAll(modalSelectors).forEach(el => {
		if (!visible(el)) return;
		const sig = el.tagName.toLowerCase() + '.' +
			Array.from(el.classList).slice(0, 2).join('.') + ':' +
			(el.textContent || '').trim().substring(0, 40);
		if (!modals.includes(sig)) modals.push(sig);
	});

	const controls = {
		buttons: countVisible('button, [role="button"], input[type="button"], input[type="submit"]'),
		links: countVisible('a[href]'),
		inputs: countVisible('input[type="text"], input:not([type])'),
		textareas: countVisible('textarea'),
		selects: countVisible('select'),
		forms: countVisible('form'),
		passwordFields: countVisible('input[type="password"]'),
		emailFields: countVisible('input[type="email"]')
	};

	const fields = [];
	document.querySelectorAll('input, textarea, select').forEach(el => {
		if (fields.length >= 20) return;
		if (!visible(el)) return;
		fields.push({
			name: el.getAttribute('name') || '',
			type: el.getAttribute('type') || el.tagName.toLowerCase(),
			id: el.id || '',
			placeholder: el.getAttribute('placeholder') || ''
		});
	});

	return {
		path: window.location.pathname,
		fragment: window.location.hash,
		title: document.title,
		mainContent: mainContent,
		modals: modals,
		controls: controls,
		fields: fields
	};
}`
