package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/vishnualpha/sensuQ-sub001/internal/logger"
)

// maxStaticElements caps how many controls the static identifier reports
// for one page.
const maxStaticElements = 50

// StaticIdentifier is the built-in, offline element identifier. It
// parses the page HTML directly, so runs work without any LLM backend
// configured, at the cost of no semantic naming.
type StaticIdentifier struct {
	log *logger.Logger
}

// NewStaticIdentifier creates the heuristic identifier.
func NewStaticIdentifier(log *logger.Logger) *StaticIdentifier {
	if log == nil {
		log = logger.NewDefault()
	}
	return &StaticIdentifier{log: log.WithComponent("static-identifier")}
}

// Identify parses html and reports the page's controls. The screenshot
// is ignored; this identifier is purely structural.
func (s *StaticIdentifier) Identify(ctx context.Context, screenshot []byte, html, url string) (*PageIdentification, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	ident := &PageIdentification{
		ScreenName: screenName(doc, url),
		PageType:   classifyPage(doc, url),
	}

	seen := make(map[string]bool)
	add := func(el IdentifiedElement) {
		if len(ident.InteractiveElements) >= maxStaticElements {
			return
		}
		if el.Selector == "" || seen[el.Selector] {
			return
		}
		seen[el.Selector] = true
		ident.InteractiveElements = append(ident.InteractiveElements, el)
	}

	doc.Find("button, input[type=submit], input[type=button], [role=button]").Each(func(i int, sel *goquery.Selection) {
		add(IdentifiedElement{
			Selector:    stableSelector(sel, "button", i),
			ElementType: "button",
			Text:        elementText(sel),
			Attributes:  attributesOf(sel),
			Priority:    3,
		})
	})

	doc.Find("a[href]").Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" || strings.HasPrefix(href, "javascript:") {
			return
		}
		add(IdentifiedElement{
			Selector:    stableSelector(sel, "a", i),
			ElementType: "link",
			Text:        elementText(sel),
			Purpose:     href,
			Attributes:  attributesOf(sel),
			Priority:    2,
		})
	})

	doc.Find("input, textarea, select").Each(func(i int, sel *goquery.Selection) {
		typ, _ := sel.Attr("type")
		typ = strings.ToLower(typ)
		switch typ {
		case "hidden", "submit", "button":
			return
		}

		elementType := "input"
		switch {
		case sel.Is("textarea"):
			elementType = "textarea"
		case sel.Is("select"):
			elementType = "select"
		case typ == "checkbox":
			elementType = "checkbox"
		case typ == "radio":
			elementType = "radio"
		}

		placeholder, _ := sel.Attr("placeholder")
		add(IdentifiedElement{
			Selector:    stableSelector(sel, "input", i),
			ElementType: elementType,
			Text:        placeholder,
			Purpose:     typ,
			Attributes:  attributesOf(sel),
			Priority:    1,
		})
	})

	return Sanitize(ident, url), nil
}

// screenName prefers the document title, then the first heading.
func screenName(doc *goquery.Document, url string) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return fallbackScreenName(url)
}

// classifyPage applies coarse structural heuristics.
func classifyPage(doc *goquery.Document, url string) string {
	if doc.Find("input[type=password]").Length() > 0 {
		return "login"
	}
	if doc.Find("table").Length() > 0 || doc.Find("ul li").Length() > 10 {
		return "list"
	}
	if doc.Find("form").Length() > 0 {
		return "form"
	}
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "dashboard"):
		return "dashboard"
	case strings.Contains(lower, "settings") || strings.Contains(lower, "profile"):
		return "settings"
	case strings.HasSuffix(strings.TrimRight(lower, "/"), "//") || strings.Count(strings.TrimRight(lower, "/"), "/") <= 2:
		return "landing"
	}
	return "unknown"
}

// stableSelector builds the most durable selector available for an
// element: id, then data-testid, then name, then aria-label, falling
// back to a positional selector that at least replays within the same
// render.
func stableSelector(sel *goquery.Selection, tag string, index int) string {
	if id, ok := sel.Attr("id"); ok && id != "" {
		return "#" + id
	}
	if testID, ok := sel.Attr("data-testid"); ok && testID != "" {
		return fmt.Sprintf(`[data-testid=%q]`, testID)
	}
	if name, ok := sel.Attr("name"); ok && name != "" {
		return fmt.Sprintf(`%s[name=%q]`, tag, name)
	}
	if label, ok := sel.Attr("aria-label"); ok && label != "" {
		return fmt.Sprintf(`[aria-label=%q]`, label)
	}
	return fmt.Sprintf("%s:nth-of-type(%d)", tag, index+1)
}

// attributesOf collects the element's HTML attributes.
func attributesOf(sel *goquery.Selection) map[string]string {
	if len(sel.Nodes) == 0 || len(sel.Nodes[0].Attr) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(sel.Nodes[0].Attr))
	for _, a := range sel.Nodes[0].Attr {
		attrs[a.Key] = a.Val
	}
	return attrs
}

// elementText returns the trimmed visible text, bounded.
func elementText(sel *goquery.Selection) string {
	text := strings.Join(strings.Fields(sel.Text()), " ")
	if len(text) > 60 {
		text = text[:60]
	}
	if text == "" {
		if value, ok := sel.Attr("value"); ok {
			text = value
		}
	}
	return text
}

var _ ElementIdentifier = (*StaticIdentifier)(nil)
