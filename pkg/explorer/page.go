package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vishnualpha/sensuQ-sub001/internal/browser"
	"github.com/vishnualpha/sensuQ-sub001/internal/collab"
	xerrors "github.com/vishnualpha/sensuQ-sub001/internal/errors"
	"github.com/vishnualpha/sensuQ-sub001/internal/logger"
	"github.com/vishnualpha/sensuQ-sub001/internal/navigator"
	"github.com/vishnualpha/sensuQ-sub001/internal/queue"
	"github.com/vishnualpha/sensuQ-sub001/internal/scope"
	"github.com/vishnualpha/sensuQ-sub001/internal/spastate"
	"github.com/vishnualpha/sensuQ-sub001/internal/store"
)

const settlementTimeout = 3 * time.Second

// crawlItem processes one frontier item on a leased session: replay the
// recorded path, capture the page, identify its elements, handle any
// login form, then run scenarios and discover outbound links when the
// depth policy still allows expansion.
func (e *Explorer) crawlItem(ctx context.Context, page browser.Page, item *queue.Item, log *logger.Logger) (string, error) {
	log = log.WithURL(item.URL)

	if err := e.limiter.Wait(ctx, hostOf(item.URL)); err != nil {
		return "", xerrors.NewCancelled(item.URL, "rate-limit wait")
	}

	if err := e.replaySteps(ctx, page, item.URL, item.RequiredSteps, log); err != nil {
		return "", err
	}

	e.detector.WaitForSettlement(ctx, page, settlementTimeout)
	e.dismissCookieBanner(ctx, page, log)

	currentURL, err := page.URL(ctx)
	if err != nil {
		return "", xerrors.New(xerrors.Session, item.URL, "read url", "session unusable", err)
	}
	title, _ := page.Title(ctx)
	html, err := page.HTML(ctx)
	if err != nil {
		return "", xerrors.New(xerrors.Session, item.URL, "read html", "session unusable", err)
	}
	screenshot, err := page.Screenshot(ctx)
	if err != nil {
		log.Debugf("Screenshot failed: %v", err)
	}

	ident := e.identifyPage(ctx, screenshot, html, currentURL, log)

	pageID, err := e.persistPage(item, currentURL, title, html, screenshot, ident, log)
	if err != nil {
		return "", err
	}

	loginSteps := e.handleLogin(ctx, page, item, pageID, log)

	if item.Depth < e.config.MaxDepth {
		pathSteps := item.RequiredSteps
		if len(loginSteps) > 0 {
			pathSteps = append(append([]navigator.Step(nil), item.RequiredSteps...), loginSteps...)
		}
		e.runScenarios(ctx, page, item, pageID, ident, pathSteps, log)
		e.discoverLinks(ctx, page, item, pageID, ident, pathSteps, log)
	}

	return pageID, nil
}

// replaySteps executes the item's recorded path. Navigation steps get
// the one-retry policy; interaction steps fail the item outright since
// the path that admitted it is no longer replayable.
func (e *Explorer) replaySteps(ctx context.Context, page browser.Page, url string, steps []navigator.Step, log *logger.Logger) error {
	nav := navigator.New(e.credsFor(url), log)

	for i, step := range steps {
		if step.Action == navigator.ActionGoto {
			attempt := 0
			err := xerrors.Retry(ctx, xerrors.NavigationRetryConfig(), "navigate", step.URL, func(ctx context.Context) error {
				attempt++
				if attempt > 1 {
					e.metrics.NavigationRetry()
				}
				if err := nav.Execute(ctx, page, []navigator.Step{step}); err != nil {
					return xerrors.NewNavigation(step.URL, err)
				}
				return nil
			})
			if err != nil {
				return err
			}
			continue
		}
		if err := nav.Execute(ctx, page, []navigator.Step{step}); err != nil {
			return xerrors.New(xerrors.QueueItem, url, "replay path",
				fmt.Sprintf("step %d not replayable", i+1), err)
		}
	}
	return nil
}

// credsFor resolves credentials for a URL, zero when none configured.
func (e *Explorer) credsFor(url string) navigator.Credentials {
	if e.creds == nil {
		return navigator.Credentials{}
	}
	creds, ok := e.creds.Lookup(url)
	if !ok {
		return navigator.Credentials{}
	}
	return creds
}

// cookieScript dismisses consent banners by clicking an affirmative
// button inside a recognizable consent container. Dismissal only:
// preference dialogs and settings links are left alone.
const cookieScript = `() => {
	const containers = document.querySelectorAll(
		'[id*="cookie" i], [class*="cookie" i], [id*="consent" i], [class*="consent" i], [id*="gdpr" i], [class*="gdpr" i]');
	const accept = /^(accept|accept all|agree|i agree|allow|allow all|got it|ok|okay)\b/i;
	for (const container of containers) {
		const rect = container.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) continue;
		for (const btn of container.querySelectorAll('button, [role="button"], a')) {
			const text = (btn.textContent || '').trim();
			if (text.length > 0 && text.length < 30 && accept.test(text)) {
				btn.click();
				return true;
			}
		}
	}
	return false;
}`

// dismissCookieBanner clicks through a consent banner if one is up.
func (e *Explorer) dismissCookieBanner(ctx context.Context, page browser.Page, log *logger.Logger) {
	raw, err := page.Eval(ctx, cookieScript)
	if err != nil {
		log.Debugf("Cookie banner check failed: %v", err)
		return
	}
	var dismissed bool
	if err := json.Unmarshal(raw, &dismissed); err == nil && dismissed {
		log.Debug("Cookie banner dismissed")
		e.detector.WaitForSettlement(ctx, page, time.Second)
	}
}

// identifyPage asks the collaborator to describe the page, degrading to
// the static identifier when the call fails.
func (e *Explorer) identifyPage(ctx context.Context, screenshot []byte, html, url string, log *logger.Logger) *collab.PageIdentification {
	ident, err := e.identifier.Identify(ctx, screenshot, html, url)
	if err != nil {
		log.Warnf("Collaborator identification failed, using static fallback: %v", err)
		e.metrics.Error(xerrors.Collaborator.String())
		ident, err = e.fallback.Identify(ctx, screenshot, html, url)
		if err != nil {
			log.Warnf("Static identification failed: %v", err)
			ident = nil
		}
	}
	return collab.Sanitize(ident, url)
}

// persistPage records the page, its elements, the page source, and the
// edge that reached it. The page budget is reserved atomically so
// concurrent workers never overshoot it.
func (e *Explorer) persistPage(item *queue.Item, currentURL, title, html string, screenshot []byte, ident *collab.PageIdentification, log *logger.Logger) (string, error) {
	if e.pagesStored.Add(1) > int64(e.config.MaxPages) {
		e.pagesStored.Add(-1)
		return "", xerrors.New(xerrors.QueueItem, item.URL, "persist page", "page budget exhausted", nil)
	}

	pageID := e.newPageID()

	shotPath := e.saveScreenshot(pageID, screenshot, log)

	elements := make([]*store.InteractiveElement, 0, len(ident.InteractiveElements))
	for _, el := range ident.InteractiveElements {
		elements = append(elements, &store.InteractiveElement{
			ID:           e.newElementID(),
			PageID:       pageID,
			RunID:        e.runID,
			Selector:     el.Selector,
			ElementType:  el.ElementType,
			Text:         el.Text,
			Purpose:      el.Purpose,
			Attributes:   el.Attributes,
			Priority:     el.Priority,
			IdentifiedBy: identifierName(e.identifier),
		})
	}

	page := &store.DiscoveredPage{
		ID:             pageID,
		RunID:          e.runID,
		URL:            currentURL,
		Title:          title,
		ScreenName:     ident.ScreenName,
		PageType:       ident.PageType,
		Depth:          item.Depth,
		ElementCount:   len(elements),
		ScreenshotPath: shotPath,
		PageSource:     []byte(html),
	}
	if err := e.store.SavePage(page); err != nil {
		e.pagesStored.Add(-1)
		return "", fmt.Errorf("save page: %w", err)
	}

	if err := e.store.SaveElements(e.runID, pageID, elements); err != nil {
		return "", fmt.Errorf("save elements: %w", err)
	}

	path := &store.CrawlPath{
		ID:         pageID + "-path",
		RunID:      e.runID,
		PageID:     pageID,
		FromPageID: item.OriginPageID,
		Trigger:    lastStep(item.RequiredSteps),
		Depth:      item.Depth,
		Steps:      item.RequiredSteps,
	}
	if err := e.store.SavePath(path); err != nil {
		return "", fmt.Errorf("save path: %w", err)
	}

	e.metrics.PageDiscovered()
	e.metrics.PageCrawled()
	e.metrics.ElementsFound(len(elements))
	log.PageEvent(currentURL, ident.PageType, item.Depth, len(elements))
	return pageID, nil
}

// identifierName records element provenance.
func identifierName(id collab.ElementIdentifier) string {
	if _, ok := id.(*collab.StaticIdentifier); ok {
		return "static"
	}
	return "llm"
}

// saveScreenshot writes the capture to the screenshot directory, if
// one is configured.
func (e *Explorer) saveScreenshot(pageID string, screenshot []byte, log *logger.Logger) string {
	if e.config.ScreenshotDir == "" || len(screenshot) == 0 {
		return ""
	}
	if err := os.MkdirAll(e.config.ScreenshotDir, 0755); err != nil {
		log.Warnf("Screenshot dir: %v", err)
		return ""
	}
	path := filepath.Join(e.config.ScreenshotDir, e.runID+"-"+pageID+".png")
	if err := os.WriteFile(path, screenshot, 0644); err != nil {
		log.Warnf("Screenshot write: %v", err)
		return ""
	}
	return path
}

// handleLogin detects a login form and, when credentials are available,
// submits it. Success extends the page's replay path with the
// placeholder login steps. Every failure mode is non-fatal: the page is
// already recorded, login just gates what is reachable beyond it.
func (e *Explorer) handleLogin(ctx context.Context, page browser.Page, item *queue.Item, pageID string, log *logger.Logger) []navigator.Step {
	form, found, err := e.login.DetectLoginForm(ctx, page)
	if err != nil {
		log.Debugf("Login detection failed: %v", err)
		return nil
	}
	if !found {
		return nil
	}

	creds := e.credsFor(item.URL)
	if creds.Username == "" && creds.Password == "" {
		log.Info("Login form found, no credentials configured; cataloguing only")
		return nil
	}

	steps, err := e.login.PerformLogin(ctx, page, form, creds)
	if err != nil {
		log.Warnf("Login failed: %v", err)
		e.metrics.Error(xerrors.Interaction.String())
		return nil
	}

	e.metrics.LoginPerformed()
	e.detector.WaitForSettlement(ctx, page, settlementTimeout)

	authSteps := append(append([]navigator.Step(nil), item.RequiredSteps...), steps...)
	path := &store.CrawlPath{
		ID:         pageID + "-path",
		RunID:      e.runID,
		PageID:     pageID,
		FromPageID: item.OriginPageID,
		Trigger:    lastStep(authSteps),
		Depth:      item.Depth,
		Steps:      authSteps,
	}
	if err := e.store.SavePath(path); err != nil {
		log.Warnf("Save authenticated path: %v", err)
	}
	return steps
}

// runScenarios plans and executes interaction scenarios for the page.
// Requires a planner; runs without one simply skip the phase.
func (e *Explorer) runScenarios(ctx context.Context, page browser.Page, item *queue.Item, pageID string, ident *collab.PageIdentification, pathSteps []navigator.Step, log *logger.Logger) {
	if e.planner == nil {
		return
	}

	scenarios, err := e.planner.GenerateScenarios(ctx, ident, item.URL)
	if err != nil {
		log.Warnf("Scenario planning failed: %v", err)
		e.metrics.Error(xerrors.Collaborator.String())
		return
	}
	if len(scenarios) > e.config.MaxScenariosPerPage {
		scenarios = scenarios[:e.config.MaxScenariosPerPage]
	}

	for _, sc := range scenarios {
		if e.stopped.Load() || ctx.Err() != nil {
			return
		}
		if !e.waitIfPaused(ctx) {
			return
		}

		e.metrics.ScenarioExecuted()
		if err := e.runScenario(ctx, page, item, pageID, sc, pathSteps, log); err != nil {
			log.Warnf("Scenario %q aborted: %v", sc.Name, err)
			e.metrics.ScenarioFailed()
			e.metrics.Error(xerrors.Scenario.String())
		}
		e.planner.MarkExecuted(sc.ID)

		// Scenarios mutate page state; restart from the recorded path so
		// the next scenario sees the page as planned.
		if err := e.replaySteps(ctx, page, item.URL, pathSteps, log); err != nil {
			log.Warnf("Could not restore page after scenario: %v", err)
			return
		}
		e.detector.WaitForSettlement(ctx, page, settlementTimeout)
	}
}

// runScenario executes one scenario step by step, re-snapshotting after
// each mutating step and reacting to what the page became.
func (e *Explorer) runScenario(ctx context.Context, page browser.Page, item *queue.Item, pageID string, sc *collab.Scenario, pathSteps []navigator.Step, log *logger.Logger) error {
	nav := navigator.New(e.credsFor(item.URL), log)

	before, err := e.detector.Capture(ctx, page, sc.ID)
	if err != nil {
		return fmt.Errorf("capture baseline: %w", err)
	}

	for i, step := range sc.Steps {
		if e.stopped.Load() || ctx.Err() != nil {
			return xerrors.NewCancelled(item.URL, "scenario")
		}
		if !e.waitIfPaused(ctx) {
			return xerrors.NewCancelled(item.URL, "scenario")
		}

		err := nav.Execute(ctx, page, []navigator.Step{step})
		if err != nil && step.Action == navigator.ActionClick {
			if healed := e.healSelector(ctx, page, item, pageID, step.Selector, log); healed != "" {
				step.Selector = healed
				err = nav.Execute(ctx, page, []navigator.Step{step})
			}
		}
		if err != nil {
			if !e.adaptScenario(ctx, page, nav, item, sc, i, err, log) {
				return xerrors.NewScenario(item.URL, i+1, err)
			}
			break // adaptation consumed the remaining steps
		}

		if !mutatingAction(step.Action) {
			continue
		}

		e.detector.WaitForSettlement(ctx, page, settlementTimeout)
		after, err := e.detector.Capture(ctx, page, sc.ID)
		if err != nil {
			log.Debugf("Post-step capture failed: %v", err)
			continue
		}

		executed := append(append([]navigator.Step(nil), pathSteps...), sc.Steps[:i+1]...)
		e.reactToChange(ctx, page, item, pageID, before, after, executed, log)
		before = after
	}

	return nil
}

// mutatingAction reports whether a step can change page state.
func mutatingAction(a navigator.Action) bool {
	switch a {
	case navigator.ActionClick, navigator.ActionFill, navigator.ActionType,
		navigator.ActionSelect, navigator.ActionCheck, navigator.ActionUncheck,
		navigator.ActionPressEnter:
		return true
	}
	return false
}

// reactToChange classifies the post-step snapshot delta and turns it
// into graph growth: new URLs join the frontier, significant same-URL
// deltas materialize virtual pages, and surfaced login forms get the
// login flow inline.
func (e *Explorer) reactToChange(ctx context.Context, page browser.Page, item *queue.Item, pageID string, before, after *spastate.Snapshot, executed []navigator.Step, log *logger.Logger) {
	cls := e.detector.Compare(before, after)
	if !cls.HasChanges {
		return
	}
	log.Debugf("State change after step: %s (%s)", cls.Type, cls.Description)

	if cls.Type == spastate.ChangeLoginFormAppeared ||
		(cls.Type == spastate.ChangeModalOpened && after.Controls.PasswordFields > 0) {
		e.handleLogin(ctx, page, item, pageID, log)
		return
	}

	currentURL, err := page.URL(ctx)
	if err != nil {
		return
	}
	normalized, err := scope.Normalize(currentURL)
	if err != nil {
		return
	}

	if normalized != item.URL {
		if !e.scope.InScope(normalized) || e.queue.HasVisited(e.runID, normalized) {
			return
		}
		admitted, err := e.queue.Enqueue(&queue.Item{
			RunID:         e.runID,
			URL:           normalized,
			Depth:         item.Depth + 1,
			OriginPageID:  pageID,
			Priority:      queue.PriorityHigh,
			RequiredSteps: executed,
		})
		if err != nil {
			log.Warnf("Enqueue %s: %v", normalized, err)
		} else if admitted {
			log.Debugf("Scenario revealed %s, queued at depth %d", normalized, item.Depth+1)
		}
		return
	}

	if cls.Significant {
		e.materializeVirtualPage(item, pageID, after, executed, log)
	}
}

// materializeVirtualPage records a same-URL SPA state as its own graph
// node. Identity is the state hash alone, so re-reaching the state via
// a different trigger dedupes to the first node.
func (e *Explorer) materializeVirtualPage(item *queue.Item, parentPageID string, snap *spastate.Snapshot, steps []navigator.Step, log *logger.Logger) string {
	stateID := spastate.StateIdentifier(snap)

	if existing, err := e.store.FindPageByState(e.runID, stateID); err == nil && existing != "" {
		log.Debugf("State %s already materialized as %s", stateID, existing)
		return existing
	}

	if e.pagesStored.Add(1) > int64(e.config.MaxPages) {
		e.pagesStored.Add(-1)
		return ""
	}

	vpID := e.newPageID()
	page := &store.DiscoveredPage{
		ID:              vpID,
		RunID:           e.runID,
		URL:             item.URL,
		Title:           snap.Title,
		Depth:           item.Depth,
		IsVirtual:       true,
		StateIdentifier: stateID,
		ParentPageID:    parentPageID,
	}
	if err := e.store.SavePage(page); err != nil {
		e.pagesStored.Add(-1)
		log.Warnf("Save virtual page: %v", err)
		return ""
	}

	path := &store.CrawlPath{
		ID:         vpID + "-path",
		RunID:      e.runID,
		PageID:     vpID,
		FromPageID: parentPageID,
		Trigger:    lastStep(steps),
		Depth:      item.Depth,
		Steps:      steps,
	}
	if err := e.store.SavePath(path); err != nil {
		log.Warnf("Save virtual page path: %v", err)
	}

	e.metrics.PageDiscovered()
	e.metrics.VirtualPage()
	log.Infof("Virtual page %s materialized (%s)", vpID, stateID)
	return vpID
}

// adaptScenario hands a failed step to the failure adapter. A revised
// continuation is executed and the original intent re-verified; with no
// viable repair the adapter checks whether the intent was achieved
// anyway. Returns true when the scenario should count as completed.
func (e *Explorer) adaptScenario(ctx context.Context, page browser.Page, nav *navigator.Navigator, item *queue.Item, sc *collab.Scenario, failedIndex int, cause error, log *logger.Logger) bool {
	if e.adapter == nil {
		return false
	}

	html, _ := page.HTML(ctx)
	adaptation, err := e.adapter.AnalyzeFailure(ctx, collab.FailureContext{
		URL:          item.URL,
		ScenarioName: sc.Name,
		Steps:        sc.Steps,
		FailedIndex:  failedIndex,
		ErrorMessage: cause.Error(),
		HTML:         html,
	})
	if err != nil {
		log.Debugf("Failure analysis unavailable: %v", err)
		return false
	}

	if len(adaptation.Revised) > 0 {
		log.Debugf("Retrying scenario %q with revised steps: %s", sc.Name, adaptation.Reason)
		if err := nav.Execute(ctx, page, adaptation.Revised); err != nil {
			log.Debugf("Revised steps failed too: %v", err)
			return false
		}
		if sc.Goal == "" {
			return true
		}
		after, _ := page.HTML(ctx)
		achieved, err := e.adapter.VerifyIntentAchieved(ctx, sc.Goal, after)
		if err != nil {
			log.Debugf("Intent verification unavailable after revised steps: %v", err)
			return false
		}
		if !achieved {
			log.Debugf("Revised steps ran but scenario %q goal was not achieved", sc.Name)
		}
		return achieved
	}

	if sc.Goal == "" {
		return false
	}
	achieved, err := e.adapter.VerifyIntentAchieved(ctx, sc.Goal, html)
	if err != nil {
		return false
	}
	if achieved {
		log.Debugf("Scenario %q goal already achieved despite step failure", sc.Name)
	}
	return achieved
}

// lastStep returns the final step of a replay log, the one that was
// appended over the parent's log to produce it.
func lastStep(steps []navigator.Step) navigator.Step {
	if len(steps) == 0 {
		return navigator.Step{}
	}
	return steps[len(steps)-1]
}

// healScript tries fallback selector strategies in fixed order and
// returns the first one that matches exactly one visible element.
const healScript = `(params) => {
	function visible(el) {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) return false;
		const style = window.getComputedStyle(el);
		return style.display !== 'none' && style.visibility !== 'hidden';
	}

	function matchByText(selector, text, exact) {
		const hits = [];
		document.querySelectorAll(selector).forEach(el => {
			if (!visible(el)) return;
			const t = (el.textContent || '').trim();
			if (exact ? t === text : t.includes(text)) hits.push(el);
		});
		return hits;
	}

	function cssFor(el) {
		if (el.id) return '#' + CSS.escape(el.id);
		const testid = el.getAttribute('data-testid');
		if (testid) return '[data-testid="' + testid + '"]';
		const aria = el.getAttribute('aria-label');
		if (aria) return '[aria-label="' + aria + '"]';
		const name = el.getAttribute('name');
		if (name) return el.tagName.toLowerCase() + '[name="' + name + '"]';
		return '';
	}

	const text = params.text || '';
	const clickable = 'button, a, [role="button"], input[type="button"], input[type="submit"]';

	if (text) {
		const exact = matchByText(clickable, text, true);
		if (exact.length === 1) {
			const sel = cssFor(exact[0]);
			if (sel) return sel;
		}
	}

	for (const attr of ['aria-label', 'data-testid', 'name']) {
		if (!text) break;
		const sel = '[' + attr + '="' + text + '"]';
		let hits = [];
		try { hits = Array.from(document.querySelectorAll(sel)).filter(visible); } catch (e) {}
		if (hits.length === 1) return sel;
	}

	if (text) {
		const byRole = matchByText('[role="button"], button', text, true);
		if (byRole.length === 1) {
			const sel = cssFor(byRole[0]);
			if (sel) return sel;
		}
	}

	if (text && text.length <= 20) {
		const partial = matchByText(clickable, text, false);
		if (partial.length === 1) {
			const sel = cssFor(partial[0]);
			if (sel) return sel;
		}
	}

	return '';
}`

// healSelector recovers a stale click selector through the fallback
// ladder, keyed on the element's recorded text. A successful heal is
// persisted on the stored element so later replays skip the dead
// selector.
func (e *Explorer) healSelector(ctx context.Context, page browser.Page, item *queue.Item, pageID, selector string, log *logger.Logger) string {
	text := e.elementText(pageID, selector)
	if text == "" {
		return ""
	}

	params, err := json.Marshal(map[string]string{"text": text, "selector": selector})
	if err != nil {
		return ""
	}
	js := fmt.Sprintf("(%s)(%s)", healScript, params)
	raw, err := page.Eval(ctx, "() => "+js)
	if err != nil {
		log.Debugf("Selector healing failed: %v", err)
		return ""
	}

	var healed string
	if err := json.Unmarshal(raw, &healed); err != nil || healed == "" || healed == selector {
		return ""
	}

	log.Infof("Selector healed: %q -> %q", selector, healed)
	e.metrics.SelectorHealed()
	e.persistHealed(pageID, selector, healed, log)
	return healed
}

// elementText returns the recorded display text of a stored element.
func (e *Explorer) elementText(pageID, selector string) string {
	elements, err := e.store.ListElements(e.runID, pageID)
	if err != nil {
		return ""
	}
	for _, el := range elements {
		if el.Selector == selector {
			return el.Text
		}
	}
	return ""
}

// persistHealed marks a stored element as self-healed.
func (e *Explorer) persistHealed(pageID, selector, healed string, log *logger.Logger) {
	elements, err := e.store.ListElements(e.runID, pageID)
	if err != nil {
		return
	}
	changed := false
	for _, el := range elements {
		if el.Selector == selector {
			el.SelfHealed = true
			el.HealedSelector = healed
			changed = true
		}
	}
	if !changed {
		return
	}
	if err := e.store.SaveElements(e.runID, pageID, elements); err != nil {
		log.Warnf("Persist healed selector: %v", err)
	}
}

// linkScript harvests absolute outbound hrefs in document order.
const linkScript = `() => {
	const out = [];
	const seen = {};
	document.querySelectorAll('a[href]').forEach(a => {
		if (out.length >= 100) return;
		const href = a.href;
		if (!href || seen[href]) return;
		seen[href] = true;
		out.push(href);
	});
	return out;
}`

// discoverLinks grows the frontier from the current page: every
// in-scope anchor joins the next level, and a bounded set of navigable
// identified elements is click-probed for URLs anchors never expose.
func (e *Explorer) discoverLinks(ctx context.Context, page browser.Page, item *queue.Item, pageID string, ident *collab.PageIdentification, pathSteps []navigator.Step, log *logger.Logger) {
	raw, err := page.Eval(ctx, linkScript)
	if err != nil {
		log.Debugf("Link harvest failed: %v", err)
	} else {
		var hrefs []string
		if err := json.Unmarshal(raw, &hrefs); err == nil {
			for _, href := range hrefs {
				e.enqueueLink(item, pageID, pathSteps, href, log)
			}
		}
	}

	e.clickThroughCandidates(ctx, page, item, pageID, ident, pathSteps, log)
}

// enqueueLink normalizes and scope-checks one harvested URL, then
// offers it to the frontier at the next depth. The child's replay log
// is the parent's log plus one goto, keeping every edge append-only.
func (e *Explorer) enqueueLink(item *queue.Item, pageID string, pathSteps []navigator.Step, href string, log *logger.Logger) {
	resolved, err := scope.Resolve(item.URL, href)
	if err != nil {
		return
	}
	normalized, err := scope.Normalize(resolved)
	if err != nil {
		return
	}
	if normalized == item.URL || !e.scope.InScope(normalized) {
		return
	}

	admitted, err := e.queue.Enqueue(&queue.Item{
		RunID:         e.runID,
		URL:           normalized,
		Depth:         item.Depth + 1,
		OriginPageID:  pageID,
		Priority:      queue.PriorityMedium,
		RequiredSteps: navigator.AppendStep(pathSteps, navigator.GotoStep(normalized)),
	})
	if err != nil {
		log.Warnf("Enqueue %s: %v", normalized, err)
		return
	}
	if admitted {
		log.Debugf("Queued %s at depth %d", normalized, item.Depth+1)
	}
}

// clickThroughCandidates probes identified buttons and links that may
// navigate without an href, returning to the origin page after every
// URL change. A failed return aborts the remaining candidates: without
// the origin page every later probe would run against the wrong state.
func (e *Explorer) clickThroughCandidates(ctx context.Context, page browser.Page, item *queue.Item, pageID string, ident *collab.PageIdentification, pathSteps []navigator.Step, log *logger.Logger) {
	probed := 0
	for _, el := range ident.InteractiveElements {
		if probed >= e.config.MaxClickCandidates {
			return
		}
		if el.ElementType != "button" && el.ElementType != "link" {
			continue
		}
		if e.stopped.Load() || ctx.Err() != nil {
			return
		}
		probed++

		before, err := e.detector.Capture(ctx, page, pageID)
		if err != nil {
			log.Debugf("Pre-click capture failed: %v", err)
			continue
		}

		if err := page.Click(ctx, el.Selector); err != nil {
			healed := e.healSelector(ctx, page, item, pageID, el.Selector, log)
			if healed == "" {
				continue
			}
			if err := page.Click(ctx, healed); err != nil {
				continue
			}
			el.Selector = healed
		}
		e.detector.WaitForSettlement(ctx, page, settlementTimeout)

		currentURL, err := page.URL(ctx)
		if err != nil {
			return
		}
		normalized, err := scope.Normalize(currentURL)
		if err != nil {
			normalized = currentURL
		}

		if normalized != item.URL {
			if e.scope.InScope(normalized) && !e.queue.HasVisited(e.runID, normalized) {
				steps := navigator.AppendStep(pathSteps, navigator.ClickStep(el.Selector))
				admitted, err := e.queue.Enqueue(&queue.Item{
					RunID:         e.runID,
					URL:           normalized,
					Depth:         item.Depth + 1,
					OriginPageID:  pageID,
					Priority:      queue.PriorityHigh,
					RequiredSteps: steps,
				})
				if err != nil {
					log.Warnf("Enqueue %s: %v", normalized, err)
				} else if admitted {
					log.Debugf("Click on %q revealed %s, queued at depth %d", el.Selector, normalized, item.Depth+1)
				}
			}
			if !e.returnToOrigin(ctx, page, item, log) {
				return
			}
			continue
		}

		after, err := e.detector.Capture(ctx, page, pageID)
		if err != nil {
			continue
		}
		cls := e.detector.Compare(before, after)
		if cls.Significant {
			steps := navigator.AppendStep(pathSteps, navigator.ClickStep(el.Selector))
			e.materializeVirtualPage(item, pageID, after, steps, log)
			if !e.returnToOrigin(ctx, page, item, log) {
				return
			}
		}
	}
}

// returnToOrigin navigates back to the item's page after a probe left
// it. Reports false when the origin cannot be restored.
func (e *Explorer) returnToOrigin(ctx context.Context, page browser.Page, item *queue.Item, log *logger.Logger) bool {
	err := xerrors.Retry(ctx, xerrors.NavigationRetryConfig(), "return", item.URL, func(ctx context.Context) error {
		if err := page.Navigate(ctx, item.URL); err != nil {
			return xerrors.NewNavigation(item.URL, err)
		}
		return nil
	})
	if err != nil {
		log.Warnf("Could not return to %s, aborting remaining probes: %v", item.URL, err)
		return false
	}
	e.detector.WaitForSettlement(ctx, page, settlementTimeout)
	return true
}

// errKind maps an error to its metrics label.
func errKind(err error) string {
	return xerrors.KindOf(err).String()
}
