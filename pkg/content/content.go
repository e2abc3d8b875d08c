// Package content drives substitution for one loaded page. It decides
// whether the page's domain is translated, keeps the engine's snapshot in
// step with the stored vocabulary and style, and reacts to host insertions.
package content

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/net/html"

	"github.com/japaniel/vocabify/pkg/logger"
	"github.com/japaniel/vocabify/pkg/prefs"
	"github.com/japaniel/vocabify/pkg/state"
	"github.com/japaniel/vocabify/pkg/vocabify"
)

// Controller owns the engine and observer for a single document body.
type Controller struct {
	State  *state.State
	Log    *logger.Logger
	Now    func() time.Time
	Domain string

	root     *html.Node
	engine   *vocabify.Engine
	observer *vocabify.MutationObserver
}

// New returns a controller for root, the page body, served from domain.
func New(st *state.State, root *html.Node, domain string, log *logger.Logger) *Controller {
	c := &Controller{
		State:  st,
		Log:    logger.OrNop(log),
		Now:    time.Now,
		Domain: domain,
		root:   root,
		engine: vocabify.NewEngine(),
	}
	c.observer = vocabify.NewMutationObserver(c.engine.OnMutations)
	return c
}

// Observing reports whether host insertions are currently processed.
func (c *Controller) Observing() bool { return c.observer.Observing() }

// Snapshot returns the snapshot the engine currently applies.
func (c *Controller) Snapshot() *vocabify.Snapshot { return c.engine.Snapshot() }

// ShouldTranslate reports whether the page's domain is translated right now.
func (c *Controller) ShouldTranslate(ctx context.Context) (bool, error) {
	domains, err := c.State.Domains.Get(ctx)
	if err != nil {
		return false, err
	}
	translation, err := c.State.Translation.Get(ctx)
	if err != nil {
		return false, err
	}
	return prefs.ShouldTranslate(c.Domain, domains, translation, c.Now()), nil
}

// refresh rebuilds the engine snapshot from the stored matcher and style.
func (c *Controller) refresh(ctx context.Context) error {
	m, err := c.State.Vocab.Get(ctx)
	if err != nil {
		return err
	}
	styled, err := c.State.Style.Get(ctx)
	if err != nil {
		return err
	}
	snap, err := vocabify.NewSnapshot(m, styled)
	if err != nil {
		return err
	}
	c.engine.SetSnapshot(snap)
	return nil
}

// Load performs the initial pass. Pages that are not translated are left
// untouched and unobserved.
func (c *Controller) Load(ctx context.Context) error {
	if err := c.refresh(ctx); err != nil {
		return fmt.Errorf("content: load vocabulary: %w", err)
	}
	ok, err := c.ShouldTranslate(ctx)
	if err != nil {
		return fmt.Errorf("content: load: %w", err)
	}
	if !ok {
		c.observer.Disconnect()
		c.Log.Debug("page not translated", "domain", c.Domain)
		return nil
	}
	c.observer.Observe(c.root)
	vocabify.Replace(c.root, c.engine.Snapshot())
	return nil
}

// HandleSettingsUpdate applies a change to the domain lists or the
// translation toggle.
func (c *Controller) HandleSettingsUpdate(ctx context.Context) error {
	ok, err := c.ShouldTranslate(ctx)
	if err != nil {
		return fmt.Errorf("content: settings update: %w", err)
	}
	if !ok {
		c.observer.Disconnect()
		vocabify.Reverse(c.root)
		return nil
	}
	c.observer.Observe(c.root)
	vocabify.Replace(c.root, c.engine.Snapshot())
	return nil
}

// HandleVocabUpdate swaps in the newly stored matcher and re-runs the pass
// when the page is translated.
func (c *Controller) HandleVocabUpdate(ctx context.Context) error {
	if err := c.refresh(ctx); err != nil {
		return fmt.Errorf("content: vocab update: %w", err)
	}
	ok, err := c.ShouldTranslate(ctx)
	if err != nil {
		return fmt.Errorf("content: vocab update: %w", err)
	}
	if !ok {
		return nil
	}
	vocabify.Replace(c.root, c.engine.Snapshot())
	return nil
}

// HandleStylePreferenceUpdate styles or unstyles every marker.
func (c *Controller) HandleStylePreferenceUpdate(ctx context.Context) error {
	if err := c.refresh(ctx); err != nil {
		return fmt.Errorf("content: style update: %w", err)
	}
	snap := c.engine.Snapshot()
	if snap.Styled() {
		vocabify.Style(c.root, snap)
	} else {
		vocabify.Unstyle(c.root)
	}
	return nil
}

// Insert appends child to parent the way a host script would and reports
// the insertion to the observer.
func (c *Controller) Insert(parent, child *html.Node) {
	parent.AppendChild(child)
	c.observer.Notify([]vocabify.MutationRecord{{Target: parent, AddedNodes: []*html.Node{child}}})
}

// Bind subscribes the handlers to their storage keys. The returned function
// removes every subscription.
func (c *Controller) Bind(ctx context.Context) func() {
	handle := func(name string, fn func(context.Context) error) func() {
		return func() {
			if err := fn(ctx); err != nil {
				c.Log.Error("content handler failed", "handler", name, "error", err)
			}
		}
	}
	unsubs := []func(){
		c.State.Domains.Subscribe(handle("settings", c.HandleSettingsUpdate)),
		c.State.Translation.Subscribe(handle("settings", c.HandleSettingsUpdate)),
		c.State.Vocab.Subscribe(handle("vocab", c.HandleVocabUpdate)),
		c.State.Style.Subscribe(handle("style", c.HandleStylePreferenceUpdate)),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
