package vocabify

import (
	"golang.org/x/net/html"
)

// MutationRecord describes nodes a host inserted under Target.
type MutationRecord struct {
	Target     *html.Node
	AddedNodes []*html.Node
}

// MutationObserver delivers insertions within an observed subtree to a
// callback. The host owning the tree reports insertions through Notify.
type MutationObserver struct {
	callback func([]MutationRecord)
	root     *html.Node
}

// NewMutationObserver returns an observer that is not yet observing.
func NewMutationObserver(callback func([]MutationRecord)) *MutationObserver {
	return &MutationObserver{callback: callback}
}

// Observe starts watching root and its subtree, replacing any previous root.
func (o *MutationObserver) Observe(root *html.Node) { o.root = root }

// Disconnect stops delivery until Observe is called again.
func (o *MutationObserver) Disconnect() { o.root = nil }

// Observing reports whether the observer has a root.
func (o *MutationObserver) Observing() bool { return o.root != nil }

// Notify passes the records whose target lies in the observed subtree to
// the callback.
func (o *MutationObserver) Notify(records []MutationRecord) {
	if o.root == nil || o.callback == nil {
		return
	}
	var in []MutationRecord
	for _, r := range records {
		if contains(o.root, r.Target) {
			in = append(in, r)
		}
	}
	if len(in) > 0 {
		o.callback(in)
	}
}

func contains(root, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}

// Engine holds the current snapshot and applies it to inserted content.
type Engine struct {
	snap *Snapshot
}

// NewEngine returns an engine with an inactive snapshot.
func NewEngine() *Engine { return &Engine{snap: &Snapshot{}} }

// Snapshot returns the current snapshot.
func (e *Engine) Snapshot() *Snapshot { return e.snap }

// SetSnapshot swaps in a new snapshot. Nil means inactive.
func (e *Engine) SetSnapshot(s *Snapshot) {
	if s == nil {
		s = &Snapshot{}
	}
	e.snap = s
}

// OnMutations re-runs the substitution pass on every inserted element that
// is not itself a marker. It does nothing while the snapshot is inactive.
func (e *Engine) OnMutations(records []MutationRecord) {
	if !e.snap.Active() {
		return
	}
	for _, r := range records {
		for _, n := range r.AddedNodes {
			if n.Type != html.ElementNode || IsMarker(n) {
				continue
			}
			Replace(n, e.snap)
		}
	}
}
