// Package vocabify rewrites English words in an HTML tree into the user's
// Japanese vocabulary and keeps those rewrites current as the vocabulary,
// style preference and document change.
package vocabify

import (
	"fmt"
	"regexp"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"

	"github.com/japaniel/vocabify/pkg/vocab"
	"github.com/japaniel/vocabify/pkg/wanikani"
)

// Snapshot is an immutable view of the current vocabulary used by every
// pass. A Snapshot without a pattern makes Replace reverse instead.
type Snapshot struct {
	re     *regexp.Regexp
	lookup vocab.Table
	styled bool
}

// NewSnapshot compiles m case-insensitively.
func NewSnapshot(m vocab.Matcher, styled bool) (*Snapshot, error) {
	s := &Snapshot{lookup: m.Lookup, styled: styled}
	if s.lookup == nil {
		s.lookup = vocab.Table{}
	}
	if !m.HasPattern() || len(m.Lookup) == 0 {
		return s, nil
	}
	re, err := regexp.Compile("(?i)" + m.Pattern)
	if err != nil {
		return nil, fmt.Errorf("compile vocabulary pattern: %w", err)
	}
	s.re = re
	return s, nil
}

// Active reports whether the snapshot has anything to match.
func (s *Snapshot) Active() bool { return s != nil && s.re != nil }

// Styled reports the style preference captured in the snapshot.
func (s *Snapshot) Styled() bool { return s != nil && s.styled }

// Lookup returns the entry for a word, matching case-insensitively.
func (s *Snapshot) Lookup(word string) (vocab.Entry, bool) {
	if s == nil {
		return vocab.Entry{}, false
	}
	e, ok := s.lookup[vocab.Normalize(word)]
	return e, ok
}

// skipped elements hold raw text that must not be rewritten.
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"textarea": true,
	"title":    true,
	"noscript": true,
}

// Replace runs the substitution pass over n and its descendants. Existing
// markers are re-validated instead of rewritten. With an inactive snapshot
// every marker in the document is reversed.
func Replace(n *html.Node, s *Snapshot) {
	if !s.Active() {
		Reverse(documentRoot(n))
		return
	}
	replace(n, s)
}

func replace(n *html.Node, s *Snapshot) {
	switch n.Type {
	case html.TextNode:
		if IsMarker(n.Parent) {
			revalidate(n.Parent, s)
			return
		}
		splitText(n, s)
	case html.ElementNode:
		if IsMarker(n) {
			revalidate(n, s)
			return
		}
		if skipped[dom.TagName(n)] {
			return
		}
		fallthrough
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			replace(c, s)
			c = next
		}
	}
}

// splitText replaces a text node by alternating literal text and markers.
func splitText(n *html.Node, s *Snapshot) {
	parent := n.Parent
	if parent == nil {
		return
	}
	text := n.Data
	matches := s.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return
	}

	var out []*html.Node
	last := 0
	for _, m := range matches {
		start, end := m[2], m[3]
		word := text[start:end]
		e, ok := s.Lookup(word)
		if !ok {
			continue
		}
		if start > last {
			out = append(out, dom.CreateTextNode(text[last:start]))
		}
		out = append(out, newMarker(word, e, s.styled))
		last = end
	}
	if len(out) == 0 {
		return
	}
	if last < len(text) {
		out = append(out, dom.CreateTextNode(text[last:]))
	}
	for _, node := range out {
		parent.InsertBefore(node, n)
	}
	parent.RemoveChild(n)
}

// revalidate brings an existing marker in line with the snapshot. It only
// touches the marker when something differs. A word that left the
// vocabulary gets its original text back but keeps its wrapper.
func revalidate(m *html.Node, s *Snapshot) {
	title := dom.GetAttribute(m, "title")
	current := dom.TextContent(m)
	oldType := dom.GetAttribute(m, AttrSubjectType)

	e, ok := s.Lookup(title)
	if ok {
		if current == e.Characters && oldType == string(e.SubjectType) &&
			dom.GetAttribute(m, AttrLevel) == levelAttr(e.Level) &&
			dom.GetAttribute(m, AttrReading) == e.Reading {
			return
		}
		setText(m, e.Characters)
		if oldType != "" {
			removeClass(m, StyleClass(wanikani.SubjectType(oldType)), NoStyleClass(wanikani.SubjectType(oldType)))
		}
		setEntryAttrs(m, e)
		addClass(m, typeClass(e.SubjectType, s.styled))
		return
	}
	if current == title {
		return
	}
	setText(m, title)
	if oldType != "" {
		removeClass(m, StyleClass(wanikani.SubjectType(oldType)), NoStyleClass(wanikani.SubjectType(oldType)))
	}
}

// Reverse resets every marker under root to its original text and moves
// it to the unstyled class. Markers are never unwrapped.
func Reverse(root *html.Node) {
	for _, m := range Markers(root) {
		if title := dom.GetAttribute(m, "title"); dom.TextContent(m) != title {
			setText(m, title)
		}
		t := dom.GetAttribute(m, AttrSubjectType)
		if t == "" {
			continue
		}
		removeClass(m, StyleClass(wanikani.SubjectType(t)))
		addClass(m, NoStyleClass(wanikani.SubjectType(t)))
	}
}

// Style moves unstyled markers back to the styled class, but only for
// words that are still in the vocabulary.
func Style(root *html.Node, s *Snapshot) {
	for _, m := range Markers(root) {
		t := wanikani.SubjectType(dom.GetAttribute(m, AttrSubjectType))
		if !hasClass(m, NoStyleClass(t)) {
			continue
		}
		if _, ok := s.Lookup(dom.GetAttribute(m, "title")); !ok {
			continue
		}
		removeClass(m, NoStyleClass(t))
		addClass(m, StyleClass(t))
	}
}

// Unstyle moves every styled marker to the unstyled class.
func Unstyle(root *html.Node) {
	for _, m := range Markers(root) {
		t := wanikani.SubjectType(dom.GetAttribute(m, AttrSubjectType))
		if !hasClass(m, StyleClass(t)) {
			continue
		}
		removeClass(m, StyleClass(t))
		addClass(m, NoStyleClass(t))
	}
}

func documentRoot(n *html.Node) *html.Node {
	for n != nil && n.Parent != nil {
		n = n.Parent
	}
	return n
}
