package vocabify

import (
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/dom"
	"golang.org/x/net/html"

	"github.com/japaniel/vocabify/pkg/vocab"
	"github.com/japaniel/vocabify/pkg/wanikani"
)

// Marker attributes and classes.
const (
	MarkerClass     = "vocabify"
	AttrCharacters  = "data-vocabify"
	AttrSubjectType = "data-vocabify-subject-type"
	AttrLevel       = "data-vocabify-level"
	AttrReading     = "data-vocabify-reading"
	LevelUndefined  = "undefined"

	markerTag = "span"
)

var markerSelector = cascadia.MustCompile("." + MarkerClass)

// StyleClass is the styled class for a subject type, e.g. "vocabify-kanji".
func StyleClass(t wanikani.SubjectType) string { return MarkerClass + "-" + string(t) }

// NoStyleClass is the unstyled class, e.g. "vocabify-kanji-no-style".
func NoStyleClass(t wanikani.SubjectType) string { return StyleClass(t) + "-no-style" }

func typeClass(t wanikani.SubjectType, styled bool) string {
	if styled {
		return StyleClass(t)
	}
	return NoStyleClass(t)
}

// IsMarker reports whether n is a marker element.
func IsMarker(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && markerSelector.Match(n)
}

// Markers returns every marker under root, root included.
func Markers(root *html.Node) []*html.Node {
	if root == nil {
		return nil
	}
	var out []*html.Node
	if IsMarker(root) {
		out = append(out, root)
	}
	return append(out, cascadia.QueryAll(root, markerSelector)...)
}

func levelAttr(level int) string {
	if level <= 0 {
		return LevelUndefined
	}
	return strconv.Itoa(level)
}

// newMarker wraps one matched occurrence.
func newMarker(original string, e vocab.Entry, styled bool) *html.Node {
	m := dom.CreateElement(markerTag)
	dom.SetAttribute(m, "class", MarkerClass+" "+typeClass(e.SubjectType, styled))
	dom.SetAttribute(m, "title", original)
	setEntryAttrs(m, e)
	m.AppendChild(dom.CreateTextNode(e.Characters))
	return m
}

func setEntryAttrs(m *html.Node, e vocab.Entry) {
	dom.SetAttribute(m, AttrCharacters, e.Characters)
	dom.SetAttribute(m, AttrSubjectType, string(e.SubjectType))
	dom.SetAttribute(m, AttrLevel, levelAttr(e.Level))
	if e.Reading != "" {
		dom.SetAttribute(m, AttrReading, e.Reading)
	} else {
		dom.RemoveAttribute(m, AttrReading)
	}
}

func classes(n *html.Node) []string {
	return strings.Fields(dom.GetAttribute(n, "class"))
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range classes(n) {
		if c == class {
			return true
		}
	}
	return false
}

func addClass(n *html.Node, class string) {
	if hasClass(n, class) {
		return
	}
	dom.SetAttribute(n, "class", strings.Join(append(classes(n), class), " "))
}

func removeClass(n *html.Node, remove ...string) {
	cs := classes(n)
	kept := cs[:0]
outer:
	for _, c := range cs {
		for _, r := range remove {
			if c == r {
				continue outer
			}
		}
		kept = append(kept, c)
	}
	dom.SetAttribute(n, "class", strings.Join(kept, " "))
}

// setText replaces the children of n with a single text node.
func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(dom.CreateTextNode(text))
}
