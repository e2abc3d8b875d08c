// Package prefs holds the user-facing settings that steer vocabulary
// selection and page translation.
package prefs

import (
	"slices"
	"strings"
	"time"

	"github.com/japaniel/vocabify/pkg/wanikani"
)

// SubjectTypeSelection enables or disables each subject type.
type SubjectTypeSelection struct {
	Radical        bool `json:"radical"`
	Kanji          bool `json:"kanji"`
	Vocabulary     bool `json:"vocabulary"`
	KanaVocabulary bool `json:"kana_vocabulary"`
}

// DefaultSubjectTypes enables every subject type.
func DefaultSubjectTypes() SubjectTypeSelection {
	return SubjectTypeSelection{Radical: true, Kanji: true, Vocabulary: true, KanaVocabulary: true}
}

// Enabled reports whether t is selected.
func (s SubjectTypeSelection) Enabled(t wanikani.SubjectType) bool {
	switch t {
	case wanikani.Radical:
		return s.Radical
	case wanikani.Kanji:
		return s.Kanji
	case wanikani.Vocabulary:
		return s.Vocabulary
	case wanikani.KanaVocabulary:
		return s.KanaVocabulary
	}
	return false
}

// Set enables or disables t. Unknown types are ignored.
func (s *SubjectTypeSelection) Set(t wanikani.SubjectType, on bool) {
	switch t {
	case wanikani.Radical:
		s.Radical = on
	case wanikani.Kanji:
		s.Kanji = on
	case wanikani.Vocabulary:
		s.Vocabulary = on
	case wanikani.KanaVocabulary:
		s.KanaVocabulary = on
	}
}

// Toggle flips the selection of t.
func (s *SubjectTypeSelection) Toggle(t wanikani.SubjectType) {
	s.Set(t, !s.Enabled(t))
}

// SRSRange bounds the SRS stages that are eligible. Both bounds are exclusive.
type SRSRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// DefaultSRSRange admits stages 2 through 7.
func DefaultSRSRange() SRSRange { return SRSRange{Min: 1, Max: 8} }

// Contains reports whether min < stage < max.
func (r SRSRange) Contains(stage int) bool {
	return r.Min < stage && stage < r.Max
}

// DomainSettings lists domains that are always or never translated.
// A domain is in at most one of the two lists.
type DomainSettings struct {
	Always []string `json:"always_translate_domain"`
	Never  []string `json:"never_translate_domain"`
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}

func remove(list []string, d string) []string {
	return slices.DeleteFunc(list, func(s string) bool { return s == d })
}

// AlwaysTranslate adds domain to the always list and removes it from the never list.
func (d *DomainSettings) AlwaysTranslate(domain string) {
	domain = normalizeDomain(domain)
	if !slices.Contains(d.Always, domain) {
		d.Always = append(d.Always, domain)
	}
	d.Never = remove(d.Never, domain)
}

// NeverTranslate adds domain to the never list and removes it from the always list.
func (d *DomainSettings) NeverTranslate(domain string) {
	domain = normalizeDomain(domain)
	if !slices.Contains(d.Never, domain) {
		d.Never = append(d.Never, domain)
	}
	d.Always = remove(d.Always, domain)
}

// ToggleAlwaysTranslate flips membership of the always list.
func (d *DomainSettings) ToggleAlwaysTranslate(domain string) {
	domain = normalizeDomain(domain)
	if slices.Contains(d.Always, domain) {
		d.Always = remove(d.Always, domain)
		return
	}
	d.AlwaysTranslate(domain)
}

// ToggleNeverTranslate flips membership of the never list.
func (d *DomainSettings) ToggleNeverTranslate(domain string) {
	domain = normalizeDomain(domain)
	if slices.Contains(d.Never, domain) {
		d.Never = remove(d.Never, domain)
		return
	}
	d.NeverTranslate(domain)
}

// Forget removes domain from both lists.
func (d *DomainSettings) Forget(domain string) {
	domain = normalizeDomain(domain)
	d.Always = remove(d.Always, domain)
	d.Never = remove(d.Never, domain)
}

// IsAlways reports whether domain is on the always list.
func (d DomainSettings) IsAlways(domain string) bool {
	return slices.Contains(d.Always, normalizeDomain(domain))
}

// IsNever reports whether domain is on the never list.
func (d DomainSettings) IsNever(domain string) bool {
	return slices.Contains(d.Never, normalizeDomain(domain))
}

// TranslationSettings holds the global on/off switch. InvertUntil
// temporarily flips TranslateByDefault until the given time.
type TranslationSettings struct {
	TranslateByDefault bool      `json:"translate_by_default"`
	InvertUntil        time.Time `json:"invert_until"`
}

// DefaultTranslation translates by default with no inversion.
func DefaultTranslation() TranslationSettings {
	return TranslationSettings{TranslateByDefault: true}
}

// ToggleTranslateByDefault flips the default and cancels any inversion.
func (t *TranslationSettings) ToggleTranslateByDefault() {
	t.TranslateByDefault = !t.TranslateByDefault
	t.InvertUntil = time.Time{}
}

// Active reports whether translation is on at now.
func (t TranslationSettings) Active(now time.Time) bool {
	inverted := !t.InvertUntil.IsZero() && now.Before(t.InvertUntil)
	return t.TranslateByDefault != inverted
}

// ShouldTranslate combines the domain lists and the global switch: an
// always-translated domain wins, otherwise translation must be active and
// the domain not on the never list.
func ShouldTranslate(domain string, d DomainSettings, t TranslationSettings, now time.Time) bool {
	if d.IsAlways(domain) {
		return true
	}
	return t.Active(now) && !d.IsNever(domain)
}
