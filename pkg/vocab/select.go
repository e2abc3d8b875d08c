// Package vocab derives the meaning → replacement table from the synced
// WaniKani state and compiles it into a single matching pattern.
package vocab

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/japaniel/vocabify/pkg/prefs"
	"github.com/japaniel/vocabify/pkg/wanikani"
)

// Entry is the replacement chosen for one meaning.
type Entry struct {
	Characters  string               `json:"characters"`
	SubjectType wanikani.SubjectType `json:"subject_type"`
	SRSStage    int                  `json:"srs_stage"`
	Level       int                  `json:"level,omitempty"`
	Reading     string               `json:"reading,omitempty"`
}

// Table maps a lowercased meaning to its replacement.
type Table map[string]Entry

// Subjects holds the four subject collections keyed by subject id.
type Subjects struct {
	Radicals       map[int64]wanikani.Subject
	Kanji          map[int64]wanikani.Subject
	Vocabulary     map[int64]wanikani.Subject
	KanaVocabulary map[int64]wanikani.Subject
}

// Resolve finds the subject an assignment points at, looking only in the
// collection for its type.
func (s Subjects) Resolve(t wanikani.SubjectType, id int64) (wanikani.Subject, bool) {
	var m map[int64]wanikani.Subject
	switch t {
	case wanikani.Radical:
		m = s.Radicals
	case wanikani.Kanji:
		m = s.Kanji
	case wanikani.Vocabulary:
		m = s.Vocabulary
	case wanikani.KanaVocabulary:
		m = s.KanaVocabulary
	default:
		return wanikani.Subject{}, false
	}
	sub, ok := m[id]
	return sub, ok
}

// NewFilter returns the eligibility test for assignments.
func NewFilter(sel prefs.SubjectTypeSelection, r prefs.SRSRange, user wanikani.UserData, subjects Subjects) func(wanikani.Assignment) bool {
	return func(a wanikani.Assignment) bool {
		if !r.Contains(a.Data.SRSStage) {
			return false
		}
		if !sel.Enabled(a.Data.SubjectType) {
			return false
		}
		if a.Data.Hidden {
			return false
		}
		sub, ok := subjects.Resolve(a.Data.SubjectType, a.Data.SubjectID)
		if !ok {
			return false
		}
		if sub.Data.Level > user.Level {
			return false
		}
		if sub.Data.Level > user.Subscription.MaxLevelGranted {
			return false
		}
		return true
	}
}

// Candidate pairs a subject with the SRS stage of its assignment.
type Candidate struct {
	Subject     wanikani.Subject
	SubjectType wanikani.SubjectType
	SRSStage    int
}

// Chooser breaks ties between candidates competing for the same meaning.
// A nil Rand uses the global source.
type Chooser struct {
	Rand *rand.Rand
}

func (c Chooser) coin() bool {
	if c.Rand == nil {
		return rand.IntN(2) == 0
	}
	return c.Rand.IntN(2) == 0
}

// Choose picks the winner of a and b. The lower SRS stage wins; at equal
// stages the same type is a coin flip and different types go by priority.
func (c Chooser) Choose(a Candidate, b *Candidate) Candidate {
	if b == nil {
		return a
	}
	if a.SRSStage != b.SRSStage {
		if a.SRSStage < b.SRSStage {
			return a
		}
		return *b
	}
	if a.SubjectType == b.SubjectType {
		if c.coin() {
			return a
		}
		return *b
	}
	if a.SubjectType.Priority() > b.SubjectType.Priority() {
		return a
	}
	return *b
}

// Inputs is everything Build reads.
type Inputs struct {
	Selection       prefs.SubjectTypeSelection
	SRSRange        prefs.SRSRange
	User            *wanikani.User
	Subjects        Subjects
	Assignments     []wanikani.Assignment
	StudyMaterials  []wanikani.StudyMaterial
	IncludeSynonyms bool
}

// Normalize lowercases a meaning for use as a table key.
func Normalize(meaning string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(meaning))
}

// Build computes the replacement table. Without a user the table is empty.
func Build(in Inputs, c Chooser) Table {
	table := Table{}
	if in.User == nil {
		return table
	}
	eligible := NewFilter(in.Selection, in.SRSRange, in.User.Data, in.Subjects)

	// Assignment order is fixed so a seeded Chooser is reproducible.
	assignments := slices.Clone(in.Assignments)
	slices.SortFunc(assignments, func(a, b wanikani.Assignment) int { return cmp.Compare(a.ID, b.ID) })

	var synonyms map[int64][]string
	if in.IncludeSynonyms {
		synonyms = make(map[int64][]string, len(in.StudyMaterials))
		for _, sm := range in.StudyMaterials {
			synonyms[sm.Data.SubjectID] = append(synonyms[sm.Data.SubjectID], sm.Data.MeaningSynonyms...)
		}
	}

	winners := map[string]*Candidate{}
	var keys []string
	for _, a := range assignments {
		if !eligible(a) {
			continue
		}
		sub, ok := in.Subjects.Resolve(a.Data.SubjectType, a.Data.SubjectID)
		if !ok || sub.Data.Characters == nil {
			continue
		}
		cand := Candidate{Subject: sub, SubjectType: a.Data.SubjectType, SRSStage: a.Data.SRSStage}

		meanings := make([]string, 0, len(sub.Data.Meanings))
		for _, m := range sub.Data.Meanings {
			meanings = append(meanings, m.Meaning)
		}
		meanings = append(meanings, synonyms[sub.ID]...)

		seen := map[string]bool{}
		for _, m := range meanings {
			key := Normalize(m)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			prev, exists := winners[key]
			if !exists {
				keys = append(keys, key)
			}
			w := c.Choose(cand, prev)
			winners[key] = &w
		}
	}

	for _, key := range keys {
		w := winners[key]
		table[key] = Entry{
			Characters:  *w.Subject.Data.Characters,
			SubjectType: w.SubjectType,
			SRSStage:    w.SRSStage,
			Level:       w.Subject.Data.Level,
		}
	}
	return table
}

// Annotate fills in Reading for every entry using fn. Entries for which fn
// returns "" are left without a reading.
func (t Table) Annotate(fn func(characters string) string) {
	for k, e := range t {
		e.Reading = fn(e.Characters)
		t[k] = e
	}
}
