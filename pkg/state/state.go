// Package state names every persisted collection and value.
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/japaniel/vocabify/pkg/db"
	"github.com/japaniel/vocabify/pkg/prefs"
	"github.com/japaniel/vocabify/pkg/vocab"
	"github.com/japaniel/vocabify/pkg/wanikani"
)

// Storage keys.
const (
	KeyAssignments    = "assignments"
	KeyStudyMaterials = "study_materials"
	KeyUser           = "user"
	KeyVocab          = "vocab"
	KeyAPIToken       = "api_token"
	KeySubjectTypes   = "prefs/subject_types"
	KeySRSRange       = "prefs/srs_range"
	KeyStyle          = "prefs/style"
	KeyDomains        = "prefs/domains"
	KeyTranslation    = "prefs/translation"
	KeySynonyms       = "prefs/synonyms"
)

// SubjectKey is the collection name for one subject type.
func SubjectKey(t wanikani.SubjectType) string { return "subjects/" + string(t) }

// UserState is the synced user plus its watermark. User is nil until the
// first successful sync.
type UserState struct {
	LastUpdated *time.Time     `json:"last_updated"`
	User        *wanikani.User `json:"user"`
}

// State bundles the named storage instances over one Store.
type State struct {
	Store *db.Store

	Assignments    *db.RecordStore[wanikani.Assignment]
	StudyMaterials *db.RecordStore[wanikani.StudyMaterial]
	Subjects       map[wanikani.SubjectType]*db.RecordStore[wanikani.Subject]
	User           *db.Value[UserState]
	Vocab          *db.Value[vocab.Matcher]
	APIToken       *db.Value[string]

	SubjectTypes    *db.Value[prefs.SubjectTypeSelection]
	SRSRange        *db.Value[prefs.SRSRange]
	Style           *db.Value[bool]
	Domains         *db.Value[prefs.DomainSettings]
	Translation     *db.Value[prefs.TranslationSettings]
	IncludeSynonyms *db.Value[bool]
}

func resourceID[T any](r wanikani.Resource[T]) int64 { return r.ID }

func resourceUpdated[T any](r wanikani.Resource[T]) time.Time { return r.DataUpdatedAt }

// New wires the named instances with their defaults.
func New(s *db.Store) *State {
	st := &State{
		Store:          s,
		Assignments:    db.NewRecordStore(s, KeyAssignments, resourceID[wanikani.AssignmentData], resourceUpdated[wanikani.AssignmentData]),
		StudyMaterials: db.NewRecordStore(s, KeyStudyMaterials, resourceID[wanikani.StudyMaterialData], resourceUpdated[wanikani.StudyMaterialData]),
		Subjects:       make(map[wanikani.SubjectType]*db.RecordStore[wanikani.Subject], len(wanikani.SubjectTypes)),
		User:           db.NewValue(s, KeyUser, UserState{}),
		Vocab:          db.NewValue(s, KeyVocab, vocab.Matcher{Lookup: vocab.Table{}}),
		APIToken:       db.NewValue(s, KeyAPIToken, ""),

		SubjectTypes:    db.NewValue(s, KeySubjectTypes, prefs.DefaultSubjectTypes()),
		SRSRange:        db.NewValue(s, KeySRSRange, prefs.DefaultSRSRange()),
		Style:           db.NewValue(s, KeyStyle, true),
		Domains:         db.NewValue(s, KeyDomains, prefs.DomainSettings{}),
		Translation:     db.NewValue(s, KeyTranslation, prefs.DefaultTranslation()),
		IncludeSynonyms: db.NewValue(s, KeySynonyms, false),
	}
	for _, t := range wanikani.SubjectTypes {
		st.Subjects[t] = db.NewRecordStore(s, SubjectKey(t), resourceID[wanikani.SubjectData], resourceUpdated[wanikani.SubjectData])
	}
	return st
}

// Open opens the database at path and wires the named instances.
func Open(path string) (*State, error) {
	s, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return New(s), nil
}

// Close closes the underlying database.
func (st *State) Close() error { return st.Store.Close() }

// Token returns the configured API token, "" when none.
func (st *State) Token(ctx context.Context) (string, error) {
	return st.APIToken.Get(ctx)
}

// LoadSubjects reads all four subject collections.
func (st *State) LoadSubjects(ctx context.Context) (vocab.Subjects, error) {
	load := func(t wanikani.SubjectType) (map[int64]wanikani.Subject, error) {
		snap, err := st.Subjects[t].Get(ctx)
		if err != nil {
			return nil, err
		}
		return snap.Records, nil
	}
	var subs vocab.Subjects
	var err error
	if subs.Radicals, err = load(wanikani.Radical); err != nil {
		return subs, err
	}
	if subs.Kanji, err = load(wanikani.Kanji); err != nil {
		return subs, err
	}
	if subs.Vocabulary, err = load(wanikani.Vocabulary); err != nil {
		return subs, err
	}
	if subs.KanaVocabulary, err = load(wanikani.KanaVocabulary); err != nil {
		return subs, err
	}
	return subs, nil
}

// VocabInputs gathers everything vocab.Build reads from storage.
func (st *State) VocabInputs(ctx context.Context) (vocab.Inputs, error) {
	var in vocab.Inputs
	var err error
	if in.Selection, err = st.SubjectTypes.Get(ctx); err != nil {
		return in, err
	}
	if in.SRSRange, err = st.SRSRange.Get(ctx); err != nil {
		return in, err
	}
	if in.IncludeSynonyms, err = st.IncludeSynonyms.Get(ctx); err != nil {
		return in, err
	}
	us, err := st.User.Get(ctx)
	if err != nil {
		return in, err
	}
	in.User = us.User
	if in.Subjects, err = st.LoadSubjects(ctx); err != nil {
		return in, err
	}
	if in.Assignments, err = st.Assignments.All(ctx, nil); err != nil {
		return in, err
	}
	if in.IncludeSynonyms {
		if in.StudyMaterials, err = st.StudyMaterials.All(ctx, nil); err != nil {
			return in, err
		}
	}
	return in, nil
}

// CollectionStatus summarises one collection for the status command.
type CollectionStatus struct {
	Name        string
	Count       int
	LastUpdated *time.Time
}

// Status reports every collection, the user and the vocab size.
func (st *State) Status(ctx context.Context) ([]CollectionStatus, error) {
	var out []CollectionStatus
	add := func(info db.CollectionInfo, err error) error {
		if err != nil {
			return err
		}
		out = append(out, CollectionStatus{Name: info.Name, Count: info.Count, LastUpdated: info.LastUpdated})
		return nil
	}
	if err := add(st.Assignments.Info(ctx)); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	for _, t := range wanikani.SubjectTypes {
		if err := add(st.Subjects[t].Info(ctx)); err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
	}
	if err := add(st.StudyMaterials.Info(ctx)); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	us, err := st.User.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	userCount := 0
	if us.User != nil {
		userCount = 1
	}
	out = append(out, CollectionStatus{Name: KeyUser, Count: userCount, LastUpdated: us.LastUpdated})

	m, err := st.Vocab.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	out = append(out, CollectionStatus{Name: KeyVocab, Count: len(m.Lookup)})
	return out, nil
}
