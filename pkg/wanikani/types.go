package wanikani

import (
	"encoding/json"
	"time"
)

// SubjectType identifies one of the four kinds of learnable subject. Tags
// the API adds later decode as-is and fail Valid.
type SubjectType string

const (
	Radical        SubjectType = "radical"
	Kanji          SubjectType = "kanji"
	Vocabulary     SubjectType = "vocabulary"
	KanaVocabulary SubjectType = "kana_vocabulary"
)

// SubjectTypes lists every subject type in sync order.
var SubjectTypes = []SubjectType{Radical, Kanji, Vocabulary, KanaVocabulary}

// Valid reports whether t is one of the known subject types.
func (t SubjectType) Valid() bool {
	switch t {
	case Radical, Kanji, Vocabulary, KanaVocabulary:
		return true
	}
	return false
}

// Priority ranks subject types for tie-breaking: higher wins.
// Vocabulary > kana vocabulary > kanji > radical.
func (t SubjectType) Priority() int {
	switch t {
	case Vocabulary:
		return 4
	case KanaVocabulary:
		return 3
	case Kanji:
		return 2
	case Radical:
		return 1
	}
	return 0
}

// Resource is the envelope every WaniKani record is delivered in.
type Resource[T any] struct {
	ID            int64     `json:"id"`
	Object        string    `json:"object"`
	URL           string    `json:"url"`
	DataUpdatedAt time.Time `json:"data_updated_at"`
	Data          T         `json:"data"`
}

// Meaning is one English meaning of a subject.
type Meaning struct {
	Meaning        string `json:"meaning"`
	Primary        bool   `json:"primary"`
	AcceptedAnswer bool   `json:"accepted_answer"`
}

// AuxiliaryMeaning is a whitelisted or blacklisted alternative answer.
type AuxiliaryMeaning struct {
	Meaning string `json:"meaning"`
	Type    string `json:"type"`
}

// SubjectData holds the attributes shared by all subject types.
// Characters is nil for radicals that only exist as images.
type SubjectData struct {
	Characters        *string            `json:"characters"`
	Level             int                `json:"level"`
	Meanings          []Meaning          `json:"meanings"`
	AuxiliaryMeanings []AuxiliaryMeaning `json:"auxiliary_meanings,omitempty"`
	Slug              string             `json:"slug,omitempty"`
	DocumentURL       string             `json:"document_url,omitempty"`
	LessonPosition    int                `json:"lesson_position,omitempty"`
	CreatedAt         *time.Time         `json:"created_at,omitempty"`
	HiddenAt          *time.Time         `json:"hidden_at,omitempty"`
}

// Subject is a radical, kanji, vocabulary or kana vocabulary item.
type Subject = Resource[SubjectData]

// AssignmentData tracks a user's progress on one subject.
type AssignmentData struct {
	SubjectID     int64       `json:"subject_id"`
	SubjectType   SubjectType `json:"subject_type"`
	SRSStage      int         `json:"srs_stage"`
	Hidden        bool        `json:"hidden"`
	CreatedAt     *time.Time  `json:"created_at,omitempty"`
	UnlockedAt    *time.Time  `json:"unlocked_at,omitempty"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	PassedAt      *time.Time  `json:"passed_at,omitempty"`
	BurnedAt      *time.Time  `json:"burned_at,omitempty"`
	ResurrectedAt *time.Time  `json:"resurrected_at,omitempty"`
	AvailableAt   *time.Time  `json:"available_at,omitempty"`
}

// Assignment is the per-user progress record for a subject.
type Assignment = Resource[AssignmentData]

// StudyMaterialData carries the user's own notes and synonyms for a subject.
type StudyMaterialData struct {
	SubjectID       int64       `json:"subject_id"`
	SubjectType     SubjectType `json:"subject_type"`
	MeaningNote     string      `json:"meaning_note"`
	ReadingNote     string      `json:"reading_note"`
	MeaningSynonyms []string    `json:"meaning_synonyms"`
	CreatedAt       *time.Time  `json:"created_at,omitempty"`
}

// StudyMaterial is a user-authored annotation of a subject.
type StudyMaterial = Resource[StudyMaterialData]

// Subscription describes what content the user has paid for.
type Subscription struct {
	Active          bool       `json:"active"`
	Type            string     `json:"type"`
	MaxLevelGranted int        `json:"max_level_granted"`
	PeriodEndsAt    *time.Time `json:"period_ends_at,omitempty"`
}

// UserData is the profile part of the user resource.
type UserData struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	Level        int          `json:"level"`
	ProfileURL   string       `json:"profile_url,omitempty"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	Subscription Subscription `json:"subscription"`
}

// User is the singleton user resource. It has no numeric id.
type User struct {
	Object        string    `json:"object"`
	URL           string    `json:"url"`
	DataUpdatedAt time.Time `json:"data_updated_at"`
	Data          UserData  `json:"data"`
}

// Pages is the pagination block of a collection response.
type Pages struct {
	NextURL     *string `json:"next_url"`
	PreviousURL *string `json:"previous_url"`
	PerPage     int     `json:"per_page"`
}

// Collection is one page of a collection endpoint.
type Collection struct {
	Object        string            `json:"object"`
	URL           string            `json:"url"`
	Pages         Pages             `json:"pages"`
	TotalCount    int               `json:"total_count"`
	DataUpdatedAt *time.Time        `json:"data_updated_at"`
	Data          []json.RawMessage `json:"data"`
}
