// Package wanikanitest provides an in-process fake of the WaniKani API for
// tests.
package wanikanitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/japaniel/vocabify/pkg/wanikani"
)

// Request records one call made against the fake.
type Request struct {
	Key             string
	Token           string
	UpdatedAfter    string
	IfModifiedSince string
}

// Server serves assignments, study materials, subjects and the user from
// memory. Keys are "assignments", "study_materials", "user" and
// "subjects/<type>".
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	assignments    []wanikani.Assignment
	studyMaterials []wanikani.StudyMaterial
	subjects       map[wanikani.SubjectType][]wanikani.Subject
	user           *wanikani.User
	status         map[string]int
	requests       []Request
}

// NewServer starts a fake with no data. Call Close when done.
func NewServer() *Server {
	s := &Server{
		subjects: make(map[wanikani.SubjectType][]wanikani.Subject),
		status:   make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Client returns an API client pointed at the fake, with no token.
func (s *Server) Client() *wanikani.Client {
	c := wanikani.NewClient("")
	c.BaseURL = s.URL + "/v2/"
	c.HTTPClient = s.Server.Client()
	return c
}

func (s *Server) SetAssignments(a ...wanikani.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = a
}

func (s *Server) SetStudyMaterials(m ...wanikani.StudyMaterial) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.studyMaterials = m
}

func (s *Server) SetSubjects(t wanikani.SubjectType, subs ...wanikani.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[t] = subs
}

func (s *Server) SetUser(u *wanikani.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// SetStatus makes every request for key answer with code. Zero clears it.
func (s *Server) SetStatus(key string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.status, key)
		return
	}
	s.status[key] = code
}

// Requests returns the calls made so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Keys returns the key of every call made so far, in order.
func (s *Server) Keys() []string {
	var keys []string
	for _, r := range s.Requests() {
		keys = append(keys, r.Key)
	}
	return keys
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/v2/")
	if key == "subjects" {
		key = "subjects/" + r.URL.Query().Get("types")
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Key:             key,
		Token:           strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
		UpdatedAfter:    r.URL.Query().Get("updated_after"),
		IfModifiedSince: r.Header.Get("If-Modified-Since"),
	})
	code := s.status[key]
	var body any
	switch {
	case key == "assignments":
		body = collection(s.assignments)
	case key == "study_materials":
		body = collection(s.studyMaterials)
	case key == "user":
		if s.user != nil {
			body = s.user
		}
	case strings.HasPrefix(key, "subjects/"):
		body = collection(s.subjects[wanikani.SubjectType(strings.TrimPrefix(key, "subjects/"))])
	default:
		code = http.StatusNotFound
	}
	s.mu.Unlock()

	if code != 0 {
		w.WriteHeader(code)
		return
	}
	if body == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func collection[T any](data []T) map[string]any {
	if data == nil {
		data = []T{}
	}
	return map[string]any{
		"object":      "collection",
		"pages":       map[string]any{"next_url": nil, "previous_url": nil, "per_page": 500},
		"total_count": len(data),
		"data":        data,
	}
}
