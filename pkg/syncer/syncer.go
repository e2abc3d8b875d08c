// Package syncer mirrors the user's WaniKani data into local storage.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/japaniel/vocabify/pkg/db"
	"github.com/japaniel/vocabify/pkg/logger"
	"github.com/japaniel/vocabify/pkg/state"
	"github.com/japaniel/vocabify/pkg/wanikani"
)

// WatermarkSkew is subtracted from the current time when recording a sync
// watermark, so clock drift between us and the API never skips an update.
const WatermarkSkew = time.Hour

// ErrRateLimited aborts the rest of a sync cycle.
var ErrRateLimited = errors.New("wanikani rate limit reached")

// Syncer runs the per-resource updaters. It is not safe for concurrent use.
type Syncer struct {
	Client *wanikani.Client
	State  *state.State
	Log    *logger.Logger
	Now    func() time.Time
}

// New returns a Syncer using client for requests and st for storage.
func New(client *wanikani.Client, st *state.State, log *logger.Logger) *Syncer {
	return &Syncer{Client: client, State: st, Log: logger.OrNop(log), Now: time.Now}
}

func (s *Syncer) log() *logger.Logger { return logger.OrNop(s.Log) }

func (s *Syncer) watermark() time.Time {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().Add(-WatermarkSkew).UTC()
}

// client returns a client carrying the stored token, nil when there is none.
func (s *Syncer) client(ctx context.Context) (*wanikani.Client, error) {
	tok, err := s.State.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("read api token: %w", err)
	}
	c := s.Client
	if c == nil {
		c = wanikani.NewClient("")
	}
	c = c.WithToken(tok)
	if !c.Configured() {
		return nil, nil
	}
	return c, nil
}

// fetchError marks an error that came out of the fetcher, as opposed to a
// storage failure.
type fetchError struct {
	resource string
	err      error
}

func (e *fetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.resource, e.err) }
func (e *fetchError) Unwrap() error { return e.err }

// settle decides what a failed update means for the cycle. Rate limiting
// aborts the cycle; unexpected statuses, storage errors and cancellation
// propagate; anything else is logged and swallowed.
func (s *Syncer) settle(ctx context.Context, err error) error {
	var fe *fetchError
	if err == nil || !errors.As(err, &fe) {
		return err
	}
	var se *wanikani.StatusError
	if errors.As(err, &se) && se.Status == wanikani.StatusTooManyRequests {
		s.log().Warn("hit WaniKani rate limit, stopping", "resource", fe.resource)
		return fmt.Errorf("%s: %w", fe.resource, ErrRateLimited)
	}
	var ue *wanikani.UnexpectedStatusError
	if errors.As(err, &ue) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.log().Error("failed to update WaniKani resource", "resource", fe.resource, "error", fe.err)
	return nil
}

type fetchFunc[T any] func(ctx context.Context, c *wanikani.Client, since *time.Time) ([]T, error)

// updateRecords is the shared updater template for record collections.
func updateRecords[T any](ctx context.Context, s *Syncer, store *db.RecordStore[T], resetUnconfigured bool, fetch fetchFunc[T]) error {
	c, err := s.client(ctx)
	if err != nil {
		return err
	}
	if c == nil {
		if !resetUnconfigured {
			return nil
		}
		s.log().Debug("no api token, clearing collection", "resource", store.Name())
		return store.Reset(ctx)
	}

	watermark := s.watermark()
	since, err := store.LastUpdated(ctx)
	if err != nil {
		return err
	}
	recs, err := fetch(ctx, c, since)
	if err != nil {
		return &fetchError{resource: store.Name(), err: err}
	}
	if err := store.Upsert(ctx, recs, watermark); err != nil {
		return err
	}
	s.log().Info("synced WaniKani resource", "resource", store.Name(), "records", len(recs), "watermark", watermark)
	return nil
}

// UpdateAssignments merges assignments changed since the last sync.
func (s *Syncer) UpdateAssignments(ctx context.Context) error {
	return s.settle(ctx, updateRecords(ctx, s, s.State.Assignments, true,
		func(ctx context.Context, c *wanikani.Client, since *time.Time) ([]wanikani.Assignment, error) {
			return c.FetchAssignments(ctx, since)
		}))
}

// UpdateStudyMaterials merges study materials changed since the last sync.
func (s *Syncer) UpdateStudyMaterials(ctx context.Context) error {
	return s.settle(ctx, updateRecords(ctx, s, s.State.StudyMaterials, true,
		func(ctx context.Context, c *wanikani.Client, since *time.Time) ([]wanikani.StudyMaterial, error) {
			return c.FetchStudyMaterials(ctx, since)
		}))
}

func (s *Syncer) updateSubjectType(ctx context.Context, t wanikani.SubjectType) error {
	return updateRecords(ctx, s, s.State.Subjects[t], false,
		func(ctx context.Context, c *wanikani.Client, since *time.Time) ([]wanikani.Subject, error) {
			return c.FetchSubjects(ctx, t, since)
		})
}

// UpdateSubjects updates the four subject collections in order. An
// unauthorized response skips the remaining types; rate limiting aborts
// the cycle; other failures skip only the affected type. Subject
// collections are left alone when no token is configured.
func (s *Syncer) UpdateSubjects(ctx context.Context) error {
	for _, t := range wanikani.SubjectTypes {
		err := s.updateSubjectType(ctx, t)
		var se *wanikani.StatusError
		if errors.As(err, &se) && se.Status == wanikani.StatusUnauthorized {
			s.log().Error("unauthorized, skipping remaining subject types", "subject_type", t)
			return nil
		}
		if err := s.settle(ctx, err); err != nil {
			return err
		}
	}
	return nil
}

// UpdateUser refreshes the user profile. A not-modified response leaves
// both the profile and its watermark as they are.
func (s *Syncer) UpdateUser(ctx context.Context) error {
	c, err := s.client(ctx)
	if err != nil {
		return err
	}
	if c == nil {
		s.log().Debug("no api token, clearing user")
		return s.State.User.Reset(ctx)
	}

	watermark := s.watermark()
	cur, err := s.State.User.Get(ctx)
	if err != nil {
		return err
	}
	u, err := c.FetchUser(ctx, cur.LastUpdated)
	if err != nil {
		return s.settle(ctx, &fetchError{resource: state.KeyUser, err: err})
	}
	if u == nil {
		s.log().Debug("user not modified")
		return nil
	}
	if err := s.State.User.Set(ctx, state.UserState{LastUpdated: &watermark, User: u}); err != nil {
		return err
	}
	s.log().Info("synced WaniKani user", "level", u.Data.Level)
	return nil
}

// SyncAll runs every updater: user, subjects, assignments, then study
// materials. It stops at the first error that is not isolated to one
// resource, including ErrRateLimited.
func (s *Syncer) SyncAll(ctx context.Context) error {
	steps := []func(context.Context) error{
		s.UpdateUser,
		s.UpdateSubjects,
		s.UpdateAssignments,
		s.UpdateStudyMaterials,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}
