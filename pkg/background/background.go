// Package background keeps the stored WaniKani data and the derived
// vocabulary matcher fresh: on install, on a schedule and whenever a
// preference that feeds the vocabulary changes.
package background

import (
	"context"
	"fmt"
	"time"

	"github.com/japaniel/vocabify/pkg/config"
	"github.com/japaniel/vocabify/pkg/logger"
	"github.com/japaniel/vocabify/pkg/state"
	"github.com/japaniel/vocabify/pkg/syncer"
	"github.com/japaniel/vocabify/pkg/vocab"
)

// Alarm names.
const (
	AlarmAssignments = "update-assignment-alarm"
	AlarmVocabulary  = "update-vocabulary-alarm"
	AlarmUser        = "update-user-alarm"
)

// Service runs the updaters and recomputes the vocabulary.
type Service struct {
	State  *state.State
	Syncer *syncer.Syncer
	Log    *logger.Logger

	// Chooser breaks selection ties.
	Chooser vocab.Chooser
	// Readings, when set, annotates every entry with a kana reading.
	Readings func(characters string) string
}

// New returns a service over st using s for remote updates.
func New(st *state.State, s *syncer.Syncer, log *logger.Logger) *Service {
	return &Service{State: st, Syncer: s, Log: logger.OrNop(log)}
}

func (svc *Service) log() *logger.Logger { return logger.OrNop(svc.Log) }

// RecomputeVocab rebuilds the vocabulary table from storage, compiles it
// and stores the matcher.
func (svc *Service) RecomputeVocab(ctx context.Context) error {
	in, err := svc.State.VocabInputs(ctx)
	if err != nil {
		return fmt.Errorf("recompute vocab: %w", err)
	}
	table := vocab.Build(in, svc.Chooser)
	if svc.Readings != nil {
		table.Annotate(svc.Readings)
	}
	if err := svc.State.Vocab.Set(ctx, vocab.Compile(table)); err != nil {
		return fmt.Errorf("recompute vocab: %w", err)
	}
	svc.log().Info("vocabulary recomputed", "words", len(table))
	return nil
}

// OnInstall performs the first full download and builds the vocabulary.
func (svc *Service) OnInstall(ctx context.Context) error {
	steps := []func(context.Context) error{
		svc.Syncer.UpdateUser,
		svc.Syncer.UpdateSubjects,
		svc.Syncer.UpdateAssignments,
		svc.Syncer.UpdateStudyMaterials,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return fmt.Errorf("install: %w", err)
		}
	}
	return svc.RecomputeVocab(ctx)
}

// HandleAlarm runs the updater for the named alarm and then recomputes
// the vocabulary. Unknown names are logged and only recompute.
func (svc *Service) HandleAlarm(ctx context.Context, name string) error {
	var err error
	switch name {
	case AlarmAssignments:
		if err = svc.Syncer.UpdateAssignments(ctx); err == nil {
			err = svc.Syncer.UpdateStudyMaterials(ctx)
		}
	case AlarmVocabulary:
		err = svc.Syncer.UpdateSubjects(ctx)
	case AlarmUser:
		err = svc.Syncer.UpdateUser(ctx)
	default:
		svc.log().Error("unknown alarm", "alarm", name)
	}
	if err != nil {
		return fmt.Errorf("alarm %s: %w", name, err)
	}
	return svc.RecomputeVocab(ctx)
}

// SyncAndRecompute runs a full sync followed by a recompute.
func (svc *Service) SyncAndRecompute(ctx context.Context) error {
	if err := svc.Syncer.SyncAll(ctx); err != nil {
		return err
	}
	return svc.RecomputeVocab(ctx)
}

// Bind subscribes to the preferences that feed the vocabulary and to the
// API token. The returned function removes the subscriptions.
func (svc *Service) Bind(ctx context.Context) func() {
	recompute := func() {
		if err := svc.RecomputeVocab(ctx); err != nil {
			svc.log().Error("recompute after preference change failed", "error", err)
		}
	}
	resync := func() {
		if err := svc.SyncAndRecompute(ctx); err != nil {
			svc.log().Error("resync after token change failed", "error", err)
		}
	}
	unsubs := []func(){
		svc.State.SRSRange.Subscribe(recompute),
		svc.State.SubjectTypes.Subscribe(recompute),
		svc.State.IncludeSynonyms.Subscribe(recompute),
		svc.State.APIToken.Subscribe(resync),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Run fires each alarm at its interval until ctx ends. Alarm failures are
// logged and do not stop the loop.
func (svc *Service) Run(ctx context.Context, intervals config.AlarmConfig) error {
	assignments := time.NewTicker(intervals.Assignments)
	defer assignments.Stop()
	subjects := time.NewTicker(intervals.Subjects)
	defer subjects.Stop()
	user := time.NewTicker(intervals.User)
	defer user.Stop()

	svc.log().Info("background loop started",
		"assignments", intervals.Assignments, "subjects", intervals.Subjects, "user", intervals.User)
	for {
		var name string
		select {
		case <-ctx.Done():
			svc.log().Info("background loop stopped")
			return nil
		case <-assignments.C:
			name = AlarmAssignments
		case <-subjects.C:
			name = AlarmVocabulary
		case <-user.C:
			name = AlarmUser
		}
		if err := svc.HandleAlarm(ctx, name); err != nil {
			svc.log().Warn("alarm failed", "alarm", name, "error", err)
		}
	}
}
