package syncer

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/japaniel/vocabify/pkg/logger"
	"github.com/japaniel/vocabify/pkg/state"
	"github.com/japaniel/vocabify/pkg/wanikani"
	"github.com/japaniel/vocabify/pkg/wanikani/wanikanitest"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	api    *wanikanitest.Server
	st     *state.State
	syncer *Syncer
	logs   *observer.ObservedLogs
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	api := wanikanitest.NewServer()
	t.Cleanup(api.Close)

	st, err := state.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	if token != "" {
		require.NoError(t, st.APIToken.Set(context.Background(), token))
	}

	core, logs := observer.New(zapcore.DebugLevel)
	s := New(api.Client(), st, logger.FromCore(core))
	s.Now = func() time.Time { return fixedNow }

	chars := "日"
	kanji := wanikani.Subject{ID: 440, Object: "kanji"}
	kanji.Data.Characters = &chars
	kanji.Data.Level = 1
	kanji.Data.Meanings = []wanikani.Meaning{{Meaning: "Sun", Primary: true}}
	api.SetSubjects(wanikani.Kanji, kanji)

	a := wanikani.Assignment{ID: 1, Object: "assignment"}
	a.Data.SubjectID = 440
	a.Data.SubjectType = wanikani.Kanji
	a.Data.SRSStage = 3
	api.SetAssignments(a)

	sm := wanikani.StudyMaterial{ID: 9, Object: "study_material"}
	sm.Data.SubjectID = 440
	sm.Data.SubjectType = wanikani.Kanji
	sm.Data.MeaningSynonyms = []string{"day"}
	api.SetStudyMaterials(sm)

	u := &wanikani.User{Object: "user"}
	u.Data.Username = "kat"
	u.Data.Level = 5
	u.Data.Subscription.MaxLevelGranted = 60
	api.SetUser(u)

	return &fixture{api: api, st: st, syncer: s, logs: logs}
}

func subjectKeys(keys []string) []string {
	var out []string
	for _, k := range keys {
		if strings.HasPrefix(k, "subjects/") {
			out = append(out, k)
		}
	}
	return out
}

func TestSyncAllStoresEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "secret")

	require.NoError(t, f.syncer.SyncAll(ctx))
	assert.Equal(t, []string{
		"user", "subjects/radical", "subjects/kanji", "subjects/vocabulary", "subjects/kana_vocabulary",
		"assignments", "study_materials",
	}, f.api.Keys())
	for _, r := range f.api.Requests() {
		assert.Equal(t, "secret", r.Token)
		assert.Empty(t, r.UpdatedAfter, "first sync has no watermark")
		assert.Empty(t, r.IfModifiedSince)
	}

	want := fixedNow.Add(-WatermarkSkew)
	snap, err := f.st.Assignments.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Records, 1)
	require.NotNil(t, snap.LastUpdated)
	assert.True(t, snap.LastUpdated.Equal(want))

	kanji, err := f.st.Subjects[wanikani.Kanji].Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "日", *kanji.Records[440].Data.Characters)

	sms, err := f.st.StudyMaterials.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"day"}, sms.Records[9].Data.MeaningSynonyms)

	us, err := f.st.User.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, us.User)
	assert.Equal(t, "kat", us.User.Data.Username)
	assert.True(t, us.LastUpdated.Equal(want))

	// The second cycle is incremental.
	require.NoError(t, f.syncer.UpdateAssignments(ctx))
	reqs := f.api.Requests()
	last := reqs[len(reqs)-1]
	assert.Equal(t, "assignments", last.Key)
	assert.Equal(t, wanikani.FormatUpdatedAfter(want), last.UpdatedAfter)
	assert.Equal(t, want.Format(http.TimeFormat), last.IfModifiedSince)
}

func TestMissingTokenResetsButKeepsSubjects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "secret")
	require.NoError(t, f.syncer.SyncAll(ctx))
	before := len(f.api.Requests())

	require.NoError(t, f.st.APIToken.Set(ctx, ""))
	require.NoError(t, f.syncer.SyncAll(ctx))
	assert.Len(t, f.api.Requests(), before, "nothing is fetched without a token")

	asg, err := f.st.Assignments.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, asg.Records)
	assert.Nil(t, asg.LastUpdated)

	sms, err := f.st.StudyMaterials.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, sms.Records)

	us, err := f.st.User.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, us.User)

	kanji, err := f.st.Subjects[wanikani.Kanji].Get(ctx)
	require.NoError(t, err)
	assert.Len(t, kanji.Records, 1, "subjects survive token removal")
}

func TestRateLimitAbortsCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "secret")
	f.api.SetStatus("assignments", http.StatusTooManyRequests)

	err := f.syncer.SyncAll(ctx)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.NotContains(t, f.api.Keys(), "study_materials")

	lu, err := f.st.Assignments.LastUpdated(ctx)
	require.NoError(t, err)
	assert.Nil(t, lu, "watermark is not advanced")

	warnings := f.logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "assignments", warnings[0].ContextMap()["resource"])
	assert.Empty(t, f.logs.FilterLevelExact(zapcore.ErrorLevel).All())
}

func TestSubjectsUnauthorizedSkipsRemainingTypes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "secret")
	f.api.SetStatus("subjects/radical", http.StatusUnauthorized)

	require.NoError(t, f.syncer.SyncAll(ctx))
	assert.Equal(t, []string{"subjects/radical"}, subjectKeys(f.api.Keys()))
	assert.Contains(t, f.api.Keys(), "assignments", "other resources still sync")
}

func TestSubjectsOtherFailureSkipsOneType(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "secret")
	f.api.SetStatus("subjects/kanji", http.StatusInternalServerError)

	require.NoError(t, f.syncer.UpdateSubjects(ctx))
	assert.Len(t, subjectKeys(f.api.Keys()), 4)

	lu, err := f.st.Subjects[wanikani.Kanji].LastUpdated(ctx)
	require.NoError(t, err)
	assert.Nil(t, lu)
	lu, err = f.st.Subjects[wanikani.Vocabulary].LastUpdated(ctx)
	require.NoError(t, err)
	assert.NotNil(t, lu)
	assert.Len(t, f.logs.FilterLevelExact(zapcore.ErrorLevel).All(), 1)
}

func TestSubjectsRateLimitStopsCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "secret")
	f.api.SetStatus("subjects/kanji", http.StatusTooManyRequests)

	err := f.syncer.SyncAll(ctx)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, []string{"subjects/radical", "subjects/kanji"}, subjectKeys(f.api.Keys()))
	assert.NotContains(t, f.api.Keys(), "assignments")
}

func TestOtherFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "secret")
	f.api.SetStatus("user", http.StatusServiceUnavailable)

	require.NoError(t, f.syncer.SyncAll(ctx))
	assert.Contains(t, f.api.Keys(), "study_materials")
	us, err := f.st.User.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, us.User)
}

func TestUnexpectedStatusPropagates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "secret")
	f.api.SetStatus("assignments", http.StatusTeapot)

	err := f.syncer.SyncAll(ctx)
	var unexpected *wanikani.UnexpectedStatusError
	require.True(t, errors.As(err, &unexpected), "got %v", err)
	assert.Equal(t, http.StatusTeapot, unexpected.Code)
}

func TestUserNotModifiedKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "secret")
	require.NoError(t, f.syncer.UpdateUser(ctx))

	f.syncer.Now = func() time.Time { return fixedNow.Add(24 * time.Hour) }
	f.api.SetStatus("user", http.StatusNotModified)
	require.NoError(t, f.syncer.UpdateUser(ctx))

	us, err := f.st.User.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, us.User)
	assert.True(t, us.LastUpdated.Equal(fixedNow.Add(-WatermarkSkew)))
}

func TestNotModifiedCollectionAdvancesWatermark(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "secret")
	require.NoError(t, f.syncer.UpdateAssignments(ctx))

	later := fixedNow.Add(2 * time.Hour)
	f.syncer.Now = func() time.Time { return later }
	f.api.SetStatus("assignments", http.StatusNotModified)
	require.NoError(t, f.syncer.UpdateAssignments(ctx))

	snap, err := f.st.Assignments.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Records, 1)
	assert.True(t, snap.LastUpdated.Equal(later.Add(-WatermarkSkew)))
}
