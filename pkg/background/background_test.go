package background

import (
	"context"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/japaniel/vocabify/pkg/config"
	"github.com/japaniel/vocabify/pkg/logger"
	"github.com/japaniel/vocabify/pkg/prefs"
	"github.com/japaniel/vocabify/pkg/state"
	"github.com/japaniel/vocabify/pkg/syncer"
	"github.com/japaniel/vocabify/pkg/wanikani"
	"github.com/japaniel/vocabify/pkg/wanikani/wanikanitest"
)

type fixture struct {
	api  *wanikanitest.Server
	st   *state.State
	svc  *Service
	logs *observer.ObservedLogs
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
	log := logger.FromCore(core)
	svc := New(st, syncer.New(api.Client(), st, log), log)

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
	sm.Data.MeaningSynonyms = []string{"day star"}
	api.SetStudyMaterials(sm)

	u := &wanikani.User{Object: "user"}
	u.Data.Username = "kat"
	u.Data.Level = 5
	u.Data.Subscription.MaxLevelGranted = 60
	api.SetUser(u)

	return &fixture{api: api, st: st, svc: svc, logs: logs}
}

func (f *fixture) lookup(t *testing.T) map[string]string {
	t.Helper()
	m, err := f.st.Vocab.Get(context.Background())
	require.NoError(t, err)
	out := map[string]string{}
	for k, e := range m.Lookup {
		out[k] = e.Characters
	}
	return out
}

func TestOnInstallSyncsAndRecomputes(t *testing.T) {
	f := newFixture(t, "secret")
	require.NoError(t, f.svc.OnInstall(context.Background()))

	assert.Equal(t, []string{
		"user", "subjects/radical", "subjects/kanji", "subjects/vocabulary", "subjects/kana_vocabulary",
		"assignments", "study_materials",
	}, f.api.Keys())
	assert.Equal(t, map[string]string{"sun": "日"}, f.lookup(t))

	m, err := f.st.Vocab.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `\b(sun)\b`, m.Pattern)
}

func TestHandleAlarmDispatch(t *testing.T) {
	tests := []struct {
		alarm string
		keys  []string
	}{
		{AlarmAssignments, []string{"assignments", "study_materials"}},
		{AlarmVocabulary, []string{"subjects/radical", "subjects/kanji", "subjects/vocabulary", "subjects/kana_vocabulary"}},
		{AlarmUser, []string{"user"}},
	}
	for _, tt := range tests {
		t.Run(tt.alarm, func(t *testing.T) {
			f := newFixture(t, "secret")
			require.NoError(t, f.svc.HandleAlarm(context.Background(), tt.alarm))
			assert.Equal(t, tt.keys, f.api.Keys())
			assert.Equal(t, 1, f.logs.FilterMessage("vocabulary recomputed").Len())
		})
	}
}

func TestUnknownAlarmLogsAndRecomputes(t *testing.T) {
	f := newFixture(t, "secret")
	require.NoError(t, f.svc.HandleAlarm(context.Background(), "bogus"))
	assert.Empty(t, f.api.Keys())

	errs := f.logs.FilterMessage("unknown alarm").All()
	require.Len(t, errs, 1)
	assert.Equal(t, zapcore.ErrorLevel, errs[0].Level)
	assert.Equal(t, 1, f.logs.FilterMessage("vocabulary recomputed").Len())
}

func TestRateLimitedAlarmKeepsPreviousVocabulary(t *testing.T) {
	f := newFixture(t, "secret")
	ctx := context.Background()
	require.NoError(t, f.svc.OnInstall(ctx))

	f.api.SetStatus("assignments", http.StatusTooManyRequests)
	err := f.svc.HandleAlarm(ctx, AlarmAssignments)
	assert.ErrorIs(t, err, syncer.ErrRateLimited)
	assert.Equal(t, map[string]string{"sun": "日"}, f.lookup(t))
	assert.Equal(t, 1, f.logs.FilterMessage("vocabulary recomputed").Len())
}

func TestPreferenceChangesRecompute(t *testing.T) {
	f := newFixture(t, "secret")
	ctx := context.Background()
	require.NoError(t, f.svc.OnInstall(ctx))
	unbind := f.svc.Bind(ctx)
	defer unbind()

	require.NoError(t, f.st.IncludeSynonyms.Set(ctx, true))
	assert.Equal(t, map[string]string{"sun": "日", "day star": "日"}, f.lookup(t))

	require.NoError(t, f.st.SRSRange.Set(ctx, prefs.SRSRange{Min: 3, Max: 8}))
	assert.Empty(t, f.lookup(t))

	require.NoError(t, f.st.SRSRange.Set(ctx, prefs.DefaultSRSRange()))
	require.NoError(t, f.st.SubjectTypes.Update(ctx, func(s *prefs.SubjectTypeSelection) { s.Set(wanikani.Kanji, false) }))
	assert.Empty(t, f.lookup(t))
	assert.Zero(t, f.logs.FilterMessage("recompute after preference change failed").Len())
}

func TestTokenChangeResyncs(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	unbind := f.svc.Bind(ctx)
	defer unbind()

	require.NoError(t, f.st.APIToken.Set(ctx, "fresh"))
	keys := f.api.Keys()
	require.NotEmpty(t, keys)
	assert.Equal(t, "user", keys[0])
	for _, r := range f.api.Requests() {
		assert.Equal(t, "fresh", r.Token)
	}
	assert.Equal(t, map[string]string{"sun": "日"}, f.lookup(t))
}

func TestReadingsAnnotateEntries(t *testing.T) {
	f := newFixture(t, "secret")
	f.svc.Readings = func(characters string) string {
		if characters == "日" {
			return "ひ"
		}
		return ""
	}
	require.NoError(t, f.svc.OnInstall(context.Background()))

	m, err := f.st.Vocab.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ひ", m.Lookup["sun"].Reading)
}

func TestRunFiresAlarmsUntilCancelled(t *testing.T) {
	f := newFixture(t, "secret")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := f.svc.Run(ctx, config.AlarmConfig{
		Assignments: 10 * time.Millisecond,
		Subjects:    time.Hour,
		User:        time.Hour,
	})
	require.NoError(t, err)
	keys := f.api.Keys()
	assert.True(t, slices.Contains(keys, "assignments"))
	assert.False(t, slices.Contains(keys, "user"))
	assert.Equal(t, 1, f.logs.FilterMessage("background loop stopped").Len())
}
