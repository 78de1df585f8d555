package trial

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheSimpleMango/ImagineFace/internal/gaze"
	"github.com/TheSimpleMango/ImagineFace/internal/models"
	"github.com/TheSimpleMango/ImagineFace/internal/store"
)

type fakeRunner struct {
	ran        []int
	abortOn    int
	persistErr int
}

func (r *fakeRunner) Run(_ context.Context, trialID int, plan models.TrialPlan) (models.TrialRecord, error) {
	r.ran = append(r.ran, trialID)
	if trialID == r.persistErr {
		return models.TrialRecord{}, &store.PersistenceError{Participant: "p", TrialID: trialID, Err: errors.New("disk full")}
	}
	rec := models.TrialRecord{TrialID: trialID, Identity: plan.Identity}
	if trialID == r.abortOn {
		rec.Aborted = true
	}
	return rec, nil
}

type fakeGaze struct {
	failures int
	starts   int
	stops    int
}

func (g *fakeGaze) Start(context.Context) error {
	g.starts++
	if g.starts <= g.failures {
		return &gaze.AcquisitionStartError{Reason: "no sample within handshake timeout"}
	}
	return nil
}

func (g *fakeGaze) Stop() { g.stops++ }

type fakeSessionStore struct {
	specs     *models.MonitorConfig
	manifests map[string]any
	failSpecs bool
}

func (s *fakeSessionStore) WriteHardwareSpecs(cfg models.MonitorConfig) error {
	if s.failSpecs {
		return errors.New("read-only filesystem")
	}
	s.specs = &cfg
	return nil
}

func (s *fakeSessionStore) WriteJSON(name string, v any) error {
	if s.manifests == nil {
		s.manifests = map[string]any{}
	}
	s.manifests[name] = v
	return nil
}

func threeTrialPlan() *models.TaskPlan {
	return &models.TaskPlan{Trials: []models.TrialPlan{
		{Identity: "Lucia", CueID: "c1", Landmarks: []string{models.LandmarkNose}},
		{Identity: "Mark", CueID: "c2", Landmarks: []string{models.LandmarkNose}},
		{Identity: "Donald", CueID: "c3", Landmarks: []string{models.LandmarkNose}},
	}}
}

func testSessionMonitor() models.MonitorConfig {
	return models.MonitorConfig{WidthPx: 1920, HeightPx: 1080, DiagonalInches: 24, ViewingDistanceM: 0.5}
}

func TestAggregator_FullSession(t *testing.T) {
	runner := &fakeRunner{}
	g := &fakeGaze{}
	st := &fakeSessionStore{}

	agg := NewAggregator(SessionOptions{
		Participant: "p01",
		Monitor:     testSessionMonitor(),
		Plan:        threeTrialPlan(),
		Runner:      runner,
		Gaze:        g,
		Store:       st,
	})

	manifest, err := agg.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, runner.ran, "trials run sequentially in plan order")
	assert.Equal(t, SessionCompleted, manifest.State)
	assert.Equal(t, 3, manifest.TrialsCompleted)
	assert.Zero(t, manifest.TrialsSkipped)
	assert.True(t, manifest.GazeAvailable)
	assert.Equal(t, 1, g.stops, "tracker stopped exactly once")
	require.NotNil(t, st.specs, "hardware snapshot written at session start")
	assert.Contains(t, st.manifests, "session_manifest.json")
}

func TestAggregator_PersistenceFailureAbortsRemainder(t *testing.T) {
	runner := &fakeRunner{persistErr: 2}
	st := &fakeSessionStore{}

	agg := NewAggregator(SessionOptions{
		Participant: "p01",
		Monitor:     testSessionMonitor(),
		Plan:        threeTrialPlan(),
		Runner:      runner,
		Gaze:        &fakeGaze{},
		Store:       st,
	})

	manifest, err := agg.Run(context.Background())
	require.Error(t, err)
	var perr *store.PersistenceError
	assert.True(t, errors.As(err, &perr))

	assert.Equal(t, []int{1, 2}, runner.ran, "trial 3 skipped, never run")
	assert.Equal(t, SessionAborting, manifest.State)
	assert.Equal(t, 1, manifest.TrialsCompleted)
	assert.Equal(t, 2, manifest.TrialsSkipped)
	require.Len(t, manifest.Trials, 3)
	assert.Equal(t, "completed", manifest.Trials[0].State)
	assert.Equal(t, "skipped", manifest.Trials[1].State)
	assert.Equal(t, "skipped", manifest.Trials[2].State)
	assert.Contains(t, st.manifests, "session_manifest.json",
		"manifest written even when the session aborts")
}

func TestAggregator_GazeStartRetriesThenDegrades(t *testing.T) {
	g := &fakeGaze{failures: 10} // never becomes ready
	runner := &fakeRunner{}

	agg := NewAggregator(SessionOptions{
		Participant:      "p01",
		Monitor:          testSessionMonitor(),
		Plan:             threeTrialPlan(),
		Runner:           runner,
		Gaze:             g,
		Store:            &fakeSessionStore{},
		GazeStartRetries: 3,
	})

	manifest, err := agg.Run(context.Background())
	require.NoError(t, err, "missing gaze degrades the session, never aborts it")
	assert.Equal(t, 3, g.starts)
	assert.False(t, manifest.GazeAvailable)
	assert.Equal(t, 3, manifest.TrialsCompleted)
}

func TestAggregator_GazeRecoversOnRetry(t *testing.T) {
	g := &fakeGaze{failures: 1}

	agg := NewAggregator(SessionOptions{
		Participant:      "p01",
		Monitor:          testSessionMonitor(),
		Plan:             threeTrialPlan(),
		Runner:           &fakeRunner{},
		Gaze:             g,
		Store:            &fakeSessionStore{},
		GazeStartRetries: 3,
	})

	manifest, err := agg.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, manifest.GazeAvailable)
	assert.Equal(t, 2, g.starts)
}

func TestAggregator_ParticipantAbortStopsPlan(t *testing.T) {
	runner := &fakeRunner{abortOn: 1}
	st := &fakeSessionStore{}

	agg := NewAggregator(SessionOptions{
		Participant: "p01",
		Monitor:     testSessionMonitor(),
		Plan:        threeTrialPlan(),
		Runner:      runner,
		Gaze:        &fakeGaze{},
		Store:       st,
	})

	manifest, err := agg.Run(context.Background())
	require.NoError(t, err, "a participant abort is an outcome, not an error")

	assert.Equal(t, []int{1}, runner.ran, "no trials run after the abort")
	assert.Equal(t, SessionAborted, manifest.State)
	assert.Equal(t, 1, manifest.TrialsCompleted,
		"the aborted trial still persisted its partial record")
	assert.Equal(t, 2, manifest.TrialsSkipped)
	require.Len(t, manifest.Trials, 3)
	assert.Equal(t, "aborted", manifest.Trials[0].State)
	assert.Equal(t, "skipped", manifest.Trials[1].State)
	assert.Equal(t, "skipped", manifest.Trials[2].State)
	assert.Contains(t, st.manifests, "session_manifest.json")
}

func TestAggregator_AbortMidPlanKeepsEarlierTrials(t *testing.T) {
	runner := &fakeRunner{abortOn: 2}

	agg := NewAggregator(SessionOptions{
		Participant: "p01",
		Monitor:     testSessionMonitor(),
		Plan:        threeTrialPlan(),
		Runner:      runner,
		Gaze:        &fakeGaze{},
		Store:       &fakeSessionStore{},
	})

	manifest, err := agg.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, runner.ran)
	assert.Equal(t, SessionAborted, manifest.State)
	assert.Equal(t, "completed", manifest.Trials[0].State)
	assert.Equal(t, "aborted", manifest.Trials[1].State)
	assert.Equal(t, "skipped", manifest.Trials[2].State)
	assert.Equal(t, 2, manifest.TrialsCompleted)
	assert.Equal(t, 1, manifest.TrialsSkipped)
}
