package trial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheSimpleMango/ImagineFace/internal/models"
	"github.com/TheSimpleMango/ImagineFace/internal/store"
)

// scriptedCues plays back a fixed event sequence, one per poll.
type scriptedCues struct {
	started []string
	events  []models.CueEvent
	failArm bool
}

func (c *scriptedCues) StartCue(cueID string) error {
	if c.failArm {
		return errors.New("audio device busy")
	}
	c.started = append(c.started, cueID)
	return nil
}

func (c *scriptedCues) PollEvent() (models.CueEvent, bool) {
	if len(c.events) == 0 {
		return models.CueEvent{}, false
	}
	ev := c.events[0]
	c.events = c.events[1:]
	return ev, true
}

// scriptedLandmarks yields one landmark per poll.
type scriptedLandmarks struct {
	samples []models.LandmarkSample
}

func (l *scriptedLandmarks) Poll() (models.LandmarkSample, bool) {
	if len(l.samples) == 0 {
		return models.LandmarkSample{}, false
	}
	s := l.samples[0]
	l.samples = l.samples[1:]
	return s, true
}

// scriptedGaze yields a fixed burst of samples, then nothing.
type scriptedGaze struct {
	samples []models.GazeSample
}

func (g *scriptedGaze) ReadSample() (models.GazeSample, bool) {
	if len(g.samples) == 0 {
		return models.GazeSample{}, false
	}
	s := g.samples[0]
	g.samples = g.samples[1:]
	return s, true
}

type memStore struct {
	records []models.TrialRecord
	failOn  int
}

func (m *memStore) WriteTrial(rec models.TrialRecord) error {
	if m.failOn != 0 && rec.TrialID == m.failOn {
		return &store.PersistenceError{Participant: "p", TrialID: rec.TrialID, Err: errors.New("disk full")}
	}
	m.records = append(m.records, rec)
	return nil
}

type stubShots struct{ fail bool }

func (s stubShots) Capture(trialID int, _ []byte) (string, error) {
	if s.fail {
		return "", errors.New("no display")
	}
	return "trial.png", nil
}

// instantSleeper advances a fake clock instead of sleeping.
func testClockAndSleeper(start time.Time) (func() time.Time, func(context.Context, time.Duration) error) {
	now := start
	clock := func() time.Time { return now }
	sleeper := func(_ context.Context, d time.Duration) error {
		now = now.Add(d)
		return nil
	}
	return clock, sleeper
}

func landmarks(names ...string) []models.LandmarkSample {
	out := make([]models.LandmarkSample, len(names))
	for i, n := range names {
		out[i] = models.LandmarkSample{Landmark: n, X: float64(i * 10), Y: float64(-i), Timestamp: float64(2000 + i)}
	}
	return out
}

func basePlan() models.TrialPlan {
	return models.TrialPlan{
		Identity: "Lucia",
		CueID:    "cue_lucia",
		Landmarks: []string{
			models.LandmarkLeftEar, models.LandmarkRightEar,
			models.LandmarkChin, models.LandmarkTopOfHead,
		},
	}
}

func TestSynchronizer_CompleteTrial(t *testing.T) {
	clock, sleeper := testClockAndSleeper(time.Unix(2000, 0))
	cues := &scriptedCues{events: []models.CueEvent{
		{CueID: "cue_lucia", Outcome: models.CueCompleted, Timestamp: 2001},
	}}
	st := &memStore{}

	s := NewSynchronizer(Options{
		Cues:      cues,
		Landmarks: &scriptedLandmarks{samples: landmarks(basePlan().Landmarks...)},
		Gaze: &scriptedGaze{samples: []models.GazeSample{
			{Timestamp: 2000.5, X: 3, Y: 4, Valid: true},
			{Timestamp: 2000.6, Valid: false},
		}},
		Shots:   stubShots{},
		Store:   st,
		Clock:   clock,
		Sleeper: sleeper,
	})

	rec, err := s.Run(context.Background(), 1, basePlan())
	require.NoError(t, err)

	assert.Equal(t, []string{"cue_lucia"}, cues.started)
	assert.False(t, rec.Aborted)
	assert.Len(t, rec.Landmarks, 4)
	assert.Len(t, rec.Cues, 1)
	assert.Len(t, rec.Gaze, 2)
	assert.Equal(t, "trial.png", rec.Screenshot)
	assert.Equal(t, "Lucia", rec.Landmarks[0].Identity)
	assert.Equal(t, 1, rec.Landmarks[0].TrialID)
	require.Len(t, st.records, 1)

	// Streams come back in timestamp order regardless of poll order.
	for i := 1; i < len(rec.Landmarks); i++ {
		assert.LessOrEqual(t, rec.Landmarks[i-1].Timestamp, rec.Landmarks[i].Timestamp)
	}
}

func TestSynchronizer_AbortPersistsPartialTrial(t *testing.T) {
	clock, sleeper := testClockAndSleeper(time.Unix(2000, 0))
	st := &memStore{}

	polls := 0
	abort := func() bool {
		polls++
		return polls > 2 // let two landmarks through, then abort
	}

	plan := basePlan()
	plan.Landmarks = append(plan.Landmarks, models.LandmarkNose) // 5 expected

	s := NewSynchronizer(Options{
		Cues:      &scriptedCues{},
		Landmarks: &scriptedLandmarks{samples: landmarks(plan.Landmarks...)},
		Gaze:      &scriptedGaze{},
		Store:     st,
		Abort:     abort,
		Clock:     clock,
		Sleeper:   sleeper,
	})

	rec, err := s.Run(context.Background(), 3, plan)
	require.NoError(t, err)

	assert.True(t, rec.Aborted)
	assert.Len(t, rec.Landmarks, 2, "2 of 5 expected landmarks captured before abort")
	require.Len(t, st.records, 1, "partial trial must still be persisted")
	assert.True(t, st.records[0].Aborted)
}

func TestSynchronizer_TimeoutClosesWindow(t *testing.T) {
	clock, sleeper := testClockAndSleeper(time.Unix(2000, 0))
	st := &memStore{}

	s := NewSynchronizer(Options{
		Cues:         &scriptedCues{},
		Landmarks:    &scriptedLandmarks{}, // participant never draws
		Gaze:         &scriptedGaze{},
		Store:        st,
		TrialTimeout: time.Second,
		Clock:        clock,
		Sleeper:      sleeper,
	})

	rec, err := s.Run(context.Background(), 1, basePlan())
	require.NoError(t, err)
	assert.False(t, rec.Aborted, "timeout is a normal window close, not an abort")
	assert.Empty(t, rec.Landmarks)
	assert.Len(t, st.records, 1)
}

func TestSynchronizer_PersistFailureIsFatal(t *testing.T) {
	clock, sleeper := testClockAndSleeper(time.Unix(2000, 0))
	st := &memStore{failOn: 1}

	s := NewSynchronizer(Options{
		Cues:      &scriptedCues{},
		Landmarks: &scriptedLandmarks{samples: landmarks(basePlan().Landmarks...)},
		Gaze:      &scriptedGaze{},
		Store:     st,
		Clock:     clock,
		Sleeper:   sleeper,
	})

	_, err := s.Run(context.Background(), 1, basePlan())
	var perr *store.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Empty(t, st.records)
}

func TestSynchronizer_CueStartFailureRecordedNotFatal(t *testing.T) {
	clock, sleeper := testClockAndSleeper(time.Unix(2000, 0))
	st := &memStore{}

	s := NewSynchronizer(Options{
		Cues:      &scriptedCues{failArm: true},
		Landmarks: &scriptedLandmarks{samples: landmarks(basePlan().Landmarks...)},
		Gaze:      &scriptedGaze{},
		Store:     st,
		Clock:     clock,
		Sleeper:   sleeper,
	})

	rec, err := s.Run(context.Background(), 1, basePlan())
	require.NoError(t, err)
	require.Len(t, rec.Cues, 1)
	assert.Equal(t, models.CueAborted, rec.Cues[0].Outcome)
	assert.Len(t, rec.Landmarks, 4, "drawing data survives a dead cue")
}

func TestSynchronizer_ScreenshotFailureKeepsTrial(t *testing.T) {
	clock, sleeper := testClockAndSleeper(time.Unix(2000, 0))
	st := &memStore{}

	s := NewSynchronizer(Options{
		Cues:      &scriptedCues{},
		Landmarks: &scriptedLandmarks{samples: landmarks(basePlan().Landmarks...)},
		Gaze:      &scriptedGaze{},
		Shots:     stubShots{fail: true},
		Store:     st,
		Clock:     clock,
		Sleeper:   sleeper,
	})

	rec, err := s.Run(context.Background(), 1, basePlan())
	require.NoError(t, err)
	assert.Empty(t, rec.Screenshot)
	assert.Len(t, st.records, 1)
}
