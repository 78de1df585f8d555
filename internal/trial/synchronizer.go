// Package trial drives the acquisition protocol: one synchronizer run
// per drawing task, sequenced across the task plan by the session
// aggregator. Acquisition is cooperative polling on a single goroutine;
// every collaborator is polled non-blocking at a fixed cadence.
package trial

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/TheSimpleMango/ImagineFace/internal/eventlog"
	"github.com/TheSimpleMango/ImagineFace/internal/gaze"
	"github.com/TheSimpleMango/ImagineFace/internal/models"
)

// CuePlayer is the audio collaborator. StartCue begins playback and
// acknowledges synchronously (bounded by the collaborator); cue
// outcomes arrive later through non-blocking polls.
type CuePlayer interface {
	StartCue(cueID string) error
	PollEvent() (models.CueEvent, bool)
}

// LandmarkSource is the drawing-surface collaborator: a non-blocking
// poll for the next landmark the participant has marked, already in
// center-origin pixels.
type LandmarkSource interface {
	Poll() (models.LandmarkSample, bool)
}

// Screenshotter captures the drawing surface once per trial and
// returns an opaque reference. Frame production is external; the
// default implementation persists whatever it is handed.
type Screenshotter interface {
	Capture(trialID int, frame []byte) (string, error)
}

// Persister writes a finalized trial record. Implemented by store.Writer.
type Persister interface {
	WriteTrial(rec models.TrialRecord) error
}

// Options configure a Synchronizer.
type Options struct {
	Cues      CuePlayer
	Landmarks LandmarkSource
	Gaze      gaze.SampleSource
	Shots     Screenshotter
	Store     Persister

	// PollInterval is the acquisition cadence; defaults to ~60 Hz.
	PollInterval time.Duration
	// TrialTimeout is the ceiling on one drawing window.
	TrialTimeout time.Duration
	// Abort is the cooperative cancellation flag, checked once per
	// poll iteration.
	Abort func() bool

	Clock   func() time.Time
	Sleeper func(context.Context, time.Duration) error
	Log     *zap.Logger
}

// Synchronizer runs one landmark-drawing task end to end and produces
// one TrialRecord.
type Synchronizer struct {
	cues      CuePlayer
	landmarks LandmarkSource
	gaze      gaze.SampleSource
	shots     Screenshotter
	store     Persister

	pollInterval time.Duration
	trialTimeout time.Duration
	abort        func() bool
	clock        func() time.Time
	sleeper      func(context.Context, time.Duration) error
	log          *zap.Logger
}

// NewSynchronizer applies defaults and returns a synchronizer.
func NewSynchronizer(opts Options) *Synchronizer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second / 60
	}
	if opts.TrialTimeout <= 0 {
		opts.TrialTimeout = 2 * time.Minute
	}
	if opts.Abort == nil {
		opts.Abort = func() bool { return false }
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Sleeper == nil {
		opts.Sleeper = defaultSleeper
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Synchronizer{
		cues:         opts.Cues,
		landmarks:    opts.Landmarks,
		gaze:         opts.Gaze,
		shots:        opts.Shots,
		store:        opts.Store,
		pollInterval: opts.PollInterval,
		trialTimeout: opts.TrialTimeout,
		abort:        opts.Abort,
		clock:        opts.Clock,
		sleeper:      opts.Sleeper,
		log:          opts.Log,
	}
}

// Run executes one trial: start the cue, poll all sources until the
// drawing window closes (all expected landmarks, abort, or timeout),
// finalize the timeline, capture the screenshot, persist. An abort
// still persists the partial record tagged aborted, so the exclusion
// decision stays with analysis rather than being baked in at capture.
func (s *Synchronizer) Run(ctx context.Context, trialID int, plan models.TrialPlan) (models.TrialRecord, error) {
	log := eventlog.New()
	aborted := false

	if err := s.cues.StartCue(plan.CueID); err != nil {
		// A cue that cannot start is recorded as aborted; the trial
		// still runs so the drawing data is kept.
		s.log.Warn("cue start failed", zap.String("cue", plan.CueID), zap.Error(err))
		_ = log.Append(models.CueEvent{CueID: plan.CueID, Outcome: models.CueAborted, Timestamp: s.nowUnix()})
	}

	expected := make(map[string]bool, len(plan.Landmarks))
	for _, name := range plan.Landmarks {
		expected[name] = false
	}
	captured := 0

	deadline := s.clock().Add(s.trialTimeout)

poll:
	for {
		switch {
		case ctx.Err() != nil, s.abort():
			aborted = true
			break poll
		case !s.clock().Before(deadline):
			s.log.Warn("trial timeout reached", zap.Int("trial", trialID))
			break poll
		}

		if ev, ok := s.cues.PollEvent(); ok {
			_ = log.Append(ev)
		}

		if lm, ok := s.landmarks.Poll(); ok {
			lm.TrialID = trialID
			lm.Identity = plan.Identity
			_ = log.Append(lm)
			if done, seen := expected[lm.Landmark]; seen && !done {
				expected[lm.Landmark] = true
				captured++
			}
		}

		// Drain everything the tracker produced since the last tick.
		for {
			sample, ok := s.gaze.ReadSample()
			if !ok {
				break
			}
			_ = log.Append(sample)
		}

		if captured == len(expected) {
			break
		}

		if err := s.sleeper(ctx, s.pollInterval); err != nil {
			aborted = true
			break
		}
	}

	timeline := log.Finalize()
	rec := assembleRecord(trialID, plan.Identity, aborted, timeline)

	if s.shots != nil {
		ref, err := s.shots.Capture(trialID, nil)
		if err != nil {
			// The screenshot is auxiliary; its loss must not cost the
			// trial data.
			s.log.Warn("screenshot capture failed", zap.Int("trial", trialID), zap.Error(err))
		} else {
			rec.Screenshot = ref
		}
	}

	if err := s.store.WriteTrial(rec); err != nil {
		return rec, err
	}

	s.log.Info("trial persisted",
		zap.Int("trial", trialID),
		zap.String("identity", plan.Identity),
		zap.Bool("aborted", rec.Aborted),
		zap.Int("landmarks", len(rec.Landmarks)),
		zap.Int("gazeSamples", len(rec.Gaze)))
	return rec, nil
}

// assembleRecord splits the finalized timeline back into its typed
// streams. Each stream inherits the timeline's timestamp order, which
// keeps the per-stream monotonicity invariant.
func assembleRecord(trialID int, identity string, aborted bool, tl *eventlog.Timeline) models.TrialRecord {
	rec := models.TrialRecord{TrialID: trialID, Identity: identity, Aborted: aborted}
	for _, ev := range tl.Events() {
		switch e := ev.(type) {
		case models.CueEvent:
			rec.Cues = append(rec.Cues, e)
		case models.LandmarkSample:
			rec.Landmarks = append(rec.Landmarks, e)
		case models.GazeSample:
			rec.Gaze = append(rec.Gaze, e)
		}
	}
	return rec
}

func (s *Synchronizer) nowUnix() float64 {
	return float64(s.clock().UnixNano()) / float64(time.Second)
}

func defaultSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
