package trial

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/TheSimpleMango/ImagineFace/internal/gaze"
	"github.com/TheSimpleMango/ImagineFace/internal/models"
	"github.com/TheSimpleMango/ImagineFace/internal/store"
)

// ManifestSchemaVersion tracks the session manifest layout.
const ManifestSchemaVersion = 1

// Session manifest states.
const (
	SessionCompleted = "completed"
	SessionAborting  = "aborting"
	SessionAborted   = "aborted"
)

// TrialStatus summarises one trial's outcome in the manifest.
type TrialStatus struct {
	TrialID  int    `json:"trial_id"`
	Identity string `json:"identity"`
	State    string `json:"state"` // completed | aborted | skipped
}

// SessionManifest is the durable session summary written next to the
// raw tables: how many trials completed versus were skipped, and
// whether gaze data was available at all.
type SessionManifest struct {
	SchemaVersion   int                  `json:"schema_version"`
	Participant     string               `json:"participant"`
	CreatedAt       time.Time            `json:"created_at"`
	Monitor         models.MonitorConfig `json:"monitor"`
	GazeAvailable   bool                 `json:"gaze_available"`
	State           string               `json:"state"`
	TrialsCompleted int                  `json:"trials_completed"`
	TrialsSkipped   int                  `json:"trials_skipped"`
	Trials          []TrialStatus        `json:"trials"`
}

// GazeController is the lifecycle view of the gaze adapter the session
// owns: the synchronizer only ever sees the sample source.
type GazeController interface {
	Start(ctx context.Context) error
	Stop()
}

// SessionStore is the session-level persistence surface, implemented
// by store.Writer.
type SessionStore interface {
	WriteHardwareSpecs(cfg models.MonitorConfig) error
	WriteJSON(name string, v any) error
}

// TrialRunner runs one trial; implemented by Synchronizer.
type TrialRunner interface {
	Run(ctx context.Context, trialID int, plan models.TrialPlan) (models.TrialRecord, error)
}

// SessionOptions configure an Aggregator.
type SessionOptions struct {
	Participant string
	Monitor     models.MonitorConfig
	Plan        *models.TaskPlan
	Runner      TrialRunner
	Gaze        GazeController
	Store       SessionStore

	// GazeStartRetries bounds readiness retries before the session
	// proceeds without gaze data.
	GazeStartRetries int
	Clock            func() time.Time
	Log              *zap.Logger
}

// Aggregator runs the task plan sequentially for one participant.
// Sequential by design: each trial's audio, drawing surface and tracker
// are exclusive-use.
type Aggregator struct {
	participant string
	monitor     models.MonitorConfig
	plan        *models.TaskPlan
	runner      TrialRunner
	gaze        GazeController
	store       SessionStore
	retries     int
	clock       func() time.Time
	log         *zap.Logger
}

// NewAggregator applies defaults and returns a session aggregator.
func NewAggregator(opts SessionOptions) *Aggregator {
	if opts.GazeStartRetries <= 0 {
		opts.GazeStartRetries = 2
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Aggregator{
		participant: opts.Participant,
		monitor:     opts.Monitor,
		plan:        opts.Plan,
		runner:      opts.Runner,
		gaze:        opts.Gaze,
		store:       opts.Store,
		retries:     opts.GazeStartRetries,
		clock:       opts.Clock,
		log:         opts.Log,
	}
}

// Run executes the full session and writes the manifest. A trial's
// persistence failure transitions the session to Aborting: remaining
// trials are skipped, already-persisted trials are kept, and the
// manifest records the split. A participant abort ends the plan the
// same way: the aborted trial keeps its partial record, the remaining
// trials are skipped, and the session is marked aborted. The manifest
// and the error are both produced so callers can report without losing
// the summary.
func (a *Aggregator) Run(ctx context.Context) (SessionManifest, error) {
	manifest := SessionManifest{
		SchemaVersion: ManifestSchemaVersion,
		Participant:   a.participant,
		CreatedAt:     a.clock().UTC(),
		Monitor:       a.monitor,
		State:         SessionCompleted,
	}

	if err := a.store.WriteHardwareSpecs(a.monitor); err != nil {
		return manifest, &store.PersistenceError{Participant: a.participant, Err: err}
	}

	manifest.GazeAvailable = a.startGaze(ctx)
	if a.gaze != nil {
		defer a.gaze.Stop()
	}

	var fatal error
	stopped := false
	for i, plan := range a.plan.Trials {
		trialID := i + 1

		if fatal != nil || stopped {
			manifest.Trials = append(manifest.Trials, TrialStatus{TrialID: trialID, Identity: plan.Identity, State: "skipped"})
			manifest.TrialsSkipped++
			continue
		}

		rec, err := a.runner.Run(ctx, trialID, plan)
		if err != nil {
			var perr *store.PersistenceError
			if errors.As(err, &perr) {
				a.log.Error("trial persistence failed, aborting session",
					zap.Int("trial", trialID), zap.Error(err))
			} else {
				a.log.Error("trial failed, aborting session",
					zap.Int("trial", trialID), zap.Error(err))
			}
			manifest.State = SessionAborting
			manifest.Trials = append(manifest.Trials, TrialStatus{TrialID: trialID, Identity: plan.Identity, State: "skipped"})
			manifest.TrialsSkipped++
			fatal = err
			continue
		}

		state := "completed"
		if rec.Aborted {
			// The abort flag outlives the trial that observed it;
			// running the rest of the plan would only persist empty
			// records. The partial record is already on disk.
			state = "aborted"
			manifest.State = SessionAborted
			stopped = true
			a.log.Warn("session aborted by participant",
				zap.Int("trial", trialID), zap.String("identity", plan.Identity))
		}
		manifest.Trials = append(manifest.Trials, TrialStatus{TrialID: trialID, Identity: plan.Identity, State: state})
		manifest.TrialsCompleted++
	}

	if err := a.store.WriteJSON("session_manifest.json", manifest); err != nil {
		a.log.Error("failed to write session manifest", zap.Error(err))
		if fatal == nil {
			fatal = err
		}
	}
	return manifest, fatal
}

// startGaze performs the bounded readiness retries. Failure degrades
// the session rather than aborting it: landmark data is valid and
// valuable on its own.
func (a *Aggregator) startGaze(ctx context.Context) bool {
	if a.gaze == nil {
		return false
	}
	for attempt := 1; attempt <= a.retries; attempt++ {
		err := a.gaze.Start(ctx)
		if err == nil {
			return true
		}
		a.log.Warn("gaze start attempt failed",
			zap.Int("attempt", attempt), zap.Int("maxAttempts", a.retries), zap.Error(err))

		var startErr *gaze.AcquisitionStartError
		if !errors.As(err, &startErr) {
			break
		}
	}
	a.log.Warn("proceeding without gaze data for this session",
		zap.String("participant", a.participant))
	return false
}
