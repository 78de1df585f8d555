package models

// Timestamps throughout the acquisition pipeline are unix seconds as
// float64, matching what the tracker process and the event log emit.

// CueOutcome is the terminal state of one audio cue.
type CueOutcome string

const (
	CueCompleted CueOutcome = "completed"
	CueSkipped   CueOutcome = "skipped"
	CueAborted   CueOutcome = "aborted"
)

// Event kinds used on the per-trial timeline.
const (
	KindCue      = "cue"
	KindLandmark = "landmark"
	KindGaze     = "gaze"
)

// CueEvent records the outcome of one audio instruction segment. It is
// created by the audio collaborator and never mutated afterwards.
type CueEvent struct {
	CueID     string     `json:"cueId"`
	Outcome   CueOutcome `json:"outcome"`
	Timestamp float64    `json:"timestamp"`
}

func (e CueEvent) EventTime() float64 { return e.Timestamp }
func (e CueEvent) EventKind() string  { return KindCue }

// LandmarkSample is one user-drawn landmark position in center-origin
// pixel coordinates.
type LandmarkSample struct {
	TrialID   int     `json:"trialId"`
	Identity  string  `json:"identity"`
	Landmark  string  `json:"landmark"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp float64 `json:"timestamp"`
}

func (s LandmarkSample) EventTime() float64 { return s.Timestamp }
func (s LandmarkSample) EventKind() string  { return KindLandmark }

// GazeSample is one eye-position reading, remapped to center-origin
// pixels by the gaze adapter. Invalid samples are kept, never dropped,
// so hardware dropouts stay visible in the record.
type GazeSample struct {
	Timestamp float64 `json:"timestamp"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Valid     bool    `json:"valid"`
}

func (s GazeSample) EventTime() float64 { return s.Timestamp }
func (s GazeSample) EventKind() string  { return KindGaze }

// TrialRecord is the finalized output of one drawing task. Immutable
// once persisted.
type TrialRecord struct {
	TrialID    int              `json:"trialId"`
	Identity   string           `json:"identity"`
	Aborted    bool             `json:"aborted"`
	Cues       []CueEvent       `json:"cues"`
	Landmarks  []LandmarkSample `json:"landmarks"`
	Gaze       []GazeSample     `json:"gaze"`
	Screenshot string           `json:"screenshot"`
}

// ParticipantSession groups the trials recorded for one participant
// under a single monitor configuration snapshot.
type ParticipantSession struct {
	Participant string        `json:"participant"`
	Monitor     MonitorConfig `json:"monitor"`
	Trials      []TrialRecord `json:"trials"`
}

// MonitorConfig describes the display hardware and viewing geometry.
// It is snapshotted at session start and immutable for the session.
type MonitorConfig struct {
	WidthPx          int     `json:"widthPx" mapstructure:"width_px"`
	HeightPx         int     `json:"heightPx" mapstructure:"height_px"`
	DiagonalInches   float64 `json:"diagonalInches" mapstructure:"diagonal_inches"`
	ViewingDistanceM float64 `json:"viewingDistanceM" mapstructure:"viewing_distance_m"`
}

// Canonical landmark names, matching the prompts read to participants.
const (
	LandmarkLeftEar   = "left ear"
	LandmarkRightEar  = "right ear"
	LandmarkLeftEye   = "left eye"
	LandmarkRightEye  = "right eye"
	LandmarkNose      = "nose"
	LandmarkMouth     = "mouth"
	LandmarkChin      = "chin"
	LandmarkTopOfHead = "top of head"
)
