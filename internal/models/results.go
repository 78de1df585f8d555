package models

import (
	"time"

	"github.com/lib/pq"
)

// Measurement status markers. InsufficientData is a first-class
// outcome, not an error: it is excluded from numeric aggregates but
// still counted.
const (
	MeasurementOK               = "ok"
	MeasurementInsufficientData = "insufficient_data"
)

// Measurement keys produced by the analysis pipeline.
const (
	MeasureFaceWidth        = "face_width"
	MeasureFaceHeight       = "face_height"
	MeasureInterEye         = "inter_eye"
	MeasureNoseEccentricity = "nose_eccentricity"
	MeasureGazeOffset       = "gaze_offset"
)

// MeasurementRow is one derived physical measurement for one trial,
// persisted for the results server.
type MeasurementRow struct {
	ID          int    `gorm:"primaryKey"`
	Participant string `gorm:"index:idx_measurements_query"`
	TrialID     int    `gorm:"index:idx_measurements_query"`
	Identity    string
	MetricKey   string `gorm:"index:idx_measurements_query"`
	DistanceCm  float64
	AngleDeg    float64
	Status      string
	SampleSize  int
	CreatedAt   time.Time
}

// ParticipantSummary is the per-participant mean/std of one
// measurement across trials.
type ParticipantSummary struct {
	ID          int    `gorm:"primaryKey"`
	Participant string `gorm:"index"`
	MetricKey   string
	MeanCm      float64
	StdCm       float64
	MeanDeg     float64
	StdDeg      float64
	TrialCount  int
	ValidCount  int
	CreatedAt   time.Time
}

// SessionRecord is the session-level manifest row: the monitor snapshot
// plus how many trials completed versus were skipped.
type SessionRecord struct {
	ID               int    `gorm:"primaryKey"`
	Participant      string `gorm:"uniqueIndex"`
	WidthPx          int
	HeightPx         int
	DiagonalInches   float64
	ViewingDistanceM float64
	GazeAvailable    bool
	TrialsCompleted  int
	TrialsSkipped    int
	Landmarks        pq.StringArray `gorm:"type:text[]"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
