// Package analysis is the offline pipeline: a pure function of
// persisted trial records and the session's monitor snapshot, producing
// physical and angular measurements plus per-participant and
// cross-participant aggregates. Acquisition never converts units; this
// is the single place pixel coordinates become centimeters and degrees.
package analysis

import (
	"fmt"
	"math"

	"github.com/TheSimpleMango/ImagineFace/internal/geometry"
	"github.com/TheSimpleMango/ImagineFace/internal/models"
)

// Measurement is one derived physical quantity for one trial.
type Measurement struct {
	Participant string
	TrialID     int
	Identity    string
	Key         string
	DistanceCm  float64
	AngleDeg    float64
	Status      string // models.MeasurementOK or models.MeasurementInsufficientData
	SampleSize  int
}

// Summary is the per-participant mean/std of one measurement across
// trials. Insufficient trials are excluded from the numeric aggregates
// but counted in TrialCount.
type Summary struct {
	Participant string
	Key         string
	MeanCm      float64
	StdCm       float64
	MeanDeg     float64
	StdDeg      float64
	TrialCount  int
	ValidCount  int
}

// Result is the full analysis output for one participant.
type Result struct {
	Participant  string
	Monitor      models.MonitorConfig
	Measurements []Measurement
	Summaries    []Summary
}

// measurementKeys fixes the output order of the tables.
var measurementKeys = []string{
	models.MeasureFaceWidth,
	models.MeasureFaceHeight,
	models.MeasureInterEye,
	models.MeasureNoseEccentricity,
	models.MeasureGazeOffset,
}

// AnalyzeSession converts one participant session into measurements
// and summaries using the session's own monitor snapshot.
func AnalyzeSession(session *models.ParticipantSession) (*Result, error) {
	g, err := geometry.New(session.Monitor)
	if err != nil {
		return nil, fmt.Errorf("participant %s: %w", session.Participant, err)
	}

	res := &Result{Participant: session.Participant, Monitor: session.Monitor}
	for _, rec := range session.Trials {
		res.Measurements = append(res.Measurements, measureTrial(g, session.Participant, rec)...)
	}
	res.Summaries = summarize(session.Participant, res.Measurements)
	return res, nil
}

// measureTrial computes the per-trial measurement rows. Sizes use the
// span formula, positions the offset formula (see geometry docs).
func measureTrial(g *geometry.Geometry, participant string, rec models.TrialRecord) []Measurement {
	marks := map[string]models.LandmarkSample{}
	for _, lm := range rec.Landmarks {
		// Re-marks overwrite: the participant's last word stands.
		marks[lm.Landmark] = lm
	}

	base := Measurement{Participant: participant, TrialID: rec.TrialID, Identity: rec.Identity}

	pair := func(key, a, b string) Measurement {
		m := base
		m.Key = key
		la, okA := marks[a]
		lb, okB := marks[b]
		if !okA || !okB {
			m.Status = models.MeasurementInsufficientData
			return m
		}
		m.DistanceCm = g.PointDistanceCm(la.X, la.Y, lb.X, lb.Y)
		// Inter-landmark distances are object sizes: span formula.
		m.AngleDeg = g.SpanDegrees(m.DistanceCm)
		m.Status = models.MeasurementOK
		m.SampleSize = 2
		return m
	}

	out := []Measurement{
		pair(models.MeasureFaceWidth, models.LandmarkLeftEar, models.LandmarkRightEar),
		pair(models.MeasureFaceHeight, models.LandmarkChin, models.LandmarkTopOfHead),
		pair(models.MeasureInterEye, models.LandmarkLeftEye, models.LandmarkRightEye),
	}

	nose := base
	nose.Key = models.MeasureNoseEccentricity
	if lm, ok := marks[models.LandmarkNose]; ok {
		nose.DistanceCm = g.PointEccentricityCm(lm.X, lm.Y)
		// Position relative to screen center: offset formula.
		nose.AngleDeg = g.OffsetDegrees(nose.DistanceCm)
		nose.Status = models.MeasurementOK
		nose.SampleSize = 1
	} else {
		nose.Status = models.MeasurementInsufficientData
	}
	out = append(out, nose)

	out = append(out, gazeOffset(g, base, rec.Gaze))
	return out
}

// gazeOffset is the mean valid gaze position's eccentricity. Only
// samples flagged valid contribute; a trial with zero valid samples
// yields insufficient_data instead of a spurious zero.
func gazeOffset(g *geometry.Geometry, base Measurement, samples []models.GazeSample) Measurement {
	m := base
	m.Key = models.MeasureGazeOffset

	var sumX, sumY float64
	valid := 0
	for _, s := range samples {
		if !s.Valid {
			continue
		}
		sumX += s.X
		sumY += s.Y
		valid++
	}
	if valid == 0 {
		m.Status = models.MeasurementInsufficientData
		return m
	}

	m.DistanceCm = g.PointEccentricityCm(sumX/float64(valid), sumY/float64(valid))
	// Gaze position relative to screen center: offset formula.
	m.AngleDeg = g.OffsetDegrees(m.DistanceCm)
	m.Status = models.MeasurementOK
	m.SampleSize = valid
	return m
}

// summarize aggregates measurements per key. Std uses Bessel's
// correction and is zero below two valid trials.
func summarize(participant string, measurements []Measurement) []Summary {
	byKey := map[string][]Measurement{}
	for _, m := range measurements {
		byKey[m.Key] = append(byKey[m.Key], m)
	}

	var out []Summary
	for _, key := range measurementKeys {
		rows := byKey[key]
		if len(rows) == 0 {
			continue
		}
		s := Summary{Participant: participant, Key: key, TrialCount: len(rows)}

		var cms, degs []float64
		for _, m := range rows {
			if m.Status != models.MeasurementOK {
				continue
			}
			cms = append(cms, m.DistanceCm)
			degs = append(degs, m.AngleDeg)
		}
		s.ValidCount = len(cms)
		if s.ValidCount > 0 {
			s.MeanCm, s.StdCm = meanStd(cms)
			s.MeanDeg, s.StdDeg = meanStd(degs)
		}
		out = append(out, s)
	}
	return out
}

func meanStd(values []float64) (mean, std float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	if len(values) < 2 {
		return mean, 0
	}
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	return mean, math.Sqrt(variance)
}
