package analysis

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheSimpleMango/ImagineFace/internal/models"
	"github.com/TheSimpleMango/ImagineFace/internal/store"
)

func referenceMonitor() models.MonitorConfig {
	return models.MonitorConfig{WidthPx: 1920, HeightPx: 1080, DiagonalInches: 24, ViewingDistanceM: 0.5}
}

func fullTrial(id int) models.TrialRecord {
	return models.TrialRecord{
		TrialID:  id,
		Identity: "Lucia",
		Landmarks: []models.LandmarkSample{
			{Landmark: models.LandmarkLeftEar, X: -50, Y: 0, Timestamp: 1},
			{Landmark: models.LandmarkRightEar, X: 50, Y: 0, Timestamp: 2},
			{Landmark: models.LandmarkChin, X: 0, Y: -80, Timestamp: 3},
			{Landmark: models.LandmarkTopOfHead, X: 0, Y: 80, Timestamp: 4},
			{Landmark: models.LandmarkLeftEye, X: -20, Y: 30, Timestamp: 5},
			{Landmark: models.LandmarkRightEye, X: 20, Y: 30, Timestamp: 6},
			{Landmark: models.LandmarkNose, X: 0, Y: 10, Timestamp: 7},
		},
		Gaze: []models.GazeSample{
			{Timestamp: 1.5, X: 10, Y: 0, Valid: true},
			{Timestamp: 1.6, X: 30, Y: 0, Valid: true},
			{Timestamp: 1.7, X: 9999, Y: 9999, Valid: false},
		},
	}
}

func findMeasurement(t *testing.T, rows []Measurement, trialID int, key string) Measurement {
	t.Helper()
	for _, m := range rows {
		if m.TrialID == trialID && m.Key == key {
			return m
		}
	}
	t.Fatalf("measurement %s for trial %d not found", key, trialID)
	return Measurement{}
}

func TestAnalyzeSession_ReferenceValues(t *testing.T) {
	session := &models.ParticipantSession{
		Participant: "p01",
		Monitor:     referenceMonitor(),
		Trials:      []models.TrialRecord{fullTrial(1)},
	}

	res, err := AnalyzeSession(session)
	require.NoError(t, err)

	// 100 px ear separation: ~2.77 cm, ~3.17 degrees of visual angle.
	width := findMeasurement(t, res.Measurements, 1, models.MeasureFaceWidth)
	assert.Equal(t, models.MeasurementOK, width.Status)
	assert.InDelta(t, 2.77, width.DistanceCm, 0.01)
	assert.InDelta(t, 3.17, width.AngleDeg, 0.01)

	// Mean valid gaze is (20, 0): positions use the offset formula.
	gaze := findMeasurement(t, res.Measurements, 1, models.MeasureGazeOffset)
	assert.Equal(t, models.MeasurementOK, gaze.Status)
	assert.Equal(t, 2, gaze.SampleSize, "invalid sample excluded")
	assert.InDelta(t, 0.554, gaze.DistanceCm, 0.01)
	assert.InDelta(t, 0.63, gaze.AngleDeg, 0.01)
}

func TestAnalyzeSession_MissingLandmarksYieldInsufficientData(t *testing.T) {
	rec := models.TrialRecord{
		TrialID:  1,
		Identity: "Mark",
		Landmarks: []models.LandmarkSample{
			{Landmark: models.LandmarkLeftEar, X: -50, Y: 0},
		},
	}
	session := &models.ParticipantSession{
		Participant: "p01", Monitor: referenceMonitor(),
		Trials: []models.TrialRecord{rec},
	}

	res, err := AnalyzeSession(session)
	require.NoError(t, err)

	width := findMeasurement(t, res.Measurements, 1, models.MeasureFaceWidth)
	assert.Equal(t, models.MeasurementInsufficientData, width.Status)
	assert.Zero(t, width.DistanceCm)
}

func TestAnalyzeSession_ZeroValidGazeIsInsufficientNotZero(t *testing.T) {
	rec := fullTrial(1)
	for i := range rec.Gaze {
		rec.Gaze[i].Valid = false
	}
	session := &models.ParticipantSession{
		Participant: "p01", Monitor: referenceMonitor(),
		Trials: []models.TrialRecord{rec},
	}

	res, err := AnalyzeSession(session)
	require.NoError(t, err)

	gaze := findMeasurement(t, res.Measurements, 1, models.MeasureGazeOffset)
	assert.Equal(t, models.MeasurementInsufficientData, gaze.Status)
	assert.Zero(t, gaze.SampleSize)
}

func TestSummarize_ExcludesInsufficientFromMeanButCountsIt(t *testing.T) {
	trialWithGaze := fullTrial(1)
	trialWithoutGaze := fullTrial(2)
	trialWithoutGaze.Gaze = nil

	session := &models.ParticipantSession{
		Participant: "p01", Monitor: referenceMonitor(),
		Trials: []models.TrialRecord{trialWithGaze, trialWithoutGaze},
	}

	res, err := AnalyzeSession(session)
	require.NoError(t, err)

	var gazeSummary *Summary
	for i := range res.Summaries {
		if res.Summaries[i].Key == models.MeasureGazeOffset {
			gazeSummary = &res.Summaries[i]
		}
	}
	require.NotNil(t, gazeSummary)
	assert.Equal(t, 2, gazeSummary.TrialCount, "insufficient trial still counted")
	assert.Equal(t, 1, gazeSummary.ValidCount)

	// The mean equals the single valid trial's value: the missing
	// trial contributed no spurious zero.
	gaze := findMeasurement(t, res.Measurements, 1, models.MeasureGazeOffset)
	assert.InDelta(t, gaze.AngleDeg, gazeSummary.MeanDeg, 1e-9)
	assert.Zero(t, gazeSummary.StdDeg)
}

func TestSummarize_MeanAndStdAcrossTrials(t *testing.T) {
	t1 := fullTrial(1)
	t2 := fullTrial(2)
	// Widen trial 2's ears to 200 px.
	t2.Landmarks[0].X = -100
	t2.Landmarks[1].X = 100

	session := &models.ParticipantSession{
		Participant: "p01", Monitor: referenceMonitor(),
		Trials: []models.TrialRecord{t1, t2},
	}

	res, err := AnalyzeSession(session)
	require.NoError(t, err)

	var width *Summary
	for i := range res.Summaries {
		if res.Summaries[i].Key == models.MeasureFaceWidth {
			width = &res.Summaries[i]
		}
	}
	require.NotNil(t, width)
	assert.Equal(t, 2, width.ValidCount)
	// Mean of ~2.77 and ~5.54 cm.
	assert.InDelta(t, 4.15, width.MeanCm, 0.02)
	assert.Greater(t, width.StdCm, 0.0)
}

func TestPipeline_EndToEndWithFiles(t *testing.T) {
	dir := t.TempDir()

	for _, p := range []string{"p01", "p02"} {
		w, err := store.NewWriter(dir, p)
		require.NoError(t, err)
		require.NoError(t, w.WriteHardwareSpecs(referenceMonitor()))
		require.NoError(t, w.WriteTrial(fullTrial(1)))
		require.NoError(t, w.WriteTrial(fullTrial(2)))
	}

	pipe := NewPipeline(dir, nil)
	results, err := pipe.AnalyzeAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "p01", results[0].Participant)
	assert.Equal(t, "p02", results[1].Participant)

	combined, err := pipe.WriteTables(results)
	require.NoError(t, err)

	f, err := os.Open(combined)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	// Header + 2 participants x 2 trials x 5 measurement keys.
	assert.Len(t, rows, 1+2*2*5)

	// Per-participant tables land in the participant directories.
	_, err = os.Stat(filepath.Join(dir, "p01", "p01_analysis_summary.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "p01", "p01_analysis_full.csv"))
	assert.NoError(t, err)
}
