package repository

import (
	"context"

	"github.com/TheSimpleMango/ImagineFace/internal/database"
)

type TimelineDataPoint struct {
	TrialID  int     `json:"trialId"`
	Identity string  `json:"identity"`
	Cm       float64 `json:"cm"`
	Deg      float64 `json:"deg"`
}

type CorrelationDataPoint struct {
	MetricDeg float64 `json:"metricDeg"`
	GazeDeg   float64 `json:"gazeDeg"`
}

// GetTimelineData returns one metric across a participant's trials, in
// trial order. Trials that produced insufficient data are left out of
// the series rather than plotted as zeros.
func GetTimelineData(ctx context.Context, participant, metricKey string) ([]TimelineDataPoint, error) {
	var data []TimelineDataPoint

	query := `
		SELECT trial_id, identity, distance_cm AS cm, angle_deg AS deg
		FROM measurement_rows
		WHERE participant = ? AND metric_key = ? AND status = 'ok'
		ORDER BY trial_id;
	`
	err := database.DB.WithContext(ctx).Raw(query, participant, metricKey).Scan(&data).Error
	return data, err
}

// GetCorrelationData pairs a drawn-face metric with the gaze offset of
// the same trial, for scatter plots of imagery size against fixation
// drift. Only trials where both measurements succeeded appear.
func GetCorrelationData(ctx context.Context, participant, metricKey string) ([]CorrelationDataPoint, error) {
	var data []CorrelationDataPoint
	query := `
		SELECT
			metric.angle_deg AS metric_deg,
			gaze.angle_deg AS gaze_deg
		FROM
			(
				SELECT trial_id, angle_deg
				FROM measurement_rows
				WHERE participant = ? AND metric_key = ? AND status = 'ok'
			) AS metric
		JOIN
			(
				SELECT trial_id, angle_deg
				FROM measurement_rows
				WHERE participant = ? AND metric_key = 'gaze_offset' AND status = 'ok'
			) AS gaze ON metric.trial_id = gaze.trial_id;
	`
	err := database.DB.WithContext(ctx).Raw(query, participant, metricKey, participant).Scan(&data).Error
	return data, err
}
