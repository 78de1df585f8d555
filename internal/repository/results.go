package repository

import (
	"context"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/TheSimpleMango/ImagineFace/internal/analysis"
	"github.com/TheSimpleMango/ImagineFace/internal/database"
	"github.com/TheSimpleMango/ImagineFace/internal/models"
	"github.com/TheSimpleMango/ImagineFace/internal/trial"
)

// SaveResult replaces a participant's analysis output in the store in a
// single transaction. Re-importing a participant is idempotent: the old
// rows go away with the new ones taking their place.
func SaveResult(ctx context.Context, res *analysis.Result, manifest *trial.SessionManifest, landmarks []string) error {
	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("participant = ?", res.Participant).Delete(&models.MeasurementRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("participant = ?", res.Participant).Delete(&models.ParticipantSummary{}).Error; err != nil {
			return err
		}
		if err := tx.Where("participant = ?", res.Participant).Delete(&models.SessionRecord{}).Error; err != nil {
			return err
		}

		record := models.SessionRecord{
			Participant:      res.Participant,
			WidthPx:          res.Monitor.WidthPx,
			HeightPx:         res.Monitor.HeightPx,
			DiagonalInches:   res.Monitor.DiagonalInches,
			ViewingDistanceM: res.Monitor.ViewingDistanceM,
			Landmarks:        pq.StringArray(landmarks),
		}
		if manifest != nil {
			record.GazeAvailable = manifest.GazeAvailable
			record.TrialsCompleted = manifest.TrialsCompleted
			record.TrialsSkipped = manifest.TrialsSkipped
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		for _, m := range res.Measurements {
			row := models.MeasurementRow{
				Participant: m.Participant,
				TrialID:     m.TrialID,
				Identity:    m.Identity,
				MetricKey:   m.Key,
				DistanceCm:  m.DistanceCm,
				AngleDeg:    m.AngleDeg,
				Status:      m.Status,
				SampleSize:  m.SampleSize,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		for _, s := range res.Summaries {
			row := models.ParticipantSummary{
				Participant: s.Participant,
				MetricKey:   s.Key,
				MeanCm:      s.MeanCm,
				StdCm:       s.StdCm,
				MeanDeg:     s.MeanDeg,
				StdDeg:      s.StdDeg,
				TrialCount:  s.TrialCount,
				ValidCount:  s.ValidCount,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetParticipants lists the participants present in the store.
func GetParticipants(ctx context.Context) ([]string, error) {
	var out []string
	err := database.DB.WithContext(ctx).
		Model(&models.SessionRecord{}).
		Order("participant").
		Pluck("participant", &out).Error
	return out, err
}

// GetSessionRecord fetches one participant's session row.
func GetSessionRecord(ctx context.Context, participant string) (*models.SessionRecord, error) {
	var record models.SessionRecord
	err := database.DB.WithContext(ctx).
		Where("participant = ?", participant).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetMeasurements fetches a participant's per-trial rows ordered for
// table rendering.
func GetMeasurements(ctx context.Context, participant string) ([]models.MeasurementRow, error) {
	var rows []models.MeasurementRow
	err := database.DB.WithContext(ctx).
		Where("participant = ?", participant).
		Order("trial_id, metric_key").
		Find(&rows).Error
	return rows, err
}

// GetSummaries fetches a participant's aggregate rows.
func GetSummaries(ctx context.Context, participant string) ([]models.ParticipantSummary, error) {
	var rows []models.ParticipantSummary
	err := database.DB.WithContext(ctx).
		Where("participant = ?", participant).
		Order("metric_key").
		Find(&rows).Error
	return rows, err
}
