package analysis

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TheSimpleMango/ImagineFace/internal/store"
)

// Pipeline loads persisted sessions from the data directory and runs
// the analysis over one or many participants. Stateless between calls;
// participants are independent read-only inputs, so they are processed
// in parallel.
type Pipeline struct {
	dataDir string
	log     *zap.Logger
}

// NewPipeline returns a pipeline rooted at the data directory.
func NewPipeline(dataDir string, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{dataDir: dataDir, log: log}
}

// AnalyzeParticipant loads and analyzes a single participant.
func (p *Pipeline) AnalyzeParticipant(participant string) (*Result, error) {
	session, err := store.LoadParticipant(p.dataDir, participant)
	if err != nil {
		return nil, fmt.Errorf("load participant %s: %w", participant, err)
	}
	return AnalyzeSession(session)
}

// AnalyzeAll analyzes every participant found under the data
// directory, in parallel, and returns results ordered by participant id.
func (p *Pipeline) AnalyzeAll(ctx context.Context) ([]*Result, error) {
	participants, err := store.ListParticipants(p.dataDir)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("no participants found under %s", p.dataDir)
	}

	var mu sync.Mutex
	results := make([]*Result, 0, len(participants))

	g, ctx := errgroup.WithContext(ctx)
	for _, participant := range participants {
		participant := participant
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := p.AnalyzeParticipant(participant)
			if err != nil {
				return err
			}
			p.log.Info("participant analyzed",
				zap.String("participant", participant),
				zap.Int("measurements", len(res.Measurements)))
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Participant < results[j].Participant
	})
	return results, nil
}

// WriteTables writes the per-participant full and summary tables into
// each participant directory and the combined cross-participant table
// at the data-directory root. Returns the combined table path.
func (p *Pipeline) WriteTables(results []*Result) (string, error) {
	for _, res := range results {
		dir := filepath.Join(p.dataDir, res.Participant)

		full := filepath.Join(dir, res.Participant+"_analysis_full.csv")
		if err := writeMeasurementCSV(full, res.Measurements); err != nil {
			return "", err
		}

		summary := filepath.Join(dir, res.Participant+"_analysis_summary.csv")
		if err := writeSummaryCSV(summary, res.Summaries); err != nil {
			return "", err
		}
	}

	var combined []Measurement
	for _, res := range results {
		combined = append(combined, res.Measurements...)
	}
	path := filepath.Join(p.dataDir, "analysis_combined_full.csv")
	if err := writeMeasurementCSV(path, combined); err != nil {
		return "", err
	}
	return path, nil
}

var measurementHeader = []string{
	"participant", "trial_id", "identity", "metric_key",
	"distance_cm", "angle_deg", "status", "sample_size",
}

func writeMeasurementCSV(path string, rows []Measurement) error {
	return writeCSV(path, measurementHeader, func(w *csv.Writer) error {
		for _, m := range rows {
			row := []string{
				m.Participant,
				strconv.Itoa(m.TrialID),
				m.Identity,
				m.Key,
				formatCell(m.DistanceCm, m.Status),
				formatCell(m.AngleDeg, m.Status),
				m.Status,
				strconv.Itoa(m.SampleSize),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

var summaryHeader = []string{
	"participant", "metric_key", "mean_cm", "std_cm",
	"mean_deg", "std_deg", "trial_count", "valid_count",
}

func writeSummaryCSV(path string, rows []Summary) error {
	return writeCSV(path, summaryHeader, func(w *csv.Writer) error {
		for _, s := range rows {
			row := []string{
				s.Participant,
				s.Key,
				formatSummaryCell(s.MeanCm, s.ValidCount),
				formatSummaryCell(s.StdCm, s.ValidCount),
				formatSummaryCell(s.MeanDeg, s.ValidCount),
				formatSummaryCell(s.StdDeg, s.ValidCount),
				strconv.Itoa(s.TrialCount),
				strconv.Itoa(s.ValidCount),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeCSV(path string, header []string, fill func(*csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s header: %w", filepath.Base(path), err)
	}
	if err := fill(w); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	w.Flush()
	return w.Error()
}

// formatCell leaves numeric cells empty for insufficient trials so a
// spreadsheet mean can never silently absorb a placeholder zero.
func formatCell(v float64, status string) string {
	if status != "ok" {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func formatSummaryCell(v float64, validCount int) string {
	if validCount == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
