// Package store persists raw acquisition data, one directory per
// participant. The formats are the system's external interface:
// append-friendly CSV tables for coordinates, events and gaze samples,
// JSON for the monitor snapshot and session manifest, and one
// screenshot file per trial keyed by trial id.
package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/TheSimpleMango/ImagineFace/internal/models"
)

// PersistenceError reports a failed write of trial or session data.
// Fatal for the trial that produced it: the caller reports it and does
// not retry, since retrying risks overwriting the participant's state.
type PersistenceError struct {
	Participant string
	TrialID     int
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist trial %d for participant %s: %v", e.TrialID, e.Participant, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

var (
	coordinatesHeader = []string{"trial_id", "identity", "landmark", "x", "y", "timestamp"}
	eventsHeader      = []string{"trial_id", "kind", "label", "outcome", "timestamp"}
	gazeHeader        = []string{"trial_id", "timestamp", "x", "y", "valid"}
)

// Event kinds written to the events table beyond the cue rows.
const eventKindTrial = "trial"

// Writer appends raw trial data for one participant.
type Writer struct {
	root        string
	participant string
}

// NewWriter ensures the participant directory exists and returns a
// writer rooted there.
func NewWriter(dataDir, participant string) (*Writer, error) {
	if participant == "" {
		return nil, fmt.Errorf("participant id must not be empty")
	}
	root := filepath.Join(dataDir, participant)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("ensure participant directory: %w", err)
	}
	return &Writer{root: root, participant: participant}, nil
}

// Dir returns the participant's data directory.
func (w *Writer) Dir() string { return w.root }

// Participant returns the participant id this writer serves.
func (w *Writer) Participant() string { return w.participant }

// WriteTrial appends one finalized trial to the participant's tables.
// Partial trials are written like complete ones; the aborted flag rides
// on the trial boundary row in the events table.
func (w *Writer) WriteTrial(rec models.TrialRecord) error {
	coordRows := make([][]string, 0, len(rec.Landmarks))
	for _, lm := range rec.Landmarks {
		coordRows = append(coordRows, []string{
			strconv.Itoa(rec.TrialID),
			rec.Identity,
			lm.Landmark,
			formatFloat(lm.X),
			formatFloat(lm.Y),
			formatFloat(lm.Timestamp),
		})
	}

	eventRows := make([][]string, 0, len(rec.Cues)+1)
	for _, cue := range rec.Cues {
		eventRows = append(eventRows, []string{
			strconv.Itoa(rec.TrialID),
			models.KindCue,
			cue.CueID,
			string(cue.Outcome),
			formatFloat(cue.Timestamp),
		})
	}
	outcome := "completed"
	if rec.Aborted {
		outcome = "aborted"
	}
	eventRows = append(eventRows, []string{
		strconv.Itoa(rec.TrialID), eventKindTrial, rec.Identity, outcome, "",
	})

	gazeRows := make([][]string, 0, len(rec.Gaze))
	for _, g := range rec.Gaze {
		valid := "0"
		if g.Valid {
			valid = "1"
		}
		gazeRows = append(gazeRows, []string{
			strconv.Itoa(rec.TrialID),
			formatFloat(g.Timestamp),
			formatFloat(g.X),
			formatFloat(g.Y),
			valid,
		})
	}

	if err := w.appendRows(w.coordinatesPath(), coordinatesHeader, coordRows); err != nil {
		return &PersistenceError{Participant: w.participant, TrialID: rec.TrialID, Err: err}
	}
	if err := w.appendRows(w.eventsPath(), eventsHeader, eventRows); err != nil {
		return &PersistenceError{Participant: w.participant, TrialID: rec.TrialID, Err: err}
	}
	if err := w.appendRows(w.gazePath(), gazeHeader, gazeRows); err != nil {
		return &PersistenceError{Participant: w.participant, TrialID: rec.TrialID, Err: err}
	}
	return nil
}

// WriteHardwareSpecs snapshots the monitor configuration for the
// session. Written once at session start, before any trial runs.
func (w *Writer) WriteHardwareSpecs(cfg models.MonitorConfig) error {
	return w.WriteJSON(w.participant+"_hardware_specs.json", cfg)
}

// WriteJSON writes an indented JSON document into the participant
// directory.
func (w *Writer) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(w.root, name)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Capture writes the trial screenshot and returns its reference. The
// renderer is an external collaborator; this default persists whatever
// frame bytes it was handed. With no frame there is nothing to write
// and the reference stays empty.
func (w *Writer) Capture(trialID int, frame []byte) (string, error) {
	if len(frame) == 0 {
		return "", nil
	}
	path := filepath.Join(w.root, fmt.Sprintf("trial_%d.png", trialID))
	if err := os.WriteFile(path, frame, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

func (w *Writer) coordinatesPath() string {
	return filepath.Join(w.root, w.participant+"_coordinates.csv")
}

func (w *Writer) eventsPath() string {
	return filepath.Join(w.root, w.participant+"_events.csv")
}

func (w *Writer) gazePath() string {
	return filepath.Join(w.root, w.participant+"_gaze.csv")
}

// appendRows opens the table in append mode, writing the header first
// when the file is new.
func (w *Writer) appendRows(path string, header []string, rows [][]string) error {
	info, err := os.Stat(path)
	writeHeader := err != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if writeHeader {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	return f.Sync()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
