package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/TheSimpleMango/ImagineFace/internal/models"
)

// ListParticipants returns the participant ids found under the data
// directory, identified by their hardware specs snapshot.
func ListParticipants(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		specs := filepath.Join(dataDir, e.Name(), e.Name()+"_hardware_specs.json")
		if _, err := os.Stat(specs); err == nil {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// LoadParticipant reconstructs a participant session from the persisted
// tables. Trials are ordered by trial id; each trial's streams come
// back in the order they were written, which is timestamp order.
func LoadParticipant(dataDir, participant string) (*models.ParticipantSession, error) {
	root := filepath.Join(dataDir, participant)

	var monitor models.MonitorConfig
	specsPath := filepath.Join(root, participant+"_hardware_specs.json")
	data, err := os.ReadFile(specsPath)
	if err != nil {
		return nil, fmt.Errorf("read hardware specs: %w", err)
	}
	if err := json.Unmarshal(data, &monitor); err != nil {
		return nil, fmt.Errorf("parse hardware specs: %w", err)
	}

	trials := map[int]*models.TrialRecord{}
	trialRecord := func(id int) *models.TrialRecord {
		rec, ok := trials[id]
		if !ok {
			rec = &models.TrialRecord{TrialID: id}
			trials[id] = rec
		}
		return rec
	}

	err = readTable(filepath.Join(root, participant+"_coordinates.csv"), 6, func(row []string) error {
		id, err := strconv.Atoi(row[0])
		if err != nil {
			return fmt.Errorf("trial id %q: %w", row[0], err)
		}
		x, errX := strconv.ParseFloat(row[3], 64)
		y, errY := strconv.ParseFloat(row[4], 64)
		ts, errT := strconv.ParseFloat(row[5], 64)
		if errX != nil || errY != nil || errT != nil {
			return fmt.Errorf("malformed coordinate row for trial %d", id)
		}
		rec := trialRecord(id)
		rec.Identity = row[1]
		rec.Landmarks = append(rec.Landmarks, models.LandmarkSample{
			TrialID: id, Identity: row[1], Landmark: row[2], X: x, Y: y, Timestamp: ts,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = readTable(filepath.Join(root, participant+"_events.csv"), 5, func(row []string) error {
		id, err := strconv.Atoi(row[0])
		if err != nil {
			return fmt.Errorf("trial id %q: %w", row[0], err)
		}
		rec := trialRecord(id)
		switch row[1] {
		case models.KindCue:
			ts, err := strconv.ParseFloat(row[4], 64)
			if err != nil {
				return fmt.Errorf("malformed cue row for trial %d", id)
			}
			rec.Cues = append(rec.Cues, models.CueEvent{
				CueID: row[2], Outcome: models.CueOutcome(row[3]), Timestamp: ts,
			})
		case eventKindTrial:
			if rec.Identity == "" {
				rec.Identity = row[2]
			}
			rec.Aborted = row[3] == "aborted"
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = readTable(filepath.Join(root, participant+"_gaze.csv"), 5, func(row []string) error {
		id, err := strconv.Atoi(row[0])
		if err != nil {
			return fmt.Errorf("trial id %q: %w", row[0], err)
		}
		ts, errT := strconv.ParseFloat(row[1], 64)
		x, errX := strconv.ParseFloat(row[2], 64)
		y, errY := strconv.ParseFloat(row[3], 64)
		if errT != nil || errX != nil || errY != nil {
			return fmt.Errorf("malformed gaze row for trial %d", id)
		}
		trialRecord(id).Gaze = append(trialRecord(id).Gaze, models.GazeSample{
			Timestamp: ts, X: x, Y: y, Valid: row[4] == "1",
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	session := &models.ParticipantSession{Participant: participant, Monitor: monitor}
	ids := make([]int, 0, len(trials))
	for id := range trials {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		rec := trials[id]
		shot := filepath.Join(root, fmt.Sprintf("trial_%d.png", id))
		if _, err := os.Stat(shot); err == nil {
			rec.Screenshot = shot
		}
		session.Trials = append(session.Trials, *rec)
	}
	return session, nil
}

// readTable streams a headered CSV file through fn. A missing file is
// not an error: a session may legitimately lack gaze data entirely.
func readTable(path string, want int, fn func(row []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = want

	// Skip header.
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("read %s header: %w", filepath.Base(path), err)
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if err := fn(row); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
}
