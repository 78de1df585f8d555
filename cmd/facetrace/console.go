package main

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/TheSimpleMango/ImagineFace/internal/models"
)

// consoleCues is the CLI stand-in for the audio collaborator: it
// announces each cue on the log and reports it completed after a fixed
// playback window. Real audio arrives through the same interface.
type consoleCues struct {
	duration time.Duration
	log      *zap.Logger

	pending  string
	playedAt time.Time
}

func newConsoleCues(duration time.Duration, log *zap.Logger) *consoleCues {
	if duration <= 0 {
		duration = 3 * time.Second
	}
	return &consoleCues{duration: duration, log: log}
}

func (c *consoleCues) StartCue(cueID string) error {
	c.pending = cueID
	c.playedAt = time.Now()
	c.log.Info("cue started", zap.String("cue", cueID))
	return nil
}

func (c *consoleCues) PollEvent() (models.CueEvent, bool) {
	if c.pending == "" || time.Since(c.playedAt) < c.duration {
		return models.CueEvent{}, false
	}
	ev := models.CueEvent{
		CueID:     c.pending,
		Outcome:   models.CueCompleted,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
	}
	c.pending = ""
	return ev, true
}

// consoleInput turns operator console lines into landmark samples. One
// line per mark, device pixels with the origin at the top-left:
//
//	<landmark name> <x> <y>
//
// Landmark names may contain spaces ("left ear 812 403"); the last two
// fields are always the coordinates. The single word "abort" raises the
// session abort flag.
type consoleInput struct {
	monitor models.MonitorConfig
	log     *zap.Logger

	samples chan models.LandmarkSample
	aborted atomic.Bool
}

func newConsoleInput(r io.Reader, monitor models.MonitorConfig, log *zap.Logger) *consoleInput {
	in := &consoleInput{
		monitor: monitor,
		log:     log,
		samples: make(chan models.LandmarkSample, 64),
	}
	go in.readLoop(r)
	return in
}

func (in *consoleInput) Poll() (models.LandmarkSample, bool) {
	select {
	case lm := <-in.samples:
		return lm, true
	default:
		return models.LandmarkSample{}, false
	}
}

func (in *consoleInput) Aborted() bool {
	return in.aborted.Load()
}

func (in *consoleInput) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "abort") {
			in.aborted.Store(true)
			return
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			in.log.Warn("unparseable input line", zap.String("line", line))
			continue
		}
		x, errX := strconv.ParseFloat(fields[len(fields)-2], 64)
		y, errY := strconv.ParseFloat(fields[len(fields)-1], 64)
		if errX != nil || errY != nil {
			in.log.Warn("unparseable input line", zap.String("line", line))
			continue
		}
		name := strings.Join(fields[:len(fields)-2], " ")

		// Remap to center-origin pixels, y growing upward.
		lm := models.LandmarkSample{
			Landmark:  name,
			X:         x - float64(in.monitor.WidthPx)/2,
			Y:         float64(in.monitor.HeightPx)/2 - y,
			Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		}

		select {
		case in.samples <- lm:
		default:
			in.log.Warn("input buffer full, dropping landmark", zap.String("landmark", name))
		}
	}
}
