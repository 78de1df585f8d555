// Package gaze owns the lifecycle of the external eye-tracking process
// and presents its output as a non-blocking stream of center-origin
// samples. The process boundary is the only real concurrency hazard in
// acquisition: reads are decoupled from the experiment loop through a
// buffered channel so a stalled tracker can never hang a trial.
package gaze

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TheSimpleMango/ImagineFace/internal/models"
)

// State is the adapter lifecycle state.
type State string

const (
	StateStopped   State = "stopped"
	StateStarting  State = "starting"
	StateStreaming State = "streaming"
	StateStopping  State = "stopping"
	StateFaulted   State = "faulted"
)

// AcquisitionStartError reports that the tracker process failed to
// become ready: launch failure or no well-formed sample within the
// handshake timeout. The session may retry a bounded number of times,
// then proceed without gaze data, clearly flagged.
type AcquisitionStartError struct {
	Reason string
	Err    error
}

func (e *AcquisitionStartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gaze acquisition failed to start: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("gaze acquisition failed to start: %s", e.Reason)
}

func (e *AcquisitionStartError) Unwrap() error { return e.Err }

// SampleSource is the view of the adapter the trial loop consumes.
type SampleSource interface {
	ReadSample() (models.GazeSample, bool)
}

// Process abstracts the running tracker so tests can script streams.
type Process interface {
	// Output is the sample stream, one record per line.
	Output() io.Reader
	// Terminate requests a graceful shutdown.
	Terminate() error
	// Kill force-stops the process.
	Kill() error
	// Done is closed when the process has exited.
	Done() <-chan struct{}
}

// Launcher starts the tracker process.
type Launcher func(ctx context.Context) (Process, error)

// Options configure the adapter.
type Options struct {
	Launch           Launcher
	Monitor          models.MonitorConfig
	SessionStart     float64 // unix seconds; earlier samples are tagged invalid
	HandshakeTimeout time.Duration
	StopTimeout      time.Duration
	BufferSize       int
	Clock            func() time.Time
	Log              *zap.Logger
}

// Adapter drives the Stopped/Starting/Streaming/Stopping/Faulted
// machine around the external process.
type Adapter struct {
	launch           Launcher
	monitor          models.MonitorConfig
	sessionStart     float64
	handshakeTimeout time.Duration
	stopTimeout      time.Duration
	clock            func() time.Time
	log              *zap.Logger

	mu    sync.Mutex
	state State
	proc  Process

	samples    chan models.GazeSample
	stopCh     chan struct{}
	readerDone chan struct{}
}

// NewAdapter validates options and returns an adapter in the Stopped state.
func NewAdapter(opts Options) (*Adapter, error) {
	if opts.Launch == nil {
		return nil, fmt.Errorf("gaze adapter requires a launcher")
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 2 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 4096
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Adapter{
		launch:           opts.Launch,
		monitor:          opts.Monitor,
		sessionStart:     opts.SessionStart,
		handshakeTimeout: opts.HandshakeTimeout,
		stopTimeout:      opts.StopTimeout,
		clock:            opts.Clock,
		log:              opts.Log,
		state:            StateStopped,
		samples:          make(chan models.GazeSample, opts.BufferSize),
	}, nil
}

// State reports the current lifecycle state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Start launches the tracker and performs the readiness handshake: the
// first well-formed sample must arrive within the handshake timeout
// before the adapter transitions to Streaming.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateStopped && a.state != StateFaulted {
		state := a.state
		a.mu.Unlock()
		return &AcquisitionStartError{Reason: fmt.Sprintf("adapter is %s, not startable", state)}
	}
	a.state = StateStarting
	a.mu.Unlock()

	proc, err := a.launch(ctx)
	if err != nil {
		a.setState(StateFaulted)
		return &AcquisitionStartError{Reason: "tracker launch failed", Err: err}
	}

	stopCh := make(chan struct{})
	readerDone := make(chan struct{})
	a.mu.Lock()
	a.proc = proc
	a.stopCh = stopCh
	a.readerDone = readerDone
	a.mu.Unlock()

	ready := make(chan struct{}, 1)
	go a.readLoop(proc, ready, stopCh, readerDone)

	select {
	case <-ready:
		a.setState(StateStreaming)
		a.log.Info("gaze stream ready")
		return nil
	case <-time.After(a.handshakeTimeout):
		a.teardown(proc)
		a.setState(StateFaulted)
		return &AcquisitionStartError{Reason: "no sample within handshake timeout"}
	case <-ctx.Done():
		a.teardown(proc)
		a.setState(StateFaulted)
		return &AcquisitionStartError{Reason: "context cancelled during handshake", Err: ctx.Err()}
	}
}

// ReadSample is a non-blocking poll: it returns the next buffered
// sample, or ok=false when nothing new has arrived since the last call.
func (a *Adapter) ReadSample() (models.GazeSample, bool) {
	select {
	case s := <-a.samples:
		return s, true
	default:
		return models.GazeSample{}, false
	}
}

// Stop requests a graceful shutdown, waits a bounded time, and
// force-terminates on timeout. It never returns an error: teardown
// problems are logged and the adapter always ends Stopped.
func (a *Adapter) Stop() {
	a.mu.Lock()
	proc := a.proc
	state := a.state
	if state == StateStopped || state == StateStopping {
		a.mu.Unlock()
		return
	}
	a.state = StateStopping
	a.mu.Unlock()

	if proc != nil {
		a.teardown(proc)
	}
	a.setState(StateStopped)
	a.log.Info("gaze stream stopped")
}

func (a *Adapter) teardown(proc Process) {
	a.mu.Lock()
	if a.stopCh != nil {
		select {
		case <-a.stopCh:
		default:
			close(a.stopCh)
		}
	}
	readerDone := a.readerDone
	a.mu.Unlock()

	if err := proc.Terminate(); err != nil {
		a.log.Warn("tracker terminate failed", zap.Error(err))
	}
	select {
	case <-proc.Done():
	case <-time.After(a.stopTimeout):
		a.log.Warn("tracker did not exit in time, killing")
		if err := proc.Kill(); err != nil {
			a.log.Warn("tracker kill failed", zap.Error(err))
		}
	}
	if readerDone != nil {
		select {
		case <-readerDone:
		case <-time.After(a.stopTimeout):
		}
	}
}

// readLoop consumes the process output line by line. It signals ready
// on the first well-formed sample and publishes every record, tagging
// malformed or out-of-range ones invalid so hardware unreliability
// stays auditable.
func (a *Adapter) readLoop(proc Process, ready chan<- struct{}, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(proc.Output())
	signalled := false
	for scanner.Scan() {
		select {
		case <-stopCh:
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sample, wellFormed := a.parseLine(line)
		if wellFormed && !signalled {
			signalled = true
			ready <- struct{}{}
		}

		select {
		case a.samples <- sample:
		default:
			// The acquisition loop has fallen far behind; shedding
			// here is logged, not silent.
			a.log.Warn("gaze sample buffer full, dropping sample",
				zap.Float64("timestamp", sample.Timestamp))
		}
	}

	select {
	case <-stopCh:
		return
	default:
	}
	// EOF without a stop request means the tracker died mid-stream.
	if err := scanner.Err(); err != nil {
		a.log.Error("gaze stream read error", zap.Error(err))
	} else {
		a.log.Error("gaze stream ended unexpectedly")
	}
	a.mu.Lock()
	if a.state == StateStreaming || a.state == StateStarting {
		a.state = StateFaulted
	}
	a.mu.Unlock()
}

// parseLine decodes one `timestamp<TAB>x<TAB>y<TAB>valid` record in the
// tracker's device coordinates (top-left origin) and remaps it to
// center-origin pixels. The second return value reports whether the
// line was well-formed, which is what the readiness handshake counts.
func (a *Adapter) parseLine(line string) (models.GazeSample, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return models.GazeSample{Timestamp: a.now(), Valid: false}, false
	}

	ts, errT := strconv.ParseFloat(fields[0], 64)
	x, errX := strconv.ParseFloat(fields[1], 64)
	y, errY := strconv.ParseFloat(fields[2], 64)
	if errT != nil || errX != nil || errY != nil {
		return models.GazeSample{Timestamp: a.now(), Valid: false}, false
	}

	valid := fields[3] == "1" || strings.EqualFold(fields[3], "true")

	// Device space has the origin at the top-left corner; the pipeline
	// works in center-origin pixels with Y increasing upward.
	cx := x - float64(a.monitor.WidthPx)/2
	cy := float64(a.monitor.HeightPx)/2 - y

	sample := models.GazeSample{Timestamp: ts, X: cx, Y: cy, Valid: valid}

	switch {
	case math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0):
		sample.X, sample.Y = 0, 0
		sample.Valid = false
	case ts < a.sessionStart:
		sample.Valid = false
	}
	return sample, true
}

func (a *Adapter) now() float64 {
	return float64(a.clock().UnixNano()) / float64(time.Second)
}
