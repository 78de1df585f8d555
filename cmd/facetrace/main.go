package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/TheSimpleMango/ImagineFace/internal/config"
	"github.com/TheSimpleMango/ImagineFace/internal/gaze"
	"github.com/TheSimpleMango/ImagineFace/internal/geometry"
	logger "github.com/TheSimpleMango/ImagineFace/internal/logging"
	"github.com/TheSimpleMango/ImagineFace/internal/models"
	"github.com/TheSimpleMango/ImagineFace/internal/store"
	"github.com/TheSimpleMango/ImagineFace/internal/trial"
)

func main() {
	participant := flag.String("participant", "", "participant identifier for this session")
	root := flag.String("root", ".", "project root holding config/ and the data directory")
	flag.Parse()

	log, err := logger.Init(*root)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if err := config.Init(*root, log); err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	if *participant == "" {
		log.Fatal("A participant id is required (-participant)")
	}

	// The monitor snapshot is fixed for the whole session; a geometry
	// that cannot be built now would poison every downstream conversion.
	monitor := config.Conf.Monitor
	if _, err := geometry.New(monitor); err != nil {
		log.Fatal("Invalid monitor configuration", zap.Error(err))
	}

	plan, err := models.LoadTaskPlan(filepath.Join(*root, config.Conf.Data.TaskPlan))
	if err != nil {
		log.Fatal("Failed to load task plan", zap.Error(err))
	}

	writer, err := store.NewWriter(filepath.Join(*root, config.Conf.Data.Directory), *participant)
	if err != nil {
		log.Fatal("Failed to create participant directory", zap.Error(err))
	}

	acq := config.Conf.Acquisition
	adapter, err := gaze.NewAdapter(gaze.Options{
		Launch:           gaze.ExecLauncher(acq.TrackerCommand, acq.TrackerArgs...),
		Monitor:          monitor,
		SessionStart:     float64(time.Now().UnixNano()) / float64(time.Second),
		HandshakeTimeout: acq.HandshakeTimeout,
		StopTimeout:      acq.StopTimeout,
		Log:              log,
	})
	if err != nil {
		log.Fatal("Failed to build gaze adapter", zap.Error(err))
	}

	input := newConsoleInput(os.Stdin, monitor, log)
	cues := newConsoleCues(acq.CueDuration, log)

	runner := trial.NewSynchronizer(trial.Options{
		Cues:         cues,
		Landmarks:    input,
		Gaze:         adapter,
		Shots:        writer,
		Store:        writer,
		PollInterval: acq.PollInterval(),
		TrialTimeout: acq.TrialTimeout,
		Abort:        input.Aborted,
		Log:          log,
	})

	session := trial.NewAggregator(trial.SessionOptions{
		Participant:      *participant,
		Monitor:          monitor,
		Plan:             plan,
		Runner:           runner,
		Gaze:             adapter,
		Store:            writer,
		GazeStartRetries: acq.GazeStartRetries,
		Log:              log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manifest, err := session.Run(ctx)
	if err != nil {
		log.Error("Session ended early", zap.Error(err))
	}
	log.Info("Session finished",
		zap.String("participant", *participant),
		zap.String("state", manifest.State),
		zap.Int("trialsCompleted", manifest.TrialsCompleted),
		zap.Int("trialsSkipped", manifest.TrialsSkipped),
		zap.Bool("gazeAvailable", manifest.GazeAvailable))
}
