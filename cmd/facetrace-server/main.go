package main

import (
	"context"
	"flag"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/TheSimpleMango/ImagineFace/internal/analysis"
	"github.com/TheSimpleMango/ImagineFace/internal/config"
	"github.com/TheSimpleMango/ImagineFace/internal/database"
	logger "github.com/TheSimpleMango/ImagineFace/internal/logging"
	"github.com/TheSimpleMango/ImagineFace/internal/router"
)

func main() {
	root := flag.String("root", ".", "project root holding config/ and the data directory")
	analyze := flag.Bool("analyze", false, "run the analysis pipeline over the data directory before serving")
	flag.Parse()

	log, err := logger.Init(*root)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if err := config.Init(*root, log); err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	database.Init(log)

	dataDir := filepath.Join(*root, config.Conf.Data.Directory)

	if *analyze {
		pipeline := analysis.NewPipeline(dataDir, log)
		results, err := pipeline.AnalyzeAll(context.Background())
		if err != nil {
			log.Fatal("Analysis pipeline failed", zap.Error(err))
		}
		combined, err := pipeline.WriteTables(results)
		if err != nil {
			log.Fatal("Failed to write analysis tables", zap.Error(err))
		}
		log.Info("Analysis tables written", zap.String("combined", combined))
	}

	r := router.Setup(log, dataDir)

	port := ":" + config.Conf.Server.Port
	log.Info("Server listening on http://localhost" + port)
	if err := r.Run(port); err != nil {
		log.Fatal("Failed to run Gin server", zap.Error(err))
	}
}
