package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/TheSimpleMango/ImagineFace/internal/config"
	logging "github.com/TheSimpleMango/ImagineFace/internal/logging"
	"github.com/TheSimpleMango/ImagineFace/internal/models"
)

var DB *gorm.DB

func Init(log *zap.Logger) {
	var err error
	dbConf := config.Conf.Database
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		dbConf.Host, dbConf.User, dbConf.Password, dbConf.DBName, dbConf.Port)

	gormLogger := logging.NewGormZapLogger(log)
	gormLogger.LogLevel = gormlogger.Warn

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})

	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	log.Info("Database connection established successfully.")
	runMigrations(log)
}

func runMigrations(log *zap.Logger) {
	// AutoMigrate creates tables and columns but not custom indexes,
	// so the query index is handled separately below.
	err := DB.AutoMigrate(
		&models.SessionRecord{},
		&models.MeasurementRow{},
		&models.ParticipantSummary{},
	)
	if err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}
	log.Info("Database migrations completed successfully.")

	summaryIndex := `CREATE INDEX IF NOT EXISTS idx_summaries_query ON participant_summaries (participant, metric_key, created_at DESC);`
	if err := DB.Exec(summaryIndex).Error; err != nil {
		log.Fatal("Failed to create custom index on summaries table", zap.Error(err))
	}
	log.Info("Custom indexes ensured successfully.")
}
