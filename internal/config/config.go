package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/TheSimpleMango/ImagineFace/internal/models"
)

// Conf holds the application configuration, accessible globally after Init.
var Conf *Config

// Config is the top-level configuration structure.
type Config struct {
	Data        DataConfig           `mapstructure:"data"`
	Monitor     models.MonitorConfig `mapstructure:"monitor"`
	Acquisition AcquisitionConfig    `mapstructure:"acquisition"`
	Server      ServerConfig         `mapstructure:"server"`
	Database    DatabaseConfig       `mapstructure:"database"`
	Logging     LoggingConfig        `mapstructure:"logging"`
}

// DataConfig locates the raw data tree and the task plan.
type DataConfig struct {
	Directory string `mapstructure:"directory"`
	TaskPlan  string `mapstructure:"task_plan"`
}

// AcquisitionConfig holds the acquisition-loop settings. The monitor
// snapshot is taken from Conf.Monitor when a session starts and is
// immutable for the session's duration, whatever the watcher reloads.
type AcquisitionConfig struct {
	TrackerCommand   string        `mapstructure:"tracker_command"`
	TrackerArgs      []string      `mapstructure:"tracker_args"`
	PollHz           int           `mapstructure:"poll_hz"`
	CueDuration      time.Duration `mapstructure:"cue_duration"`
	TrialTimeout     time.Duration `mapstructure:"trial_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	StopTimeout      time.Duration `mapstructure:"stop_timeout"`
	GazeStartRetries int           `mapstructure:"gaze_start_retries"`
}

// PollInterval derives the acquisition cadence from the configured rate.
func (c AcquisitionConfig) PollInterval() time.Duration {
	hz := c.PollHz
	if hz <= 0 {
		hz = 60
	}
	return time.Second / time.Duration(hz)
}

// ServerConfig holds results-server settings.
type ServerConfig struct {
	Port           string `mapstructure:"port"`
	SessionSecret  string `mapstructure:"session_secret"`
	OperatorUser   string `mapstructure:"operator_user"`
	OperatorBcrypt string `mapstructure:"operator_bcrypt"`
}

// DatabaseConfig holds the analysis-store connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.directory", "data")
	v.SetDefault("data.task_plan", "config/tasks.yaml")

	// Reference lab display: 24" 1080p panel at half a meter.
	v.SetDefault("monitor.width_px", 1920)
	v.SetDefault("monitor.height_px", 1080)
	v.SetDefault("monitor.diagonal_inches", 24.0)
	v.SetDefault("monitor.viewing_distance_m", 0.5)

	v.SetDefault("acquisition.tracker_command", "TobiiStream")
	v.SetDefault("acquisition.poll_hz", 60)
	v.SetDefault("acquisition.cue_duration", "3s")
	v.SetDefault("acquisition.trial_timeout", "2m")
	v.SetDefault("acquisition.handshake_timeout", "5s")
	v.SetDefault("acquisition.stop_timeout", "2s")
	v.SetDefault("acquisition.gaze_start_retries", 2)

	v.SetDefault("server.port", "5050")
	v.SetDefault("server.operator_user", "operator")

	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "facetrace-db")

	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs
}

// Init initializes the configuration with Viper.
func Init(projectRoot string, log *zap.Logger) error {
	v := viper.New()

	setDefaults(v)

	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("FACETRACE") // e.g., FACETRACE_SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; defaults and env vars apply.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(&Conf); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// Hot-reload for operator-tunable settings. Running sessions keep
	// their monitor snapshot regardless.
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		if err := v.Unmarshal(&Conf); err != nil {
			log.Error("Error reloading configuration", zap.Error(err))
		}
	})

	log.Info("Configuration loaded successfully")
	return nil
}
