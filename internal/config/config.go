package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Conf holds the application configuration, making it accessible globally.
var Conf *Config

// Config struct is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Databricks DatabricksConfig `mapstructure:"databricks"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port               string   `mapstructure:"port"`
	JWTSecret          string   `mapstructure:"jwt_secret"`
	TokenLifetimeHours int      `mapstructure:"token_lifetime_hours"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
}

// StorageConfig holds the local persistence paths.
type StorageConfig struct {
	DataDir       string `mapstructure:"data_dir"`
	UsersPath     string `mapstructure:"users_path"`
	SentencesPath string `mapstructure:"sentences_path"`
}

// DatabricksConfig holds the analytics warehouse connection settings.
// Uploads are skipped entirely unless Enabled is set.
type DatabricksConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServerHostname string `mapstructure:"server_hostname"`
	HTTPPath       string `mapstructure:"http_path"`
	AccessToken    string `mapstructure:"access_token"`
	QueueSize      int    `mapstructure:"queue_size"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.jwt_secret", "change-me-in-production")
	v.SetDefault("server.token_lifetime_hours", 24)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	// Storage defaults
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.users_path", "users.json")
	v.SetDefault("storage.sentences_path", "config/sentences.yaml")

	// Databricks defaults: disabled until credentials are provided
	v.SetDefault("databricks.enabled", false)
	v.SetDefault("databricks.queue_size", 256)

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs
}

// Init initializes the configuration with Viper.
func Init(projectRoot string, log *zap.Logger) error {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// --- File Configuration ---
	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	v.SetEnvPrefix("KEYCAP") // e.g., KEYCAP_SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the initial configuration from the file.
	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal the config into our global Conf variable
	if err := v.Unmarshal(&Conf); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// Set up a watch for configuration changes for hot-reloading
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
