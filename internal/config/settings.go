package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sha1n/structured-relation/internal/domain"
	"github.com/sha1n/structured-relation/internal/store"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of all environment variables read by the settings loader.
const EnvPrefix = "STRUCTURED_RELATION"

// DatabaseSettings configuration for the record database
type DatabaseSettings struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// IndexingSettings selects the source rows and describes the index fields rendered
// for each of them.
type IndexingSettings struct {
	Table  string `mapstructure:"table"`
	Filter string `mapstructure:"filter"`
	// Fields is read from the config file as is, field names and option keys are case
	// sensitive.
	Fields domain.IndexingConfiguration `mapstructure:"-"`
}

// IndexSettings configuration for the search index
type IndexSettings struct {
	Dir         string        `mapstructure:"dir"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxResults  int           `mapstructure:"max_results"`
	Schedule    string        `mapstructure:"schedule"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// Settings application settings
type Settings struct {
	ConfigFile string           `mapstructure:"config"`
	Database   DatabaseSettings `mapstructure:"database"`
	SchemaFile string           `mapstructure:"schema_file"`
	LanguageID int              `mapstructure:"language_id"`
	LogLevel   string           `mapstructure:"log_level"`
	Indexing   IndexingSettings `mapstructure:"indexing"`
	Index      IndexSettings    `mapstructure:"index"`
}

var envBindings = []string{
	"config",
	"database.driver",
	"database.dsn",
	"database.max_open_conns",
	"database.max_idle_conns",
	"database.conn_max_lifetime",
	"schema_file",
	"language_id",
	"log_level",
	"indexing.table",
	"indexing.filter",
	"index.dir",
	"index.batch_size",
	"index.max_results",
	"index.schedule",
	"index.lock_timeout",
}

var flagBindings = map[string]string{
	"config":                     "config",
	"database.driver":            "db-driver",
	"database.dsn":               "db-dsn",
	"database.max_open_conns":    "db-max-open-conns",
	"database.max_idle_conns":    "db-max-idle-conns",
	"database.conn_max_lifetime": "db-conn-max-lifetime",
	"schema_file":                "schema-file",
	"language_id":                "language-id",
	"log_level":                  "log-level",
	"indexing.table":             "table",
	"indexing.filter":            "filter",
	"index.dir":                  "index-dir",
	"index.batch_size":           "index-batch-size",
	"index.max_results":          "max-results",
	"index.schedule":             "schedule",
	"index.lock_timeout":         "index-lock-timeout",
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > config file > .env file > defaults.
// If flags is nil, only env vars, files and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("database.driver", store.DriverMySQL)
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 10*time.Minute)
	v.SetDefault("language_id", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("index.dir", defaultIndexDir())
	v.SetDefault("index.batch_size", 100)
	v.SetDefault("index.max_results", 20)
	v.SetDefault("index.lock_timeout", 60*time.Second)

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range envBindings {
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		for key, name := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	configFile := expandHomeDir(v.GetString("config"))
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType(configType(configFile))
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	if configFile != "" {
		fields, err := loadIndexingFields(configFile)
		if err != nil {
			return nil, err
		}
		settings.Indexing.Fields = fields
	}

	settings.ConfigFile = configFile
	settings.SchemaFile = expandHomeDir(settings.SchemaFile)
	settings.Index.Dir = expandHomeDir(settings.Index.Dir)
	settings.Indexing.Table = strings.TrimSpace(settings.Indexing.Table)

	return &settings, nil
}

// loadIndexingFields reads indexing.fields from the config file, keeping key case.
func loadIndexingFields(path string) (domain.IndexingConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var doc struct {
		Indexing struct {
			Fields domain.IndexingConfiguration `yaml:"fields"`
		} `yaml:"indexing"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse indexing fields: %w", err)
	}
	return doc.Indexing.Fields, nil
}

func configType(path string) string {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "json", "toml":
		return ext
	default:
		return "yaml"
	}
}

// defaultIndexDir returns the default directory of the search index
func defaultIndexDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".structured-relation"
	}
	return filepath.Join(home, ".structured-relation")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// ParseLogLevel maps a level name to a slog.Level.
func ParseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// ValidateSettings checks for missing or inconsistent configuration.
func ValidateSettings(s *Settings) error {
	if _, err := store.NormalizeDriver(s.Database.Driver); err != nil {
		return err
	}
	if strings.TrimSpace(s.Database.DSN) == "" {
		return errors.New("db-dsn cannot be empty")
	}
	if s.Database.MaxOpenConns < 0 || s.Database.MaxIdleConns < 0 {
		return errors.New("database connection limits cannot be negative")
	}
	if strings.TrimSpace(s.SchemaFile) == "" {
		return errors.New("schema-file cannot be empty")
	}
	if s.LanguageID < 0 {
		return fmt.Errorf("language-id must not be negative, got: %d", s.LanguageID)
	}
	if _, err := ParseLogLevel(s.LogLevel); err != nil {
		return err
	}

	if err := validateIndexSettings(&s.Index); err != nil {
		return err
	}
	return validateIndexingSettings(&s.Indexing)
}

// validateIndexSettings validates the search index configuration
func validateIndexSettings(i *IndexSettings) error {
	if i.Dir == "" {
		return errors.New("index-dir cannot be empty")
	}
	if i.BatchSize <= 0 {
		return errors.New("index-batch-size must be positive")
	}
	if i.MaxResults <= 0 {
		return errors.New("max-results must be positive")
	}
	if i.LockTimeout <= 0 {
		return errors.New("index-lock-timeout must be positive")
	}
	if i.Schedule != "" {
		if _, err := cron.ParseStandard(i.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", i.Schedule, err)
		}
	}
	return nil
}

// validateIndexingSettings validates the index field configuration
func validateIndexingSettings(i *IndexingSettings) error {
	if i.Table == "" {
		if len(i.Fields) > 0 {
			return errors.New("indexing fields require an indexing table")
		}
		return nil
	}
	if !store.ValidIdentifier(i.Table) {
		return fmt.Errorf("invalid indexing table %q", i.Table)
	}
	if len(i.Fields) == 0 {
		return fmt.Errorf("indexing table %s has no fields configured", i.Table)
	}

	for name, field := range i.Fields {
		switch field.Type {
		case domain.FieldType:
			if strings.TrimSpace(cast.ToString(field.Options[domain.OptionField])) == "" {
				return fmt.Errorf("index field %s: FIELD requires a field option", name)
			}
		case domain.StructuredRelationType:
			if strings.TrimSpace(cast.ToString(field.Options[domain.OptionLocalField])) == "" {
				return fmt.Errorf("index field %s: %s requires a localField option", name, domain.StructuredRelationType)
			}
		default:
			return fmt.Errorf("index field %s: unknown type %q", name, field.Type)
		}
	}
	return nil
}
