package config

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
)

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	if s.ConfigFile != "" {
		logger.InfoContext(ctx, "Config: config", "value", s.ConfigFile)
	}
	logger.InfoContext(ctx, "Config: database.driver", "value", s.Database.Driver)
	logger.InfoContext(ctx, "Config: database.dsn", "value", MaskDSN(s.Database.DSN))
	logger.InfoContext(ctx, "Config: schema_file", "value", s.SchemaFile)
	logger.InfoContext(ctx, "Config: language_id", "value", s.LanguageID)
	logger.InfoContext(ctx, "Config: index.dir", "value", s.Index.Dir)
	if s.Index.Schedule != "" {
		logger.InfoContext(ctx, "Config: index.schedule", "value", s.Index.Schedule)
	}

	if s.Indexing.Table != "" {
		logger.InfoContext(ctx, "Config: indexing.table", "value", s.Indexing.Table)
		fields := make([]string, 0, len(s.Indexing.Fields))
		for name := range s.Indexing.Fields {
			fields = append(fields, name)
		}
		sort.Strings(fields)
		logger.InfoContext(ctx, "Config: indexing.fields", "count", len(fields), "names", fields)
	}
}

var (
	urlDSNPassword   = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9+.-]*://[^:/@]*):([^@/]*)@`)
	mysqlDSNPassword = regexp.MustCompile(`^([^:/@]+):([^@]*)@`)
)

// MaskDSN hides the password of a URL style or MySQL style DSN.
func MaskDSN(dsn string) string {
	if urlDSNPassword.MatchString(dsn) {
		return urlDSNPassword.ReplaceAllString(dsn, "$1:****@")
	}
	return mysqlDSNPassword.ReplaceAllString(dsn, "$1:****@")
}

// DatabaseSettingsLogValue returns a slog.Value for DatabaseSettings with masked data
func DatabaseSettingsLogValue(s DatabaseSettings) slog.Value {
	return slog.GroupValue(
		slog.String("driver", s.Driver),
		slog.String("dsn", MaskDSN(s.DSN)),
		slog.Int("max_open_conns", s.MaxOpenConns),
		slog.Int("max_idle_conns", s.MaxIdleConns),
		slog.Duration("conn_max_lifetime", s.ConnMaxLifetime),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.Any("database", DatabaseSettingsLogValue(s.Database)),
		slog.String("schema_file", s.SchemaFile),
		slog.Int("language_id", s.LanguageID),
		slog.String("log_level", s.LogLevel),
		slog.String("indexing_table", s.Indexing.Table),
		slog.Int("indexing_fields", len(s.Indexing.Fields)),
		slog.String("index_dir", s.Index.Dir),
		slog.String("schedule", s.Index.Schedule),
	)
}
