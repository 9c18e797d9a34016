package app

import "github.com/spf13/pflag"

// RegisterFlags registers the settings flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "Config file (yaml, json or toml)")
	flags.String("db-driver", "", "Database driver: mysql, postgres or sqlite")
	flags.StringP("db-dsn", "d", "", "Database connection string")
	flags.Int("db-max-open-conns", 0, "Maximum open database connections")
	flags.Int("db-max-idle-conns", 0, "Maximum idle database connections")
	flags.Duration("db-conn-max-lifetime", 0, "Maximum lifetime of a database connection")
	flags.StringP("schema-file", "s", "", "Relation schema file (yaml or json)")
	flags.Int("language-id", 0, "Language uid records are overlaid with (0 disables overlays)")
	flags.StringP("log-level", "l", "", "Log level: debug, info, warn or error")
	flags.StringP("table", "t", "", "Source table to index")
	flags.String("filter", "", "SQL condition restricting the indexed rows")
	flags.String("index-dir", "", "Directory holding indexes and the manifest")
	flags.Int("index-batch-size", 0, "Documents per index batch")
	flags.Int("max-results", 0, "Maximum search results")
	flags.String("schedule", "", "Cron schedule for re-indexing (e.g. @hourly)")
	flags.Duration("index-lock-timeout", 0, "How long to wait for the index lock")
}
