package app

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestRegisterFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	expectedFlags := []string{
		"config",
		"db-driver",
		"db-dsn",
		"db-max-open-conns",
		"db-max-idle-conns",
		"db-conn-max-lifetime",
		"schema-file",
		"language-id",
		"log-level",
		"table",
		"filter",
		"index-dir",
		"index-batch-size",
		"max-results",
		"schedule",
		"index-lock-timeout",
	}

	for _, name := range expectedFlags {
		if flags.Lookup(name) == nil {
			t.Errorf("Expected flag %q to be registered", name)
		}
	}
}

func TestRegisterFlags_Shorthand(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	shorthandFlags := map[string]string{
		"config":      "c",
		"db-dsn":      "d",
		"schema-file": "s",
		"log-level":   "l",
		"table":       "t",
	}

	for name, shorthand := range shorthandFlags {
		flag := flags.Lookup(name)
		if flag == nil {
			t.Errorf("Flag %q not found", name)
			continue
		}
		if flag.Shorthand != shorthand {
			t.Errorf("Flag %q expected shorthand %q, got %q", name, shorthand, flag.Shorthand)
		}
	}
}

func TestRegisterFlags_SetValues(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	err := flags.Parse([]string{
		"--db-driver", "postgres",
		"-t", "pages",
		"--language-id", "2",
		"--index-lock-timeout", "5s",
	})
	if err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}

	driver, _ := flags.GetString("db-driver")
	if driver != "postgres" {
		t.Errorf("Expected db-driver 'postgres', got '%s'", driver)
	}

	table, _ := flags.GetString("table")
	if table != "pages" {
		t.Errorf("Expected table 'pages', got '%s'", table)
	}

	languageID, _ := flags.GetInt("language-id")
	if languageID != 2 {
		t.Errorf("Expected language-id 2, got %d", languageID)
	}

	timeout, _ := flags.GetDuration("index-lock-timeout")
	if timeout != 5*time.Second {
		t.Errorf("Expected index-lock-timeout 5s, got %s", timeout)
	}
}
