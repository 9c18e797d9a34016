package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/structured-relation/internal/codec"
	"github.com/sha1n/structured-relation/internal/config"
	"github.com/sha1n/structured-relation/internal/detector"
	"github.com/sha1n/structured-relation/internal/domain"
	mcputil "github.com/sha1n/structured-relation/internal/mcp"
	"github.com/sha1n/structured-relation/internal/pipeline"
	"github.com/sha1n/structured-relation/internal/relations"
	"github.com/sha1n/structured-relation/internal/resolver"
	"github.com/sha1n/structured-relation/internal/schema"
	"github.com/sha1n/structured-relation/internal/store"
	"github.com/spf13/pflag"
)

// ServerName is the MCP implementation name
const ServerName = "structured-relation"

// RunParams contains dependencies for the run functions
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	CreateService     func(context.Context, *config.Settings) (*relations.Service, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:  config.LoadSettingsWithFlags,
		ValidSettings: config.ValidateSettings,
		CreateService: CreateRelationsService,
	}
}

// RenderRequest selects the relation field rendered by RunRender. IndexField takes
// precedence over Options.
type RenderRequest struct {
	Table      string
	UID        int64
	IndexField string
	Options    pipeline.Options
}

func loadSettings(params RunParams, flags *pflag.FlagSet) (*config.Settings, error) {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if err := params.ValidSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Always log to stderr, stdout carries the MCP protocol and command output
	level, err := config.ParseLogLevel(settings.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	return settings, nil
}

// RunWithDeps serves the MCP tools over stdio with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	settings, err := loadSettings(params, flags)
	if err != nil {
		return err
	}

	slog.Info("Starting structured relation MCP server", "version", version)
	config.Log(settings)

	svc, cleanup, err := params.CreateService(ctx, settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	if svc != nil && settings.Indexing.Table != "" {
		if err := svc.Initialize(ctx); err != nil {
			return err
		}
		if settings.Index.Schedule != "" {
			scheduler, err := svc.Schedule(ctx, settings.Index.Schedule)
			if err != nil {
				return err
			}
			scheduler.Start()
			defer scheduler.Stop()
			slog.Info("Scheduled re-indexing", "schedule", settings.Index.Schedule)
		}
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:    ServerName,
		Version: version,
		Service: svc,
	})

	// Use custom transport if provided (for testing), otherwise use stdio
	transport := params.CustomIOTransport
	if transport == nil {
		transport = &mcp.StdioTransport{}
	}
	return server.Run(ctx, transport)
}

// RunIndex indexes the configured table once and reports the result to out
func RunIndex(ctx context.Context, params RunParams, flags *pflag.FlagSet, out io.Writer) error {
	settings, err := loadSettings(params, flags)
	if err != nil {
		return err
	}
	config.Log(settings)

	svc, cleanup, err := params.CreateService(ctx, settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	if err := svc.Open(ctx); err != nil {
		return err
	}
	stats, err := svc.IndexTable(ctx)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "Indexed %d records of %s (%d skipped, %d removed) in %s\n",
		stats.Indexed, stats.Table, stats.Skipped, stats.Deleted, stats.Duration.Round(time.Millisecond))
	return err
}

// RunRender renders one relation field of a source record to out
func RunRender(ctx context.Context, params RunParams, flags *pflag.FlagSet, req RenderRequest, out io.Writer) error {
	settings, err := loadSettings(params, flags)
	if err != nil {
		return err
	}

	svc, cleanup, err := params.CreateService(ctx, settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	opts := req.Options
	if req.IndexField != "" {
		if opts, err = svc.FieldOptions(req.IndexField); err != nil {
			return err
		}
	}
	if opts.LocalField == "" {
		return pipeline.ErrMissingLocalField
	}

	value, err := svc.Render(ctx, req.Table, req.UID, opts)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, value)
	return err
}

// RunDecode writes the records held by a stored index field value to out as JSON
func RunDecode(value string, multiValue bool, out io.Writer) error {
	records, err := codec.Parse(value, multiValue)
	if err != nil {
		return err
	}
	if records == nil {
		records = []*domain.Record{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format records: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// CreateRelationsService connects to the database, loads the relation schema and wires
// the rendering pipeline into a relations service
func CreateRelationsService(ctx context.Context, settings *config.Settings) (*relations.Service, func(), error) {
	logger := slog.Default()

	sc, err := schema.Load(settings.SchemaFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load schema: %w", err)
	}

	st, err := store.Open(ctx, store.Config{
		Driver:          settings.Database.Driver,
		DSN:             settings.Database.DSN,
		MaxOpenConns:    settings.Database.MaxOpenConns,
		MaxIdleConns:    settings.Database.MaxIdleConns,
		ConnMaxLifetime: settings.Database.ConnMaxLifetime,
	}, logger, store.WithTables(sc))
	if err != nil {
		return nil, nil, err
	}

	overlays := store.NewOverlays(st, sc, settings.LanguageID, logger)
	res := resolver.New(st, resolver.WithOverlays(overlays), resolver.WithLogger(logger))

	svc, err := relations.NewService(settings, relations.Dependencies{
		Records:   st,
		Renderer:  pipeline.New(sc, res, logger),
		Detectors: detector.NewRegistry(detector.StructuredRelation),
		Logger:    logger,
	})
	if err != nil {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
		return nil, nil, fmt.Errorf("failed to create relations service: %w", err)
	}

	cleanup := func() {
		if err := svc.Close(); err != nil {
			slog.Error("Failed to close relations service", "error", err)
		}
		if err := st.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}
	return svc, cleanup, nil
}
