// Package relations indexes and searches rendered structured relation fields and
// exposes rendering, decoding and search to MCP clients.
package relations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/sha1n/structured-relation/internal/codec"
	"github.com/sha1n/structured-relation/internal/config"
	"github.com/sha1n/structured-relation/internal/detector"
	"github.com/sha1n/structured-relation/internal/domain"
	"github.com/sha1n/structured-relation/internal/pipeline"
)

const documentPageSize = 1000

var (
	// ErrIndexNotReady is returned by index operations before Open succeeded.
	ErrIndexNotReady = errors.New("index is not ready")

	// ErrNoIndexingTable is returned when no indexing table is configured.
	ErrNoIndexingTable = errors.New("no indexing table configured")
)

// RecordNotFoundError is returned when a source record does not exist.
type RecordNotFoundError struct {
	Table string
	UID   int64
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("record %s not found", domain.DocumentID(e.Table, e.UID))
}

// RecordSource reads source records.
type RecordSource interface {
	Record(ctx context.Context, table string, uid int64) (*domain.Record, error)
	Records(ctx context.Context, table, filter string, limit int) ([]*domain.Record, error)
}

// Dependencies are the collaborators of a Service.
type Dependencies struct {
	Records   RecordSource
	Renderer  Renderer
	Detectors detector.Detector
	Logger    *slog.Logger
}

// IndexStats summarizes an indexing run.
type IndexStats struct {
	Table    string
	Indexed  int
	Skipped  int
	Deleted  int
	Duration time.Duration
}

// Service coordinates rendering, indexing and search.
type Service struct {
	settings *config.Settings
	records  RecordSource
	renderer Renderer
	builder  *DocumentBuilder
	indexer  *Indexer
	manifest *Manifest
	lock     *FileLock
	logger   *slog.Logger

	index bleve.Index
	ready bool
	mu    sync.RWMutex
	runMu sync.Mutex
}

// NewService creates a new relations service.
func NewService(settings *config.Settings, deps Dependencies) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}
	if deps.Records == nil || deps.Renderer == nil {
		return nil, fmt.Errorf("records and renderer are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	detectors := deps.Detectors
	if detectors == nil {
		detectors = detector.NewRegistry(detector.StructuredRelation)
	}

	if err := os.MkdirAll(settings.Index.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	manifest, err := LoadManifest(filepath.Join(settings.Index.Dir, ManifestFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	var builder *DocumentBuilder
	if settings.Indexing.Table != "" {
		builder, err = NewDocumentBuilder(deps.Renderer, detectors, settings.Indexing.Fields)
		if err != nil {
			return nil, err
		}
	}

	return &Service{
		settings: settings,
		records:  deps.Records,
		renderer: deps.Renderer,
		builder:  builder,
		indexer:  NewIndexer(settings.Index.Dir, settings.Indexing.Fields, settings.Index.BatchSize),
		manifest: manifest,
		lock:     NewFileLock(filepath.Join(settings.Index.Dir, LockFilename)),
		logger:   logger,
	}, nil
}

// Render renders one relation field of table:uid.
func (s *Service) Render(ctx context.Context, table string, uid int64, opts pipeline.Options) (string, error) {
	record, err := s.records.Record(ctx, table, uid)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", &RecordNotFoundError{Table: table, UID: uid}
	}
	return s.renderer.Render(ctx, domain.SourceRecord{Table: table, Record: record}, opts)
}

// FieldOptions returns the render options of a configured structured relation index
// field.
func (s *Service) FieldOptions(indexField string) (pipeline.Options, error) {
	cfg, ok := s.settings.Indexing.Fields[indexField]
	if !ok || cfg.Type != domain.StructuredRelationType {
		return pipeline.Options{}, fmt.Errorf("unknown structured relation index field %q", indexField)
	}
	return pipeline.OptionsFromConfig(cfg.Options)
}

// Decode parses a stored index field value back into records.
func (s *Service) Decode(value string, multiValue bool) ([]*domain.Record, error) {
	return codec.Parse(value, multiValue)
}

// Open locks and opens the index of the configured table.
func (s *Service) Open(ctx context.Context) error {
	table := s.settings.Indexing.Table
	if table == "" {
		return ErrNoIndexingTable
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	if err := s.lock.Lock(ctx, s.settings.Index.LockTimeout); err != nil {
		return fmt.Errorf("failed to lock index: %w", err)
	}
	index, err := s.indexer.OpenForWrite(table)
	if err != nil {
		_ = s.lock.Unlock()
		return err
	}

	s.index = index
	s.ready = true
	s.logger.Info("Index ready", "table", table)
	return nil
}

// Initialize opens the index and indexes the table when it was never indexed or its
// last run failed. Indexing failures are logged; the index stays open for search.
func (s *Service) Initialize(ctx context.Context) error {
	if err := s.Open(ctx); err != nil {
		return err
	}

	table := s.settings.Indexing.Table
	state, ok := s.manifest.TableState(table)
	if ok && state.Error == "" && s.indexer.IndexExists(table) {
		s.logger.Info("Using existing index", "table", table, "last_indexed", state.LastIndexed, "doc_count", state.DocCount)
		return nil
	}

	if _, err := s.IndexTable(ctx); err != nil {
		s.logger.Error("Initial indexing failed", "table", table, "error", err)
	}
	return nil
}

// IsReady returns true if the index is open.
func (s *Service) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *Service) openIndex() (bleve.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready || s.index == nil {
		return nil, ErrIndexNotReady
	}
	return s.index, nil
}

// IndexTable renders every source row of the configured table into the index and
// removes documents of rows that no longer exist. Rows whose relations cannot be
// rendered are skipped and logged.
func (s *Service) IndexTable(ctx context.Context) (IndexStats, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	table := s.settings.Indexing.Table
	stats := IndexStats{Table: table}
	index, err := s.openIndex()
	if err != nil {
		return stats, err
	}

	start := time.Now()
	stats, err = s.indexTable(ctx, index, table)
	stats.Duration = time.Since(start)

	if err != nil {
		s.manifest.RecordFailure(table, err, start)
	} else {
		s.manifest.RecordRun(table, TableState{
			LastIndexed: start,
			Duration:    stats.Duration,
			DocCount:    stats.Indexed,
			Skipped:     stats.Skipped,
		})
	}
	if serr := s.saveManifest(); serr != nil {
		s.logger.Error("Failed to save manifest", "error", serr)
	}

	if err != nil {
		return stats, fmt.Errorf("index %s: %w", table, err)
	}
	s.logger.Info("Index complete", "table", table, "indexed", stats.Indexed, "skipped", stats.Skipped, "deleted", stats.Deleted, "duration", stats.Duration)
	return stats, nil
}

func (s *Service) indexTable(ctx context.Context, index bleve.Index, table string) (IndexStats, error) {
	stats := IndexStats{Table: table}

	rows, err := s.records.Records(ctx, table, s.settings.Indexing.Filter, 0)
	if err != nil {
		return stats, err
	}

	writer := s.indexer.NewWriter(index)
	seen := make(map[string]struct{}, len(rows))

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		doc, err := s.builder.Build(ctx, domain.SourceRecord{Table: table, Record: row})
		if err != nil {
			if !isRecordError(err) {
				return stats, err
			}
			s.logger.Warn("Skipping record", "table", table, "error", err)
			stats.Skipped++
			continue
		}
		if err := writer.Index(doc); err != nil {
			return stats, err
		}
		seen[doc.ID] = struct{}{}
	}
	if err := writer.Flush(); err != nil {
		return stats, err
	}

	existing, err := documentIDs(ctx, index, table)
	if err != nil {
		return stats, err
	}
	for _, id := range existing {
		if _, ok := seen[id]; ok {
			continue
		}
		if err := writer.Delete(id); err != nil {
			return stats, err
		}
	}
	if err := writer.Flush(); err != nil {
		return stats, err
	}

	stats.Indexed = writer.Indexed()
	stats.Deleted = writer.Deleted()
	return stats, nil
}

// isRecordError reports whether err concerns the data of a single record.
func isRecordError(err error) bool {
	var cardinality *domain.CardinalityError
	var resolution *domain.ResolutionError
	var decode *domain.DecodeError
	return errors.As(err, &cardinality) || errors.As(err, &resolution) || errors.As(err, &decode)
}

// documentIDs returns the ids of all documents of table in index.
func documentIDs(ctx context.Context, index bleve.Index, table string) ([]string, error) {
	q := bleve.NewTermQuery(table)
	q.SetField(domain.DocFieldTable)

	var ids []string
	for from := 0; ; from += documentPageSize {
		req := bleve.NewSearchRequestOptions(q, documentPageSize, from, false)
		req.SortBy([]string{"_id"})
		res, err := index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < documentPageSize {
			return ids, nil
		}
	}
}

// Search runs a full-text query against the index.
func (s *Service) Search(ctx context.Context, query string, limit int) (*bleve.SearchResult, error) {
	index, err := s.openIndex()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.settings.Index.MaxResults {
		limit = s.settings.Index.MaxResults
	}

	req := bleve.NewSearchRequestOptions(BuildQuery(query), limit, 0, false)
	req.Fields = []string{"*"}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField(domain.DocFieldContent)

	res, err := index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return res, nil
}

// Manifest returns the indexing manifest.
func (s *Service) Manifest() *Manifest {
	return s.manifest
}

// Settings returns the service settings.
func (s *Service) Settings() *config.Settings {
	return s.settings
}

func (s *Service) saveManifest() error {
	return s.manifest.Save(filepath.Join(s.settings.Index.Dir, ManifestFilename))
}

// Close releases the index and its lock.
func (s *Service) Close() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close index: %w", err))
		}
		s.index = nil
	}
	if err := s.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}

	s.ready = false
	return errors.Join(errs...)
}
