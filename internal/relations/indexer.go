package relations

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/sha1n/structured-relation/internal/domain"
)

const (
	// IndexSuffix is the suffix for index directories
	IndexSuffix = ".bleve"

	// DefaultBatchSize is the number of documents per batch when none is configured
	DefaultBatchSize = 100
)

// Indexer manages the Bleve indexes of source tables.
type Indexer struct {
	baseDir   string
	fields    domain.IndexingConfiguration
	batchSize int
}

// NewIndexer creates a new indexer.
func NewIndexer(baseDir string, fields domain.IndexingConfiguration, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Indexer{
		baseDir:   baseDir,
		fields:    fields,
		batchSize: batchSize,
	}
}

// indexPath returns the path to the index of a table.
func (i *Indexer) indexPath(table string) string {
	return filepath.Join(i.baseDir, "indexes", table+IndexSuffix)
}

// CreateIndexMapping creates the Bleve index mapping for relation documents.
func CreateIndexMapping(fields domain.IndexingConfiguration) mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	// Content field - analyzed for full-text search
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	contentField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.DocFieldContent, contentField)

	// Table - keyword, stored
	tableField := bleve.NewTextFieldMapping()
	tableField.Analyzer = keyword.Name
	tableField.Store = true
	docMapping.AddFieldMappingsAt(domain.DocFieldTable, tableField)

	uidField := bleve.NewNumericFieldMapping()
	uidField.Store = true
	docMapping.AddFieldMappingsAt(domain.DocFieldUID, uidField)

	// ID - stored but not indexed (we use the document ID)
	idField := bleve.NewTextFieldMapping()
	idField.Index = false
	idField.Store = true
	docMapping.AddFieldMappingsAt(domain.DocFieldID, idField)

	for name, cfg := range fields {
		field := bleve.NewTextFieldMapping()
		field.Store = true
		if cfg.Type == domain.StructuredRelationType {
			// encoded values are retrieved, their text is searched through content
			field.Index = false
		} else {
			field.Analyzer = standard.Name
		}
		docMapping.AddFieldMappingsAt(name, field)
	}

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// OpenForWrite opens or creates the index of a table.
func (i *Indexer) OpenForWrite(table string) (bleve.Index, error) {
	indexPath := i.indexPath(table)

	index, err := bleve.Open(indexPath)
	if err == nil {
		return index, nil
	}

	index, err = bleve.New(indexPath, CreateIndexMapping(i.fields))
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return index, nil
}

// OpenForRead opens an existing index.
func (i *Indexer) OpenForRead(table string) (bleve.Index, error) {
	index, err := bleve.Open(i.indexPath(table))
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return index, nil
}

// IndexExists checks if an index exists for the given table.
func (i *Indexer) IndexExists(table string) bool {
	_, err := os.Stat(i.indexPath(table))
	return err == nil
}

// DeleteIndex removes an index from disk.
func (i *Indexer) DeleteIndex(table string) error {
	return os.RemoveAll(i.indexPath(table))
}

// NewWriter returns a batch writer for index.
func (i *Indexer) NewWriter(index bleve.Index) *BatchWriter {
	return &BatchWriter{index: index, batch: index.NewBatch(), maxSize: i.batchSize}
}

// BatchWriter buffers index updates and applies them in batches.
type BatchWriter struct {
	index   bleve.Index
	batch   *bleve.Batch
	maxSize int
	indexed int
	deleted int
}

// Index adds or replaces a document.
func (w *BatchWriter) Index(doc domain.RelationDocument) error {
	if err := w.batch.Index(doc.ID, doc.Map()); err != nil {
		return fmt.Errorf("failed to index %s: %w", doc.ID, err)
	}
	w.indexed++
	return w.flushIfFull()
}

// Delete removes a document.
func (w *BatchWriter) Delete(id string) error {
	w.batch.Delete(id)
	w.deleted++
	return w.flushIfFull()
}

func (w *BatchWriter) flushIfFull() error {
	if w.batch.Size() < w.maxSize {
		return nil
	}
	return w.Flush()
}

// Flush applies the buffered updates.
func (w *BatchWriter) Flush() error {
	if w.batch.Size() == 0 {
		return nil
	}
	if err := w.index.Batch(w.batch); err != nil {
		return fmt.Errorf("batch index failed: %w", err)
	}
	w.batch = w.index.NewBatch()
	return nil
}

// Indexed returns the number of documents written.
func (w *BatchWriter) Indexed() int { return w.indexed }

// Deleted returns the number of documents removed.
func (w *BatchWriter) Deleted() int { return w.deleted }
