package relations

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/sha1n/structured-relation/internal/config"
	"github.com/sha1n/structured-relation/internal/detector"
	"github.com/sha1n/structured-relation/internal/domain"
	"github.com/sha1n/structured-relation/internal/pipeline"
	"github.com/sha1n/structured-relation/internal/resolver"
	"github.com/sha1n/structured-relation/internal/schema"
	"github.com/sha1n/structured-relation/internal/store"
	"github.com/sha1n/structured-relation/internal/store/storetest"
)

// closeIndex is a helper to close an index in tests and fail on error
func closeIndex(t *testing.T, idx io.Closer) {
	t.Helper()
	if err := idx.Close(); err != nil {
		t.Errorf("Failed to close index: %v", err)
	}
}

func testFields() domain.IndexingConfiguration {
	return domain.IndexingConfiguration{
		"title_textS": {Type: domain.FieldType, Options: map[string]any{"field": "title"}},
		"categories_stringM": {Type: domain.StructuredRelationType, Options: map[string]any{
			"localField":            "categories",
			"multiValue":            "1",
			"fields":                "uid, title",
			"additionalWhereClause": "hidden = 0",
		}},
		"main_category_stringS": {Type: domain.StructuredRelationType, Options: map[string]any{
			"localField": "main_category",
			"fields":     "title",
		}},
	}
}

func testSettings(t *testing.T, fields domain.IndexingConfiguration) *config.Settings {
	t.Helper()
	return &config.Settings{
		Indexing: config.IndexingSettings{
			Table:  "pages",
			Filter: "sys_language_uid = 0",
			Fields: fields,
		},
		Index: config.IndexSettings{
			Dir:         t.TempDir(),
			BatchSize:   1,
			MaxResults:  10,
			LockTimeout: 50 * time.Millisecond,
		},
	}
}

type testEnv struct {
	db       *sql.DB
	store    *store.Store
	pipeline *pipeline.Pipeline
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := storetest.Open(t)
	sc, err := schema.Parse([]byte(storetest.Schema))
	if err != nil {
		t.Fatalf("schema.Parse failed: %v", err)
	}
	st, err := store.New(db, store.DriverSQLite, nil, store.WithTables(sc))
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	return &testEnv{
		db:       db,
		store:    st,
		pipeline: pipeline.New(sc, resolver.New(st), nil),
	}
}

func newTestService(t *testing.T, env *testEnv, settings *config.Settings) *Service {
	t.Helper()

	svc, err := NewService(settings, Dependencies{
		Records:   env.store,
		Renderer:  env.pipeline,
		Detectors: detector.NewRegistry(detector.StructuredRelation),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() {
		if err := svc.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return svc
}

func openAndIndex(t *testing.T, svc *Service) IndexStats {
	t.Helper()
	ctx := context.Background()
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	stats, err := svc.IndexTable(ctx)
	if err != nil {
		t.Fatalf("IndexTable failed: %v", err)
	}
	return stats
}
