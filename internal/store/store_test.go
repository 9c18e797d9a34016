package store

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/sha1n/structured-relation/internal/domain"
	"github.com/sha1n/structured-relation/internal/schema"
	"github.com/sha1n/structured-relation/internal/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(storetest.Open(t), DriverSQLite, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func newTestSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sc, err := schema.Parse([]byte(storetest.Schema))
	if err != nil {
		t.Fatalf("schema.Parse failed: %v", err)
	}
	return sc
}

func newRestrictedStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(storetest.Open(t), DriverSQLite, nil, WithTables(newTestSchema(t)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func uids(t *testing.T, records []*domain.Record) []int64 {
	t.Helper()
	var out []int64
	for _, r := range records {
		uid, err := r.UID()
		if err != nil {
			t.Fatalf("UID failed: %v", err)
		}
		out = append(out, uid)
	}
	return out
}

func TestNormalizeDriver(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"mysql", DriverMySQL, false},
		{"MariaDB", DriverMySQL, false},
		{"postgresql", DriverPostgres, false},
		{"pg", DriverPostgres, false},
		{"sqlite3", DriverSQLite, false},
		{" sqlite ", DriverSQLite, false},
		{"oracle", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeDriver(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeDriver(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeDriver(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDialect_Queries(t *testing.T) {
	ids := []int64{3, 1}

	tests := []struct {
		driver string
		want   string
	}{
		{DriverMySQL, "SELECT * FROM `pages` WHERE `uid` IN (?, ?)"},
		{DriverPostgres, `SELECT * FROM "pages" WHERE "uid" IN ($1, $2)`},
		{DriverSQLite, `SELECT * FROM "pages" WHERE "uid" IN (?, ?)`},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := dialectFor(tt.driver)
			if err != nil {
				t.Fatal(err)
			}
			stmt, args, err := d.newQuery().raw("SELECT * FROM ").ident("pages").
				raw(" WHERE ").ident("uid").raw(" IN ").in(ids).build()
			if err != nil {
				t.Fatalf("build failed: %v", err)
			}
			if stmt != tt.want {
				t.Errorf("got %s, want %s", stmt, tt.want)
			}
			if !reflect.DeepEqual(args, []any{int64(3), int64(1)}) {
				t.Errorf("args = %v", args)
			}
		})
	}
}

func TestDialect_RejectsInvalidIdentifiers(t *testing.T) {
	d, _ := dialectFor(DriverSQLite)
	for _, name := range []string{"", "pages; DROP TABLE pages", "1abc", "a-b", `a"b`} {
		if _, _, err := d.newQuery().ident(name).build(); err == nil {
			t.Errorf("Expected error for identifier %q", name)
		}
	}
}

func TestRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r, err := s.Record(ctx, "pages", 1)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if r == nil {
		t.Fatal("Expected record, got nil")
	}
	if title, _ := r.Get("title"); title != "Home" {
		t.Errorf("title = %v, want Home", title)
	}
	if keys := r.Keys(); keys[0] != "uid" || keys[2] != "title" {
		t.Errorf("Expected column order to be preserved, got %v", keys)
	}

	missing, err := s.Record(ctx, "pages", 999)
	if err != nil || missing != nil {
		t.Errorf("Expected nil, nil for missing record, got %v, %v", missing, err)
	}
}

func TestRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records, err := s.Records(ctx, "pages", "sys_language_uid = 0", 0)
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if got, want := uids(t, records), []int64{1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("uids = %v, want %v", got, want)
	}

	limited, err := s.Records(ctx, "pages", "", 1)
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected 1 record, got %d", len(limited))
	}
}

func TestResolveForeignIdentifiers_JoinTable(t *testing.T) {
	s := newTestStore(t)
	sc := newTestSchema(t)
	rel, _ := sc.RelationConfig("pages", "categories")

	ids, err := s.ResolveForeignIdentifiers(context.Background(), rel, 1)
	if err != nil {
		t.Fatalf("ResolveForeignIdentifiers failed: %v", err)
	}
	if want := (domain.IdentifierList{2, 1, 3}); !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}

	join := rel.(domain.JoinTableRelation).WithSortColumn("sorting")
	ids, err = s.ResolveForeignIdentifiers(context.Background(), join, 1)
	if err != nil {
		t.Fatalf("ResolveForeignIdentifiers failed: %v", err)
	}
	// equal sorting values fall back to the foreign column
	if want := (domain.IdentifierList{1, 2, 3}); !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestResolveForeignIdentifiers_ForeignField(t *testing.T) {
	s := newTestStore(t)
	sc := newTestSchema(t)
	rel, _ := sc.RelationConfig("pages", "content")

	ids, err := s.ResolveForeignIdentifiers(context.Background(), rel, 1)
	if err != nil {
		t.Fatalf("ResolveForeignIdentifiers failed: %v", err)
	}
	if want := (domain.IdentifierList{2, 1}); !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestResolveForeignIdentifiers_DirectRelationIsRejected(t *testing.T) {
	s := newTestStore(t)
	sc := newTestSchema(t)
	rel, _ := sc.RelationConfig("pages", "author")

	_, err := s.ResolveForeignIdentifiers(context.Background(), rel, 1)
	var storeErr *domain.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("Expected StoreError, got %v", err)
	}
}

func TestFetchRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records, err := s.FetchRecords(ctx, "sys_category", domain.IdentifierList{2, 1, 3, 2}, "")
	if err != nil {
		t.Fatalf("FetchRecords failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("Expected 3 unique rows, got %d", len(records))
	}

	filtered, err := s.FetchRecords(ctx, "sys_category", domain.IdentifierList{2, 1, 3}, "hidden = 0")
	if err != nil {
		t.Fatalf("FetchRecords failed: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("Expected hidden row to be filtered, got %d rows", len(filtered))
	}

	none, err := s.FetchRecords(ctx, "sys_category", nil, "")
	if err != nil || none != nil {
		t.Errorf("Expected nil, nil for empty ids, got %v, %v", none, err)
	}
}

func TestFetchRecords_StoreError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.FetchRecords(ctx, "no_such_table", domain.IdentifierList{1}, "")
	var storeErr *domain.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("Expected StoreError, got %v", err)
	}
	if storeErr.Op != "fetch" || storeErr.Table != "no_such_table" {
		t.Errorf("Unexpected error fields: %+v", storeErr)
	}

	_, err = s.FetchRecords(ctx, "bad table", domain.IdentifierList{1}, "")
	if !errors.As(err, &storeErr) {
		t.Fatalf("Expected StoreError for invalid identifier, got %v", err)
	}
}

func TestTranslation(t *testing.T) {
	s := newTestStore(t)

	tr, err := s.Translation(context.Background(), "sys_category", "l10n_parent", "sys_language_uid", 1, 1)
	if err != nil {
		t.Fatalf("Translation failed: %v", err)
	}
	if uid, _ := tr.UID(); uid != 4 {
		t.Errorf("uid = %d, want 4", uid)
	}

	none, err := s.Translation(context.Background(), "sys_category", "l10n_parent", "sys_language_uid", 2, 1)
	if err != nil || none != nil {
		t.Errorf("Expected nil, nil for missing translation, got %v, %v", none, err)
	}
}

func TestRecords_SkipsTranslationsAndHiddenRows(t *testing.T) {
	s := newRestrictedStore(t)
	ctx := context.Background()

	records, err := s.Records(ctx, "pages", "", 0)
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if got, want := uids(t, records), []int64{1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("uids = %v, want %v", got, want)
	}

	if _, err := s.db.Exec(`UPDATE pages SET hidden = 1 WHERE uid = 2`); err != nil {
		t.Fatal(err)
	}
	records, err = s.Records(ctx, "pages", "title <> ''", 0)
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if got, want := uids(t, records), []int64{1}; !reflect.DeepEqual(got, want) {
		t.Errorf("uids = %v, want %v", got, want)
	}

	// rows for all languages are not translations
	if _, err := s.db.Exec(`UPDATE pages SET sys_language_uid = -1 WHERE uid = 3`); err != nil {
		t.Fatal(err)
	}
	records, err = s.Records(ctx, "pages", "", 0)
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if got, want := uids(t, records), []int64{1, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("uids = %v, want %v", got, want)
	}
}

func TestFetchRecords_DropsHiddenRowWithoutFilter(t *testing.T) {
	s := newRestrictedStore(t)
	ctx := context.Background()

	records, err := s.FetchRecords(ctx, "sys_category", domain.IdentifierList{2, 1, 3}, "")
	if err != nil {
		t.Fatalf("FetchRecords failed: %v", err)
	}
	got := uids(t, records)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if want := []int64{1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("uids = %v, want %v", got, want)
	}

	if _, err := s.db.Exec(`UPDATE sys_category SET deleted = 1 WHERE uid = 2`); err != nil {
		t.Fatal(err)
	}
	records, err = s.FetchRecords(ctx, "sys_category", domain.IdentifierList{2, 1}, "pid = 5")
	if err != nil {
		t.Fatalf("FetchRecords failed: %v", err)
	}
	if got, want := uids(t, records), []int64{1}; !reflect.DeepEqual(got, want) {
		t.Errorf("uids = %v, want %v", got, want)
	}

	// tables without declarations are not restricted
	users, err := s.FetchRecords(ctx, "be_users", domain.IdentifierList{1, 2}, "")
	if err != nil || len(users) != 2 {
		t.Errorf("Expected 2 users, got %d, %v", len(users), err)
	}
}

func TestTranslation_SkipsHiddenTranslation(t *testing.T) {
	s := newRestrictedStore(t)
	ctx := context.Background()

	if _, err := s.db.Exec(`UPDATE sys_category SET hidden = 1 WHERE uid = 4`); err != nil {
		t.Fatal(err)
	}
	tr, err := s.Translation(ctx, "sys_category", "l10n_parent", "sys_language_uid", 1, 1)
	if err != nil || tr != nil {
		t.Errorf("Expected nil, nil for hidden translation, got %v, %v", tr, err)
	}
}

func TestRestricts(t *testing.T) {
	if newTestStore(t).Restricts("sys_category") {
		t.Error("Expected a store without tables not to restrict lookups")
	}
	s := newRestrictedStore(t)
	if !s.Restricts("sys_category") || !s.Restricts("pages") {
		t.Error("Expected declared tables to be restricted")
	}
	if s.Restricts("be_users") {
		t.Error("Expected be_users not to be restricted")
	}
}
