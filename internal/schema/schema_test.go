package schema

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sha1n/structured-relation/internal/domain"
)

const testSchema = `
tables:
  pages:
    language_field: sys_language_uid
    translation_parent_field: l10n_parent
    delete_field: deleted
    enable_columns:
      disabled: hidden
    columns:
      title:
        type: input
      categories:
        type: select
        foreign_table: sys_category
        mm: sys_category_record_mm
        mm_match_fields:
          tablenames: pages
          fieldname: categories
      media:
        type: inline
        foreign_table: sys_file_reference
        foreign_field: uid_foreign
        foreign_sortby: sorting_foreign
        foreign_match_fields:
          fieldname: media
      author:
        type: group
        allowed: be_users
        maxitems: 1
      layout:
        type: select
  sys_category:
    columns:
      items:
        type: group
        allowed: pages
        mm: sys_category_record_mm
        mm_opposite_field: categories
        mm_sortby: sorting_foreign
`

func mustParse(t *testing.T, data string) *Schema {
	t.Helper()
	s, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return s
}

func TestParse_JoinTableRelation(t *testing.T) {
	s := mustParse(t, testSchema)

	rel, ok := s.RelationConfig("pages", "categories")
	if !ok {
		t.Fatal("Expected pages.categories to be a relation")
	}
	join, ok := rel.(domain.JoinTableRelation)
	if !ok {
		t.Fatalf("Expected JoinTableRelation, got %T", rel)
	}
	if join.ForeignTable() != "sys_category" || join.JoinTable != "sys_category_record_mm" {
		t.Errorf("Unexpected relation: %+v", join)
	}
	if join.LocalColumn != DefaultLocalColumn || join.ForeignColumn != DefaultForeignColumn || join.SortColumn != DefaultSortColumn {
		t.Errorf("Unexpected join columns: %+v", join)
	}
	wantMatch := map[string]string{"tablenames": "pages", "fieldname": "categories"}
	if !reflect.DeepEqual(join.MatchFields, wantMatch) {
		t.Errorf("MatchFields = %v, want %v", join.MatchFields, wantMatch)
	}
	if !join.Multiple() {
		t.Error("Expected unbounded relation to be multiple")
	}
}

func TestParse_OppositeJoinTableRelation(t *testing.T) {
	s := mustParse(t, testSchema)

	rel, _ := s.RelationConfig("sys_category", "items")
	join, ok := rel.(domain.JoinTableRelation)
	if !ok {
		t.Fatalf("Expected JoinTableRelation, got %T", rel)
	}
	if join.LocalColumn != DefaultForeignColumn || join.ForeignColumn != DefaultLocalColumn {
		t.Errorf("Expected swapped columns, got local=%s foreign=%s", join.LocalColumn, join.ForeignColumn)
	}
	if join.SortColumn != "sorting_foreign" {
		t.Errorf("SortColumn = %s, want sorting_foreign", join.SortColumn)
	}
	if join.ForeignTable() != "pages" {
		t.Errorf("ForeignTable = %s, want pages", join.ForeignTable())
	}
}

func TestParse_ForeignFieldRelation(t *testing.T) {
	s := mustParse(t, testSchema)

	rel, _ := s.RelationConfig("pages", "media")
	ff, ok := rel.(domain.ForeignFieldRelation)
	if !ok {
		t.Fatalf("Expected ForeignFieldRelation, got %T", rel)
	}
	if ff.ForeignField != "uid_foreign" || ff.SortColumn != "sorting_foreign" {
		t.Errorf("Unexpected relation: %+v", ff)
	}
	if ff.MatchFields["fieldname"] != "media" {
		t.Errorf("MatchFields = %v", ff.MatchFields)
	}
}

func TestParse_DirectRelation(t *testing.T) {
	s := mustParse(t, testSchema)

	rel, _ := s.RelationConfig("pages", "author")
	direct, ok := rel.(domain.DirectRelation)
	if !ok {
		t.Fatalf("Expected DirectRelation, got %T", rel)
	}
	if direct.ForeignTable() != "be_users" {
		t.Errorf("ForeignTable = %s, want be_users", direct.ForeignTable())
	}
	if direct.Multiple() {
		t.Error("Expected maxitems 1 to be single")
	}
}

func TestParse_NonRelationColumns(t *testing.T) {
	s := mustParse(t, testSchema)

	for _, field := range []string{"title", "layout", "missing"} {
		if s.HasRelationConfig("pages", field) {
			t.Errorf("Expected pages.%s not to be a relation", field)
		}
	}
	if s.HasRelationConfig("tt_content", "categories") {
		t.Error("Expected undeclared table to have no relations")
	}
}

func TestParse_TablesAndRelations(t *testing.T) {
	s := mustParse(t, testSchema)

	if got, want := s.Tables(), []string{"pages", "sys_category"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Tables = %v, want %v", got, want)
	}
	if got, want := s.Relations("pages"), []string{"author", "categories", "media"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Relations = %v, want %v", got, want)
	}

	pages, ok := s.Table("pages")
	if !ok || !pages.Translatable() {
		t.Error("Expected pages to be translatable")
	}
	cat, _ := s.Table("sys_category")
	if cat.Translatable() {
		t.Error("Expected sys_category not to be translatable")
	}
}

func TestParse_RowRestrictions(t *testing.T) {
	s := mustParse(t, testSchema)

	pages, _ := s.Table("pages")
	if pages.DeleteField != "deleted" || pages.EnableColumns.Disabled != "hidden" {
		t.Errorf("pages restrictions = %q, %+v", pages.DeleteField, pages.EnableColumns)
	}
	if !pages.Restricted() {
		t.Error("Expected pages to be restricted")
	}
	cat, _ := s.Table("sys_category")
	if cat.Restricted() {
		t.Error("Expected sys_category not to be restricted")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"invalid yaml", "tables: [unclosed"},
		{"group without foreign table", "tables:\n  pages:\n    columns:\n      f:\n        type: group\n"},
		{"inline without foreign field", "tables:\n  pages:\n    columns:\n      f:\n        type: inline\n        foreign_table: x\n"},
		{"negative maxitems", "tables:\n  pages:\n    columns:\n      f:\n        type: select\n        foreign_table: x\n        maxitems: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}

	if _, err := Parse(nil); !errors.Is(err, ErrNoTables) {
		t.Errorf("Expected ErrNoTables, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "schema.yaml")
	if err := os.WriteFile(yamlPath, []byte(testSchema), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("Load yaml failed: %v", err)
	}
	if !s.HasRelationConfig("pages", "categories") {
		t.Error("Expected pages.categories from YAML file")
	}

	jsonPath := filepath.Join(dir, "schema.json")
	jsonData := `{"tables":{"tt_content":{"columns":{"pages":{"type":"group","allowed":"pages"}}}}}`
	if err := os.WriteFile(jsonPath, []byte(jsonData), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err = Load(jsonPath)
	if err != nil {
		t.Fatalf("Load json failed: %v", err)
	}
	if _, ok := s.RelationConfig("tt_content", "pages"); !ok {
		t.Error("Expected tt_content.pages from JSON file")
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
