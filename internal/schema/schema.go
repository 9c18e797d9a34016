// Package schema loads the relation schema: which table columns are relations, to which
// foreign table, and how the related identifiers are stored.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sha1n/structured-relation/internal/domain"
	"gopkg.in/yaml.v3"
)

// Column types that describe relations.
const (
	TypeSelect = "select"
	TypeGroup  = "group"
	TypeInline = "inline"
)

// Default join table columns.
const (
	DefaultLocalColumn        = "uid_local"
	DefaultForeignColumn      = "uid_foreign"
	DefaultSortColumn         = "sorting"
	DefaultOppositeSortColumn = "sorting_foreign"
)

var ErrNoTables = errors.New("schema declares no tables")

// Column is the raw declaration of a table column.
type Column struct {
	Type string `yaml:"type" json:"type"`

	ForeignTable string `yaml:"foreign_table" json:"foreign_table"`
	// Allowed is the group field alias for ForeignTable.
	Allowed  string `yaml:"allowed" json:"allowed"`
	MaxItems int    `yaml:"maxitems" json:"maxitems"`

	MM                string            `yaml:"mm" json:"mm"`
	MMOppositeField   string            `yaml:"mm_opposite_field" json:"mm_opposite_field"`
	MMMatchFields     map[string]string `yaml:"mm_match_fields" json:"mm_match_fields"`
	MMSortBy          string            `yaml:"mm_sortby" json:"mm_sortby"`
	MMLocalColumn     string            `yaml:"mm_local_column" json:"mm_local_column"`
	MMForeignColumn   string            `yaml:"mm_foreign_column" json:"mm_foreign_column"`
	ForeignField      string            `yaml:"foreign_field" json:"foreign_field"`
	ForeignSortBy     string            `yaml:"foreign_sortby" json:"foreign_sortby"`
	ForeignMatchField map[string]string `yaml:"foreign_match_fields" json:"foreign_match_fields"`
}

// EnableColumns names the columns that switch a row off.
type EnableColumns struct {
	Disabled string `yaml:"disabled" json:"disabled"`
}

// Table is the raw declaration of a table. Rows with a non-zero DeleteField or
// EnableColumns.Disabled value are hidden.
type Table struct {
	LanguageField          string            `yaml:"language_field" json:"language_field"`
	TranslationParentField string            `yaml:"translation_parent_field" json:"translation_parent_field"`
	DeleteField            string            `yaml:"delete_field" json:"delete_field"`
	EnableColumns          EnableColumns     `yaml:"enable_columns" json:"enable_columns"`
	Columns                map[string]Column `yaml:"columns" json:"columns"`
}

// Restricted reports whether some rows of the table are hidden from lookups.
func (t Table) Restricted() bool {
	return t.DeleteField != "" || t.EnableColumns.Disabled != ""
}

// Translatable reports whether the table carries localized rows.
func (t Table) Translatable() bool {
	return t.LanguageField != "" && t.TranslationParentField != ""
}

type document struct {
	Tables map[string]Table `yaml:"tables" json:"tables"`
}

type key struct{ table, field string }

// Schema is a compiled relation schema. It is read-only after Parse.
type Schema struct {
	tables    map[string]Table
	relations map[key]domain.RelationConfig
}

// Load reads a schema file. Files ending in .json are parsed as JSON, anything else as YAML.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
		}
		return compile(doc)
	}
	return Parse(data)
}

// Parse compiles a YAML schema document.
func Parse(data []byte) (*Schema, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return compile(doc)
}

func compile(doc document) (*Schema, error) {
	if len(doc.Tables) == 0 {
		return nil, ErrNoTables
	}

	s := &Schema{
		tables:    doc.Tables,
		relations: make(map[key]domain.RelationConfig),
	}
	for tableName, table := range doc.Tables {
		for field, col := range table.Columns {
			rel, err := compileColumn(tableName, field, col)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", tableName, field, err)
			}
			if rel != nil {
				s.relations[key{tableName, field}] = rel
			}
		}
	}
	return s, nil
}

func compileColumn(table, field string, col Column) (domain.RelationConfig, error) {
	switch col.Type {
	case TypeSelect, TypeGroup, TypeInline:
	default:
		return nil, nil
	}

	foreign := col.ForeignTable
	if foreign == "" {
		foreign = col.Allowed
	}
	if foreign == "" {
		// select fields backed by static items carry no relation
		if col.Type == TypeSelect {
			return nil, nil
		}
		return nil, errors.New("relation column requires foreign_table")
	}
	if col.MaxItems < 0 {
		return nil, fmt.Errorf("invalid maxitems %d", col.MaxItems)
	}

	base := domain.RelationBase{Table: table, Field: field, Foreign: foreign, MaxItems: col.MaxItems}

	switch {
	case col.MM != "":
		rel := domain.JoinTableRelation{
			RelationBase:  base,
			JoinTable:     col.MM,
			LocalColumn:   DefaultLocalColumn,
			ForeignColumn: DefaultForeignColumn,
			SortColumn:    DefaultSortColumn,
			MatchFields:   col.MMMatchFields,
		}
		if col.MMOppositeField != "" {
			rel.LocalColumn, rel.ForeignColumn = DefaultForeignColumn, DefaultLocalColumn
			rel.SortColumn = DefaultOppositeSortColumn
		}
		if col.MMLocalColumn != "" {
			rel.LocalColumn = col.MMLocalColumn
		}
		if col.MMForeignColumn != "" {
			rel.ForeignColumn = col.MMForeignColumn
		}
		if col.MMSortBy != "" {
			rel.SortColumn = col.MMSortBy
		}
		return rel, nil

	case col.ForeignField != "":
		return domain.ForeignFieldRelation{
			RelationBase: base,
			ForeignField: col.ForeignField,
			SortColumn:   col.ForeignSortBy,
			MatchFields:  col.ForeignMatchField,
		}, nil

	case col.Type == TypeInline:
		return nil, errors.New("inline relation requires foreign_field or mm")

	default:
		return domain.DirectRelation{RelationBase: base}, nil
	}
}

// HasRelationConfig reports whether table.field is a relation.
func (s *Schema) HasRelationConfig(table, field string) bool {
	_, ok := s.relations[key{table, field}]
	return ok
}

// RelationConfig returns the compiled relation of table.field.
func (s *Schema) RelationConfig(table, field string) (domain.RelationConfig, bool) {
	rel, ok := s.relations[key{table, field}]
	return rel, ok
}

// Table returns the declaration of name.
func (s *Schema) Table(name string) (Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Tables returns the declared table names, sorted.
func (s *Schema) Tables() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Relations returns the relation fields of table, sorted.
func (s *Schema) Relations(table string) []string {
	var fields []string
	for k := range s.relations {
		if k.table == table {
			fields = append(fields, k.field)
		}
	}
	sort.Strings(fields)
	return fields
}
