// Package storetest provides a populated SQLite database for tests.
// This is exported for use by the tests of dependent packages.
package storetest

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// Schema declares the relations of the fixture tables.
const Schema = `
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
        mm_opposite_field: items
        mm_match_fields:
          tablenames: pages
          fieldname: categories
      author:
        type: group
        allowed: be_users
      main_category:
        type: select
        foreign_table: sys_category
        maxitems: 1
      content:
        type: inline
        foreign_table: tt_content
        foreign_field: page_id
        foreign_sortby: sorting
  sys_category:
    language_field: sys_language_uid
    translation_parent_field: l10n_parent
    delete_field: deleted
    enable_columns:
      disabled: hidden
    columns:
      parent:
        type: select
        foreign_table: sys_category
        maxitems: 1
`

var statements = []string{
	`CREATE TABLE pages (
		uid INTEGER PRIMARY KEY, pid INTEGER NOT NULL DEFAULT 0, title TEXT NOT NULL DEFAULT '',
		categories INTEGER NOT NULL DEFAULT 0, author TEXT NOT NULL DEFAULT '',
		main_category TEXT NOT NULL DEFAULT '', content INTEGER NOT NULL DEFAULT 0,
		sys_language_uid INTEGER NOT NULL DEFAULT 0, l10n_parent INTEGER NOT NULL DEFAULT 0,
		hidden INTEGER NOT NULL DEFAULT 0, deleted INTEGER NOT NULL DEFAULT 0)`,
	`CREATE TABLE sys_category (
		uid INTEGER PRIMARY KEY, pid INTEGER NOT NULL DEFAULT 0, title TEXT NOT NULL DEFAULT '',
		description TEXT, parent INTEGER NOT NULL DEFAULT 0,
		sys_language_uid INTEGER NOT NULL DEFAULT 0, l10n_parent INTEGER NOT NULL DEFAULT 0,
		hidden INTEGER NOT NULL DEFAULT 0, deleted INTEGER NOT NULL DEFAULT 0)`,
	`CREATE TABLE sys_category_record_mm (
		uid_local INTEGER NOT NULL, uid_foreign INTEGER NOT NULL,
		tablenames TEXT NOT NULL DEFAULT '', fieldname TEXT NOT NULL DEFAULT '',
		sorting INTEGER NOT NULL DEFAULT 0, sorting_foreign INTEGER NOT NULL DEFAULT 0)`,
	`CREATE TABLE be_users (
		uid INTEGER PRIMARY KEY, pid INTEGER NOT NULL DEFAULT 0, username TEXT NOT NULL,
		realName TEXT NOT NULL DEFAULT '', disable INTEGER NOT NULL DEFAULT 0)`,
	`CREATE TABLE tt_content (
		uid INTEGER PRIMARY KEY, pid INTEGER NOT NULL DEFAULT 0, header TEXT NOT NULL DEFAULT '',
		page_id INTEGER NOT NULL DEFAULT 0, sorting INTEGER NOT NULL DEFAULT 0)`,

	`INSERT INTO pages (uid, pid, title, categories, author, main_category, content) VALUES
		(1, 0, 'Home', 3, 'be_users_2,1', '2', 2),
		(2, 1, 'About', 0, '', '0', 1)`,
	`INSERT INTO pages (uid, pid, title, categories, sys_language_uid, l10n_parent) VALUES
		(3, 0, 'Startseite', 1, 1, 1)`,

	`INSERT INTO sys_category (uid, pid, title, description, parent) VALUES
		(1, 5, 'News', 'Latest news', 0),
		(2, 5, 'Events', NULL, 1)`,
	`INSERT INTO sys_category (uid, pid, title, hidden) VALUES (3, 5, 'Archive', 1)`,
	`INSERT INTO sys_category (uid, pid, title, description, sys_language_uid, l10n_parent) VALUES
		(4, 5, 'Neuigkeiten', 'Aktuelles', 1, 1)`,

	`INSERT INTO sys_category_record_mm (uid_local, uid_foreign, tablenames, fieldname, sorting, sorting_foreign) VALUES
		(2, 1, 'pages', 'categories', 1, 1),
		(1, 1, 'pages', 'categories', 1, 2),
		(3, 1, 'pages', 'categories', 1, 3),
		(1, 3, 'pages', 'categories', 2, 1),
		(2, 1, 'tt_content', 'categories', 3, 1)`,

	`INSERT INTO be_users (uid, username, realName) VALUES (1, 'admin', 'Ada Admin'), (2, 'editor', 'Ed Editor')`,

	`INSERT INTO tt_content (uid, pid, header, page_id, sorting) VALUES
		(1, 1, 'Intro', 1, 256),
		(2, 1, 'Teaser', 1, 128),
		(3, 2, 'Other', 2, 64)`,
}

// NewDatabase creates a populated database file in a temp dir and returns its path,
// usable as an sqlite DSN.
func NewDatabase(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	defer func() { _ = db.Close() }()

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to load fixture: %v\n%s", err, stmt)
		}
	}
	return path
}

// Open returns a handle to a new populated database, closed when the test ends.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", NewDatabase(t))
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// WriteSchema writes Schema to a temp file and returns its path.
func WriteSchema(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte(Schema), 0o644); err != nil {
		t.Fatalf("Failed to write schema: %v", err)
	}
	return path
}
