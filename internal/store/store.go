// Package store reads records and relation identifiers from a relational database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sha1n/structured-relation/internal/domain"
	"github.com/sha1n/structured-relation/internal/schema"
	"github.com/spf13/cast"
)

const defaultQueryTimeout = 30 * time.Second

// Config holds the connection settings.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// languagesIndexed are the language values of rows that are not translations: the
// default language and "all languages".
var languagesIndexed = []int64{0, -1}

// Store is a read-only view of the record tables. Errors are returned as *domain.StoreError.
type Store struct {
	db      *sql.DB
	dialect dialect
	timeout time.Duration
	tables  Tables
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTables applies the row restrictions declared by tables: deleted and disabled rows
// are hidden from Records, FetchRecords and Translation, and Records skips translation
// rows.
func WithTables(tables Tables) Option {
	return func(s *Store) {
		s.tables = tables
	}
}

// Open connects to the database described by cfg and verifies the connection.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, opts ...Option) (*Store, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.driver, err)
	}

	s, err := New(db, cfg.Driver, logger, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database handle.
func New(db *sql.DB, driver string, logger *slog.Logger, opts ...Option) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, dialect: d, timeout: defaultQueryTimeout, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Restricts reports whether lookups of table hide deleted or disabled rows.
func (s *Store) Restricts(table string) bool {
	t, ok := s.table(table)
	return ok && t.Restricted()
}

func (s *Store) table(name string) (schema.Table, bool) {
	if s.tables == nil {
		return schema.Table{}, false
	}
	return s.tables.Table(name)
}

// restrict appends the declared row restrictions of table. The first condition is
// introduced by conj, the others by AND.
func (s *Store) restrict(q *query, table, conj string, defaultLanguage bool) {
	t, ok := s.table(table)
	if !ok {
		return
	}
	for _, field := range []string{t.DeleteField, t.EnableColumns.Disabled} {
		if field == "" {
			continue
		}
		q.raw(conj).ident(field).raw(" = ").arg(0)
		conj = " AND "
	}
	if defaultLanguage && t.Translatable() {
		q.raw(conj).ident(t.LanguageField).raw(" IN ").in(languagesIndexed)
	}
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record returns the row of table with the given uid, or nil when there is none.
func (s *Store) Record(ctx context.Context, table string, uid int64) (*domain.Record, error) {
	q := s.dialect.newQuery().
		raw("SELECT * FROM ").ident(table).
		raw(" WHERE ").ident(domain.FieldUID).raw(" = ").arg(uid)

	records, err := s.queryRecords(ctx, "record", table, q)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// Records returns all rows of table matching filter, ordered by uid. limit <= 0 means
// no limit. With WithTables, translation rows of translatable tables are left out.
func (s *Store) Records(ctx context.Context, table, filter string, limit int) ([]*domain.Record, error) {
	q := s.dialect.newQuery().raw("SELECT * FROM ").ident(table)
	conj := " WHERE "
	if filter != "" {
		q.raw(conj + "(" + filter + ")")
		conj = " AND "
	}
	s.restrict(q, table, conj, true)
	q.raw(" ORDER BY ").ident(domain.FieldUID)
	if limit > 0 {
		q.raw(" LIMIT ").arg(limit)
	}
	return s.queryRecords(ctx, "records", table, q)
}

// ResolveForeignIdentifiers returns the ordered uids related to uid through a join
// table or a foreign field.
func (s *Store) ResolveForeignIdentifiers(ctx context.Context, relation domain.RelationConfig, uid int64) (domain.IdentifierList, error) {
	q := s.dialect.newQuery()
	var table string

	switch rel := relation.(type) {
	case domain.JoinTableRelation:
		table = rel.JoinTable
		q.raw("SELECT ").ident(rel.ForeignColumn).
			raw(" FROM ").ident(rel.JoinTable).
			raw(" WHERE ").ident(rel.LocalColumn).raw(" = ").arg(uid)
		matchFields(q, rel.MatchFields)
		if rel.SortColumn != "" {
			q.raw(" ORDER BY ").ident(rel.SortColumn).raw(", ").ident(rel.ForeignColumn)
		}

	case domain.ForeignFieldRelation:
		table = rel.ForeignTable()
		q.raw("SELECT ").ident(domain.FieldUID).
			raw(" FROM ").ident(table).
			raw(" WHERE ").ident(rel.ForeignField).raw(" = ").arg(uid)
		matchFields(q, rel.MatchFields)
		q.raw(" ORDER BY ")
		if rel.SortColumn != "" {
			q.ident(rel.SortColumn).raw(", ")
		}
		q.ident(domain.FieldUID)

	default:
		return nil, &domain.StoreError{Op: "resolve", Table: relation.ForeignTable(), Err: fmt.Errorf("relation %T is not stored in a table", relation)}
	}

	stmt, args, err := q.build()
	if err != nil {
		return nil, &domain.StoreError{Op: "resolve", Table: table, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, &domain.StoreError{Op: "resolve", Table: table, Err: err}
	}
	defer rows.Close()

	var ids domain.IdentifierList
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, &domain.StoreError{Op: "resolve", Table: table, Err: fmt.Errorf("scan row: %w", err)}
		}
		id, err := cast.ToInt64E(domain.NormalizeValue(v))
		if err != nil {
			return nil, &domain.StoreError{Op: "resolve", Table: table, Err: fmt.Errorf("identifier %v: %w", v, err)}
		}
		if id > 0 {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "resolve", Table: table, Err: err}
	}
	return ids, nil
}

// FetchRecords returns the rows of table with the given uids. filter is a trusted SQL
// condition taken from configuration and is ANDed to the lookup.
func (s *Store) FetchRecords(ctx context.Context, table string, ids domain.IdentifierList, filter string) ([]*domain.Record, error) {
	unique := uniqueIDs(ids)
	if len(unique) == 0 {
		return nil, nil
	}

	q := s.dialect.newQuery().
		raw("SELECT * FROM ").ident(table).
		raw(" WHERE ").ident(domain.FieldUID).raw(" IN ").in(unique)
	if filter != "" {
		q.raw(" AND (" + filter + ")")
	}
	s.restrict(q, table, " AND ", false)
	return s.queryRecords(ctx, "fetch", table, q)
}

// Translation returns the row of table translating parentUID into languageID, or nil.
func (s *Store) Translation(ctx context.Context, table, parentField, languageField string, parentUID int64, languageID int) (*domain.Record, error) {
	q := s.dialect.newQuery().
		raw("SELECT * FROM ").ident(table).
		raw(" WHERE ").ident(parentField).raw(" = ").arg(parentUID).
		raw(" AND ").ident(languageField).raw(" = ").arg(languageID)
	s.restrict(q, table, " AND ", false)
	q.raw(" ORDER BY ").ident(domain.FieldUID).raw(" LIMIT 1")

	records, err := s.queryRecords(ctx, "translation", table, q)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

func (s *Store) queryRecords(ctx context.Context, op, table string, q *query) ([]*domain.Record, error) {
	stmt, args, err := q.build()
	if err != nil {
		return nil, &domain.StoreError{Op: op, Table: table, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Debug("Executing query", "op", op, "table", table, "args", len(args))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, &domain.StoreError{Op: op, Table: table, Err: err}
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, &domain.StoreError{Op: op, Table: table, Err: err}
	}
	return records, nil
}

func scanRecords(rows *sql.Rows) ([]*domain.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var records []*domain.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		record := domain.NewRecord()
		for i, col := range cols {
			record.Set(col, values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func matchFields(q *query, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.raw(" AND ").ident(k).raw(" = ").arg(fields[k])
	}
}

func uniqueIDs(ids domain.IdentifierList) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
