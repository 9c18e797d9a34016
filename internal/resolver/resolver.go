// Package resolver turns a relation field of a source record into the ordered list of
// related records.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sha1n/structured-relation/internal/domain"
)

// Schema exposes the relation metadata of table fields.
type Schema interface {
	HasRelationConfig(table, field string) bool
	RelationConfig(table, field string) (domain.RelationConfig, bool)
}

// RelationStore reads related identifiers and records. Failures are reported as
// *domain.StoreError.
type RelationStore interface {
	// ResolveForeignIdentifiers returns the ordered related uids of a join table or
	// foreign field relation.
	ResolveForeignIdentifiers(ctx context.Context, relation domain.RelationConfig, uid int64) (domain.IdentifierList, error)
	// FetchRecords returns the rows of table with the given uids, in no particular order.
	// filter is an opaque clause appended to the lookup.
	FetchRecords(ctx context.Context, table string, ids domain.IdentifierList, filter string) ([]*domain.Record, error)
}

// restrictor is implemented by stores that hide rows of some tables, such as deleted or
// disabled rows, from every lookup.
type restrictor interface {
	Restricts(table string) bool
}

// Overlays provides locale variants of records.
type Overlays interface {
	ActiveLocaleID() int
	Overlay(ctx context.Context, table string, record *domain.Record) (*domain.Record, error)
	OverlayUID(ctx context.Context, table string, uid int64) (int64, error)
}

// Resolver resolves relation fields. It holds no per-call state and is safe for
// concurrent use when its collaborators are.
type Resolver struct {
	store    RelationStore
	overlays Overlays
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithOverlays enables locale overlays.
func WithOverlays(overlays Overlays) Option {
	return func(r *Resolver) {
		r.overlays = overlays
	}
}

// New creates a resolver reading from store.
func New(store RelationStore, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the records related to source through relation, in relation order.
// filter restricts the fetched rows; identifiers it or the store's own row restrictions
// remove are dropped silently, any other mismatch between identifiers and rows is a *domain.ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, sourceTable string, source *domain.Record, relation domain.RelationConfig, filter string) ([]*domain.Record, error) {
	uid, err := source.UID()
	if err != nil {
		return nil, fmt.Errorf("source record of %s: %w", sourceTable, err)
	}

	localized := r.localeActive()
	if localized {
		if uid, err = r.overlays.OverlayUID(ctx, sourceTable, uid); err != nil {
			return nil, err
		}
	}

	ids, err := r.identifiers(ctx, source, relation, uid)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	foreignTable := relation.ForeignTable()
	rows, err := r.store.FetchRecords(ctx, foreignTable, ids, filter)
	if err != nil {
		return nil, err
	}

	records, err := restoreOrder(foreignTable, rows, ids, filter != "" || r.restricted(foreignTable))
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "Resolved relation",
		"table", sourceTable, "uid", uid, "field", relation.SourceField(),
		"foreign_table", foreignTable, "identifiers", len(ids), "records", len(records))

	if !localized {
		return records, nil
	}
	for i, rec := range records {
		if records[i], err = r.overlays.Overlay(ctx, foreignTable, rec); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (r *Resolver) restricted(table string) bool {
	rs, ok := r.store.(restrictor)
	return ok && rs.Restricts(table)
}

func (r *Resolver) localeActive() bool {
	return r.overlays != nil && r.overlays.ActiveLocaleID() > 0
}

func (r *Resolver) identifiers(ctx context.Context, source *domain.Record, relation domain.RelationConfig, uid int64) (domain.IdentifierList, error) {
	switch rel := relation.(type) {
	case domain.DirectRelation:
		raw, _ := source.Get(rel.Field)
		return domain.ParseIdentifierList(raw, rel.Foreign), nil
	case domain.JoinTableRelation, domain.ForeignFieldRelation:
		return r.store.ResolveForeignIdentifiers(ctx, rel, uid)
	default:
		return nil, fmt.Errorf("unsupported relation type %T", relation)
	}
}

// restoreOrder places fetched rows at the positions their uids take in ids. A uid
// listed more than once yields the record at each position.
func restoreOrder(table string, rows []*domain.Record, ids domain.IdentifierList, filtered bool) ([]*domain.Record, error) {
	positions := make(map[int64][]int, len(ids))
	for i, id := range ids {
		positions[id] = append(positions[id], i)
	}

	slots := make([]*domain.Record, len(ids))
	for _, row := range rows {
		uid, err := row.UID()
		if err != nil {
			return nil, &domain.ResolutionError{Table: table, Msg: err.Error()}
		}
		idx, ok := positions[uid]
		if !ok {
			return nil, &domain.ResolutionError{Table: table, UID: uid, Msg: "fetched row is not part of the relation"}
		}
		for _, pos := range idx {
			if slots[pos] != nil {
				return nil, &domain.ResolutionError{Table: table, UID: uid, Msg: "row fetched more than once"}
			}
			slots[pos] = row
		}
	}

	records := make([]*domain.Record, 0, len(slots))
	for i, rec := range slots {
		if rec == nil {
			if filtered {
				continue
			}
			return nil, &domain.ResolutionError{Table: table, UID: ids[i], Msg: "no record found for related identifier"}
		}
		records = append(records, rec)
	}
	return records, nil
}
