// Package pipeline renders structured relation index fields: it resolves the related
// records of a source record, projects them and encodes the result.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/sha1n/structured-relation/internal/codec"
	"github.com/sha1n/structured-relation/internal/domain"
	"github.com/sha1n/structured-relation/internal/projection"
	"github.com/sha1n/structured-relation/internal/resolver"
)

// Pipeline renders relation fields. It is stateless between calls.
type Pipeline struct {
	schema   resolver.Schema
	resolver *resolver.Resolver
	logger   *slog.Logger
}

// New creates a pipeline.
func New(schema resolver.Schema, r *resolver.Resolver, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		schema:   schema,
		resolver: r,
		logger:   logger,
	}
}

// Render produces the index value of one relation field: "" when nothing is related, a
// single encoded value, or a container of encoded values when opts.MultiValue is set.
func (p *Pipeline) Render(ctx context.Context, source domain.SourceRecord, opts Options) (string, error) {
	records, err := p.Related(ctx, source, opts)
	if err != nil {
		return "", err
	}

	if !opts.MultiValue {
		switch len(records) {
		case 0:
			return "", nil
		case 1:
			return codec.Encode(projection.Project(records, opts.Fields)[0])
		default:
			return "", &domain.CardinalityError{Field: opts.LocalField, Count: len(records)}
		}
	}

	values, err := codec.EncodeAll(projection.Project(records, opts.Fields))
	if err != nil {
		return "", err
	}
	return codec.EncodeList(values)
}

// Related resolves the records related through opts.LocalField, before projection.
func (p *Pipeline) Related(ctx context.Context, source domain.SourceRecord, opts Options) ([]*domain.Record, error) {
	if opts.LocalField == "" {
		return nil, ErrMissingLocalField
	}
	if !p.schema.HasRelationConfig(source.Table, opts.LocalField) {
		p.logger.DebugContext(ctx, "No relation configured", "table", source.Table, "field", opts.LocalField)
		return nil, nil
	}
	relation, ok := p.schema.RelationConfig(source.Table, opts.LocalField)
	if !ok {
		return nil, nil
	}

	if mm, isMM := relation.(domain.JoinTableRelation); isMM && opts.RelationTableSortingField != "" {
		relation = mm.WithSortColumn(opts.RelationTableSortingField)
	}
	if !opts.MultiValue && relation.Multiple() {
		p.logger.DebugContext(ctx, "Rendering multi item relation into a single value field",
			"table", source.Table, "field", opts.LocalField)
	}

	return p.resolver.Resolve(ctx, source.Table, source.Record, relation, opts.AdditionalWhereClause)
}
