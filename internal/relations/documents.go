package relations

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sha1n/structured-relation/internal/codec"
	"github.com/sha1n/structured-relation/internal/detector"
	"github.com/sha1n/structured-relation/internal/domain"
	"github.com/sha1n/structured-relation/internal/pipeline"
	"github.com/spf13/cast"
)

// Renderer renders one structured relation field of a source record.
type Renderer interface {
	Render(ctx context.Context, source domain.SourceRecord, opts pipeline.Options) (string, error)
}

type fieldPlan struct {
	name    string
	cfg     domain.FieldConfig
	column  string
	options pipeline.Options
}

// DocumentBuilder turns source records into index documents according to the
// indexing configuration.
type DocumentBuilder struct {
	renderer  Renderer
	detectors detector.Detector
	config    domain.IndexingConfiguration
	plan      []fieldPlan
}

// NewDocumentBuilder validates the field configuration once and returns a builder.
func NewDocumentBuilder(renderer Renderer, detectors detector.Detector, config domain.IndexingConfiguration) (*DocumentBuilder, error) {
	names := make([]string, 0, len(config))
	for name := range config {
		names = append(names, name)
	}
	sort.Strings(names)

	plan := make([]fieldPlan, 0, len(names))
	for _, name := range names {
		cfg := config[name]
		p := fieldPlan{name: name, cfg: cfg}
		switch cfg.Type {
		case domain.FieldType:
			p.column = strings.TrimSpace(cast.ToString(cfg.Options[domain.OptionField]))
			if p.column == "" {
				return nil, fmt.Errorf("index field %s: missing %s option", name, domain.OptionField)
			}
		case domain.StructuredRelationType:
			opts, err := pipeline.OptionsFromConfig(cfg.Options)
			if err != nil {
				return nil, fmt.Errorf("index field %s: %w", name, err)
			}
			p.options = opts
		default:
			return nil, fmt.Errorf("index field %s: unknown type %q", name, cfg.Type)
		}
		plan = append(plan, p)
	}

	return &DocumentBuilder{
		renderer:  renderer,
		detectors: detectors,
		config:    config,
		plan:      plan,
	}, nil
}

// Build renders every configured field of source. Multi-value containers are stored
// as their list of encoded values; the decoded text of all fields forms the content.
func (b *DocumentBuilder) Build(ctx context.Context, source domain.SourceRecord) (domain.RelationDocument, error) {
	uid, err := source.Record.UID()
	if err != nil {
		return domain.RelationDocument{}, fmt.Errorf("source record of %s: %w", source.Table, err)
	}

	doc := domain.RelationDocument{
		ID:     domain.DocumentID(source.Table, uid),
		Table:  source.Table,
		UID:    uid,
		Fields: make(map[string]any, len(b.plan)),
	}
	var content []string

	for _, p := range b.plan {
		if p.cfg.Type == domain.FieldType {
			value, _ := source.Record.Get(p.column)
			text := cast.ToString(value)
			if text != "" {
				doc.Fields[p.name] = text
				content = append(content, text)
			}
			continue
		}

		rendered, err := b.renderer.Render(ctx, source, p.options)
		if err != nil {
			return domain.RelationDocument{}, fmt.Errorf("index field %s: %w", p.name, err)
		}
		if rendered == "" {
			continue
		}

		values := []string{rendered}
		if b.detectors.IsSerializedValue(b.config, p.name) {
			values, err = codec.DecodeList(rendered)
			if err != nil {
				return domain.RelationDocument{}, fmt.Errorf("index field %s: %w", p.name, err)
			}
			if len(values) == 0 {
				continue
			}
			doc.Fields[p.name] = values
		} else {
			doc.Fields[p.name] = rendered
			if p.options.MultiValue {
				// an undetected container is stored verbatim and not searchable
				continue
			}
		}

		records, err := codec.ParseValues(values)
		if err != nil {
			return domain.RelationDocument{}, fmt.Errorf("index field %s: %w", p.name, err)
		}
		for _, r := range records {
			content = append(content, recordText(r)...)
		}
	}

	doc.Content = strings.Join(content, "\n")
	return doc, nil
}

// recordText returns the non-empty string values of r, in field order.
func recordText(r *domain.Record) []string {
	var out []string
	r.Each(func(key string, value any) {
		if s, ok := value.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	})
	return out
}
