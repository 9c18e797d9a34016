package store

import (
	"context"
	"log/slog"

	"github.com/sha1n/structured-relation/internal/domain"
	"github.com/sha1n/structured-relation/internal/schema"
	"github.com/spf13/cast"
)

// FieldLocalizedUID holds the uid of the translated row on an overlaid record.
const FieldLocalizedUID = "_LOCALIZED_UID"

// Tables exposes table declarations.
type Tables interface {
	Table(name string) (schema.Table, bool)
}

type translationReader interface {
	Translation(ctx context.Context, table, parentField, languageField string, parentUID int64, languageID int) (*domain.Record, error)
}

// Overlays replaces records with their translation into one language. Tables without a
// language declaration are returned unchanged, as are records without a translation.
type Overlays struct {
	reader     translationReader
	tables     Tables
	languageID int
	logger     *slog.Logger
}

// NewOverlays creates an overlay service for languageID. 0 is the default language.
func NewOverlays(reader translationReader, tables Tables, languageID int, logger *slog.Logger) *Overlays {
	if logger == nil {
		logger = slog.Default()
	}
	return &Overlays{reader: reader, tables: tables, languageID: languageID, logger: logger}
}

func (o *Overlays) ActiveLocaleID() int {
	return o.languageID
}

// OverlayUID returns the uid of the translation of table:uid, or uid itself.
func (o *Overlays) OverlayUID(ctx context.Context, table string, uid int64) (int64, error) {
	translation, err := o.translation(ctx, table, uid)
	if err != nil || translation == nil {
		return uid, err
	}
	localized, err := translation.UID()
	if err != nil {
		return uid, nil
	}
	return localized, nil
}

// Overlay merges the translation of record into a copy of it. The copy keeps the default
// language uid and gains FieldLocalizedUID.
func (o *Overlays) Overlay(ctx context.Context, table string, record *domain.Record) (*domain.Record, error) {
	t, ok := o.translatable(table)
	if !ok {
		return record, nil
	}
	if lang, ok := record.Get(t.LanguageField); ok && cast.ToInt64(lang) == int64(o.languageID) {
		return record, nil
	}

	uid, err := record.UID()
	if err != nil {
		return record, nil
	}
	translation, err := o.translation(ctx, table, uid)
	if err != nil || translation == nil {
		return record, err
	}

	merged := record.Clone()
	translation.Each(func(key string, value any) {
		switch key {
		case domain.FieldUID, "pid", t.TranslationParentField:
			return
		}
		merged.Set(key, value)
	})
	if localized, err := translation.UID(); err == nil {
		merged.Set(FieldLocalizedUID, localized)
	}

	o.logger.Debug("Applied overlay", "table", table, "uid", uid, "language", o.languageID)
	return merged, nil
}

func (o *Overlays) translatable(table string) (schema.Table, bool) {
	if o.languageID <= 0 || o.tables == nil {
		return schema.Table{}, false
	}
	t, ok := o.tables.Table(table)
	if !ok || !t.Translatable() {
		return schema.Table{}, false
	}
	return t, true
}

func (o *Overlays) translation(ctx context.Context, table string, uid int64) (*domain.Record, error) {
	t, ok := o.translatable(table)
	if !ok {
		return nil, nil
	}
	return o.reader.Translation(ctx, table, t.TranslationParentField, t.LanguageField, uid, o.languageID)
}
