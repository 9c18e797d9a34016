// Package detector tells the indexing engine which index fields hold serialized
// multi-value containers rather than flat text.
package detector

import (
	"github.com/sha1n/structured-relation/internal/domain"
	"github.com/sha1n/structured-relation/internal/pipeline"
)

// Detector recognizes serialized index field values.
type Detector interface {
	IsSerializedValue(cfg domain.IndexingConfiguration, fieldName string) bool
}

// Func adapts a plain predicate to the Detector interface.
type Func func(cfg domain.IndexingConfiguration, fieldName string) bool

// IsSerializedValue calls f.
func (f Func) IsSerializedValue(cfg domain.IndexingConfiguration, fieldName string) bool {
	return f(cfg, fieldName)
}

// IsMultiValueEncoded reports whether fieldName is rendered by the structured relation
// pipeline with its multiValue option set.
func IsMultiValueEncoded(cfg domain.IndexingConfiguration, fieldName string) bool {
	fc, ok := cfg[fieldName]
	if !ok || fc.Type != domain.StructuredRelationType {
		return false
	}
	return pipeline.IsTruthy(fc.Options[domain.OptionMultiValue])
}

// StructuredRelation is the detector for multi-value structured relation fields.
var StructuredRelation Detector = Func(IsMultiValueEncoded)
