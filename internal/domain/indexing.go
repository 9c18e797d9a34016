package domain

// StructuredRelationType is the indexing field type rendered by the relation pipeline.
const StructuredRelationType = "SOLR_STRUCTURED_RELATION"

// FieldType copies a source column verbatim into the index.
const FieldType = "FIELD"

// Option keys understood in a structured relation field config.
const (
	OptionLocalField                = "localField"
	OptionFields                    = "fields"
	OptionMultiValue                = "multiValue"
	OptionAdditionalWhereClause     = "additionalWhereClause"
	OptionRelationTableSortingField = "relationTableSortingField"
	OptionField                     = "field"
)

// FieldConfig configures how one index field is produced.
type FieldConfig struct {
	Type    string         `mapstructure:"type" yaml:"type" json:"type"`
	Options map[string]any `mapstructure:"options" yaml:"options" json:"options,omitempty"`
}

// IndexingConfiguration maps index field names to their configuration.
type IndexingConfiguration map[string]FieldConfig
