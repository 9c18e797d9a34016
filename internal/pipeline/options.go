package pipeline

import (
	"errors"
	"strings"

	"github.com/spf13/cast"

	"github.com/sha1n/structured-relation/internal/domain"
	"github.com/sha1n/structured-relation/internal/projection"
)

// ErrMissingLocalField is returned for a field configuration without localField.
var ErrMissingLocalField = errors.New("structured relation requires a localField option")

// Options configure one structured relation field.
type Options struct {
	// LocalField is the source record field holding the relation.
	LocalField string
	// Fields restricts the encoded fields; empty drops system fields instead.
	Fields []string
	// MultiValue renders a container of encoded values instead of a single one.
	MultiValue bool
	// AdditionalWhereClause is appended verbatim to the related record lookup.
	AdditionalWhereClause string
	// RelationTableSortingField orders join table relations by this column.
	RelationTableSortingField string
}

// OptionsFromConfig reads options from an indexing field configuration.
func OptionsFromConfig(options map[string]any) (Options, error) {
	opts := Options{
		LocalField:                strings.TrimSpace(cast.ToString(options[domain.OptionLocalField])),
		Fields:                    projection.ParseFieldList(options[domain.OptionFields]),
		MultiValue:                IsTruthy(options[domain.OptionMultiValue]),
		AdditionalWhereClause:     strings.TrimSpace(cast.ToString(options[domain.OptionAdditionalWhereClause])),
		RelationTableSortingField: strings.TrimSpace(cast.ToString(options[domain.OptionRelationTableSortingField])),
	}
	if opts.LocalField == "" {
		return Options{}, ErrMissingLocalField
	}
	return opts, nil
}

// IsTruthy interprets a configuration flag: "1", "true", true and non-zero numbers are
// true, everything else is false.
func IsTruthy(v any) bool {
	b, err := cast.ToBoolE(v)
	return err == nil && b
}
