// Package projection trims related records down to the fields worth indexing.
package projection

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/sha1n/structured-relation/internal/domain"
)

// SystemFields are bookkeeping columns dropped when no explicit field list is configured.
var SystemFields = []string{
	"crdate",
	"deleted",
	"hidden",
	"l10n_diffsource",
	"l10n_parent",
	"l10n_source",
	"l10n_state",
	"pid",
	"sys_language_uid",
	"t3ver_oid",
	"t3ver_stage",
	"t3ver_state",
	"t3ver_wsid",
	"tstamp",
}

var systemFieldSet = toSet(SystemFields)

// Project applies the fields configuration to every record. A non-empty allowList keeps
// only the listed fields; otherwise the system fields are removed. Field order always
// follows the source record.
func Project(records []*domain.Record, allowList []string) []*domain.Record {
	keep := func(key string) bool { return !systemFieldSet[key] }
	if len(allowList) > 0 {
		allowed := toSet(allowList)
		keep = func(key string) bool { return allowed[key] }
	}

	out := make([]*domain.Record, 0, len(records))
	for _, r := range records {
		if r == nil {
			out = append(out, domain.NewRecord())
			continue
		}
		out = append(out, r.Filter(keep))
	}
	return out
}

// ParseFieldList splits a comma-separated field list, trimming blanks and dropping
// empty entries. Slices are accepted as well, as produced by YAML configuration.
func ParseFieldList(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case nil:
		return nil
	case []string:
		parts = v
	case []any:
		parts = cast.ToStringSlice(v)
	default:
		parts = strings.Split(cast.ToString(v), ",")
	}

	var fields []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fields = append(fields, p)
		}
	}
	return fields
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
