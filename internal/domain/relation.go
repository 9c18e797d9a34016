package domain

import (
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// RelationConfig describes how a source field relates records of a foreign table.
// The concrete variant is decided once, when the schema is compiled.
type RelationConfig interface {
	SourceTable() string
	SourceField() string
	ForeignTable() string
	// Multiple reports whether the field may hold more than one related record.
	Multiple() bool

	isRelation()
}

// RelationBase holds the attributes every relation variant shares.
type RelationBase struct {
	Table    string
	Field    string
	Foreign  string
	MaxItems int // 0 means unbounded
}

func (b RelationBase) SourceTable() string  { return b.Table }
func (b RelationBase) SourceField() string  { return b.Field }
func (b RelationBase) ForeignTable() string { return b.Foreign }
func (b RelationBase) Multiple() bool       { return b.MaxItems != 1 }
func (RelationBase) isRelation()            {}

// JoinTableRelation is an m:n relation mediated by a join table.
type JoinTableRelation struct {
	RelationBase

	JoinTable     string
	LocalColumn   string // column matched against the source uid
	ForeignColumn string // column holding the related uid
	SortColumn    string // empty keeps the join table's natural order
	MatchFields   map[string]string
}

// WithSortColumn returns a copy ordered by column.
func (r JoinTableRelation) WithSortColumn(column string) JoinTableRelation {
	r.SortColumn = column
	return r
}

// DirectRelation stores the related identifiers in the source field itself, as a
// comma-separated list.
type DirectRelation struct {
	RelationBase
}

// ForeignFieldRelation is a 1:n relation where each foreign row points back at its
// parent through ForeignField.
type ForeignFieldRelation struct {
	RelationBase

	ForeignField string
	SortColumn   string
	MatchFields  map[string]string
}

// IdentifierList is an ordered list of related record uids. Its order is the order
// related records are emitted in.
type IdentifierList []int64

// ParseIdentifierList reads a raw direct-relation field value. Tokens are plain uids
// or "<foreignTable>_<uid>"; tokens for other tables and non-positive uids are skipped.
func ParseIdentifierList(raw any, foreignTable string) IdentifierList {
	value := strings.TrimSpace(cast.ToString(raw))
	if value == "" {
		return nil
	}

	var ids IdentifierList
	for _, token := range strings.Split(value, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if foreignTable != "" && strings.HasPrefix(token, foreignTable+"_") {
			token = strings.TrimPrefix(token, foreignTable+"_")
		}
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// SourceRecord is the record being indexed together with the table it came from.
type SourceRecord struct {
	Table  string
	Record *Record
}
