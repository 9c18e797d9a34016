package domain

import "strconv"

// Bleve field name constants shared by the index mapping, the indexer and search.
const (
	DocFieldID      = "id"
	DocFieldTable   = "table"
	DocFieldUID     = "uid"
	DocFieldContent = "content"
)

// RelationDocument is one indexed source record. Fields holds the rendered index
// fields: a string for single values, a []string for multi-value containers.
type RelationDocument struct {
	ID      string
	Table   string
	UID     int64
	Content string
	Fields  map[string]any
}

// DocumentID builds the index document id for a source record.
func DocumentID(table string, uid int64) string {
	return table + ":" + strconv.FormatInt(uid, 10)
}

// Map flattens the document into the shape stored in the index.
func (d RelationDocument) Map() map[string]any {
	m := make(map[string]any, len(d.Fields)+4)
	for k, v := range d.Fields {
		m[k] = v
	}
	m[DocFieldID] = d.ID
	m[DocFieldTable] = d.Table
	m[DocFieldUID] = float64(d.UID)
	m[DocFieldContent] = d.Content
	return m
}
