package domain

import (
	"reflect"
	"testing"
)

func TestParseIdentifierList(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want IdentifierList
	}{
		{"empty", "", nil},
		{"nil", nil, nil},
		{"single int", int64(4), IdentifierList{4}},
		{"list keeps order", "3,1,2", IdentifierList{3, 1, 2}},
		{"spaces and empties", " 5 , ,6,", IdentifierList{5, 6}},
		{"table prefixed", "pages_3,tx_news_7,9", IdentifierList{7, 9}},
		{"non positive", "0,-1,2", IdentifierList{2}},
		{"duplicates kept", "2,2", IdentifierList{2, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseIdentifierList(tt.raw, "tx_news")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseIdentifierList(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestRelationVariants(t *testing.T) {
	base := RelationBase{Table: "news", Field: "categories", Foreign: "category", MaxItems: 1}

	var rel RelationConfig = JoinTableRelation{RelationBase: base, JoinTable: "news_category_mm"}
	if rel.SourceTable() != "news" || rel.SourceField() != "categories" || rel.ForeignTable() != "category" {
		t.Errorf("unexpected accessors: %s %s %s", rel.SourceTable(), rel.SourceField(), rel.ForeignTable())
	}
	if rel.Multiple() {
		t.Error("Expected MaxItems 1 to be single")
	}

	rel = DirectRelation{RelationBase: RelationBase{Table: "news", Field: "related", Foreign: "news"}}
	if !rel.Multiple() {
		t.Error("Expected unbounded relation to be multiple")
	}

	sorted := JoinTableRelation{RelationBase: base, SortColumn: "sorting"}.WithSortColumn("sorting_foreign")
	if sorted.SortColumn != "sorting_foreign" {
		t.Errorf("SortColumn = %q, want sorting_foreign", sorted.SortColumn)
	}
}

func TestRelationDocument_Map(t *testing.T) {
	doc := RelationDocument{
		ID:      DocumentID("news", 12),
		Table:   "news",
		UID:     12,
		Content: "hello",
		Fields:  map[string]any{"categories": []string{"a", "b"}},
	}

	m := doc.Map()
	if m[DocFieldID] != "news:12" {
		t.Errorf("id = %v, want news:12", m[DocFieldID])
	}
	if m[DocFieldUID] != float64(12) {
		t.Errorf("uid = %v, want 12", m[DocFieldUID])
	}
	if !reflect.DeepEqual(m["categories"], []string{"a", "b"}) {
		t.Errorf("categories = %v", m["categories"])
	}
}
