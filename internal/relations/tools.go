package relations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/structured-relation/internal/domain"
	"github.com/sha1n/structured-relation/internal/pipeline"
	"github.com/sha1n/structured-relation/internal/projection"
)

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// RenderArgument defines render parameters.
type RenderArgument struct {
	Table      string `json:"table" jsonschema_description:"Source table (e.g., pages)"`
	UID        int64  `json:"uid" jsonschema_description:"Source record uid"`
	IndexField string `json:"index_field,omitempty" jsonschema_description:"Configured index field to render; its options are used"`
	LocalField string `json:"local_field,omitempty" jsonschema_description:"Relation field of the source table, when no index field is given"`
	Fields     string `json:"fields,omitempty" jsonschema_description:"Comma-separated fields to keep on related records"`
	MultiValue bool   `json:"multi_value,omitempty" jsonschema_description:"Render a list of encoded values"`
	SortBy     string `json:"sort_by,omitempty" jsonschema_description:"Join table column to order related records by"`
}

// RenderHandler handles the render_relation MCP tool.
type RenderHandler struct {
	service *Service
}

// NewRenderHandler creates a new render handler.
func NewRenderHandler(service *Service) *RenderHandler {
	return &RenderHandler{service: service}
}

// Handle renders the requested relation field.
func (h *RenderHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args RenderArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Table) == "" || args.UID <= 0 {
		return errorResult("table and a positive uid are required"), nil, nil
	}

	opts, err := h.options(args)
	if err != nil {
		return errorResult("Invalid arguments: %s", err), nil, nil
	}

	value, err := h.service.Render(ctx, args.Table, args.UID, opts)
	if err != nil {
		return errorResult("Render failed: %s", err), nil, nil
	}
	if value == "" {
		return textResult(fmt.Sprintf("No related records for %s.%s", domain.DocumentID(args.Table, args.UID), opts.LocalField)), nil, nil
	}
	return textResult(value), nil, nil
}

func (h *RenderHandler) options(args RenderArgument) (pipeline.Options, error) {
	if args.IndexField != "" {
		return h.service.FieldOptions(args.IndexField)
	}

	opts := pipeline.Options{
		LocalField:                strings.TrimSpace(args.LocalField),
		Fields:                    projection.ParseFieldList(args.Fields),
		MultiValue:                args.MultiValue,
		RelationTableSortingField: strings.TrimSpace(args.SortBy),
	}
	if opts.LocalField == "" {
		return pipeline.Options{}, pipeline.ErrMissingLocalField
	}
	return opts, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *RenderHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "render_relation",
		Description: "Render the related records of a source record into the encoded index field value",
	}
}

// DecodeArgument defines decode parameters.
type DecodeArgument struct {
	Value      string `json:"value" jsonschema_description:"Stored index field value"`
	MultiValue bool   `json:"multi_value,omitempty" jsonschema_description:"The value is a list of encoded values"`
}

// DecodeHandler handles the decode_value MCP tool.
type DecodeHandler struct {
	service *Service
}

// NewDecodeHandler creates a new decode handler.
func NewDecodeHandler(service *Service) *DecodeHandler {
	return &DecodeHandler{service: service}
}

// Handle decodes a stored value into JSON records.
func (h *DecodeHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args DecodeArgument) (*mcp.CallToolResult, any, error) {
	records, err := h.service.Decode(args.Value, args.MultiValue)
	if err != nil {
		return errorResult("Decode failed: %s", err), nil, nil
	}
	if records == nil {
		records = []*domain.Record{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errorResult("Failed to format records: %s", err), nil, nil
	}
	return textResult(string(data)), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *DecodeHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "decode_value",
		Description: "Decode a stored structured relation value into its related records",
	}
}

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query string `json:"query" jsonschema_description:"Search query matched against the text of related records"`
	Limit int    `json:"limit,omitempty" jsonschema_description:"Maximum number of results"`
}

// SearchHandler handles the search_relations MCP tool.
type SearchHandler struct {
	service *Service
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service *Service) *SearchHandler {
	return &SearchHandler{service: service}
}

// Handle executes the search and returns formatted results.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if !h.service.IsReady() {
		return errorResult("Search is not available. The relation index is not open."), nil, nil
	}
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	results, err := h.service.Search(ctx, args.Query, args.Limit)
	if err != nil {
		if errors.Is(err, ErrIndexNotReady) {
			return errorResult("Search is not available. The relation index is not open."), nil, nil
		}
		return errorResult("Search failed: %s", err), nil, nil
	}
	return FormatResults(results, args.Query), nil, nil
}

// BuildQuery constructs a Bleve query from a search string.
func BuildQuery(q string) query.Query {
	contentQuery := bleve.NewMatchQuery(q)
	contentQuery.SetField(domain.DocFieldContent)
	return contentQuery
}

// FormatResults formats Bleve search results for MCP response.
func FormatResults(results *bleve.SearchResult, queryStr string) *mcp.CallToolResult {
	if results.Total == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", queryStr))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d results for '%s':\n\n", results.Total, queryStr))

	for i, hit := range results.Hits {
		sb.WriteString(fmt.Sprintf("### %d. %s\n", i+1, hit.ID))
		sb.WriteString(fmt.Sprintf("**Score**: %.4f\n\n", hit.Score))

		if fragments, ok := hit.Fragments[domain.DocFieldContent]; ok && len(fragments) > 0 {
			sb.WriteString("```\n")
			for _, fragment := range fragments {
				sb.WriteString(fragment)
				sb.WriteString("\n")
			}
			sb.WriteString("```\n")
		}
		sb.WriteString("\n")
	}

	if results.Total > uint64(len(results.Hits)) {
		sb.WriteString(fmt.Sprintf("... and %d more results\n", results.Total-uint64(len(results.Hits))))
	}

	return textResult(sb.String())
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_relations",
		Description: "Full-text search over the related records indexed for the configured source table",
	}
}

// RegisterTools registers the render, decode and search tools with an MCP server.
func RegisterTools(server *mcp.Server, service *Service) {
	render := NewRenderHandler(service)
	mcp.AddTool(server, render.GetToolDefinition(), render.Handle)

	decode := NewDecodeHandler(service)
	mcp.AddTool(server, decode.GetToolDefinition(), decode.Handle)

	search := NewSearchHandler(service)
	mcp.AddTool(server, search.GetToolDefinition(), search.Handle)
}
