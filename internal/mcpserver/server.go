// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes noteweave tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/noteweave/internal/graph"
	"github.com/starford/noteweave/internal/noteservice"
)

const noteFormatURI = "noteweave://note-format"

// Server wraps the MCP server with noteweave tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *noteservice.Service
	graph *graph.Assembler
}

// New creates a new MCP server with all noteweave tools registered.
func New(svc *noteservice.Service, asm *graph.Assembler, version string) *Server {
	s := &Server{svc: svc, graph: asm}

	s.mcp = server.NewMCPServer(
		"noteweave",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Text search through note titles, content, tags, summaries and topics."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note by ID, including its enrichment once processing is DONE."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, newest first, optionally filtered by status, type or tag."),
		mcp.WithString("status", mcp.Description("PENDING, PROCESSING, DONE or FAILED")),
		mcp.WithString("type", mcp.Description("LINK, TEXT or MEDIA")),
		mcp.WithString("tag", mcp.Description("Tag to filter by")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. It is stored as PENDING and enriched in the background. "+
			"Read the contract first via the get_note_contract tool or the "+noteFormatURI+" resource."),
		mcp.WithString("type", mcp.Required(), mcp.Description("LINK, TEXT or MEDIA")),
		mcp.WithString("content", mcp.Required(), mcp.Description("URL for LINK, Markdown for TEXT, file reference for MEDIA")),
		mcp.WithString("title", mcp.Description("Optional title")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Optional tags")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("related_notes",
		mcp.WithDescription("Notes related to the given note by shared topics and embedding similarity, best first."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of related notes (1-100, default 10)")),
	), s.relatedNotes)

	s.mcp.AddTool(mcp.NewTool("note_links",
		mcp.WithDescription("Explicit links of a note, split into linkedTo and linkedFrom."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID")),
	), s.noteLinks)

	s.mcp.AddTool(mcp.NewTool("reprocess_note",
		mcp.WithDescription("Retry enrichment of a FAILED note or one stuck in PROCESSING."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID")),
	), s.reprocessNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the noteweave note format contract. "+
			"Call this before creating notes to ensure correct structure."),
	), s.getNoteContract)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource(noteFormatURI, "Note Format Contract",
			mcp.WithResourceDescription("How notes are submitted and what enrichment adds to them."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type searchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[searchArgs](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, args.Query, args.Limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.GetNote(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(n), nil
}

type listArgs struct {
	Status string `json:"status"`
	Type   string `json:"type"`
	Tag    string `json:"tag"`
	Limit  int    `json:"limit"`
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[listArgs](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes, total, err := s.svc.ListNotes(ctx, noteservice.ListParams{
		Status: args.Status,
		Type:   args.Type,
		Tag:    args.Tag,
		Limit:  args.Limit,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"notes": notes, "total": total}), nil
}

type createArgs struct {
	Type    string   `json:"type"`
	Content string   `json:"content"`
	Title   string   `json:"title"`
	Tags    []string `json:"tags"`
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[createArgs](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.CreateNote(ctx, noteservice.CreateNoteInput{
		Type:    args.Type,
		Content: args.Content,
		Title:   args.Title,
		Tags:    args.Tags,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (%s)", n.ID, n.Status)), nil
}

type relatedArgs struct {
	ID    string `json:"id"`
	Limit int    `json:"limit"`
}

func (s *Server) relatedNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[relatedArgs](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	related, err := s.graph.RelatedNotes(ctx, args.ID, args.Limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(related) == 0 {
		return mcp.NewToolResultText("no related notes found"), nil
	}
	return jsonResult(related), nil
}

func (s *Server) noteLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.graph.NoteLinks(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(links), nil
}

func (s *Server) reprocessNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.Reprocess(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("queued: %s (%s)", n.ID, n.Status)), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      noteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
