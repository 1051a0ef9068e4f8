// Package mcpserver exposes the transcript archive to MCP clients.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jwulff/echo/internal/archive"
)

// Name is the server name reported to MCP clients.
const Name = "echo"

// Archive is the part of archive.Store the tools read and update. Every tool
// call refreshes first because the recorder may have archived since.
type Archive interface {
	Refresh(ctx context.Context) error
	Search(f archive.Filter) []archive.Transcript
	Get(id string) (archive.Transcript, bool)
	Update(ctx context.Context, id string, p archive.Patch) error
}

type tools struct {
	store Archive
}

// New builds an MCP server with the archive tools registered.
func New(store Archive, version string) *server.MCPServer {
	s := server.NewMCPServer(Name, version, server.WithToolCapabilities(false))
	t := &tools{store: store}

	s.AddTool(mcp.NewTool("list_transcripts",
		mcp.WithDescription("List archived transcripts, newest first."),
		mcp.WithString("query", mcp.Description("Case-insensitive text to match in title, text or category")),
		mcp.WithBoolean("important_only", mcp.Description("Only return transcripts marked important")),
	), t.list)

	s.AddTool(mcp.NewTool("get_transcript",
		mcp.WithDescription("Get one archived transcript as paragraphs."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Transcript id")),
	), t.get)

	s.AddTool(mcp.NewTool("mark_important",
		mcp.WithDescription("Mark or unmark an archived transcript as important."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Transcript id")),
		mcp.WithBoolean("important", mcp.Description("Defaults to true")),
	), t.markImportant)

	return s
}

// Serve runs the server over stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func (t *tools) list(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := t.store.Refresh(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items := t.store.Search(archive.Filter{
		Query:         req.GetString("query", ""),
		ImportantOnly: req.GetBool("important_only", false),
	})
	if len(items) == 0 {
		return mcp.NewToolResultText("No transcripts found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d transcript(s):\n", len(items))
	for _, it := range items {
		mark := ""
		if it.IsImportant {
			mark = " ★"
		}
		fmt.Fprintf(&b, "- %s | %s | %s%s (%d words)\n",
			it.ID, it.DisplayDate(), it.Title, mark, len(strings.Fields(it.Text)))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (t *tools) get(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.store.Refresh(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	it, ok := t.store.Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("transcript %q not found", id)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n%s\n", it.Title, it.DisplayDate())
	if it.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", it.Category)
	}
	for _, sp := range it.Speakers {
		fmt.Fprintf(&b, "Speaker %s: %s\n", sp.ID, sp.Name)
	}
	for _, p := range it.Paragraphs() {
		b.WriteString("\n")
		b.WriteString(p)
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (t *tools) markImportant(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.store.Refresh(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, ok := t.store.Get(id); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("transcript %q not found", id)), nil
	}
	important := req.GetBool("important", true)
	if err := t.store.Update(ctx, id, archive.Patch{IsImportant: &important}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if important {
		return mcp.NewToolResultText(fmt.Sprintf("Marked %s as important.", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Unmarked %s.", id)), nil
}
