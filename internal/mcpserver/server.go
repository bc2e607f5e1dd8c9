// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Folio navigation tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/editor"
	"github.com/starford/folio/internal/models"
)

// NavigationFormatURI is the resource documenting the navigation blob.
const NavigationFormatURI = "folio://navigation-format"

// Server wraps the MCP server with Folio tools.
type Server struct {
	mcp  *server.MCPServer
	sess *editor.Session
}

// New creates a new MCP server with all Folio tools registered.
func New(sess *editor.Session, version string) *Server {
	s := &Server{sess: sess}

	s.mcp = server.NewMCPServer(
		"Folio",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_navigation",
		mcp.WithDescription("Return the navigation tree of the current branch, including any uncommitted draft."),
		mcp.WithBoolean("force", mcp.Description("Refetch from GitHub first")),
	), s.getNavigation)

	s.mcp.AddTool(mcp.NewTool("insert_file",
		mcp.WithDescription("Add a page entry to the navigation draft and create its backing Markdown file. "+
			"Read the folio://navigation-format resource first."),
		mcp.WithString("parent", mcp.Description("Path of the parent directory, \"/\" for the root")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Human-readable title; the path slug is derived from it")),
	), s.insertFile)

	s.mcp.AddTool(mcp.NewTool("insert_directory",
		mcp.WithDescription("Add a directory entry to the navigation draft."),
		mcp.WithString("parent", mcp.Description("Path of the parent directory, \"/\" for the root")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Human-readable title")),
	), s.insertDirectory)

	s.mcp.AddTool(mcp.NewTool("move_entry",
		mcp.WithDescription("Move an entry one position up or down within its folder."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the entry to move")),
		mcp.WithString("direction", mcp.Required(), mcp.Enum("up", "down"), mcp.Description("up or down")),
	), s.moveEntry)

	s.mcp.AddTool(mcp.NewTool("commit_navigation",
		mcp.WithDescription("Publish the navigation draft of the current branch to GitHub."),
	), s.commitNavigation)

	s.mcp.AddTool(mcp.NewTool("discard_navigation",
		mcp.WithDescription("Drop every navigation draft and reload the current branch from GitHub."),
	), s.discardNavigation)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read the Markdown source of a page on the current branch."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Page route, e.g. /guides/setup")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("delete_page",
		mcp.WithDescription("Delete a page on the current branch, or a whole folder with directory=true. "+
			"The navigation entry is left in place."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Page or folder route, e.g. /guides/setup")),
		mcp.WithBoolean("directory", mcp.Description("Delete every file under the folder")),
	), s.deletePage)

	s.mcp.AddTool(mcp.NewTool("list_pull_requests",
		mcp.WithDescription("List open pull requests with their merge status."),
	), s.listPullRequests)

	s.mcp.AddTool(mcp.NewTool("create_pull_request",
		mcp.WithDescription("Open a pull request from head into base. Both branches must exist."),
		mcp.WithString("base", mcp.Required(), mcp.Description("Branch to merge into")),
		mcp.WithString("head", mcp.Description("Branch with the changes, the current branch when omitted")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Pull request title")),
		mcp.WithString("body", mcp.Description("Pull request description")),
	), s.createPullRequest)

	s.mcp.AddTool(mcp.NewTool("list_commits",
		mcp.WithDescription("List recent commits of a branch, optionally only those touching one page."),
		mcp.WithString("branch", mcp.Description("Branch name, the current branch when omitted")),
		mcp.WithString("path", mcp.Description("Page route to filter by")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of commits, default 10")),
	), s.listCommits)

	s.mcp.AddResource(
		mcp.NewResource(NavigationFormatURI, "Navigation Format",
			mcp.WithResourceDescription("Shape and rules of the navigation file."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNavigationFormat,
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

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func signalText(sig editor.Signal) string {
	if sig.Message == "" {
		return sig.Title
	}
	return sig.Title + ": " + sig.Message
}

func (s *Server) getNavigation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, sig, err := s.sess.Refresh(ctx, req.GetBool("force", false))
	if err != nil && len(v.Navigation) == 0 {
		return mcp.NewToolResultError(signalText(sig)), nil
	}
	return jsonResult(v), nil
}

func (s *Server) insertFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.insert(ctx, req, s.sess.InsertFile)
}

func (s *Server) insertDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.insert(ctx, req, s.sess.InsertDirectory)
}

func (s *Server) insert(ctx context.Context, req mcp.CallToolRequest, fn func(context.Context, string, string) (models.Entry, editor.Signal, error)) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, sig, err := fn(ctx, req.GetString("parent", "/"), title)
	if err != nil {
		return mcp.NewToolResultError(signalText(sig)), nil
	}
	return jsonResult(map[string]any{"entry": entry, "signal": sig}), nil
}

func (s *Server) moveEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	direction, err := req.RequireString("direction")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var sig editor.Signal
	switch direction {
	case "up":
		sig, err = s.sess.MoveUp(ctx, path)
	case "down":
		sig, err = s.sess.MoveDown(ctx, path)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("direction must be up or down, got %q", direction)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(signalText(sig)), nil
	}
	return mcp.NewToolResultText(signalText(sig)), nil
}

func (s *Server) commitNavigation(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, sig, err := s.sess.Commit(ctx)
	if err != nil {
		return mcp.NewToolResultError(signalText(sig)), nil
	}
	return jsonResult(map[string]any{"result": res, "signal": sig}), nil
}

func (s *Server) discardNavigation(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, sig, err := s.sess.DiscardAndReload(ctx)
	if err != nil {
		return mcp.NewToolResultError(signalText(sig)), nil
	}
	return jsonResult(v), nil
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.sess.GetPage(ctx, path)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(p.Content), nil
}

func (s *Server) deletePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	deleted, sig, err := s.sess.DeletePage(ctx, path, req.GetBool("directory", false))
	if err != nil {
		return mcp.NewToolResultError(signalText(sig)), nil
	}
	return jsonResult(map[string]any{"deleted": deleted, "signal": sig}), nil
}

func (s *Server) listPullRequests(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prs, err := s.sess.PullRequests(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(prs), nil
}

func (s *Server) createPullRequest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	base, err := req.RequireString("base")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pr, sig, err := s.sess.OpenPullRequest(ctx, base, req.GetString("head", ""), title, req.GetString("body", ""))
	if err != nil {
		return mcp.NewToolResultError(signalText(sig)), nil
	}
	return jsonResult(map[string]any{"pull_request": pr, "signal": sig}), nil
}

func (s *Server) listCommits(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	commits, err := s.sess.Commits(ctx, req.GetString("branch", ""), req.GetString("path", ""), req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(commits), nil
}

func (s *Server) readNavigationFormat(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      NavigationFormatURI,
			MIMEType: "text/markdown",
			Text:     NavigationFormat,
		},
	}, nil
}
