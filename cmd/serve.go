package cmd

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/rigkit/internal/archive"
	"github.com/agentic-research/rigkit/internal/export"
	"github.com/agentic-research/rigkit/internal/graph"
	"github.com/agentic-research/rigkit/internal/ingest"
)

// Version is reported to MCP clients.
var Version = "dev"

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve <file.mvr>",
		Short: "Serve scene queries over MCP on stdio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			open := func(c context.Context) (*graph.SceneGraph, error) {
				res, err := ctx.openScene(c, cmd, path)
				if err != nil {
					return nil, err
				}
				return res.Scene, nil
			}
			g, err := open(cmd.Context())
			if err != nil {
				return err
			}
			s := newSceneServer(path, graph.NewHotSwapGraph(g), open, ctx.logger)
			defer s.graph.Close()

			ctx.logger.Info("serving scene over stdio", zap.String("path", path), zap.Int("nodes", g.Len()))
			return server.ServeStdio(s.mcpServer())
		},
	}
}

// sceneServer answers MCP tool calls against a reloadable scene.
type sceneServer struct {
	path   string
	graph  *graph.HotSwapGraph
	open   func(context.Context) (*graph.SceneGraph, error)
	logger *zap.Logger

	reloadMu sync.Mutex
}

func newSceneServer(path string, h *graph.HotSwapGraph, open func(context.Context) (*graph.SceneGraph, error), logger *zap.Logger) *sceneServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sceneServer{path: path, graph: h, open: open, logger: logger}
}

func (s *sceneServer) mcpServer() *server.MCPServer {
	srv := server.NewMCPServer("rigkit", Version, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool("scene_summary",
		mcp.WithDescription("Summarize the loaded MVR scene: node counts, fixtures, fixture types and diagnostics"),
	), s.summary)

	srv.AddTool(mcp.NewTool("query",
		mcp.WithDescription("Evaluate a JSONPath expression against the scene document "+
			"(keys: scene, layers, fixtures, fixture_types, classes, diagnostics)"),
		mcp.WithString("selector", mcp.Required(), mcp.Description("JSONPath expression, e.g. $.fixtures[*].name")),
	), s.query)

	srv.AddTool(mcp.NewTool("list_fixtures",
		mcp.WithDescription("List fixtures with type, mode, DMX address and footprint"),
		mcp.WithNumber("universe", mcp.Description("Only fixtures patched in this universe")),
	), s.fixtures)

	srv.AddTool(mcp.NewTool("get_node",
		mcp.WithDescription("Return one scene node by GUID"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node GUID")),
	), s.node)

	srv.AddTool(mcp.NewTool("reload",
		mcp.WithDescription("Re-read the scene file from disk"),
	), s.reload)

	return srv
}

func (s *sceneServer) scene() (*graph.SceneGraph, error) {
	g, ok := s.graph.Current().(*graph.SceneGraph)
	if !ok || g == nil {
		return nil, fmt.Errorf("no scene loaded")
	}
	return g, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	var b strings.Builder
	if err := export.WriteJSON(&b, v); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *sceneServer) summary(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := s.scene()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(summarize(&ingest.Result{Path: s.path, Format: archive.FormatMVR, Scene: g}))
}

func (s *sceneServer) query(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	selector, err := req.RequireString("selector")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	g, err := s.scene()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	matches, err := export.Query(export.Tree(g), selector)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(export.Values(matches))
}

func (s *sceneServer) fixtures(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := s.scene()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	universe := req.GetInt("universe", 0)
	return jsonResult(rowsAsMaps(fixtureHeaders, fixtureRows(g, universe, false)))
}

func (s *sceneServer) node(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid GUID %q: %v", raw, err)), nil
	}
	g, err := s.scene()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := g.GetNode(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	children := make([]any, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, c.String())
	}
	m := map[string]any{
		"id":       n.ID.String(),
		"kind":     n.Kind.String(),
		"name":     n.Name,
		"children": children,
		"label":    nodeLabel(n),
	}
	if n.ParentID != uuid.Nil {
		m["parent"] = n.ParentID.String()
	}
	if world, err := g.WorldTransform(id); err == nil {
		pos := world.Translate()
		m["world_position"] = []any{pos[0], pos[1], pos[2]}
	}
	if diags := g.Diagnostics().ForNode(id); len(diags) > 0 {
		m["diagnostics"] = export.Diagnostics(diags)
	}
	return jsonResult(m)
}

func (s *sceneServer) reload(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	next, err := s.open(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reload %s: %v", s.path, err)), nil
	}
	if err := s.graph.Swap(next); err != nil {
		s.logger.Warn("closing previous scene", zap.Error(err))
	}
	s.logger.Info("scene reloaded", zap.String("path", s.path), zap.Int("nodes", next.Len()))
	return mcp.NewToolResultText(fmt.Sprintf("reloaded %s: %d nodes, %d diagnostics", s.path, next.Len(), len(next.Diagnostics()))), nil
}
