package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kirillkom/codesearch/internal/core/domain"
	"github.com/kirillkom/codesearch/internal/core/usecase"
)

const (
	toolSearch   = "search_codebase"
	toolEstimate = "estimate_cost"
)

func newMCPCmd(c *cli) *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve search tools to an MCP client over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, closeFn, err := c.open(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			tools := &mcpTools{sess: sess, resolver: usecase.NewRepositoryResolver(root)}
			stdio := server.NewStdioServer(tools.server())
			stdio.SetErrorLogger(log.New(c.stderr, "", log.LstdFlags))
			slog.Info("mcp_serving", "root", root)
			return stdio.Listen(cmd.Context(), c.stdin, c.stdout)
		},
	}
	cmd.Flags().StringVar(&root, "root", ".", "directory tool paths are resolved against")
	return cmd
}

type mcpTools struct {
	sess     session
	resolver *usecase.RepositoryResolver
}

func (t *mcpTools) server() *server.MCPServer {
	s := server.NewMCPServer(serviceName, versionString(), server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool(toolSearch,
		mcp.WithDescription("Answer a question about the code under a directory. Every file is read, "+
			"so prefer this over grep when the question is about behaviour rather than names."),
		mcp.WithString("question", mcp.Required(), mcp.Description("What to find or explain")),
		mcp.WithString("path", mcp.Description("Directory relative to the server root; defaults to the root")),
		mcp.WithString("model", mcp.Description("Model override")),
		mcp.WithNumber("concurrency", mcp.Description("Parallel backend calls")),
	), t.search)

	s.AddTool(mcp.NewTool(toolEstimate,
		mcp.WithDescription("Report how many chunks and tokens a search would send, without sending them."),
		mcp.WithString("path", mcp.Description("Directory relative to the server root; defaults to the root")),
		mcp.WithNumber("max_tokens", mcp.Description("Token budget per chunk")),
	), t.estimate)

	return s
}

func (t *mcpTools) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	root, err := t.resolver.Resolve(req.GetString("path", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := t.sess.Search(ctx, domain.SearchRequest{
		Root:        root,
		Question:    question,
		Model:       req.GetString("model", ""),
		Concurrency: req.GetInt("concurrency", 0),
	})
	if ferr := t.sess.Flush(); ferr != nil {
		slog.Warn("mcp_cache_flush_failed", "error", ferr)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(usecase.Summarize(report))
}

func (t *mcpTools) estimate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := t.resolver.Resolve(req.GetString("path", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	estimate, err := t.sess.Estimate(ctx, root, req.GetInt("max_tokens", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(estimate)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
