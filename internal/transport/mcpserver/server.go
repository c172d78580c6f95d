package mcpserver

import (
	"context"
	"io"
	stdlog "log"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

type Deps struct {
	Store     MemoryStore
	Searcher  Searcher
	Extractor Extractor
	Queue     Submitter
	Fetcher   DocumentFetcher
}

// New creates the MCP server with every memory tool registered.
func New(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"tuskmem",
		core.TuskVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)

	searchTool := NewSearchTool(deps.Searcher)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	addTool := NewAddTool(deps.Store)
	s.AddTool(addTool.Definition(), addTool.Handle)

	getTool := NewGetTool(deps.Store)
	s.AddTool(getTool.Definition(), getTool.Handle)

	updateTool := NewUpdateTool(deps.Store)
	s.AddTool(updateTool.Definition(), updateTool.Handle)

	deleteTool := NewDeleteTool(deps.Store)
	s.AddTool(deleteTool.Definition(), deleteTool.Handle)

	listTool := NewListTool(deps.Store)
	s.AddTool(listTool.Definition(), listTool.Handle)

	if deps.Extractor != nil {
		extractTool := NewExtractTool(deps.Extractor, deps.Queue)
		s.AddTool(extractTool.Definition(), extractTool.Handle)

		ingestTool := NewIngestTool(deps.Extractor, deps.Fetcher)
		s.AddTool(ingestTool.Definition(), ingestTool.Handle)
	}

	return s
}

// Serve speaks MCP over in/out until ctx is done or in is closed.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	logger := log.FromCtx(ctx)
	logger.Info().Msg("serving MCP over stdio")

	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(stdlog.New(logger, "mcp: ", 0))

	return stdio.Listen(ctx, in, out)
}

const serverInstructions = `You have access to TuskMem, a long-term memory for the user.

- Call memory_search before answering anything that depends on the user's facts, preferences or history.
- Call memory_extract with the conversation turns after meaningful exchanges; already processed turns are skipped.
- Use memory_add for statements the user explicitly asks you to remember.
- Use memory_update or memory_delete when the user corrects or retracts something.`
