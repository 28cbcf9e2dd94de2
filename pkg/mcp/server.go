// Package mcp implements a Model Context Protocol server exposing compilation
// database ingestion and change checks as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/ccdb/pkg/changetrack"
	"github.com/Sumatoshi-tech/ccdb/pkg/engine"
	"github.com/Sumatoshi-tech/ccdb/pkg/prefstore"
	"github.com/Sumatoshi-tech/ccdb/pkg/version"
)

const (
	serverName = "ccdb"
	toolCount  = 2
)

// StoreOpener returns the timestamp store for a scope.
type StoreOpener func(scope prefstore.Scope) (changetrack.Store, error)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use defaults.
type ServerDeps struct {
	// Logger is an optional structured logger. Nil discards.
	Logger *slog.Logger

	// Recorder optionally receives ingestion metrics.
	Recorder engine.Recorder

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer

	// OpenStore opens the store for a scope. Nil keeps timestamps in memory
	// for the lifetime of the server.
	OpenStore StoreOpener

	// Strict enables shell-quoting aware tokenization by default.
	Strict bool
}

// Server wraps the MCP SDK server with ccdb tool registrations.
type Server struct {
	inner  *mcpsdk.Server
	deps   ServerDeps
	logger *slog.Logger

	mu     sync.Mutex
	tools  []string
	stores map[prefstore.Scope]changetrack.Store
}

// NewServer creates a new MCP server with all ccdb tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		&mcpsdk.ServerOptions{Logger: logger},
	)

	srv := &Server{
		inner:  inner,
		deps:   deps,
		logger: logger,
		tools:  make([]string, 0, toolCount),
		stores: make(map[prefstore.Scope]changetrack.Store),
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport starts the MCP server on the given transport.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameIngest,
		Description: ingestToolDescription,
	}, withTracing(s.deps.Tracer, ToolNameIngest, s.handleIngest))
	s.trackTool(ToolNameIngest)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameChanged,
		Description: changedToolDescription,
	}, withTracing(s.deps.Tracer, ToolNameChanged, s.handleChanged))
	s.trackTool(ToolNameChanged)
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// store returns the store for scope, opening it at most once per server.
func (s *Server) store(scope prefstore.Scope) (changetrack.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if store, ok := s.stores[scope]; ok {
		return store, nil
	}

	var (
		store changetrack.Store
		err   error
	)

	if s.deps.OpenStore != nil {
		store, err = s.deps.OpenStore(scope)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	} else {
		store = prefstore.NewMemory()
	}

	s.stores[scope] = store

	return store, nil
}

const (
	mcpSpanPrefix  = "mcp."
	traceIDMetaKey = "trace_id"
)

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			result.Content = append(result.Content,
				&mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())})
		}

		return result, output, err
	}
}

const (
	ingestToolDescription = "Parse a CMake compile_commands.json and infer the cross toolchain " +
		"(compiler location, executable, sysroot) from its first compile command."

	changedToolDescription = "Report whether a compile_commands.json changed since it was last " +
		"consumed. With reset, record the current modification time as consumed."
)
