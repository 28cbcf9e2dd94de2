package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/ccdb/pkg/engine"
	"github.com/Sumatoshi-tech/ccdb/pkg/prefstore"
	"github.com/Sumatoshi-tech/ccdb/pkg/report"
	"github.com/Sumatoshi-tech/ccdb/pkg/toolchain"
)

// Tool name constants.
const (
	ToolNameIngest  = "ccdb_ingest"
	ToolNameChanged = "ccdb_changed"
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyDatabase indicates the database parameter is empty.
	ErrEmptyDatabase = errors.New("database parameter is required and must not be empty")
	// ErrDatabaseNotAbsolute indicates the database path is relative.
	ErrDatabaseNotAbsolute = errors.New("database must be an absolute path")
)

// IngestInput is the input schema for the ccdb_ingest tool.
type IngestInput struct {
	Database string `json:"database"         jsonschema:"absolute path to compile_commands.json"`
	Project  string `json:"project,omitempty" jsonschema:"owning project name (default: database directory name)"`
	Config   string `json:"config,omitempty"  jsonschema:"build configuration name (e.g. Debug)"`
	Strict   *bool  `json:"strict,omitempty"  jsonschema:"tokenize commands with shell quoting rules"`
}

// ChangedInput is the input schema for the ccdb_changed tool.
type ChangedInput struct {
	Database string `json:"database"         jsonschema:"absolute path to compile_commands.json"`
	Project  string `json:"project,omitempty" jsonschema:"owning project name (default: database directory name)"`
	Config   string `json:"config,omitempty"  jsonschema:"build configuration name (e.g. Debug)"`
	Reset    bool   `json:"reset,omitempty"   jsonschema:"record the current modification time as consumed"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

func (s *Server) handleIngest(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input IngestInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateDatabase(input.Database)
	if err != nil {
		return errorResult(err)
	}

	strict := s.deps.Strict
	if input.Strict != nil {
		strict = *input.Strict
	}

	opts := s.sessionOptions(input.Database, input.Project, input.Config)
	if strict {
		opts = append(opts, engine.WithDetectorOptions(toolchain.WithStrictTokenizer()))
	}

	session, err := engine.New(input.Database, opts...)
	if err != nil {
		return errorResult(err)
	}

	err = session.Parse(ctx)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(report.Ingest{
		Database:  session.Path(),
		Project:   session.Project(),
		Config:    session.Config(),
		SizeBytes: fileSize(session.Path()),
		Units:     session.Sources(),
		Toolchain: session.Toolchain(),
	})
}

func (s *Server) handleChanged(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input ChangedInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateDatabase(input.Database)
	if err != nil {
		return errorResult(err)
	}

	scope := prefstore.Scope{Project: projectOrDefault(input.Project, input.Database), Config: input.Config}

	store, err := s.store(scope)
	if err != nil {
		return errorResult(err)
	}

	opts := append(s.sessionOptions(input.Database, input.Project, input.Config), engine.WithStore(store))

	session, err := engine.New(input.Database, opts...)
	if err != nil {
		return errorResult(err)
	}

	before, err := session.Inspect()
	if err != nil {
		return errorResult(err)
	}

	changed, err := session.HasChanged(ctx, input.Reset)
	if err != nil {
		return errorResult(fmt.Errorf("changed=%t: %w", changed, err))
	}

	return jsonResult(report.Change{
		Database: session.Path(),
		Project:  session.Project(),
		Config:   session.Config(),
		Changed:  changed,
		Stored:   before.Stored,
		Current:  before.Current,
		Reset:    input.Reset,
	})
}

func (s *Server) sessionOptions(database, project, config string) []engine.Option {
	opts := []engine.Option{
		engine.WithLogger(s.logger),
		engine.WithProject(projectOrDefault(project, database)),
		engine.WithConfig(config),
	}

	if s.deps.Recorder != nil {
		opts = append(opts, engine.WithRecorder(s.deps.Recorder))
	}

	if s.deps.Tracer != nil {
		opts = append(opts, engine.WithTracer(s.deps.Tracer))
	}

	return opts
}

func projectOrDefault(project, database string) string {
	if project != "" {
		return project
	}

	return engine.DefaultProject(database)
}

func validateDatabase(database string) error {
	if database == "" {
		return ErrEmptyDatabase
	}

	if !filepath.IsAbs(database) {
		return fmt.Errorf("%w: %s", ErrDatabaseNotAbsolute, database)
	}

	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}

	return info.Size()
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
