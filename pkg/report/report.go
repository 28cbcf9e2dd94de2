// Package report renders ingestion, toolchain and change results as text,
// tables, JSON or YAML.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/ccdb/pkg/compiledb"
	"github.com/Sumatoshi-tech/ccdb/pkg/toolchain"
)

// Format selects the output encoding.
type Format string

// Supported output formats.
const (
	FormatText  Format = "text"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

const (
	jsonIndent = "  "
	yamlIndent = 2
)

// ErrUnknownFormat is returned by ParseFormat for unsupported names.
var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat maps a flag value to a Format. Empty means text.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case FormatText, "":
		return FormatText, nil
	case FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q (want text, table, json or yaml)", ErrUnknownFormat, name)
	}
}

// Ingest is the result of one parse pass.
type Ingest struct {
	Database  string                  `json:"database"          yaml:"database"`
	Project   string                  `json:"project,omitempty" yaml:"project,omitempty"`
	Config    string                  `json:"config,omitempty"  yaml:"config,omitempty"`
	SizeBytes int64                   `json:"size_bytes"        yaml:"size_bytes"`
	Units     []compiledb.CompileUnit `json:"units"             yaml:"units"`
	Toolchain toolchain.Info          `json:"toolchain"         yaml:"toolchain"`
}

// Writer renders results in one format.
type Writer struct {
	out     io.Writer
	format  Format
	noColor bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithoutColor disables ANSI colors in text output.
func WithoutColor() Option {
	return func(w *Writer) { w.noColor = true }
}

// NewWriter creates a Writer.
func NewWriter(out io.Writer, format Format, opts ...Option) *Writer {
	w := &Writer{out: out, format: format}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Ingest writes an ingestion result.
func (w *Writer) Ingest(result Ingest) error {
	switch w.format {
	case FormatJSON:
		return w.encodeJSON(result)
	case FormatYAML:
		return w.encodeYAML(result)
	case FormatTable:
		return w.ingestTable(result)
	default:
		return w.ingestText(result)
	}
}

// ToolchainView is the toolchain with its resolved executable path.
type ToolchainView struct {
	toolchain.Info `yaml:",inline"`

	CrossPrefix string `json:"cross_prefix,omitempty" yaml:"cross_prefix,omitempty"`
	Resolved    string `json:"resolved,omitempty"     yaml:"resolved,omitempty"`
}

// NewToolchainView derives the prefix and, when possible, the resolved path.
func NewToolchainView(info toolchain.Info) ToolchainView {
	view := ToolchainView{Info: info, CrossPrefix: info.CrossPrefix()}

	resolved, err := info.Resolve()
	if err == nil {
		view.Resolved = resolved
	}

	return view
}

// Toolchain writes a toolchain description.
func (w *Writer) Toolchain(view ToolchainView) error {
	switch w.format {
	case FormatJSON:
		return w.encodeJSON(view)
	case FormatYAML:
		return w.encodeYAML(view)
	default:
		return w.toolchainText(view)
	}
}

func (w *Writer) encodeJSON(doc any) error {
	encoder := json.NewEncoder(w.out)
	encoder.SetIndent("", jsonIndent)

	err := encoder.Encode(doc)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

func (w *Writer) encodeYAML(doc any) error {
	encoder := yaml.NewEncoder(w.out)
	encoder.SetIndent(yamlIndent)

	err := encoder.Encode(doc)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	return nil
}

func (w *Writer) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if w.noColor {
		c.DisableColor()
	}

	return c
}
