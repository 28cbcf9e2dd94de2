package report

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

const labelNever = "never"

// Change is the outcome of a change check.
type Change struct {
	Database string `json:"database"          yaml:"database"`
	Project  string `json:"project,omitempty" yaml:"project,omitempty"`
	Config   string `json:"config,omitempty"  yaml:"config,omitempty"`
	Changed  bool   `json:"changed"           yaml:"changed"`
	// Stored and Current are epoch milliseconds; 0 means never recorded or
	// file missing.
	Stored  int64 `json:"stored"            yaml:"stored"`
	Current int64 `json:"current"           yaml:"current"`
	Reset   bool  `json:"reset,omitempty"   yaml:"reset,omitempty"`
}

// Change writes a change-check result.
func (w *Writer) Change(result Change) error {
	switch w.format {
	case FormatJSON:
		return w.encodeJSON(result)
	case FormatYAML:
		return w.encodeYAML(result)
	default:
		return w.changeText(result)
	}
}

func (w *Writer) changeText(result Change) error {
	label := w.paint(color.Bold)

	label.Fprint(w.out, "Database:  ")
	fmt.Fprintln(w.out, result.Database)

	if result.Project != "" {
		label.Fprint(w.out, "Project:   ")
		fmt.Fprintln(w.out, describeScope(result.Project, result.Config))
	}

	label.Fprint(w.out, "Status:    ")

	if result.Changed {
		w.paint(color.FgYellow).Fprintln(w.out, "changed")
	} else {
		w.paint(color.FgGreen).Fprintln(w.out, "unchanged")
	}

	fmt.Fprintf(w.out, "  recorded: %s\n", describeMillis(result.Stored))
	_, err := fmt.Fprintf(w.out, "  on disk:  %s\n", describeMillis(result.Current))
	if err != nil {
		return fmt.Errorf("write change: %w", err)
	}

	return nil
}

func describeMillis(ms int64) string {
	if ms == 0 {
		return labelNever
	}

	return fmt.Sprintf("%s (%s)", formatMillis(ms), humanize.Time(time.UnixMilli(ms)))
}
