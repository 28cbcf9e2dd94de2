package report

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const (
	labelNone     = "(none)"
	labelUnknown  = "unknown"
	headerUnit    = "#"
	headerFile    = "File"
	headerLang    = "Language"
	headerDir     = "Directory"
	headerOutput  = "Output"
	footerLabel   = "Compiler"
	footerSysroot = "Sysroot"
)

func (w *Writer) ingestText(result Ingest) error {
	label := w.paint(color.Bold)
	value := w.paint(color.FgCyan)

	label.Fprint(w.out, "Database:  ")
	value.Fprintln(w.out, describeDatabase(result))

	if result.Project != "" {
		label.Fprint(w.out, "Project:   ")
		value.Fprintln(w.out, describeScope(result.Project, result.Config))
	}

	label.Fprint(w.out, "Units:     ")
	value.Fprintln(w.out, len(result.Units))

	return w.toolchainText(NewToolchainView(result.Toolchain))
}

func (w *Writer) toolchainText(view ToolchainView) error {
	label := w.paint(color.Bold)
	value := w.paint(color.FgCyan)

	if !view.HasCompiler() {
		label.Fprint(w.out, "Compiler:  ")
		w.paint(color.FgYellow).Fprintln(w.out, labelNone)
	} else {
		label.Fprint(w.out, "Compiler:  ")
		value.Fprintln(w.out, view.Command)
		fmt.Fprintf(w.out, "  directory:  %s\n", orNone(view.Directory))
		fmt.Fprintf(w.out, "  executable: %s\n", view.Executable)

		if view.CrossPrefix != "" {
			fmt.Fprintf(w.out, "  prefix:     %s\n", view.CrossPrefix)
		}

		if view.Resolved != "" && view.Resolved != view.Command {
			fmt.Fprintf(w.out, "  resolved:   %s\n", view.Resolved)
		}
	}

	label.Fprint(w.out, "Sysroot:   ")
	value.Fprintln(w.out, orNone(view.Sysroot))

	label.Fprint(w.out, "Flags:     ")
	_, err := value.Fprintln(w.out, orNone(view.Flags))
	if err != nil {
		return fmt.Errorf("write toolchain: %w", err)
	}

	return nil
}

func (w *Writer) ingestTable(result Ingest) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w.out)
	tw.SetStyle(table.StyleLight)
	// Footer cells carry paths; keep their case.
	tw.Style().Format.Footer = text.FormatDefault
	tw.SetTitle(describeDatabase(result))
	tw.AppendHeader(table.Row{headerUnit, headerFile, headerLang, headerDir, headerOutput})

	for idx, unit := range result.Units {
		tw.AppendRow(table.Row{
			idx + 1,
			unit.SourceFile,
			orText(unit.Language(), labelUnknown),
			unit.Directory,
			unit.Output,
		})
	}

	tw.AppendFooter(table.Row{"", footerLabel, orNone(result.Toolchain.Command), footerSysroot, orNone(result.Toolchain.Sysroot)})
	tw.Render()

	return nil
}

func describeDatabase(result Ingest) string {
	if result.SizeBytes <= 0 {
		return result.Database
	}

	return fmt.Sprintf("%s (%s)", result.Database, humanize.Bytes(uint64(result.SizeBytes)))
}

func describeScope(project, config string) string {
	if config == "" {
		return project
	}

	return project + " [" + config + "]"
}

func orNone(value string) string {
	return orText(value, labelNone)
}

func orText(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}

func formatMillis(ms int64) string {
	return strconv.FormatInt(ms, 10)
}
