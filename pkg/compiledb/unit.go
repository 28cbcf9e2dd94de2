package compiledb

import (
	"path/filepath"

	"github.com/src-d/enry/v2"
)

// CompileUnit is a single translation unit and the invocation that built it.
type CompileUnit struct {
	SourceFile string `json:"file"              yaml:"file"`
	Directory  string `json:"directory"         yaml:"directory"`
	Command    string `json:"command"           yaml:"command"`
	Output     string `json:"output,omitempty"  yaml:"output,omitempty"`
}

// NewCompileUnit builds a unit from a validated record.
func NewCompileUnit(rec Record) CompileUnit {
	return CompileUnit{
		SourceFile: rec.File,
		Directory:  rec.Directory,
		Command:    rec.Command,
		Output:     rec.Output,
	}
}

// Extract converts records into compile units. Order follows the database and
// duplicate source files are kept.
func Extract(records []Record) []CompileUnit {
	units := make([]CompileUnit, 0, len(records))

	for _, rec := range records {
		units = append(units, NewCompileUnit(rec))
	}

	return units
}

// AbsSourcePath resolves SourceFile against the unit's working directory.
func (u CompileUnit) AbsSourcePath() string {
	if filepath.IsAbs(u.SourceFile) {
		return filepath.Clean(u.SourceFile)
	}

	return filepath.Join(u.Directory, u.SourceFile)
}

// Language guesses the source language from the file extension, or "" when unknown.
func (u CompileUnit) Language() string {
	lang, _ := enry.GetLanguageByExtension(u.SourceFile)

	return lang
}
