// Package toolchain infers the cross compiler, its location and its sysroot from
// a single observed compile command line.
package toolchain

import (
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrEmptyToolchain signals that a command line held no compiler token.
// It is informational: detection still succeeds with empty compiler fields.
var ErrEmptyToolchain = errors.New("no compiler token found in command line")

// prefixSeparator ends every GNU target triple prefix (arm-linux-gnueabi-).
const prefixSeparator = "-"

// Info is the inferred toolchain of a project. It is a plain value; copies are
// independent and nothing in this package mutates one after Detect returns it.
type Info struct {
	// Command is the compiler token as it appeared on the command line.
	Command string `json:"compiler_command"    yaml:"compiler_command"`
	// Directory is the parent directory of Command, empty for a bare name.
	Directory string `json:"compiler_directory" yaml:"compiler_directory"`
	// Executable is the file-name component of Command.
	Executable string `json:"compiler_executable" yaml:"compiler_executable"`
	// Sysroot is the --sysroot value, empty when absent.
	Sysroot string `json:"sysroot_path"        yaml:"sysroot_path"`
	// Flags is the normalized flag string ("--sysroot <path>" or empty).
	Flags string `json:"normalized_flags"    yaml:"normalized_flags"`
}

// NewInfo assembles an Info from a compiler token and a sysroot path.
func NewInfo(compiler, sysroot string) Info {
	dir, exe := splitCompiler(compiler)

	return Info{
		Command:    compiler,
		Directory:  dir,
		Executable: exe,
		Sysroot:    sysroot,
		Flags:      FormatFlags(sysroot),
	}
}

// HasCompiler reports whether a compiler token was found.
func (i Info) HasCompiler() bool {
	return i.Command != ""
}

// IsZero reports whether nothing at all was detected.
func (i Info) IsZero() bool {
	return i == Info{}
}

// CrossPrefix returns the target prefix in front of the compiler family name,
// e.g. "arm-linux-gnueabi-" for arm-linux-gnueabi-g++. Native compilers yield "".
func (i Info) CrossPrefix() string {
	for _, suffix := range compilerSuffixes {
		prefix, ok := strings.CutSuffix(i.Executable, suffix)
		if !ok {
			continue
		}

		if strings.HasSuffix(prefix, prefixSeparator) {
			return prefix
		}

		return ""
	}

	return ""
}

// Resolve returns an absolute path for the compiler. Bare names are looked up on PATH.
func (i Info) Resolve() (string, error) {
	if !i.HasCompiler() {
		return "", ErrEmptyToolchain
	}

	if i.Directory != "" {
		return filepath.Abs(i.Command)
	}

	return exec.LookPath(i.Executable)
}

func splitCompiler(token string) (dir, exe string) {
	if token == "" {
		return "", ""
	}

	dir, exe = filepath.Split(token)
	if dir == "" {
		return "", exe
	}

	if len(dir) > 1 {
		dir = strings.TrimSuffix(dir, string(filepath.Separator))
	}

	return dir, exe
}
