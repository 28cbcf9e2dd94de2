package toolchain

import (
	"log/slog"
	"strings"

	"github.com/google/shlex"
)

const (
	sysrootFlag    = "--sysroot"
	sysrootAssign  = sysrootFlag + "="
	tokenSeparator = " "
)

// compilerSuffixes identify the compiler token. Order matters for CrossPrefix.
var compilerSuffixes = []string{"gcc", "g++", "c++", "cc"}

// Option configures a Detector.
type Option func(*Detector)

// WithStrictTokenizer splits command lines with shell quoting rules instead of
// plain spaces. Quoted paths containing spaces then survive as one token.
func WithStrictTokenizer() Option {
	return func(d *Detector) {
		d.strict = true
	}
}

// WithLogger sets the logger used for tokenizer fallbacks.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// Detector scans compile command lines.
type Detector struct {
	logger *slog.Logger
	strict bool
}

// NewDetector creates a detector. The zero configuration splits on ASCII space.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{logger: slog.Default()}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Strict reports whether the detector uses shell tokenization.
func (d *Detector) Strict() bool {
	return d.strict
}

// Detect infers the toolchain from one command line. It never fails; a line
// without a compiler token yields an Info with empty compiler fields.
func (d *Detector) Detect(commandLine string) Info {
	compiler, sysroot := scan(d.tokenize(commandLine))

	return NewInfo(compiler, sysroot)
}

// Detect runs a default (space-splitting) detector.
func Detect(commandLine string) Info {
	return NewDetector().Detect(commandLine)
}

func (d *Detector) tokenize(commandLine string) []string {
	if !d.strict {
		return strings.Split(commandLine, tokenSeparator)
	}

	tokens, err := shlex.Split(commandLine)
	if err != nil {
		d.logger.Warn("shell tokenizer failed, falling back to space split", "error", err)

		return strings.Split(commandLine, tokenSeparator)
	}

	return tokens
}

// scan walks tokens left to right. Every compiler-looking token overwrites the
// previous one, so the last match wins.
func scan(tokens []string) (compiler, sysroot string) {
	sysrootNext := false

	for _, token := range tokens {
		if isCompilerToken(token) {
			compiler = token

			continue
		}

		if strings.HasPrefix(token, sysrootFlag) {
			if value, ok := strings.CutPrefix(token, sysrootAssign); ok {
				sysroot = value
			} else {
				sysrootNext = true
			}

			continue
		}

		if sysrootNext {
			sysroot = token
			sysrootNext = false
		}
	}

	return compiler, sysroot
}

func isCompilerToken(token string) bool {
	for _, suffix := range compilerSuffixes {
		if strings.HasSuffix(token, suffix) {
			return true
		}
	}

	return false
}
