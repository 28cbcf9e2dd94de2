package toolchain

import "strings"

// FormatFlags renders a sysroot as the normalized "--sysroot <path>" flag.
// The space form is used whatever syntax the original command had.
func FormatFlags(sysroot string) string {
	if sysroot == "" {
		return ""
	}

	return sysrootFlag + tokenSeparator + sysroot
}

// ParseFlags recovers the sysroot from a normalized flag string. It accepts the
// "--sysroot=<path>" spelling too and returns "" for anything else.
func ParseFlags(flags string) string {
	if value, ok := strings.CutPrefix(flags, sysrootFlag+tokenSeparator); ok {
		return value
	}

	if value, ok := strings.CutPrefix(flags, sysrootAssign); ok {
		return value
	}

	return ""
}
