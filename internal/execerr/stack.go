package execerr

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultMaxStackLength bounds sanitized stacks unless MaxStackLength is given.
const DefaultMaxStackLength = 4096

const truncatedMarker = "... (truncated)"

// dependencyMarkers identify frames compiled from the module cache or a
// vendor tree rather than from the project itself.
var dependencyMarkers = []string{"/pkg/mod/", "/vendor/"}

type stackOptions struct {
	keepDependencies bool
	basePath         string
	maxLength        int
}

// StackOption customizes SanitizeStackTrace.
type StackOption func(*stackOptions)

// KeepDependencyFrames disables dependency frame filtering.
func KeepDependencyFrames() StackOption {
	return func(o *stackOptions) {
		o.keepDependencies = true
	}
}

// RelativeTo rewrites absolute paths under base to paths relative to it.
func RelativeTo(base string) StackOption {
	return func(o *stackOptions) {
		o.basePath = base
	}
}

// MaxStackLength caps the sanitized output. Values <= 0 keep the default.
func MaxStackLength(n int) StackOption {
	return func(o *stackOptions) {
		if n > 0 {
			o.maxLength = n
		}
	}
}

// SanitizeStackTrace prepares a goroutine trace for reporting outside the
// process. Empty input yields "". Output longer than the configured maximum is
// cut and suffixed with "... (truncated)".
func SanitizeStackTrace(stack string, opts ...StackOption) string {
	if strings.TrimSpace(stack) == "" {
		return ""
	}
	options := stackOptions{maxLength: DefaultMaxStackLength}
	for _, opt := range opts {
		opt(&options)
	}
	frames := splitFrames(strings.ReplaceAll(stack, "\r\n", "\n"))
	kept := make([]string, 0, len(frames))
	for _, frame := range frames {
		if !options.keepDependencies && isDependencyFrame(frame) {
			continue
		}
		kept = append(kept, frame)
	}
	out := strings.Join(kept, "\n")
	if base := strings.TrimSpace(options.basePath); base != "" {
		prefix := strings.TrimSuffix(filepath.ToSlash(filepath.Clean(base)), "/") + "/"
		out = strings.ReplaceAll(out, prefix, "")
	}
	return truncate(strings.TrimRight(out, "\n"), options.maxLength)
}

// splitFrames groups a function line with the indented file lines below it.
func splitFrames(stack string) []string {
	var frames []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			frames = append(frames, strings.Join(current, "\n"))
			current = nil
		}
	}
	for _, line := range strings.Split(stack, "\n") {
		if strings.HasPrefix(line, "\t") {
			current = append(current, line)
			continue
		}
		flush()
		if line != "" {
			current = append(current, line)
		}
	}
	flush()
	return frames
}

func isDependencyFrame(frame string) bool {
	lines := strings.Split(frame, "\n")
	for _, line := range lines[1:] {
		normalized := filepath.ToSlash(line)
		for _, marker := range dependencyMarkers {
			if strings.Contains(normalized, marker) {
				return true
			}
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n" + truncatedMarker
}
