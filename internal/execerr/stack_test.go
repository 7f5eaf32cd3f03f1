package execerr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleStack = "goroutine 7 [running]:\n" +
	"github.com/some/dep.(*Client).Do(...)\n" +
	"\t/home/dev/go/pkg/mod/github.com/some/dep@v1.2.3/client.go:88 +0x1c4\n" +
	"github.com/kingrea/storyline/internal/workflow/runner.(*Runner).Run(...)\n" +
	"\t/home/dev/project/src/internal/workflow/runner/runner.go:120 +0x55\n"

func TestSanitizeEmpty(t *testing.T) {
	assert.Equal(t, "", SanitizeStackTrace(""))
	assert.Equal(t, "", SanitizeStackTrace("  \n"))
}

func TestSanitizeDropsDependencyFrames(t *testing.T) {
	got := SanitizeStackTrace(sampleStack)
	assert.NotContains(t, got, "pkg/mod")
	assert.NotContains(t, got, "some/dep")
	assert.Contains(t, got, "goroutine 7 [running]:")
	assert.Contains(t, got, "/home/dev/project/src/internal/workflow/runner/runner.go:120")
}

func TestSanitizeKeepsDependenciesWhenAsked(t *testing.T) {
	got := SanitizeStackTrace(sampleStack, KeepDependencyFrames())
	assert.Contains(t, got, "some/dep@v1.2.3/client.go")
}

func TestSanitizeVendorFrames(t *testing.T) {
	stack := "main.run()\n\t/srv/app/vendor/github.com/x/y/z.go:1 +0x1\nmain.main()\n\t/srv/app/main.go:9 +0x1"
	got := SanitizeStackTrace(stack)
	assert.Equal(t, "main.main()\n\t/srv/app/main.go:9 +0x1", got)
}

func TestSanitizeRewritesRelativePaths(t *testing.T) {
	got := SanitizeStackTrace(sampleStack, RelativeTo("/home/dev/project/"))
	assert.Contains(t, got, "\tsrc/internal/workflow/runner/runner.go:120")
	assert.NotContains(t, got, "/home/dev/project")
}

func TestSanitizeTruncatesWithMarker(t *testing.T) {
	long := "main.main()\n\t/srv/" + strings.Repeat("a", 500) + ".go:1"
	got := SanitizeStackTrace(long, MaxStackLength(100))
	assert.True(t, strings.HasSuffix(got, "... (truncated)"))
	assert.LessOrEqual(t, len(got), 100+len("\n... (truncated)"))

	short := SanitizeStackTrace("main.main()\n\t/srv/main.go:1", MaxStackLength(100))
	assert.NotContains(t, short, "truncated")
}

func TestSerializableStackIsSanitized(t *testing.T) {
	err := Timeout("n", 0)
	err.Stack = sampleStack
	s := err.ToSerializable()
	assert.NotContains(t, s.Stack, "pkg/mod")
}
