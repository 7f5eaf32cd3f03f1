package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/storyline/internal/workflow/runner"
)

const (
	maxCapturedOutput = 64 * 1024
	// waitDelay bounds how long a killed step may keep its output pipes open.
	waitDelay = time.Second
)

// CommandResult is the value a successful command step produces.
type CommandResult struct {
	Step     string
	ExitCode int
	Output   string
}

// CommandRunner turns steps into runner work executing `sh -c <run>`.
type CommandRunner struct {
	dir    string
	env    map[string]string
	output io.Writer
	outMu  sync.Mutex
}

// NewCommandRunner runs steps from dir with env added to the process
// environment. When output is non-nil it receives live, line-prefixed step
// output.
func NewCommandRunner(dir string, env map[string]string, output io.Writer) *CommandRunner {
	return &CommandRunner{dir: dir, env: cloneStringMap(env), output: output}
}

// Work returns the runner work for step. Every attempt starts a fresh
// process; cancelling the attempt's context kills it.
func (c *CommandRunner) Work(step Step) runner.Work {
	return func(ctx context.Context, attempt runner.Attempt) (any, error) {
		cmd := exec.CommandContext(ctx, "sh", "-c", step.Run)
		cmd.Dir = c.workDir(step)
		cmd.WaitDelay = waitDelay
		cmd.Env = append(os.Environ(), envList(c.env, step.Env)...)
		captured := &boundedBuffer{limit: maxCapturedOutput}
		var sink io.Writer = captured
		if c.output != nil {
			sink = io.MultiWriter(captured, &prefixWriter{mu: &c.outMu, w: c.output, prefix: fmt.Sprintf("[%s#%d] ", step.ID, attempt.Number)})
		}
		cmd.Stdout = sink
		cmd.Stderr = sink
		err := cmd.Run()
		result := CommandResult{Step: step.ID, Output: captured.String()}
		if cmd.ProcessState != nil {
			result.ExitCode = cmd.ProcessState.ExitCode()
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return nil, fmt.Errorf("step %s exited with code %d: %s", step.ID, result.ExitCode, lastLine(result.Output))
			}
			return nil, fmt.Errorf("step %s: %w", step.ID, err)
		}
		return result, nil
	}
}

func (c *CommandRunner) workDir(step Step) string {
	if step.Dir == "" {
		return c.dir
	}
	if filepath.IsAbs(step.Dir) || c.dir == "" {
		return step.Dir
	}
	return filepath.Join(c.dir, step.Dir)
}

// envList flattens base then overrides into KEY=VALUE pairs, sorted by key
// so the environment is stable across runs.
func envList(base, overrides map[string]string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}

func lastLine(output string) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return "no output"
	}
	if idx := strings.LastIndexByte(trimmed, '\n'); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// boundedBuffer keeps the most recent limit bytes written to it.
type boundedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// prefixWriter tags each line written through it. mu is shared by every
// writer targeting the same destination.
type prefixWriter struct {
	mu      *sync.Mutex
	w       io.Writer
	prefix  string
	midLine bool
}

func (p *prefixWriter) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out bytes.Buffer
	for _, b := range data {
		if !p.midLine {
			out.WriteString(p.prefix)
			p.midLine = true
		}
		out.WriteByte(b)
		if b == '\n' {
			p.midLine = false
		}
	}
	if _, err := p.w.Write(out.Bytes()); err != nil {
		return 0, err
	}
	return len(data), nil
}
