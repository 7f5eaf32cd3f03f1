package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/storyline/internal/artifact"
	"github.com/kingrea/storyline/internal/workflow"
	"github.com/kingrea/storyline/internal/workflow/engine"
	"github.com/kingrea/storyline/internal/workflow/runner"
)

func runCmd(s *session) *cobra.Command {
	var (
		stage    string
		pipeline string
		node     string
		timeout  time.Duration
		attempts int
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "run <STORY-ID> [--pipeline NAME | -- command...]",
		Short: "Run pipeline steps for a work item and record the outcome",
		Long: `Run either a named pipeline from .storyline/pipelines/ or a single command
as one node. Every node runs under the configured timeout, retry and circuit
breaker policy; the run is recorded as the work item's outcome artifact.

Commands see STORYLINE_STORY_ID, STORYLINE_FEATURE, STORYLINE_STAGE and
STORYLINE_ITEM_DIR in their environment.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := s.itemAt(args[0], stage)
			if err != nil {
				return err
			}
			command := args[1:]
			if (pipeline == "") == (len(command) == 0) {
				return errors.New("give exactly one of --pipeline or a command after --")
			}

			def, err := s.definition(pipeline, node, command, timeout, attempts)
			if err != nil {
				return err
			}
			var live io.Writer
			if !quiet {
				live = cmd.ErrOrStderr()
			}
			commands := workflow.NewCommandRunner(s.cfg.ProjectDir, s.itemEnv(item), live)

			maxParallel := s.cfg.MaxParallel()
			if def.Runtime.MaxParallel > 0 {
				maxParallel = def.Runtime.MaxParallel
			}
			eng, err := engine.New(
				runner.New(runner.WithLogger(s.logger)),
				engine.NewRepository(s.store, s.resolver),
				engine.WithLogger(s.logger),
				engine.WithMaxParallel(maxParallel),
				engine.WithDefaultPolicy(s.cfg.RunnerPolicy()),
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			state, err := eng.Execute(ctx, item, def.Nodes(commands.Work))
			if err != nil {
				return err
			}
			writeState(cmd.OutOrStdout(), state)
			if state.Status != engine.EngineStatusComplete {
				return fmt.Errorf("run %s %s: %s", state.RunID, state.Status, state.StatusReason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage of the work item (default: its current stage)")
	cmd.Flags().StringVarP(&pipeline, "pipeline", "p", "", "pipeline name under .storyline/pipelines/")
	cmd.Flags().StringVar(&node, "node", "command", "node name for a single command")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-attempt timeout for a single command (default: config)")
	cmd.Flags().IntVar(&attempts, "attempts", 0, "max attempts for a single command (default: config)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not stream command output")
	return cmd
}

// definition loads the named pipeline, or wraps command as a one-step one.
func (s *session) definition(pipeline, node string, command []string, timeout time.Duration, attempts int) (workflow.Definition, error) {
	if pipeline != "" {
		return workflow.LoadDefinitionRelative(s.pipelineDir(), pipeline)
	}
	return workflow.Definition{
		ID: node,
		Steps: []workflow.Step{{
			ID:          node,
			Run:         shellJoin(command),
			Timeout:     timeout,
			MaxAttempts: attempts,
		}},
	}.Normalized()
}

func (s *session) pipelineDir() string {
	return filepath.Join(s.cfg.StorylineProjectDir, workflow.DefaultPipelineDir)
}

func (s *session) itemEnv(item artifact.WorkItem) map[string]string {
	return map[string]string{
		"STORYLINE_STORY_ID": item.ID,
		"STORYLINE_FEATURE":  item.Feature,
		"STORYLINE_STAGE":    string(item.Stage),
		"STORYLINE_ITEM_DIR": s.resolver.WorkItemDirectory(item.Feature, item.Stage, item.ID),
	}
}

func pipelinesCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List pipeline definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := workflow.ListDefinitions(s.pipelineDir())
			if err != nil {
				return err
			}
			for _, name := range names {
				def, err := workflow.LoadDefinitionRelative(s.pipelineDir(), name)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s invalid: %v\n", name, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d step(s)  %s\n", name, len(def.Steps), def.Description)
			}
			return nil
		},
	}
}

func outcomeCmd(s *session) *cobra.Command {
	var (
		stage  string
		output string
	)
	cmd := &cobra.Command{
		Use:   "outcome <STORY-ID>",
		Short: "Show the last recorded run of a work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := s.itemAt(args[0], stage)
			if err != nil {
				return err
			}
			state, err := engine.NewRepository(s.store, s.resolver).Load(item)
			if err != nil {
				if errors.Is(err, engine.ErrNoOutcome) {
					return fmt.Errorf("%s has no recorded run", item.ID)
				}
				return err
			}
			if output == "text" {
				writeState(cmd.OutOrStdout(), state)
				return nil
			}
			return writeFormatted(cmd.OutOrStdout(), output, state)
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage of the work item (default: its current stage)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, yaml or json")
	return cmd
}

// writeState prints a run summary, one node per line.
func writeState(w io.Writer, state engine.State) {
	fmt.Fprintf(w, "%s run %s: %s\n", state.Item.ID, state.RunID, state.Status)
	if state.StatusReason != "" {
		fmt.Fprintf(w, "  %s\n", state.StatusReason)
	}
	for _, node := range state.Nodes {
		line := fmt.Sprintf("  %-10s %s", node.State, node.Name)
		if node.Outcome != nil {
			line += fmt.Sprintf(" (%d attempt(s))", node.Outcome.Attempts)
			if node.Outcome.Error != nil {
				line += fmt.Sprintf(" %s: %s", node.Outcome.Error.Code, tail(node.Outcome.Error.Message, 1))
			}
		}
		if len(node.BlockedBy) > 0 {
			line += " blocked by " + strings.Join(node.BlockedBy, ", ")
		}
		fmt.Fprintln(w, line)
	}
}

// shellJoin quotes args for `sh -c`. A single argument is passed through so
// callers can write `-- 'make lint && make test'`.
func shellJoin(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	quoted := make([]string, len(args))
	for i, arg := range args {
		if arg != "" && strings.IndexFunc(arg, needsQuote) < 0 {
			quoted[i] = arg
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}

func needsQuote(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:,+@%", r))
}
