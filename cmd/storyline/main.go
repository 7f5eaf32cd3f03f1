// cmd/storyline/main.go
//
// This is the entry point for the storyline CLI.
// Every command runs against a project directory (the current one unless
// --project says otherwise), loading .storyline/config.yaml and the .env
// overlay before touching the plans tree.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/storyline/internal/artifact"
	"github.com/kingrea/storyline/internal/config"
	"github.com/kingrea/storyline/internal/logging"
)

// session carries what every command needs once the project is loaded.
type session struct {
	projectDir string
	verbose    bool

	cfg      *config.Config
	logger   *zap.Logger
	resolver *artifact.Resolver
	store    *artifact.FileStore
}

// open loads config, logger and resolver for the project directory.
func (s *session) open() error {
	dir := s.projectDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		dir = cwd
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return err
	}
	logger, err := logging.FromConfig(cfg, logging.Options{Console: s.verbose})
	if err != nil {
		return err
	}
	resolver, err := cfg.Resolver()
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.logger = logger
	s.resolver = resolver
	s.store = artifact.NewFileStore()
	return nil
}

func (s *session) close() {
	if s.logger != nil {
		_ = s.logger.Sync()
	}
}

func newRootCmd() *cobra.Command {
	s := &session{}
	rootCmd := &cobra.Command{
		Use:   "storyline",
		Short: "Story pipeline runtime: artifacts, scope and guarded node runs",
		Long: `storyline addresses the artifacts of story work items, infers their
change scope and runs pipeline nodes under timeout, retry and circuit
breaker policies, recording every run as the item's outcome artifact.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipSession"] == "true" {
				return nil
			}
			return s.open()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			s.close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&s.projectDir, "project", "C", "", "project directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&s.verbose, "verbose", "v", false, "mirror log entries to stderr")

	rootCmd.AddCommand(
		initCmd(s),
		resolveCmd(s),
		parseCmd(s),
		searchCmd(s),
		listCmd(s),
		moveCmd(s),
		scopeCmd(s),
		runCmd(s),
		pipelinesCmd(s),
		outcomeCmd(s),
		boardCmd(s),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}
