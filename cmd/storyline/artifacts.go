package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/storyline/internal/artifact"
	"github.com/kingrea/storyline/internal/config"
)

func initCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:         "init",
		Short:       "Create .storyline/ with a default config",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipSession": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := s.projectDir
			if dir == "" {
				dir = "."
			}
			if err := config.InitDir(dir); err != nil {
				return err
			}
			cfg, err := config.NewConfig(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", cfg.ProjectConfigPath())
			return nil
		},
	}
}

func resolveCmd(s *session) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "resolve <STORY-ID> <stage> <kind>",
		Short: "Print the location of an artifact",
		Long: `Print where an artifact of a work item lives. The feature is derived from
the story id prefix. With --output yaml|json the full resolved record is
printed instead of the absolute path.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			feature, ok := artifact.ExtractFeature(args[0])
			if !ok {
				return fmt.Errorf("invalid story id %q", args[0])
			}
			stage, err := artifact.ParseStage(args[1])
			if err != nil {
				return err
			}
			kind, err := artifact.ParseKind(args[2])
			if err != nil {
				return err
			}
			resolved := s.resolver.Resolve(feature, stage, args[0], kind)
			if output == "path" {
				fmt.Fprintln(cmd.OutOrStdout(), resolved.AbsolutePath)
				return nil
			}
			return writeFormatted(cmd.OutOrStdout(), output, resolved)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "path", "output format: path, yaml or json")
	return cmd
}

func parseCmd(s *session) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "parse <path>",
		Short: "Decode an artifact path back into its coordinates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, ok := s.resolver.ParsePath(args[0])
			if !ok {
				return fmt.Errorf("%s is not an artifact path under %s", args[0], s.resolver.Root())
			}
			return writeFormatted(cmd.OutOrStdout(), output, resolved)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format: yaml or json")
	return cmd
}

func searchCmd(s *session) *cobra.Command {
	var locate bool
	cmd := &cobra.Command{
		Use:   "search <STORY-ID> <kind>",
		Short: "List every stage location an artifact may occupy",
		Long: `List the candidate paths of an artifact across all stages in lifecycle
order. With --locate only the first existing one is printed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			feature, ok := artifact.ExtractFeature(args[0])
			if !ok {
				return fmt.Errorf("invalid story id %q", args[0])
			}
			kind, err := artifact.ParseKind(args[1])
			if err != nil {
				return err
			}
			if locate {
				found, err := artifact.Locate(s.store, s.resolver, feature, args[0], kind)
				if err != nil {
					return fmt.Errorf("%s %s: %w", args[0], kind, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), found.AbsolutePath)
				return nil
			}
			for _, path := range s.resolver.SearchPaths(feature, args[0], kind) {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&locate, "locate", false, "print only the first existing location")
	return cmd
}

func listCmd(s *session) *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items in the plans tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter artifact.Stage
			if stage != "" {
				parsed, err := artifact.ParseStage(stage)
				if err != nil {
					return err
				}
				filter = parsed
			}
			items, err := s.store.Catalog(s.resolver)
			if err != nil {
				return err
			}
			for _, item := range items {
				if filter != "" && item.Stage != filter {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-12s %s\n", item.ID, item.Stage, item.Feature)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "only list items at this stage")
	return cmd
}

func moveCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "move <STORY-ID> <stage>",
		Short: "Advance a work item to a later stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := s.findItem(args[0])
			if err != nil {
				return err
			}
			to, err := artifact.ParseStage(args[1])
			if err != nil {
				return err
			}
			moved, err := s.store.Move(s.resolver, item, to)
			if err != nil {
				return err
			}
			s.logger.Info("work item moved",
				zap.String("item", moved.ID),
				zap.String("from", string(item.Stage)),
				zap.String("to", string(moved.Stage)))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", moved.ID, item.Stage, moved.Stage)
			return nil
		},
	}
}
