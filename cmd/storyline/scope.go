package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/storyline/internal/artifact"
	"github.com/kingrea/storyline/internal/execerr"
	"github.com/kingrea/storyline/internal/scope"
)

func scopeCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scope",
		Short: "Infer and validate change scope documents",
	}
	cmd.AddCommand(scopeInferCmd(s), scopeValidateCmd(s), scopeMatchCmd(s))
	return cmd
}

func scopeInferCmd(s *session) *cobra.Command {
	var (
		file   string
		stage  string
		save   bool
		refine bool
	)
	cmd := &cobra.Command{
		Use:   "infer <STORY-ID> [text...]",
		Short: "Classify free text into touched areas and risk flags",
		Long: `Infer a scope document from text given as arguments, read from --file
("-" for stdin), or both. With --save the document is written as the work
item's scope artifact; --refine merges the inference into the existing one.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if !artifact.IsValidID(id) {
				return fmt.Errorf("invalid story id %q", id)
			}
			text := strings.Join(args[1:], " ")
			if file != "" {
				extra, err := readText(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				text = strings.TrimSpace(text + "\n" + extra)
			}
			if !save && !refine {
				return writeYAML(cmd.OutOrStdout(), scope.Infer(id, text))
			}

			item, err := s.itemAt(id, stage)
			if err != nil {
				return err
			}
			doc := scope.Infer(id, text)
			if refine {
				existing, err := scope.Load(s.store, s.resolver, item)
				switch {
				case err == nil:
					existing.Refine(text)
					doc = existing
				case !errors.Is(err, artifact.ErrArtifactMissing):
					return err
				}
			}
			path, err := scope.Save(s.store, s.resolver, item, doc)
			if err != nil {
				return err
			}
			s.logger.Info("scope saved",
				zap.String("item", item.String()),
				zap.Strings("touches", scope.MatchedTouches(text)),
				zap.Strings("risks", scope.MatchedRisks(text)))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read text from file (\"-\" for stdin)")
	cmd.Flags().StringVar(&stage, "stage", "", "stage of the work item (default: its current stage)")
	cmd.Flags().BoolVar(&save, "save", false, "write the scope artifact")
	cmd.Flags().BoolVar(&refine, "refine", false, "merge into the existing scope artifact and save")
	return cmd
}

func scopeValidateCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Check a scope document against the schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := s.store.ReadArtifact(args[0])
			if err != nil {
				return err
			}
			doc, err := scope.Parse(data)
			if err != nil {
				var failure *execerr.Error
				if errors.As(err, &failure) {
					if detail, ok := failure.Detail.(execerr.ValidationDetail); ok {
						return fmt.Errorf("%s: invalid %s: %w", args[0], detail.Field, err)
					}
				}
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid scope for %s\n", args[0], doc.StoryID)
			return nil
		},
	}
}

func scopeMatchCmd(s *session) *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "match <STORY-ID> <path...>",
		Short: "Report which paths fall inside a work item's touched globs",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := s.itemAt(args[0], stage)
			if err != nil {
				return err
			}
			doc, err := scope.Load(s.store, s.resolver, item)
			if err != nil {
				return err
			}
			for _, path := range args[1:] {
				mark := "-"
				if doc.MatchesPath(path) {
					mark = "+"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage of the work item (default: its current stage)")
	return cmd
}

func readText(stdin io.Reader, file string) (string, error) {
	if file == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", file, err)
	}
	return string(data), nil
}
