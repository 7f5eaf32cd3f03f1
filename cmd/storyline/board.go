package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/storyline/internal/tui"
)

func boardCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Browse work items by stage with their last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := tui.NewProjectBoard(s.cfg)
			if err != nil {
				return err
			}
			// Run blocks until the user quits
			p := tea.NewProgram(
				board,
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			_, err = p.Run()
			return err
		},
	}
}
