package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codesentry/codesentry/internal/diff"
)

var scoreCmd = &cobra.Command{
	Use:   "score <patch-file>",
	Short: "Print the complexity score of a unified diff patch.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("could not read patch file: %w", err)
		}

		fmt.Printf("%d\n", diff.Score(string(patch)))
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	rootCmd.AddCommand(scoreCmd)
}
