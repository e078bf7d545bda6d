/*
Copyright © 2026 The pgmentor Authors
*/
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pgmentor/pgmentor/internal/profile"
	"github.com/pgmentor/pgmentor/internal/prompt"
)

const templatesFileName = "templates.yaml"

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List available prompt templates",
	Long: `List the prompt templates available for analysis runs.

Built-in templates ship with pgmentor; user templates live in
templates.yaml next to the profiles config and override built-ins with
the same name and type.`,
	Example: `  pgmentor templates`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := prompt.NewRegistry()
		if dir, err := profile.Dir(); err == nil {
			if err := reg.LoadUserFile(filepath.Join(dir, templatesFileName)); err != nil {
				return err
			}
		}

		for _, t := range reg.List() {
			source := "builtin"
			if !t.Builtin {
				source = "user"
			}
			fmt.Printf("  %-16s %-8s %s\n", t.Name, t.Type, source)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
}
