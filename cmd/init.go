/*
Copyright © 2026 The pgmentor Authors
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pgmentor/pgmentor/internal/profile"
)

const exampleTemplates = `# pgmentor prompt templates.
#
# Templates listed here are selected with --template <name>. A user
# template with the same name and type as a built-in replaces it.
#
# templates:
#   - name: strict
#     type: tuning
#     body: |
#       You are a senior PostgreSQL DBA. Respond only with the annotated
#       script, no prose before or after.
templates: []
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create example config files",
	Long: `Create the pgmentor config directory with starter profiles.yaml and
templates.yaml files.

Existing files are not overwritten unless --force is given.`,
	Example: `  # Create default config
  pgmentor init

  # Overwrite existing config
  pgmentor init --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		path, created, err := profile.WriteExample(force)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Wrote %s\n", path)
		} else {
			fmt.Printf("Kept existing %s\n", path)
		}

		dir, err := profile.Dir()
		if err != nil {
			return err
		}
		tplPath := filepath.Join(dir, templatesFileName)
		if _, err := os.Stat(tplPath); err == nil && !force {
			fmt.Printf("Kept existing %s\n", tplPath)
			return nil
		}
		if err := os.WriteFile(tplPath, []byte(exampleTemplates), 0644); err != nil {
			return fmt.Errorf("writing templates %s: %w", tplPath, err)
		}
		fmt.Printf("Wrote %s\n", tplPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolP("force", "f", false, "Overwrite existing config files")
}
