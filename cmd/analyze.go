/*
Copyright © 2026 The pgmentor Authors
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pgmentor/pgmentor/internal/batch"
	"github.com/pgmentor/pgmentor/internal/output"
	"github.com/pgmentor/pgmentor/internal/plan"
	"github.com/pgmentor/pgmentor/internal/profile"
	"github.com/pgmentor/pgmentor/internal/prompt"
	"github.com/pgmentor/pgmentor/internal/script"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <script> [script ...]",
	Short: "Analyze SQL scripts for tuning or review",
	Long: `Analyze one or more SQL scripts and write annotated copies with AI
recommendations.

Each argument may be a .sql file, a directory of .sql files, or "-" for
stdin. Tuning analysis needs a database connection to capture execution
plans and schema context; review analysis reads only the script text.

The API key comes from the profile or the ANTHROPIC_API_KEY environment
variable.`,
	Example: `  # Tune a script against the default profile
  pgmentor analyze query.sql

  # Tune a directory with actual execution plans
  pgmentor analyze ./sql --profile prod --mode actual

  # Review scripts without touching a database
  pgmentor analyze ./sql --type review

  # Read from stdin
  cat query.sql | pgmentor analyze -`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		profileName, _ := cmd.Flags().GetString("profile")
		typeStr, _ := cmd.Flags().GetString("type")
		modeStr, _ := cmd.Flags().GetString("mode")
		model, _ := cmd.Flags().GetString("model")
		templateName, _ := cmd.Flags().GetString("template")
		out, _ := cmd.Flags().GetString("out")
		workers, _ := cmd.Flags().GetInt("workers")
		format, _ := cmd.Flags().GetString("format")
		verbose, _ := cmd.Flags().GetBool("verbose")

		if format != "text" && format != "json" {
			return fmt.Errorf("invalid output format %q: must be \"text\" or \"json\"", format)
		}

		analysisType, err := prompt.ParseType(typeStr)
		if err != nil {
			return err
		}
		mode, err := plan.ParseMode(modeStr)
		if err != nil {
			return err
		}

		prof, err := profile.ResolveProfile(db, profileName)
		if err != nil {
			return err
		}
		if analysisType == prompt.Tuning && prof.ConnStr == "" {
			return fmt.Errorf("tuning analysis requires a database connection: pass --db, --profile, or set a default profile")
		}

		if model == "" {
			model = prof.Model
		}
		apiKey := prof.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("no API key: set api_key on the profile or export ANTHROPIC_API_KEY")
		}

		reg := prompt.NewRegistry()
		if dir, err := profile.Dir(); err == nil {
			if err := reg.LoadUserFile(filepath.Join(dir, templatesFileName)); err != nil {
				return err
			}
		}

		inputs, err := script.Collect(args)
		if err != nil {
			return err
		}

		o, err := batch.New(batch.Options{
			ConnStr:      prof.ConnStr,
			Type:         analysisType,
			Mode:         mode,
			Model:        model,
			APIKey:       apiKey,
			TemplateName: templateName,
			OutputRoot:   out,
			Workers:      workers,
			Verbose:      verbose,
			Progress:     os.Stderr,
		}, reg)
		if err != nil {
			return err
		}

		result, err := o.Run(cmd.Context(), inputs)
		if err != nil {
			return err
		}

		if format == "json" {
			err = output.RenderJSON(os.Stdout, result)
		} else {
			err = output.RenderBatchText(os.Stdout, result)
		}
		if err != nil {
			return err
		}

		if failed := result.Failed(); failed > 0 {
			return fmt.Errorf("%d of %d scripts failed", failed, len(result.Items))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringP("db", "d", "", "PostgreSQL connection string")
	analyzeCmd.Flags().StringP("profile", "p", "", "Use named profile from config")
	analyzeCmd.Flags().StringP("type", "t", "tuning", "Analysis type: tuning, review")
	analyzeCmd.Flags().StringP("mode", "m", "estimated", "Plan mode: estimated, actual")
	analyzeCmd.Flags().String("model", "", "Override the AI model")
	analyzeCmd.Flags().String("template", "", "Prompt template name")
	analyzeCmd.Flags().StringP("out", "o", ".", "Directory for batch artifacts")
	analyzeCmd.Flags().IntP("workers", "w", 1, "Scripts analyzed concurrently")
	analyzeCmd.Flags().StringP("format", "f", "text", "Output format: text, json")
	analyzeCmd.Flags().BoolP("verbose", "v", false, "Debug-level detail in batch logs")
	analyzeCmd.MarkFlagsMutuallyExclusive("db", "profile")
}
