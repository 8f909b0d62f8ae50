package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List the embedded prompt templates",
	Long: `List the prompt templates specialists and the synthesis task can use.
The name is what specialists[].prompt and synthesis.prompt refer to.`,
	Args: cobra.NoArgs,
	RunE: runPrompts,
}

var promptsJSON bool

func init() {
	rootCmd.AddCommand(promptsCmd)
	promptsCmd.Flags().BoolVar(&promptsJSON, "json", false, "print as JSON")
}

func runPrompts(_ *cobra.Command, _ []string) error {
	prompts, err := service.ListPrompts()
	if err != nil {
		return err
	}
	if promptsJSON {
		return OutputJSON(prompts)
	}
	for _, p := range prompts {
		fmt.Printf("%s %s\n", styles.Label.Render(fmt.Sprintf("%-24s", p.Name)), styles.Muted.Render(p.Role))
		fmt.Printf("  %s\n", p.Title)
		if p.Description != "" {
			fmt.Printf("  %s\n", p.Description)
		}
	}
	return nil
}
