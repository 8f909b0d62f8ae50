package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/tui"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List and inspect recorded runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its specialist outcomes",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

var (
	runsLimit  int
	runsJSON   bool
	runsReport bool
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd)

	runsCmd.PersistentFlags().BoolVar(&runsJSON, "json", false, "print as JSON")
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs")
	runsShowCmd.Flags().BoolVar(&runsReport, "report", false, "also print the final report")
}

// openStore opens the run database named by the configuration.
func openStore() (*state.SQLiteRunStore, error) {
	cfg, err := loadConfig(false)
	if err != nil {
		return nil, err
	}
	store, err := state.NewRunStore(cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	return store, nil
}

func runRunsList(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(context.Background(), runsLimit)
	if err != nil {
		return err
	}
	if runsJSON {
		return OutputJSON(runs)
	}
	fmt.Print(tui.RenderRunList(styles, runs))
	return nil
}

func runRunsShow(_ *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id := core.RunID(args[0])
	rec, err := store.Load(context.Background(), id)
	if err != nil {
		return err
	}
	if rec == nil {
		return core.ErrNotFound("run", string(id))
	}
	if runsJSON {
		return OutputJSON(rec)
	}
	fmt.Print(tui.RenderRecord(styles, rec))
	if runsReport && rec.Report != "" {
		fmt.Println()
		fmt.Println(rec.Report)
	}
	return nil
}

func runRunsDelete(_ *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id := core.RunID(args[0])
	deleted, err := store.Delete(context.Background(), id)
	if err != nil {
		return err
	}
	if !deleted {
		return core.ErrNotFound("run", string(id))
	}
	fmt.Println(styles.StatusIcon("done"), "deleted", id)
	return nil
}
