package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a quorum-dx project",
	Long: `Initialize a quorum-dx project in the current directory.
Creates .quorum-dx/config.yaml and the state, results and inbox directories.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
}

// projectDirs are created by init, relative to the project root.
var projectDirs = []string{
	config.ProjectDir,
	filepath.Join(config.ProjectDir, "state"),
	filepath.Join(config.ProjectDir, "results"),
	filepath.Join(config.ProjectDir, "inbox"),
	filepath.Join(config.ProjectDir, "logs"),
}

func runInit(cmd *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	configPath, err := initProject(cwd, initForce)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Initialized quorum-dx project in", cwd)
	fmt.Fprintln(out, "Configuration file:", configPath)
	fmt.Fprintln(out, "Run 'quorum-dx doctor' to verify setup")
	return nil
}

// initProject writes the default configuration under root and creates the
// project directories. It returns the configuration path.
func initProject(root string, force bool) (string, error) {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o750); err != nil {
			return "", fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(root, config.ProjectDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return "", fmt.Errorf("configuration already exists, use --force to overwrite")
	}
	if err := config.AtomicWrite(configPath, []byte(config.DefaultConfigYAML)); err != nil {
		return "", fmt.Errorf("writing config: %w", err)
	}
	return configPath, nil
}
