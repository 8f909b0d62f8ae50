package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/config"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	noColor   bool
	quiet     bool

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "quorum-dx",
	Short: "Concurrent multi-specialist diagnosis over a medical report",
	Long: `quorum-dx sends one medical document to several specialist agents
(cardiology, psychology, pulmonology) concurrently, collects their opinions
and asks a multidisciplinary team agent to synthesize a final diagnosis.

A specialist that fails or times out is recorded and the run continues with
the remaining opinions. Only a failed synthesis leaves a run without a report.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if noColor {
			disableColor()
		}
	},
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, styles.Error.Render("Error: ")+err.Error())
	}
	return err
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// GetVersion returns the application version string.
func GetVersion() string {
	return appVersion
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .quorum-dx/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"suppress non-essential output")

	// Bind flags to viper (errors are nil when flag exists)
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// loadConfig loads configuration from file, environment and flags.
// validate runs the full validator on the result.
func loadConfig(validate bool) (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if validate {
		if err := config.ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

// newLogger builds the process logger. When log.file is set logs go there
// and the returned closer releases it.
func newLogger(cfg *config.Config) (*logging.Logger, io.Closer, error) {
	lc := logging.DefaultConfig()
	lc.Level = cfg.Log.Level
	lc.Format = cfg.Log.Format
	if quiet && lc.Level == "info" {
		lc.Level = "warn"
	}

	var closer io.Closer = nopCloser{}
	if cfg.Log.File != "" {
		f, err := logging.OpenFile(cfg.Log.File)
		if err != nil {
			return nil, nil, err
		}
		lc.Output = f
		closer = f
	}
	return logging.New(lc), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
