package main

import (
	"fmt"
	"os"

	"github.com/courseops/mimeo/bootstrap"
	"github.com/courseops/mimeo/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mimeo",
	Short: "Course material publisher driven by YAML definitions",
	Long: `Mimeo turns a tree of collection and publication definitions into a
publish directory of released artifacts plus a JSON manifest.

It resolves ${vars.*} and ${previous.*} references, runs build recipes
for artifacts that need them, and withholds anything whose release time
has not arrived or that is not marked ready.

Quick start:
  mimeo init      # Scaffold a definition tree and config
  mimeo publish   # Build and publish released artifacts
  mimeo serve     # Publish and preview over HTTP

Inspection:
  mimeo status    # Classify publications against the clock
  mimeo resolve   # Print one definition with references resolved
  mimeo validate  # Check the definition tree without publishing`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "mimeo.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig reads the config file (falling back to defaults when it
// does not exist) and applies global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// loadApp wires the full application on top of loadConfig. Commands
// that touch the ledger or run the pipeline go through here; lighter
// commands build only what they need.
func loadApp() (*bootstrap.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cfg)
}

// varsFrom loads the external variables file, preferring the flag
// over the config.
func varsFrom(cfg *config.Config, flagPath string) (map[string]any, error) {
	path := cfg.VarsFile
	if flagPath != "" {
		path = flagPath
	}
	if path == "" {
		return nil, nil
	}
	return config.LoadVars(path)
}
