package main

import (
	"fmt"
	"os"

	"github.com/courseops/mimeo/adapters/clock"
	"github.com/courseops/mimeo/adapters/metrics"
	"github.com/courseops/mimeo/app"
	"github.com/courseops/mimeo/bootstrap"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the definition tree without publishing",
	Long: `Validate resolves every definition file in the input tree and reports
schema violations, unresolvable references, and bad dates without
building or copying anything.

Checks:
  - Config and variables files load
  - Every collection.yaml and publication.yaml resolves
  - Output directory is writable (optional)

Examples:
  mimeo validate
  mimeo validate --input course --check-output`,
	RunE: runValidate,
}

var (
	validateInput       string
	validateSkip        []string
	validateVarsFile    string
	validateCheckOutput bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateInput, "input", "i", "", "definition tree root (default from config)")
	validateCmd.Flags().StringArrayVar(&validateSkip, "skip-directory", nil, "directory name to skip, repeatable")
	validateCmd.Flags().StringVar(&validateVarsFile, "vars", "", "external variables file")
	validateCmd.Flags().BoolVar(&validateCheckOutput, "check-output", false, "check if the output directory is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  %s Config loads\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config loads\n", checkMark)

	input := cfg.Input
	if validateInput != "" {
		input = validateInput
	}
	skip := cfg.SkipDirectories
	if len(validateSkip) > 0 {
		skip = validateSkip
	}
	fmt.Printf("  %s Input tree: %s\n", checkMark, input)

	vars, err := varsFrom(cfg, validateVarsFile)
	if err != nil {
		fmt.Printf("  %s Variables load\n", crossMark)
		return err
	}
	if vars != nil {
		fmt.Printf("  %s Variables load\n", checkMark)
	}

	// Validation never touches run history, so no ledger is opened,
	// and one-shot resolution has no use for the document cache.
	logger := bootstrap.SetupLogger(cfg.Logging)
	svc := app.NewStatusService(clock.Real{}, nil, metrics.Noop{}, logger)

	summary, err := svc.Validate(app.StatusRequest{
		InputDir:        input,
		SkipDirectories: skip,
		Vars:            vars,
	})
	if err != nil {
		fmt.Printf("  %s Definitions resolve\n", crossMark)
		return err
	}
	fmt.Printf("  %s Definitions resolve\n", checkMark)
	fmt.Printf("  %s Collections:  %d\n", checkMark, summary.Collections)
	fmt.Printf("  %s Publications: %d\n", checkMark, summary.Publications)
	fmt.Printf("  %s Artifacts:    %d\n", checkMark, summary.Artifacts)

	if validateCheckOutput {
		if err := checkOutputWritable(cfg.Output); err != nil {
			fmt.Printf("  %s Output writable\n", crossMark)
			fmt.Printf("      Error: %v\n", err)
		} else {
			fmt.Printf("  %s Output writable\n", checkMark)
		}
	}

	fmt.Println()
	fmt.Println("Definition tree is valid.")
	return nil
}

func checkOutputWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".mimeo-probe-*")
	if err != nil {
		return err
	}
	probe.Close()
	return os.Remove(probe.Name())
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
