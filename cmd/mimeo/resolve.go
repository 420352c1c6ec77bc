package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/courseops/mimeo/app"
	"github.com/courseops/mimeo/bootstrap"
	"github.com/courseops/mimeo/core/formatter"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <file>",
	Short: "Print one definition with every reference resolved",
	Long: `Resolve reads a single collection or publication file, substitutes
${vars.*} and ${previous.*} references, applies smart date arithmetic,
and prints the resolved document.

The file is resolved in the context of its directory, so ${previous.*}
works inside ordered collections.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

var (
	resolveFormat   string
	resolveVarsFile string
)

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVarP(&resolveFormat, "format", "f", "yaml", "output format: yaml or json")
	resolveCmd.Flags().StringVar(&resolveVarsFile, "vars", "", "external variables file")
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := bootstrap.SetupLogger(cfg.Logging)

	f, ok := formatter.Get(resolveFormat)
	if !ok {
		return fmt.Errorf("unknown format %q (have %s)", resolveFormat, strings.Join(formatter.List(), ", "))
	}

	vars, err := varsFrom(cfg, resolveVarsFile)
	if err != nil {
		return err
	}

	doc, err := app.NewResolverService(logger).ResolveFile(args[0], vars)
	if err != nil {
		return err
	}
	return f.FormatDocument(os.Stdout, doc, formatter.Options{})
}
