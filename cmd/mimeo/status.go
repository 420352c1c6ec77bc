package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/courseops/mimeo/app"
	"github.com/courseops/mimeo/bootstrap"
	"github.com/courseops/mimeo/core/formatter"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Classify publications and artifacts against the clock",
	Long: `Status resolves the definition tree without building anything and
reports which publications are released, pending, overdue, or not
ready. With --published it reads the manifest from the publish root
instead, classifying what is actually live. With --runs it shows
recent publish runs from the ledger (--runs=N picks how many).`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var (
	statusInput     string
	statusOutput    string
	statusSkip      []string
	statusVarsFile  string
	statusNow       string
	statusFormat    string
	statusRuns      int
	statusPublished bool
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusInput, "input", "i", "", "definition tree root (default from config)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "", "publish root holding the manifest (default from config)")
	statusCmd.Flags().StringArrayVar(&statusSkip, "skip-directory", nil, "directory name to skip, repeatable")
	statusCmd.Flags().StringVar(&statusVarsFile, "vars", "", "external variables file")
	statusCmd.Flags().StringVar(&statusNow, "now", "", "classify against this RFC 3339 time instead of the clock")
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "", "output format: table, json, or yaml")
	statusCmd.Flags().IntVar(&statusRuns, "runs", 0, "show the last N publish runs instead of the report")
	statusCmd.Flags().Lookup("runs").NoOptDefVal = strconv.Itoa(app.DefaultRunLimit)
	statusCmd.Flags().BoolVar(&statusPublished, "published", false, "classify the publish root's manifest instead of the tree")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	f := formatter.Default()
	if statusFormat != "" {
		var ok bool
		f, ok = formatter.Get(statusFormat)
		if !ok {
			return fmt.Errorf("unknown format %q (have %s)", statusFormat, strings.Join(formatter.List(), ", "))
		}
	}

	if cmd.Flags().Changed("runs") {
		runs, err := a.Status.Runs(cmd.Context(), statusRuns)
		if err != nil {
			return err
		}
		return f.FormatRuns(os.Stdout, runs, formatter.Options{})
	}

	if statusPublished {
		req := app.PublishedRequest{Dir: a.Config.Output}
		if statusOutput != "" {
			req.Dir = statusOutput
		}
		now, err := parseNow(statusNow)
		if err != nil {
			return err
		}
		req.Now = now
		report, err := a.Status.Published(req)
		if err != nil {
			return err
		}
		return f.FormatReport(os.Stdout, report, formatter.Options{})
	}

	req, err := statusRequest(a)
	if err != nil {
		return err
	}
	report, err := a.Status.Report(req)
	if err != nil {
		return err
	}
	return f.FormatReport(os.Stdout, report, formatter.Options{})
}

// statusRequest builds the classification request from config and
// flags. Flags win where both are set.
func statusRequest(a *bootstrap.App) (app.StatusRequest, error) {
	cfg := a.Config

	req := app.StatusRequest{
		InputDir:        cfg.Input,
		SkipDirectories: cfg.SkipDirectories,
		Cache:           a.Cache,
	}
	if statusInput != "" {
		req.InputDir = statusInput
	}
	if len(statusSkip) > 0 {
		req.SkipDirectories = statusSkip
	}

	vars, err := varsFrom(cfg, statusVarsFile)
	if err != nil {
		return req, err
	}
	req.Vars = vars

	now, err := parseNow(statusNow)
	if err != nil {
		return req, err
	}
	req.Now = now
	return req, nil
}

func parseNow(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid --now: %w", err)
	}
	return &t, nil
}
