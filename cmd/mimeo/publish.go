package main

import (
	"fmt"
	"regexp"
	"time"

	"github.com/courseops/mimeo/app"
	"github.com/courseops/mimeo/bootstrap"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Build and publish released artifacts",
	Long: `Publish walks the input tree, builds every artifact whose output is
stale, and copies released material into the output directory together
with a materials.json manifest.

Artifacts are withheld when their publication is not marked ready or
its release time has not arrived. Use --ignore-ready and
--ignore-release-time to publish them anyway.`,
	RunE: runPublish,
}

var (
	publishInput       string
	publishOutput      string
	publishSkip        []string
	publishVarsFile    string
	publishIgnoreTime  bool
	publishIgnoreReady bool
	publishFilter      string
	publishNow         string
)

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().StringVarP(&publishInput, "input", "i", "", "definition tree root (default from config)")
	publishCmd.Flags().StringVarP(&publishOutput, "output", "o", "", "publish directory (default from config)")
	publishCmd.Flags().StringArrayVar(&publishSkip, "skip-directory", nil, "directory name to skip, repeatable")
	publishCmd.Flags().StringVar(&publishVarsFile, "vars", "", "external variables file")
	publishCmd.Flags().BoolVar(&publishIgnoreTime, "ignore-release-time", false, "publish artifacts whose release time has not arrived")
	publishCmd.Flags().BoolVar(&publishIgnoreReady, "ignore-ready", false, "publish artifacts from publications not marked ready")
	publishCmd.Flags().StringVar(&publishFilter, "artifact-filter", "", "only publish artifacts whose key matches this regexp")
	publishCmd.Flags().StringVar(&publishNow, "now", "", "treat this RFC 3339 time as the current time")
}

func runPublish(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	req, err := publishRequest(a)
	if err != nil {
		return err
	}

	result, err := a.Publisher.Publish(cmd.Context(), req)
	if err != nil {
		return err
	}

	fmt.Printf("Published %d artifacts to %s (%d built, %d static, %d skipped, %d changed) in %s\n",
		result.Artifacts, req.OutputDir, result.Built, result.Static,
		result.Skipped, result.Changed, result.Elapsed.Round(time.Millisecond))
	return nil
}

// publishRequest builds the pipeline request from config and flags.
// Flags win where both are set.
func publishRequest(a *bootstrap.App) (app.PublishRequest, error) {
	cfg := a.Config

	req := app.PublishRequest{
		InputDir:          cfg.Input,
		OutputDir:         cfg.Output,
		SkipDirectories:   cfg.SkipDirectories,
		Cache:             a.Cache,
		IgnoreReleaseTime: publishIgnoreTime,
		IgnoreReady:       publishIgnoreReady,
	}
	if publishInput != "" {
		req.InputDir = publishInput
	}
	if publishOutput != "" {
		req.OutputDir = publishOutput
	}
	if len(publishSkip) > 0 {
		req.SkipDirectories = publishSkip
	}

	vars, err := varsFrom(cfg, publishVarsFile)
	if err != nil {
		return req, err
	}
	req.Vars = vars

	if publishFilter != "" {
		re, err := regexp.Compile(publishFilter)
		if err != nil {
			return req, fmt.Errorf("invalid artifact filter: %w", err)
		}
		req.ArtifactFilter = re
	}
	if publishNow != "" {
		t, err := time.Parse(time.RFC3339, publishNow)
		if err != nil {
			return req, fmt.Errorf("invalid --now: %w", err)
		}
		req.Now = &t
	}
	return req, nil
}
