package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/courseops/mimeo/app"
	"github.com/courseops/mimeo/ports"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [git|s3]",
	Short: "Publish and mirror the output to a remote",
	Long: `Sync runs a publish, then mirrors the output directory to the named
remote. Without an argument every configured remote is synced.

Remotes are configured under sync.git and sync.s3 in the config file.
The git remote replaces the branch contents with the output tree and
pushes one commit per sync; the s3 remote uploads changed objects.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"git", "s3"},
	RunE:      runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	var targets []ports.SyncTarget
	if len(args) == 1 {
		t, err := a.SyncTarget(args[0])
		if err != nil {
			return err
		}
		targets = []ports.SyncTarget{t}
	} else {
		targets, err = a.SyncTargets()
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			return fmt.Errorf("no sync targets configured (set sync.git or sync.s3 in %s)", cfgFile)
		}
	}

	vars, err := a.Vars()
	if err != nil {
		return err
	}

	result, err := a.Publisher.Sync(cmd.Context(), app.PublishRequest{
		InputDir:        a.Config.Input,
		OutputDir:       a.Config.Output,
		SkipDirectories: a.Config.SkipDirectories,
		Vars:            vars,
		Cache:           a.Cache,
	}, targets)
	if err != nil {
		return err
	}

	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Name()
	}
	fmt.Printf("Published %d artifacts and synced to %s in %s\n",
		result.Artifacts, strings.Join(names, ", "), result.Elapsed.Round(time.Millisecond))
	return nil
}
