package runner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/courseops/mimeo/adapters/runner"
)

func TestShell_Run(t *testing.T) {
	dir := t.TempDir()
	sh := runner.Shell{}

	out, err := sh.Run(context.Background(), dir, "echo building homework.pdf")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !strings.Contains(string(out), "building homework.pdf") {
		t.Errorf("output = %q, want it to contain the echo", out)
	}
}

func TestShell_Run_InWorkDir(t *testing.T) {
	dir := t.TempDir()
	sh := runner.Shell{}

	// Recipes run in the publication's directory, so relative paths in
	// the command land next to the publication file.
	if _, err := sh.Run(context.Background(), dir, "printf hi > homework.pdf"); err != nil {
		t.Fatalf("run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "homework.pdf"))
	if err != nil {
		t.Fatalf("read produced file: %v", err)
	}
	if string(data) != "hi" {
		t.Errorf("file content = %q, want hi", data)
	}
}

func TestShell_Run_NonZeroExit(t *testing.T) {
	sh := runner.Shell{}

	out, err := sh.Run(context.Background(), t.TempDir(), "echo broken >&2; exit 3")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(string(out), "broken") {
		t.Errorf("output = %q, want stderr captured", out)
	}
}

func TestShell_Run_Cancelled(t *testing.T) {
	sh := runner.Shell{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sh.Run(ctx, t.TempDir(), "sleep 10"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestFake_RecordsCalls(t *testing.T) {
	f := &runner.Fake{}

	if _, err := f.Run(context.Background(), "/work/hw01", "make homework"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := f.Run(context.Background(), "/work/hw02", "make solution"); err != nil {
		t.Fatalf("run: %v", err)
	}

	calls := f.Calls()
	if len(calls) != 2 {
		t.Fatalf("len = %d, want 2", len(calls))
	}
	if calls[0].Dir != "/work/hw01" || calls[0].Command != "make homework" {
		t.Errorf("first call = %+v", calls[0])
	}
}

func TestFake_ScriptedFailure(t *testing.T) {
	boom := errors.New("recipe exploded")
	f := &runner.Fake{
		OnRun: func(dir, command string) ([]byte, error) {
			if command == "make solution" {
				return []byte("no rule to make target"), boom
			}
			return nil, nil
		},
	}

	if _, err := f.Run(context.Background(), "d", "make homework"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := f.Run(context.Background(), "d", "make solution")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want scripted error", err)
	}
	if string(out) != "no rule to make target" {
		t.Errorf("out = %q", out)
	}
}
