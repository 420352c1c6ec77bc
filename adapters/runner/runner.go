// Package runner provides Runner implementations for artifact recipes.
package runner

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/courseops/mimeo/ports"
)

// Shell runs recipes through the system shell, the way authors write
// them in publication files ("make homework", "latexmk -pdf ...").
type Shell struct{}

// Run executes command with sh -c in dir and returns the combined
// output.
func (Shell) Run(ctx context.Context, dir, command string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("run %q: %w", command, err)
	}
	return out, nil
}

// Call records one recipe execution seen by a Fake.
type Call struct {
	Dir     string
	Command string
}

// Fake scripts recipe outcomes for tests.
type Fake struct {
	mu    sync.Mutex
	calls []Call

	// OnRun, when set, decides the outcome of each call. Unset means
	// every call succeeds with no output.
	OnRun func(dir, command string) ([]byte, error)
}

// Run records the call and delegates to OnRun.
func (f *Fake) Run(ctx context.Context, dir, command string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Dir: dir, Command: command})
	f.mu.Unlock()

	if f.OnRun != nil {
		return f.OnRun(dir, command)
	}
	return nil, nil
}

// Calls returns a copy of every recorded call, in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

var (
	_ ports.Runner = Shell{}
	_ ports.Runner = (*Fake)(nil)
)
