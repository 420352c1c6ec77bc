// Package sync provides SyncTarget implementations that mirror a
// publish root to remote destinations.
package sync

import (
	"context"

	"github.com/courseops/mimeo/ports"
)

// Noop discards sync requests. Wired when no target is configured.
type Noop struct{}

// Name identifies the target.
func (Noop) Name() string { return "noop" }

// Sync does nothing.
func (Noop) Sync(context.Context, string) error { return nil }

var _ ports.SyncTarget = Noop{}
