// Package app contains the Holder for sharing pipeline state with the
// preview server.
package app

import (
	"sync"
	"time"

	"github.com/courseops/mimeo/domain/materials"
)

// Snapshot is the holder's view of the pipeline at one instant.
type Snapshot struct {
	Report      *materials.Report
	Result      *PublishResult
	Err         error
	RefreshedAt time.Time
}

// Holder provides thread-safe access to the latest pipeline state for
// the preview server. A failed rebuild records its error but keeps the
// last good report and result in place.
type Holder struct {
	mu          sync.RWMutex
	report      *materials.Report
	result      *PublishResult
	err         error
	refreshedAt time.Time
}

// NewHolder creates an empty holder. Snapshot returns zero values until
// the first SetGood or SetError.
func NewHolder() *Holder {
	return &Holder{}
}

// SetGood stores the outcome of a successful rebuild and clears any
// previous error.
func (h *Holder) SetGood(report *materials.Report, result *PublishResult, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.report = report
	h.result = result
	h.err = nil
	h.refreshedAt = at
}

// SetError records a failed rebuild, keeping the last good state.
func (h *Holder) SetError(err error, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
	h.refreshedAt = at
}

// Snapshot returns the current state (thread-safe).
func (h *Holder) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Snapshot{
		Report:      h.report,
		Result:      h.result,
		Err:         h.err,
		RefreshedAt: h.refreshedAt,
	}
}
