// Package app contains the StatusService for tree reports and run history.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/courseops/mimeo/core/discover"
	"github.com/courseops/mimeo/domain/materials"
	"github.com/courseops/mimeo/ports"
	"github.com/rs/zerolog"
)

// DefaultRunLimit bounds run history queries with no explicit limit.
const DefaultRunLimit = 20

// StatusRequest describes which tree to inspect and when "now" is.
type StatusRequest struct {
	// InputDir is the root of the definition tree.
	InputDir string

	// SkipDirectories are pruned from discovery wherever they appear.
	SkipDirectories []string

	// Vars backs ${vars.*} references in definition files.
	Vars map[string]any

	// Cache, when set, reuses resolved documents across calls.
	Cache *discover.Cache

	// Now overrides the instant used to classify release state.
	Now *time.Time
}

// PublishedRequest describes which publish root to inspect and when
// "now" is.
type PublishedRequest struct {
	// Dir is the publish root holding the manifest.
	Dir string

	// Now overrides the instant used to classify release state.
	Now *time.Time
}

// ValidationSummary counts what a validation pass resolved.
type ValidationSummary struct {
	Collections  int `json:"collections" yaml:"collections"`
	Publications int `json:"publications" yaml:"publications"`
	Artifacts    int `json:"artifacts" yaml:"artifacts"`
}

// StatusService reports on the state of the material tree and on past
// publish runs.
type StatusService struct {
	clock   ports.Clock
	ledger  ports.Ledger
	metrics ports.Metrics
	logger  zerolog.Logger
}

// NewStatusService creates a new status service.
func NewStatusService(clock ports.Clock, ledger ports.Ledger, metrics ports.Metrics, logger zerolog.Logger) *StatusService {
	return &StatusService{
		clock:   clock,
		ledger:  ledger,
		metrics: metrics,
		logger:  logger.With().Str("service", "status").Logger(),
	}
}

// Report discovers the tree and classifies every publication and
// artifact against the request's instant. Nothing is built or copied.
func (s *StatusService) Report(req StatusRequest) (*materials.Report, error) {
	universe, err := s.discover(req)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if req.Now != nil {
		now = *req.Now
	}
	return materials.NewReport(universe, now), nil
}

// Published reads the manifest under the publish root and classifies
// what is live there, without resolving the definition tree.
func (s *StatusService) Published(req PublishedRequest) (*materials.Report, error) {
	f, err := os.Open(filepath.Join(req.Dir, materials.ManifestName))
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	universe, err := materials.DecodeManifest(f)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if req.Now != nil {
		now = *req.Now
	}
	s.logger.Debug().Str("dir", req.Dir).Msg("classifying published manifest")
	return materials.NewPublishedReport(universe, now), nil
}

// Validate resolves every definition file in the tree and reports what
// it found. The first malformed file fails the pass.
func (s *StatusService) Validate(req StatusRequest) (*ValidationSummary, error) {
	universe, err := s.discover(req)
	if err != nil {
		return nil, err
	}

	summary := &ValidationSummary{}
	for _, ck := range universe.Keys() {
		col, _ := universe.Get(ck)
		if ck == discover.DefaultCollectionKey && col.Len() == 0 {
			// The synthetic default collection only counts when used.
			continue
		}
		summary.Collections++
		summary.Publications += col.Len()
		for _, pk := range col.Keys() {
			pub, _ := col.Get(pk)
			summary.Artifacts += pub.Len()
		}
	}

	s.logger.Info().
		Int("collections", summary.Collections).
		Int("publications", summary.Publications).
		Int("artifacts", summary.Artifacts).
		Msg("tree validated")
	return summary, nil
}

// Runs returns the most recent publish runs, newest first.
func (s *StatusService) Runs(ctx context.Context, limit int) ([]ports.Run, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	return s.ledger.Runs(ctx, limit)
}

func (s *StatusService) discover(req StatusRequest) (*materials.Universe[materials.UnbuiltArtifact], error) {
	universe, err := discover.Discover(req.InputDir, discover.Options{
		SkipDirectories: req.SkipDirectories,
		Vars:            req.Vars,
		Cache:           req.Cache,
		Logger:          s.logger,
	})
	s.metrics.ObserveDiscovery(countPublications(universe), err)
	return universe, err
}
