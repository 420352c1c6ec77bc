// Package app provides application services that orchestrate the
// material pipeline: discover, build, publish, sync.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/courseops/mimeo/core/discover"
	"github.com/courseops/mimeo/domain/materials"
	"github.com/courseops/mimeo/ports"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
)

// BuildError reports a failed artifact build. The first failure aborts
// the run before anything is copied.
type BuildError struct {
	Collection  string
	Publication string
	Artifact    string
	Reason      string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: %s", path.Join(e.Collection, e.Publication, e.Artifact), e.Reason)
}

// PublishRequest describes one pipeline run.
type PublishRequest struct {
	// InputDir is the root of the definition tree.
	InputDir string

	// OutputDir is the publish root. Created if absent.
	OutputDir string

	// SkipDirectories are pruned from discovery wherever they appear.
	SkipDirectories []string

	// Vars backs ${vars.*} references in definition files.
	Vars map[string]any

	// Cache, when set, reuses resolved documents across runs.
	Cache *discover.Cache

	// IgnoreReleaseTime publishes scheduled material early.
	IgnoreReleaseTime bool

	// IgnoreReady publishes material still marked unready.
	IgnoreReady bool

	// ArtifactFilter, when set, restricts the run to artifacts whose key
	// matches.
	ArtifactFilter *regexp.Regexp

	// Now overrides the instant used for release decisions.
	Now *time.Time
}

// PublishResult summarizes a finished run.
type PublishResult struct {
	RunID     string
	Published *materials.Universe[materials.PublishedArtifact]

	Collections  int
	Publications int
	Artifacts    int

	Built   int
	Static  int
	Skipped int
	Changed int
	Bytes   int64

	Elapsed time.Duration
}

// PublisherService runs the pipeline: discover definition files, build
// artifacts through their recipes, copy released material into the
// publish root, and write the manifest. Every run is recorded in the
// ledger.
type PublisherService struct {
	clock   ports.Clock
	idgen   ports.IDGenerator
	runner  ports.Runner
	ledger  ports.Ledger
	metrics ports.Metrics
	logger  zerolog.Logger
}

// NewPublisherService creates a new publisher service.
func NewPublisherService(
	clock ports.Clock,
	idgen ports.IDGenerator,
	runner ports.Runner,
	ledger ports.Ledger,
	metrics ports.Metrics,
	logger zerolog.Logger,
) *PublisherService {
	return &PublisherService{
		clock:   clock,
		idgen:   idgen,
		runner:  runner,
		ledger:  ledger,
		metrics: metrics,
		logger:  logger.With().Str("service", "publisher").Logger(),
	}
}

// Publish runs the full pipeline once. The run is recorded in the
// ledger whether it succeeds or not; the first build failure aborts it
// before anything reaches the output directory.
func (s *PublisherService) Publish(ctx context.Context, req PublishRequest) (result *PublishResult, err error) {
	started := s.clock.Now()
	now := started
	if req.Now != nil {
		now = *req.Now
	}

	runID := s.idgen.New()
	logger := s.logger.With().Str("run", runID).Logger()
	logger.Info().
		Str("input", req.InputDir).
		Str("output", req.OutputDir).
		Time("now", now).
		Msg("publish run starting")

	if err := s.ledger.BeginRun(ctx, ports.Run{ID: runID, StartedAt: started}); err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	defer func() {
		run := ports.Run{
			ID:         runID,
			StartedAt:  started,
			FinishedAt: s.clock.Now(),
			Succeeded:  err == nil,
		}
		if err != nil {
			run.Error = err.Error()
		}
		if result != nil {
			run.Collections = result.Collections
			run.Publications = result.Publications
			run.Artifacts = result.Artifacts
		}
		if ferr := s.ledger.FinishRun(ctx, run); ferr != nil {
			logger.Error().Err(ferr).Msg("failed to record run outcome")
		}
		s.metrics.ObserveRun(err == nil, run.FinishedAt.Sub(started))
	}()

	universe, err := discover.Discover(req.InputDir, discover.Options{
		SkipDirectories: req.SkipDirectories,
		Vars:            req.Vars,
		Cache:           req.Cache,
		Logger:          logger,
	})
	s.metrics.ObserveDiscovery(countPublications(universe), err)
	if err != nil {
		return nil, err
	}

	// An explicit filter narrows the run to matching artifacts and
	// drops whatever it leaves empty.
	if req.ArtifactFilter != nil {
		universe = materials.RemoveEmpty(materials.FilterArtifacts(universe,
			func(_, _, key string, _ materials.UnbuiltArtifact) bool {
				return req.ArtifactFilter.MatchString(key)
			}))
	}

	built, builds, err := s.buildAll(ctx, universe, now, req, logger)
	if err != nil {
		return nil, err
	}

	published, copies, err := s.publishTree(ctx, built, req.OutputDir, runID, logger)
	if err != nil {
		return nil, err
	}

	if err = writeManifest(req.OutputDir, published); err != nil {
		return nil, err
	}

	result = &PublishResult{
		RunID:        runID,
		Published:    published,
		Collections:  published.Len(),
		Publications: countPublications(published),
		Artifacts:    copies.artifacts,
		Built:        builds.built,
		Static:       builds.static,
		Skipped:      builds.skipped,
		Changed:      copies.changed,
		Bytes:        copies.bytes,
		Elapsed:      s.clock.Now().Sub(started),
	}

	logger.Info().
		Int("publications", result.Publications).
		Int("artifacts", result.Artifacts).
		Int("built", result.Built).
		Int("skipped", result.Skipped).
		Int("changed", result.Changed).
		Int64("bytes", result.Bytes).
		Msg("publish run finished")

	return result, nil
}

// Sync publishes and then mirrors the publish root to each target in
// turn. The first failing target aborts the rest.
func (s *PublisherService) Sync(ctx context.Context, req PublishRequest, targets []ports.SyncTarget) (*PublishResult, error) {
	result, err := s.Publish(ctx, req)
	if err != nil {
		return nil, err
	}

	for _, target := range targets {
		err := target.Sync(ctx, req.OutputDir)
		s.metrics.ObserveSync(target.Name(), err)
		if err != nil {
			return result, fmt.Errorf("sync %s: %w", target.Name(), err)
		}
		s.logger.Info().Str("target", target.Name()).Msg("publish root synced")
	}

	return result, nil
}

type buildTally struct {
	built, static, skipped int
}

// buildAll runs recipes and verifies artifact files, honoring the
// ready and release_time gates at both publication and artifact level.
// Withheld material is left out of the result; gated-in publications
// stay even when every artifact inside them was withheld, so the
// manifest keeps their metadata.
func (s *PublisherService) buildAll(
	ctx context.Context,
	u *materials.Universe[materials.UnbuiltArtifact],
	now time.Time,
	req PublishRequest,
	logger zerolog.Logger,
) (*materials.Universe[materials.BuiltArtifact], buildTally, error) {
	var tally buildTally
	out := materials.NewUniverse[materials.BuiltArtifact]()

	for _, ck := range u.Keys() {
		col, _ := u.Get(ck)
		if ck == discover.DefaultCollectionKey && col.Len() == 0 {
			// The synthetic default collection only ships when used.
			continue
		}
		outCol := materials.NewCollection[materials.BuiltArtifact](col.Spec)

		for _, pk := range col.Keys() {
			pub, _ := col.Get(pk)

			if held, why := withheld(pub.Ready, pub.ReleaseTime, now, req); held {
				tally.skipped += pub.Len()
				for range pub.Keys() {
					s.metrics.ObserveBuild(ports.BuildSkipped, 0)
				}
				logger.Debug().
					Str("publication", path.Join(ck, pk)).
					Str("reason", why).
					Msg("publication withheld")
				continue
			}

			outPub := materials.NewPublication[materials.BuiltArtifact]()
			outPub.Metadata = pub.Metadata
			outPub.Ready = pub.Ready
			outPub.ReleaseTime = pub.ReleaseTime

			for _, ak := range pub.Keys() {
				a, _ := pub.Get(ak)

				if held, why := withheld(a.Ready, a.ReleaseTime, now, req); held {
					tally.skipped++
					s.metrics.ObserveBuild(ports.BuildSkipped, 0)
					logger.Debug().
						Str("artifact", path.Join(ck, pk, ak)).
						Str("reason", why).
						Msg("artifact withheld")
					continue
				}

				outcome := ports.BuildStatic
				start := time.Now()
				if a.Recipe != "" {
					logger.Info().
						Str("artifact", path.Join(ck, pk, ak)).
						Str("recipe", a.Recipe).
						Msg("running recipe")
					output, rerr := s.runner.Run(ctx, a.WorkDir, a.Recipe)
					if rerr != nil {
						s.metrics.ObserveBuild(ports.BuildFailed, time.Since(start))
						return nil, tally, &BuildError{
							Collection:  ck,
							Publication: pk,
							Artifact:    ak,
							Reason:      failureReason(rerr, output),
						}
					}
					outcome = ports.BuildBuilt
				}

				if _, serr := os.Stat(filepath.Join(a.WorkDir, a.Path)); serr != nil {
					if !errors.Is(serr, fs.ErrNotExist) {
						s.metrics.ObserveBuild(ports.BuildFailed, time.Since(start))
						return nil, tally, &BuildError{
							Collection:  ck,
							Publication: pk,
							Artifact:    ak,
							Reason:      serr.Error(),
						}
					}
					if a.MissingOK {
						tally.skipped++
						s.metrics.ObserveBuild(ports.BuildSkipped, time.Since(start))
						logger.Warn().
							Str("artifact", path.Join(ck, pk, ak)).
							Str("path", a.Path).
							Msg("artifact file missing, tolerated")
						continue
					}
					s.metrics.ObserveBuild(ports.BuildFailed, time.Since(start))
					return nil, tally, &BuildError{
						Collection:  ck,
						Publication: pk,
						Artifact:    ak,
						Reason:      fmt.Sprintf("file %s missing after build", a.Path),
					}
				}

				s.metrics.ObserveBuild(outcome, time.Since(start))
				if outcome == ports.BuildBuilt {
					tally.built++
				} else {
					tally.static++
				}

				outPub.Put(ak, materials.BuiltArtifact{
					WorkDir:     a.WorkDir,
					Path:        a.Path,
					Ready:       a.Ready,
					ReleaseTime: a.ReleaseTime,
				})
			}

			outCol.Put(pk, outPub)
		}

		out.Put(ck, outCol)
	}

	return out, tally, nil
}

type copyTally struct {
	artifacts int
	changed   int
	bytes     int64
}

// publishTree copies every built artifact into the publish root at
// <collection>/<publication>/<artifact key> and records it in the
// ledger. Returned paths are relative to the publish root.
func (s *PublisherService) publishTree(
	ctx context.Context,
	built *materials.Universe[materials.BuiltArtifact],
	outDir, runID string,
	logger zerolog.Logger,
) (*materials.Universe[materials.PublishedArtifact], copyTally, error) {
	var tally copyTally

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, tally, fmt.Errorf("create output directory: %w", err)
	}

	out := materials.NewUniverse[materials.PublishedArtifact]()
	publishedAt := s.clock.Now()

	for _, ck := range built.Keys() {
		col, _ := built.Get(ck)
		outCol := materials.NewCollection[materials.PublishedArtifact](col.Spec)

		for _, pk := range col.Keys() {
			pub, _ := col.Get(pk)

			outPub := materials.NewPublication[materials.PublishedArtifact]()
			outPub.Metadata = pub.Metadata
			outPub.Ready = pub.Ready
			outPub.ReleaseTime = pub.ReleaseTime

			for _, ak := range pub.Keys() {
				a, _ := pub.Get(ak)

				// The artifact key names the published file, so build
				// directory layout never leaks into the publish tree.
				rel := path.Join(ck, pk, ak)
				src := filepath.Join(a.WorkDir, a.Path)
				dst := filepath.Join(outDir, filepath.FromSlash(rel))

				n, digest, err := copyArtifact(src, dst)
				if err != nil {
					return nil, tally, fmt.Errorf("copy %s: %w", rel, err)
				}
				s.metrics.ObservePublish(n)
				tally.artifacts++
				tally.bytes += n

				last, err := s.ledger.LastDigest(ctx, ck, pk, ak)
				if err != nil {
					return nil, tally, fmt.Errorf("ledger lookup %s: %w", rel, err)
				}
				if last != digest {
					tally.changed++
				} else {
					logger.Debug().Str("artifact", rel).Msg("unchanged since last publish")
				}

				if err := s.ledger.RecordArtifact(ctx, ports.ArtifactRecord{
					RunID:       runID,
					Collection:  ck,
					Publication: pk,
					Artifact:    ak,
					Path:        rel,
					Digest:      digest,
					Bytes:       n,
					PublishedAt: publishedAt,
				}); err != nil {
					return nil, tally, fmt.Errorf("ledger record %s: %w", rel, err)
				}

				outPub.Put(ak, materials.PublishedArtifact{
					Path:        rel,
					ReleaseTime: a.ReleaseTime,
				})
				logger.Info().Str("artifact", rel).Int64("bytes", n).Msg("artifact published")
			}

			outCol.Put(pk, outPub)
		}

		out.Put(ck, outCol)
	}

	return out, tally, nil
}

// withheld reports whether material gated by ready/release_time stays
// out of this run, and why.
func withheld(ready bool, releaseTime *time.Time, now time.Time, req PublishRequest) (bool, string) {
	if !ready && !req.IgnoreReady {
		return true, "not ready"
	}
	if releaseTime != nil && releaseTime.After(now) && !req.IgnoreReleaseTime {
		return true, fmt.Sprintf("scheduled for %s", releaseTime.Format(time.RFC3339))
	}
	return false, ""
}

// failureReason folds recipe output into the failure message; the exit
// status alone rarely explains anything.
func failureReason(err error, output []byte) string {
	text := strings.TrimSpace(string(output))
	if text == "" {
		return err.Error()
	}
	return fmt.Sprintf("%v: %s", err, text)
}

// copyArtifact streams src to dst, creating parent directories, and
// returns the byte count and BLAKE2b digest of the content.
func copyArtifact(src, dst string) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, "", err
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, "", err
	}

	hasher, err := blake2b.New256(nil)
	if err != nil {
		out.Close()
		return 0, "", err
	}

	n, err := io.Copy(io.MultiWriter(out, hasher), in)
	if err != nil {
		out.Close()
		return 0, "", err
	}
	if err := out.Close(); err != nil {
		return 0, "", err
	}

	return n, fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// writeManifest serializes the published universe at the publish root.
func writeManifest(outDir string, published *materials.Universe[materials.PublishedArtifact]) error {
	f, err := os.Create(filepath.Join(outDir, materials.ManifestName))
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	if err := materials.EncodeManifest(f, published); err != nil {
		f.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// countPublications tallies publications across every collection.
func countPublications[A any](u *materials.Universe[A]) int {
	if u == nil {
		return 0
	}
	total := 0
	for _, ck := range u.Keys() {
		col, _ := u.Get(ck)
		total += col.Len()
	}
	return total
}
