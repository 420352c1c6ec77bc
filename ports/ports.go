// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Runner executes artifact recipes.
type Runner interface {
	// Run executes command in dir and returns the combined output.
	// A non-zero exit status is reported as an error.
	Run(ctx context.Context, dir, command string) ([]byte, error)
}

// -----------------------------------------------------------------------------
// Ledger Ports
// -----------------------------------------------------------------------------

// Run records one publish run.
type Run struct {
	ID           string    `json:"id" yaml:"id"`
	StartedAt    time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time `json:"finished_at" yaml:"finished_at"`
	Succeeded    bool      `json:"succeeded" yaml:"succeeded"`
	Collections  int       `json:"collections" yaml:"collections"`
	Publications int       `json:"publications" yaml:"publications"`
	Artifacts    int       `json:"artifacts" yaml:"artifacts"`
	Error        string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// ArtifactRecord records one artifact published during a run.
type ArtifactRecord struct {
	RunID       string
	Collection  string
	Publication string
	Artifact    string
	Path        string
	Digest      string
	Bytes       int64
	PublishedAt time.Time
}

// Ledger persists publish history.
type Ledger interface {
	// BeginRun stores a new run with only its start fields set.
	BeginRun(ctx context.Context, run Run) error

	// FinishRun fills in the outcome of a previously begun run.
	FinishRun(ctx context.Context, run Run) error

	// RecordArtifact stores a published artifact.
	RecordArtifact(ctx context.Context, rec ArtifactRecord) error

	// LastDigest returns the digest the artifact carried the last time it
	// was published, or "" if it never was.
	LastDigest(ctx context.Context, collection, publication, artifact string) (string, error)

	// Runs returns the most recent runs, newest first.
	Runs(ctx context.Context, limit int) ([]Run, error)

	// Close releases the underlying store.
	Close() error
}

// -----------------------------------------------------------------------------
// Sync Ports
// -----------------------------------------------------------------------------

// SyncTarget pushes a publish root to a remote destination.
type SyncTarget interface {
	// Name identifies the target (e.g., "git", "s3").
	Name() string

	// Sync makes the remote look like dir.
	Sync(ctx context.Context, dir string) error
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// Outcomes recorded per artifact during the build phase.
const (
	// BuildBuilt: a recipe ran and produced the file.
	BuildBuilt = "built"

	// BuildStatic: no recipe, the file was already in place.
	BuildStatic = "static"

	// BuildSkipped: withheld (unready, unreleased, or filtered out).
	BuildSkipped = "skipped"

	// BuildFailed: the recipe failed or the file was missing afterwards.
	BuildFailed = "failed"
)

// Metrics records pipeline observations. Implementations must be safe
// for concurrent use.
type Metrics interface {
	// ObserveDiscovery records a discovery pass and how many
	// publications it found.
	ObserveDiscovery(publications int, err error)

	// ObserveBuild records one artifact build with its outcome.
	ObserveBuild(outcome string, elapsed time.Duration)

	// ObservePublish records bytes copied into the publish root.
	ObservePublish(bytes int64)

	// ObserveRun records a whole publish run.
	ObserveRun(succeeded bool, elapsed time.Duration)

	// ObserveSync records a sync attempt against a named target.
	ObserveSync(target string, err error)
}
