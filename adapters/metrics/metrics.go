// Package metrics provides Prometheus metrics collection for mimeo.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/courseops/mimeo/core/discover"
	"github.com/courseops/mimeo/core/resolve"
	"github.com/courseops/mimeo/core/schema"
	"github.com/courseops/mimeo/ports"
)

// Collector holds all Prometheus metrics for the publish pipeline.
type Collector struct {
	// Discovery metrics
	DiscoveriesTotal       *prometheus.CounterVec
	PublicationsDiscovered prometheus.Gauge
	ResolutionErrors       *prometheus.CounterVec

	// Build metrics
	ArtifactBuilds *prometheus.CounterVec
	BuildDuration  prometheus.Histogram

	// Publish metrics
	PublishedBytes prometheus.Counter
	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	LastPublish    prometheus.Gauge

	// Sync metrics
	SyncsTotal *prometheus.CounterVec
}

// New creates a new metrics collector registered on the default
// registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		DiscoveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mimeo",
				Name:      "discoveries_total",
				Help:      "Total number of discovery passes",
			},
			[]string{"outcome"},
		),
		PublicationsDiscovered: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mimeo",
				Name:      "publications_discovered",
				Help:      "Publications found by the most recent discovery pass",
			},
		),
		ResolutionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mimeo",
				Name:      "resolution_errors_total",
				Help:      "Discovery failures by kind of rule violated",
			},
			[]string{"kind"},
		),
		ArtifactBuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mimeo",
				Name:      "artifact_builds_total",
				Help:      "Artifact build attempts by outcome",
			},
			[]string{"outcome"},
		),
		BuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "mimeo",
				Name:      "build_duration_seconds",
				Help:      "Time spent running one artifact recipe",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		PublishedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mimeo",
				Name:      "published_bytes_total",
				Help:      "Total bytes copied into the publish root",
			},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mimeo",
				Name:      "publish_runs_total",
				Help:      "Publish runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "mimeo",
				Name:      "run_duration_seconds",
				Help:      "Wall time of one publish run",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900},
			},
		),
		LastPublish: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mimeo",
				Name:      "last_publish_timestamp",
				Help:      "Unix timestamp of the last successful publish run",
			},
		),
		SyncsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mimeo",
				Name:      "syncs_total",
				Help:      "Sync attempts by target and outcome",
			},
			[]string{"target", "outcome"},
		),
	}
}

// ObserveDiscovery records a discovery pass.
func (c *Collector) ObserveDiscovery(publications int, err error) {
	if err != nil {
		c.DiscoveriesTotal.WithLabelValues("error").Inc()
		c.ResolutionErrors.WithLabelValues(errorKind(err)).Inc()
		return
	}
	c.DiscoveriesTotal.WithLabelValues("ok").Inc()
	c.PublicationsDiscovered.Set(float64(publications))
}

// ObserveBuild records one artifact build.
func (c *Collector) ObserveBuild(outcome string, elapsed time.Duration) {
	c.ArtifactBuilds.WithLabelValues(outcome).Inc()
	if outcome == ports.BuildBuilt || outcome == ports.BuildFailed {
		c.BuildDuration.Observe(elapsed.Seconds())
	}
}

// ObservePublish records bytes copied into the publish root.
func (c *Collector) ObservePublish(bytes int64) {
	c.PublishedBytes.Add(float64(bytes))
}

// ObserveRun records one publish run.
func (c *Collector) ObserveRun(succeeded bool, elapsed time.Duration) {
	c.RunDuration.Observe(elapsed.Seconds())
	if succeeded {
		c.RunsTotal.WithLabelValues("ok").Inc()
		c.LastPublish.SetToCurrentTime()
		return
	}
	c.RunsTotal.WithLabelValues("error").Inc()
}

// ObserveSync records one sync attempt.
func (c *Collector) ObserveSync(target string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.SyncsTotal.WithLabelValues(target, outcome).Inc()
}

// errorKind maps a discovery failure onto a low-cardinality label.
func errorKind(err error) string {
	switch {
	case errors.Is(err, resolve.ErrCyclicReference):
		return "cycle"
	case errors.Is(err, resolve.ErrUnknownKey):
		return "unknown_key"
	case errors.Is(err, resolve.ErrMissingKey):
		return "missing_key"
	case errors.Is(err, resolve.ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, resolve.ErrUnresolvableReference):
		return "unresolvable_reference"
	case errors.Is(err, resolve.ErrInvalidValue):
		return "invalid_value"
	}

	var invalidSchema *schema.InvalidSchemaError
	if errors.As(err, &invalidSchema) {
		return "invalid_schema"
	}
	var malformed *discover.MalformedFileError
	if errors.As(err, &malformed) {
		return "malformed_file"
	}
	var discovery *discover.DiscoveryError
	if errors.As(err, &discovery) {
		return "layout"
	}
	return "other"
}

// Noop discards every observation. Wired when metrics are disabled so
// callers never nil-check.
type Noop struct{}

func (Noop) ObserveDiscovery(int, error)        {}
func (Noop) ObserveBuild(string, time.Duration) {}
func (Noop) ObservePublish(int64)               {}
func (Noop) ObserveRun(bool, time.Duration)     {}
func (Noop) ObserveSync(string, error)          {}

var (
	_ ports.Metrics = (*Collector)(nil)
	_ ports.Metrics = Noop{}
)
