package materials

import "time"

// State classifies a publication or artifact relative to an instant.
type State string

const (
	// StateReleased: ready and past its release time (or has none).
	StateReleased State = "released"

	// StatePending: ready but scheduled for a future instant.
	StatePending State = "pending"

	// StateOverdue: release time has passed but the item is not ready.
	StateOverdue State = "overdue"

	// StateUnready: not ready and not yet scheduled to be out.
	StateUnready State = "unready"
)

// StateOf classifies readiness and schedule at instant now.
func StateOf(ready bool, releaseTime *time.Time, now time.Time) State {
	released := releaseTime == nil || !releaseTime.After(now)
	switch {
	case ready && released:
		return StateReleased
	case ready:
		return StatePending
	case released && releaseTime != nil:
		return StateOverdue
	default:
		return StateUnready
	}
}

// Report summarizes every publication and artifact at one instant.
type Report struct {
	Now         time.Time          `json:"now" yaml:"now"`
	Tally       Tally              `json:"tally" yaml:"tally"`
	Collections []CollectionStatus `json:"collections" yaml:"collections"`
}

// Tally counts artifacts by state.
type Tally struct {
	Released int `json:"released" yaml:"released"`
	Pending  int `json:"pending" yaml:"pending"`
	Overdue  int `json:"overdue" yaml:"overdue"`
	Unready  int `json:"unready" yaml:"unready"`
}

func (t *Tally) add(s State) {
	switch s {
	case StateReleased:
		t.Released++
	case StatePending:
		t.Pending++
	case StateOverdue:
		t.Overdue++
	case StateUnready:
		t.Unready++
	}
}

// Total returns the number of artifacts tallied.
func (t Tally) Total() int {
	return t.Released + t.Pending + t.Overdue + t.Unready
}

type CollectionStatus struct {
	Key          string              `json:"key" yaml:"key"`
	Publications []PublicationStatus `json:"publications" yaml:"publications"`
}

type PublicationStatus struct {
	Key         string           `json:"key" yaml:"key"`
	State       State            `json:"state" yaml:"state"`
	ReleaseTime *time.Time       `json:"release_time,omitempty" yaml:"release_time,omitempty"`
	Artifacts   []ArtifactStatus `json:"artifacts" yaml:"artifacts"`
}

type ArtifactStatus struct {
	Key         string     `json:"key" yaml:"key"`
	Path        string     `json:"path" yaml:"path"`
	State       State      `json:"state" yaml:"state"`
	ReleaseTime *time.Time `json:"release_time,omitempty" yaml:"release_time,omitempty"`
}

// NewReport classifies a discovered universe at instant now. An
// artifact's effective state is capped by its publication: nothing
// inside a pending or unready publication counts as released.
func NewReport(u *Universe[UnbuiltArtifact], now time.Time) *Report {
	return newReport(u, now, func(a UnbuiltArtifact) artifactView {
		return artifactView{path: a.Path, ready: a.Ready, releaseTime: a.ReleaseTime}
	})
}

// NewPublishedReport classifies a manifest universe at instant now.
// Published artifacts carry no ready flag; a file in the publish root
// is ready by construction, so only schedules apply.
func NewPublishedReport(u *Universe[PublishedArtifact], now time.Time) *Report {
	return newReport(u, now, func(a PublishedArtifact) artifactView {
		return artifactView{path: a.Path, ready: true, releaseTime: a.ReleaseTime}
	})
}

// artifactView is the slice of an artifact that status cares about.
type artifactView struct {
	path        string
	ready       bool
	releaseTime *time.Time
}

func newReport[A any](u *Universe[A], now time.Time, view func(A) artifactView) *Report {
	report := &Report{Now: now}

	for _, ck := range u.Keys() {
		col, _ := u.Get(ck)
		if col.Len() == 0 {
			// The synthetic default collection is often empty; an empty
			// collection carries no status.
			continue
		}
		cs := CollectionStatus{Key: ck}

		for _, pk := range col.Keys() {
			pub, _ := col.Get(pk)
			ps := PublicationStatus{
				Key:         pk,
				State:       StateOf(pub.Ready, pub.ReleaseTime, now),
				ReleaseTime: pub.ReleaseTime,
			}

			for _, ak := range pub.Keys() {
				a, _ := pub.Get(ak)
				v := view(a)
				state := StateOf(v.ready, v.releaseTime, now)
				if state == StateReleased && ps.State != StateReleased {
					state = ps.State
				}
				report.Tally.add(state)
				ps.Artifacts = append(ps.Artifacts, ArtifactStatus{
					Key:         ak,
					Path:        v.path,
					State:       state,
					ReleaseTime: v.releaseTime,
				})
			}

			cs.Publications = append(cs.Publications, ps)
		}

		report.Collections = append(report.Collections, cs)
	}

	return report
}
