// Package lazyload decides when scrolling toward older data should
// trigger a backward fetch. The controller only decides; fetching and
// merging stay with the loader.
package lazyload

import (
	"time"

	"github.com/chaitanyamurarka/trading-platform-v3.1/loader"
)

// View is the chart's visible logical range: From is the index of the
// leftmost drawn bar and To one past the rightmost. From goes negative
// once the user scrolls past the first loaded bar.
type View struct {
	From int
	To   int
}

// Op enumerates the possible reactions to a visible-range change.
type Op int

const (
	// OpNone leaves everything alone.
	OpNone Op = iota
	// OpClamp snaps the view back to logical index zero.
	OpClamp
	// OpPrepend requests a backward fetch for [Start, End].
	OpPrepend
	// OpExhausted latches the dataset complete without fetching: the
	// next older window collapsed to nothing.
	OpExhausted
)

// Action is the controller's decision for one visible-range change.
type Action struct {
	Op    Op
	Start time.Time // OpPrepend only
	End   time.Time
}

// Controller evaluates visible-range changes against the load state.
// boundary is the configured start of the loadable range; no window ever
// reaches past it.
type Controller struct {
	boundary time.Time
}

// New creates a Controller with the given backward boundary.
func New(boundary time.Time) *Controller {
	return &Controller{boundary: boundary.UTC()}
}

// Threshold is the bar-count proximity that arms a backward fetch: 5% of
// the loaded bars, floored at 50.
func Threshold(loaded int) int {
	t := loaded * 5 / 100
	if t < 50 {
		t = 50
	}
	return t
}

// Evaluate decides what to do after the visible range changed. At most
// one OpPrepend comes out of a single change; the loader's in-flight
// guard absorbs any race between overlapping change events.
func (c *Controller) Evaluate(view View, st loader.State) Action {
	if st.Exhausted {
		if view.From < 0 {
			return Action{Op: OpClamp}
		}
		return Action{Op: OpNone}
	}
	if st.Fetching || st.Len == 0 {
		return Action{Op: OpNone}
	}
	if view.From >= Threshold(st.Len) {
		return Action{Op: OpNone}
	}

	// Next older window: one second short of the oldest loaded bar, never
	// past the configured boundary.
	end := time.Unix(st.Oldest, 0).UTC().Add(-time.Second)
	if !c.boundary.Before(end) {
		return Action{Op: OpExhausted}
	}
	return Action{Op: OpPrepend, Start: c.boundary, End: end}
}
