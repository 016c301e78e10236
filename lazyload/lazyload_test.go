package lazyload

import (
	"testing"
	"time"

	"github.com/chaitanyamurarka/trading-platform-v3.1/loader"
)

var (
	boundary = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	oldest   = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
)

func TestThresholdFloorsAtFifty(t *testing.T) {
	cases := map[int]int{
		0:    50,
		100:  50,
		999:  50,
		1000: 50,
		1440: 72, // one day of minute bars
		5000: 250,
	}
	for loaded, want := range cases {
		if got := Threshold(loaded); got != want {
			t.Errorf("Threshold(%d) = %d, want %d", loaded, got, want)
		}
	}
}

func TestScrollNearEdgeRequestsOlderWindow(t *testing.T) {
	c := New(boundary)
	st := loader.State{Len: 1440, Oldest: oldest.Unix()}

	act := c.Evaluate(View{From: 10, To: 150}, st)
	if act.Op != OpPrepend {
		t.Fatalf("op %v, want OpPrepend", act.Op)
	}
	if !act.Start.Equal(boundary) {
		t.Errorf("window start %v, want boundary %v", act.Start, boundary)
	}
	if want := oldest.Add(-time.Second); !act.End.Equal(want) {
		t.Errorf("window end %v, want oldest-1s %v", act.End, want)
	}
}

func TestScrollFarFromEdgeDoesNothing(t *testing.T) {
	c := New(boundary)
	st := loader.State{Len: 1440, Oldest: oldest.Unix()}

	// Threshold for 1440 bars is 72; index 72 is not strictly inside it.
	if act := c.Evaluate(View{From: 72, To: 200}, st); act.Op != OpNone {
		t.Errorf("at the threshold: op %v, want OpNone", act.Op)
	}
	if act := c.Evaluate(View{From: 500, To: 640}, st); act.Op != OpNone {
		t.Errorf("mid-dataset: op %v, want OpNone", act.Op)
	}
}

func TestNoFetchWhileOneIsInFlight(t *testing.T) {
	c := New(boundary)
	st := loader.State{Len: 1440, Oldest: oldest.Unix(), Fetching: true}

	if act := c.Evaluate(View{From: 0, To: 140}, st); act.Op != OpNone {
		t.Errorf("op %v, want OpNone while fetching", act.Op)
	}
}

func TestNoFetchOnEmptyDataset(t *testing.T) {
	c := New(boundary)

	if act := c.Evaluate(View{From: 0, To: 0}, loader.State{}); act.Op != OpNone {
		t.Errorf("op %v, want OpNone on empty dataset", act.Op)
	}
}

func TestExhaustedScrollPastEdgeClamps(t *testing.T) {
	c := New(boundary)
	st := loader.State{Len: 300, Oldest: oldest.Unix(), Exhausted: true}

	if act := c.Evaluate(View{From: -25, To: 115}, st); act.Op != OpClamp {
		t.Errorf("op %v, want OpClamp past the left edge", act.Op)
	}
	if act := c.Evaluate(View{From: 0, To: 140}, st); act.Op != OpNone {
		t.Errorf("op %v, want OpNone at the edge", act.Op)
	}
	if act := c.Evaluate(View{From: 10, To: 150}, st); act.Op != OpNone {
		t.Errorf("op %v, want OpNone inside the dataset", act.Op)
	}
}

func TestCollapsedWindowLatchesWithoutFetch(t *testing.T) {
	c := New(boundary)

	// Oldest bar sits exactly on the boundary: [boundary, oldest-1s]
	// is empty, so there is nothing left to ask for.
	st := loader.State{Len: 300, Oldest: boundary.Unix()}
	if act := c.Evaluate(View{From: 5, To: 145}, st); act.Op != OpExhausted {
		t.Errorf("op %v, want OpExhausted on collapsed window", act.Op)
	}

	// One bucket after the boundary still leaves a one-second window.
	st.Oldest = boundary.Add(2 * time.Second).Unix()
	act := c.Evaluate(View{From: 5, To: 145}, st)
	if act.Op != OpPrepend {
		t.Errorf("op %v, want OpPrepend for the last sliver", act.Op)
	}
}

func TestNegativeFromWithoutExhaustionStillFetches(t *testing.T) {
	c := New(boundary)
	st := loader.State{Len: 1440, Oldest: oldest.Unix()}

	if act := c.Evaluate(View{From: -40, To: 100}, st); act.Op != OpPrepend {
		t.Errorf("op %v, want OpPrepend while data may remain", act.Op)
	}
}
