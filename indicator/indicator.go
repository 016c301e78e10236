// Package indicator computes overlay series from candle closes.
package indicator

import (
	"fmt"
	"sort"

	talib "github.com/markcheno/go-talib"

	"github.com/chaitanyamurarka/trading-platform-v3.1/model/candle"
)

// Kind selects the overlay computation.
type Kind string

const (
	None Kind = ""
	SMA  Kind = "sma"
	EMA  Kind = "ema"
)

// ParseKind validates a configured overlay name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "none":
		return None, nil
	case "sma":
		return SMA, nil
	case "ema":
		return EMA, nil
	default:
		return None, fmt.Errorf("indicator: unknown kind %q", s)
	}
}

// Next returns the kind after k in the display cycle.
func (k Kind) Next() Kind {
	switch k {
	case None:
		return SMA
	case SMA:
		return EMA
	default:
		return None
	}
}

// Point is one overlay sample, aligned with a candle open time.
type Point struct {
	Time  int64
	Value float64
}

// Series is a computed overlay line.
type Series struct {
	Name   string
	Period int
	Points []Point
}

// At returns the overlay value for a bar open time. Points are ascending
// by time, so this is a binary search.
func (s *Series) At(t int64) (float64, bool) {
	if s == nil {
		return 0, false
	}
	i := sort.Search(len(s.Points), func(i int) bool { return s.Points[i].Time >= t })
	if i < len(s.Points) && s.Points[i].Time == t {
		return s.Points[i].Value, true
	}
	return 0, false
}

// Compute runs kind over the candle closes. The first period-1 bars are
// warm-up and yield no points. Returns nil when the overlay is off or
// there is not enough data.
func Compute(kind Kind, period int, candles []candle.Candle) *Series {
	if kind == None || period <= 0 || len(candles) < period {
		return nil
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	var values []float64
	var name string
	switch kind {
	case SMA:
		values = talib.Sma(closes, period)
		name = fmt.Sprintf("SMA (%d)", period)
	case EMA:
		values = talib.Ema(closes, period)
		name = fmt.Sprintf("EMA (%d)", period)
	default:
		return nil
	}

	s := &Series{Name: name, Period: period}
	s.Points = make([]Point, 0, len(values)-period+1)
	for i := period - 1; i < len(values); i++ {
		s.Points = append(s.Points, Point{Time: candles[i].Time, Value: values[i]})
	}
	return s
}
