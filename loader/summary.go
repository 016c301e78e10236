package loader

import (
	"fmt"
	"time"

	"github.com/chaitanyamurarka/trading-platform-v3.1/model/candle"
)

// Summary is the header digest for the most recent bar of the dataset.
type Summary struct {
	Exchange  string
	Token     string
	Interval  candle.Interval
	Last      candle.Candle
	Change    float64 // close minus the previous close
	ChangePct float64
}

// Summary computes the digest from the current dataset. ok is false while
// the dataset is empty. The change baseline is the previous bar's close,
// or the bar's own open when only one bar is loaded.
func (l *Loader) Summary() (Summary, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.candles)
	if n == 0 {
		return Summary{}, false
	}

	s := Summary{
		Exchange: l.query.Exchange,
		Token:    l.query.Token,
		Interval: l.query.Interval,
		Last:     l.candles[n-1],
	}
	base := s.Last.Open
	if n > 1 {
		base = l.candles[n-2].Close
	}
	s.Change = s.Last.Close - base
	if base != 0 {
		s.ChangePct = s.Change / base * 100
	}
	return s, true
}

// String renders the one-line header form.
func (s Summary) String() string {
	ts := time.Unix(s.Last.Time, 0).UTC().Format("2006-01-02 15:04:05")
	return fmt.Sprintf("%s:%s %s  O:%.2f H:%.2f L:%.2f C:%.2f V:%s  %+.2f (%+.2f%%)  %s",
		s.Exchange, s.Token, s.Interval,
		s.Last.Open, s.Last.High, s.Last.Low, s.Last.Close, FormatVolume(s.Last.Volume),
		s.Change, s.ChangePct, ts)
}

// FormatVolume shortens a volume figure for display.
func FormatVolume(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
