package candle

import (
	"fmt"
	"time"
)

// TimeLayout is the canonical second-precision timestamp form used in
// request URLs and config files. All chart times are UTC.
const TimeLayout = "2006-01-02T15:04:05"

// timeLayouts lists the accepted input forms, most precise first. Inputs
// without seconds or without a time of day are canonicalized to whole
// seconds at the start of the omitted unit.
var timeLayouts = []string{
	TimeLayout,
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses a chart timestamp in any accepted form.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("candle: invalid timestamp %q", s)
}

// FormatTime renders t in the canonical request form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
