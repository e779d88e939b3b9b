package track

import (
	"fmt"
	"time"
)

// FormatTime renders a duration as m:ss. Negative durations render as 0:00.
func FormatTime(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FormatSeconds renders fractional seconds as m:ss.
func FormatSeconds(s float64) string {
	if s != s || s < 0 { // NaN or negative
		return "0:00"
	}
	return FormatTime(time.Duration(s * float64(time.Second)))
}
