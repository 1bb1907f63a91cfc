package availability

import (
	"fmt"
	"time"
)

// FormatRemaining renders a duration with its two most significant units,
// e.g. "2 days 3 hours" or "4 minutes 1 second".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0 seconds"
	}
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return plural(days, "day") + " " + plural(hours%24, "hour")
	case hours > 0:
		return plural(hours, "hour") + " " + plural(minutes%60, "minute")
	case minutes > 0:
		return plural(minutes, "minute") + " " + plural(seconds%60, "second")
	}
	return plural(seconds, "second")
}

// FormatClock renders whole seconds as m:ss.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
