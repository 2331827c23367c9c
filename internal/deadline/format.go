package deadline

import "fmt"

// FormatMinutes renders a duration the way history entries show it,
// e.g. "2 hours and 15 minutes", "45 minutes", "1 hour".
func FormatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	hours, rest := minutes/60, minutes%60
	switch {
	case hours == 0:
		return plural(rest, "minute")
	case rest == 0:
		return plural(hours, "hour")
	default:
		return plural(hours, "hour") + " and " + plural(rest, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
