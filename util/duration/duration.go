// Package duration parses the human duration strings used in moderation
// config ("10m", "12h", "1d", "1d6h30m"). Day units are accepted on top of
// what time.ParseDuration supports, since ban and mute lengths are commonly
// written in days.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationRegexp = regexp.MustCompile(`^(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// Parse converts a duration string to a time.Duration. An empty string or a
// string with no recognized unit is an error.
func Parse(s string) (time.Duration, error) {
	m := durationRegexp.FindStringSubmatch(s)
	if m == nil || s == "" {
		return 0, fmt.Errorf("unparseable duration: %q", s)
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var total time.Duration
	any := false
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable duration: %q", s)
		}
		total += time.Duration(n) * unit
		any = true
	}
	if !any {
		return 0, fmt.Errorf("unparseable duration: %q", s)
	}
	return total, nil
}
