package ratelimit

import (
	"regexp"
	"strconv"
)

// resetPatterns are tried in order against an Upstream 429 body. Each
// capture group list is (hours, minutes, seconds) with missing groups
// left as "".
var resetPatterns = []struct {
	re      *regexp.Regexp
	hours   int
	minutes int
	seconds int
}{
	{regexp.MustCompile(`(?i)reset after (\d+)h(\d+)m(\d+)s`), 1, 2, 3},
	{regexp.MustCompile(`(?i)reset after (\d+)h(\d+)m`), 1, 2, 0},
	{regexp.MustCompile(`(?i)reset after (\d+)h`), 1, 0, 0},
	{regexp.MustCompile(`(?i)reset after (\d+)m(\d+)s`), 0, 1, 2},
	{regexp.MustCompile(`(?i)reset after (\d+)m`), 0, 1, 0},
	{regexp.MustCompile(`(?i)reset after (\d+)s`), 0, 0, 1},
}

// ParseResetTime extracts a cooldown in milliseconds from an Upstream 429
// response body, trying each pattern in resetPatterns in order and
// returning on the first match. Returns (0, false) if nothing matches;
// callers should interpret that as "use the default cooldown".
func ParseResetTime(body string) (int64, bool) {
	for _, p := range resetPatterns {
		m := p.re.FindStringSubmatch(body)
		if m == nil {
			continue
		}

		var hours, minutes, seconds int64
		if p.hours != 0 {
			hours, _ = strconv.ParseInt(m[p.hours], 10, 64)
		}
		if p.minutes != 0 {
			minutes, _ = strconv.ParseInt(m[p.minutes], 10, 64)
		}
		if p.seconds != 0 {
			seconds, _ = strconv.ParseInt(m[p.seconds], 10, 64)
		}

		total := hours*3600_000 + minutes*60_000 + seconds*1000
		return total, true
	}
	return 0, false
}
