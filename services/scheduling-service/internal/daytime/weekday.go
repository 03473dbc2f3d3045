package daytime

import (
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{}

func init() {
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		weekdayNames[full] = d
		weekdayNames[full[:3]] = d
	}
	weekdayNames["tues"] = time.Tuesday
	weekdayNames["thur"] = time.Thursday
	weekdayNames["thurs"] = time.Thursday
}

// ParseWeekday accepts full or abbreviated English names in any case
// ("Monday", "mon", "MON").
func ParseWeekday(s string) (time.Weekday, bool) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	return d, ok
}

// ContainsWeekday reports whether days names wd. Unrecognized names are
// ignored.
func ContainsWeekday(days []string, wd time.Weekday) bool {
	for _, s := range days {
		if d, ok := ParseWeekday(s); ok && d == wd {
			return true
		}
	}
	return false
}

// CanonicalDays normalizes day names to full English names, dropping
// duplicates. The second result lists names that could not be parsed.
func CanonicalDays(days []string) ([]string, []string) {
	seen := map[time.Weekday]bool{}
	var out, bad []string
	for _, s := range days {
		d, ok := ParseWeekday(s)
		if !ok {
			bad = append(bad, s)
			continue
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d.String())
	}
	return out, bad
}
