package trend

import (
	"strings"
	"time"
)

// DefaultRange is used for empty or unrecognized range tokens.
const DefaultRange = "90d"

var rangeDays = map[string]int{
	"30d": 30,
	"90d": 90,
	"6m":  182,
	"1y":  365,
	"all": 0,
}

var rangeLabels = map[string]string{
	"30d": "Last 30 days",
	"90d": "Last 90 days",
	"6m":  "Last 6 months",
	"1y":  "Last year",
	"all": "All time",
}

// NormalizeRange maps a user token to one of 30d, 90d, 6m, 1y or all.
func NormalizeRange(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	if _, ok := rangeDays[t]; ok {
		return t
	}
	return DefaultRange
}

// RangeToCutoff returns the earliest race start included for token, or the
// zero time for "all".
func RangeToCutoff(token string, now time.Time) time.Time {
	days := rangeDays[NormalizeRange(token)]
	if days == 0 {
		return time.Time{}
	}
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

// RangeLabel is the human readable name of token.
func RangeLabel(token string) string {
	return rangeLabels[NormalizeRange(token)]
}
