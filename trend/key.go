package trend

import (
	"strconv"
	"strings"
)

// Filters narrows which record rows count toward the resolved record.
// SeasonYear and SeasonQuarter are optional; zero means unset.
type Filters struct {
	SeasonYear    int
	SeasonQuarter int
	Practice      bool
	Qualify       bool
	TimeTrial     bool
	Race          bool
}

// DefaultFilters enables every session type across all seasons.
func DefaultFilters() Filters {
	return Filters{Practice: true, Qualify: true, TimeTrial: true, Race: true}
}

func (f Filters) mask() string {
	var b strings.Builder
	for _, on := range [...]bool{f.Practice, f.Qualify, f.TimeTrial, f.Race} {
		if on {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// RecordQuery identifies one record lookup.
type RecordQuery struct {
	CarID   int
	TrackID int
	Filters Filters
}

// RecordKey is the cache key for a RecordQuery.
type RecordKey string

// Key renders a deterministic key, e.g. "wr:123:456:2024:*:1111".
func (q RecordQuery) Key() RecordKey {
	season := func(v int) string {
		if v <= 0 {
			return "*"
		}
		return strconv.Itoa(v)
	}
	parts := []string{
		"wr",
		strconv.Itoa(q.CarID),
		strconv.Itoa(q.TrackID),
		season(q.Filters.SeasonYear),
		season(q.Filters.SeasonQuarter),
		q.Filters.mask(),
	}
	return RecordKey(strings.Join(parts, ":"))
}
