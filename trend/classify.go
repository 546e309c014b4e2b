package trend

import (
	"regexp"
	"sync"
)

// SegmentKind is the classification of a subsession segment label.
type SegmentKind int

const (
	SegmentOther SegmentKind = iota
	SegmentRace
	SegmentQualify
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentRace:
		return "race"
	case SegmentQualify:
		return "qualify"
	default:
		return "other"
	}
}

var (
	racePattern    = sync.OnceValue(func() *regexp.Regexp { return regexp.MustCompile(`(?i)race`) })
	qualifyPattern = sync.OnceValue(func() *regexp.Regexp { return regexp.MustCompile(`(?i)qualify`) })
)

// ClassifySegment labels a segment. RACE wins when the label matches "race"
// and not "qualify"; otherwise a "qualify" match is QUALIFY. Matching is
// case-insensitive.
func ClassifySegment(label string) SegmentKind {
	isQualify := qualifyPattern().MatchString(label)
	if racePattern().MatchString(label) && !isQualify {
		return SegmentRace
	}
	if isQualify {
		return SegmentQualify
	}
	return SegmentOther
}

// BestLapFromSegments returns custID's best lap in the first RACE segment.
// ok is false when there is no race segment, no row for the driver, or the
// lap is not positive.
func BestLapFromSegments(segments []Segment, custID int64) (lap float64, ok bool) {
	for _, seg := range segments {
		if ClassifySegment(seg.Label) != SegmentRace {
			continue
		}
		for _, row := range seg.Rows {
			if row.CustID != custID {
				continue
			}
			if !validLap(row.BestLap) {
				return 0, false
			}
			return row.BestLap, true
		}
		return 0, false
	}
	return 0, false
}
