package trend

import (
	"context"
	"time"
)

// RaceResult is one row of a driver's stored race history.
type RaceResult struct {
	SubsessionID int64
	CarID        int
	TrackID      int
	StartTime    time.Time
}

// RacePoint is a derived sample: how far the driver's best race lap was from
// the record, in percent.
type RacePoint struct {
	Time    time.Time
	Percent float64
}

// TrendPoint is one sample of the smoothed curve.
type TrendPoint struct {
	Time  time.Time
	Value float64
}

// RecordRow is a single entry of a record dataset. Lap times share one unit
// across the upstream API; zero means the field was absent.
type RecordRow struct {
	PracticeLap  float64
	QualifyLap   float64
	TimeTrialLap float64
	RaceLap      float64
}

// DatasetKind tags how a record dataset was delivered.
type DatasetKind int

const (
	DatasetEmpty DatasetKind = iota
	DatasetDirect
	DatasetRedirected
)

// Dataset is the envelope returned by the gateway for a record query: either
// the rows inline or the list of chunk URLs holding them.
type Dataset struct {
	Kind      DatasetKind
	Rows      []RecordRow
	ChunkURLs []string
}

// Direct wraps inline rows.
func Direct(rows []RecordRow) Dataset { return Dataset{Kind: DatasetDirect, Rows: rows} }

// Redirected wraps chunk URLs that must be fetched separately.
func Redirected(urls []string) Dataset { return Dataset{Kind: DatasetRedirected, ChunkURLs: urls} }

// Segment is one labeled phase (practice, qualifying, race) of a subsession.
type Segment struct {
	Label string
	Rows  []SegmentRow
}

// SegmentRow is one competitor's line within a segment. BestLap is zero when
// the competitor set no valid lap.
type SegmentRow struct {
	CustID  int64
	BestLap float64
}

// HistoryStore provides a driver's race history ordered by start time ascending.
type HistoryStore interface {
	RaceHistory(ctx context.Context, custID int64) ([]RaceResult, error)
}

// RecordGateway is the part of the upstream API the Resolver needs.
type RecordGateway interface {
	ResolveRecordDataset(ctx context.Context, q RecordQuery) (Dataset, error)
	FetchChunk(ctx context.Context, url string) ([]RecordRow, error)
}

// SessionGateway returns the segments of a completed subsession.
type SessionGateway interface {
	SessionDetail(ctx context.Context, subsessionID int64) ([]Segment, error)
}

// Gateway is the full upstream surface used by the Engine. Ready reports
// whether the upstream can be used at all (credentials, reachability); it is
// the only gateway error the Engine returns to callers.
type Gateway interface {
	RecordGateway
	SessionGateway
	Ready(ctx context.Context) error
}
