package trend

import (
	"context"
	"errors"
	"sync"
)

var errUpstream = errors.New("upstream exploded")

type fakeGateway struct {
	mu sync.Mutex

	datasets   map[RecordKey]Dataset
	datasetErr map[RecordKey]error
	chunks     map[string][]RecordRow
	chunkErr   map[string]error
	sessions   map[int64][]Segment
	sessionErr map[int64]error
	readyErr   error

	datasetCalls int
	chunkCalls   int
	sessionCalls map[int64]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		datasets:     map[RecordKey]Dataset{},
		datasetErr:   map[RecordKey]error{},
		chunks:       map[string][]RecordRow{},
		chunkErr:     map[string]error{},
		sessions:     map[int64][]Segment{},
		sessionErr:   map[int64]error{},
		sessionCalls: map[int64]int{},
	}
}

func (f *fakeGateway) Ready(context.Context) error { return f.readyErr }

func (f *fakeGateway) ResolveRecordDataset(_ context.Context, q RecordQuery) (Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.datasetCalls++
	if err := f.datasetErr[q.Key()]; err != nil {
		return Dataset{}, err
	}
	return f.datasets[q.Key()], nil
}

func (f *fakeGateway) FetchChunk(_ context.Context, url string) ([]RecordRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkCalls++
	if err := f.chunkErr[url]; err != nil {
		return nil, err
	}
	return f.chunks[url], nil
}

func (f *fakeGateway) SessionDetail(_ context.Context, id int64) ([]Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionCalls[id]++
	if err := f.sessionErr[id]; err != nil {
		return nil, err
	}
	return f.sessions[id], nil
}

// raceSession builds session detail where custID's best race lap is lap.
func raceSession(custID int64, lap float64) []Segment {
	return []Segment{
		{Label: "PRACTICE", Rows: []SegmentRow{{CustID: custID, BestLap: lap - 100}}},
		{Label: "QUALIFY", Rows: []SegmentRow{{CustID: custID, BestLap: lap - 50}}},
		{Label: "RACE", Rows: []SegmentRow{{CustID: 1, BestLap: 1}, {CustID: custID, BestLap: lap}}},
	}
}

type fakeStore struct {
	history []RaceResult
	err     error
}

func (s *fakeStore) RaceHistory(context.Context, int64) ([]RaceResult, error) {
	return s.history, s.err
}
