package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/lap-trend/backend/chart"
	"github.com/onnwee/lap-trend/backend/timeutil"
)

// DefaultChartTTL is how long a published chart stays retrievable.
const DefaultChartTTL = 30 * time.Minute

type storedChart struct {
	chart   *chart.Chart
	expires time.Time
}

// ChartStore keeps rendered charts in memory under random ids until they
// expire. It implements chat.ChartPublisher.
type ChartStore struct {
	mu      sync.Mutex
	charts  map[string]storedChart
	ttl     time.Duration
	baseURL string
	clock   timeutil.Clock
}

// NewChartStore returns a store whose published URLs start with baseURL.
func NewChartStore(baseURL string, ttl time.Duration, clock timeutil.Clock) *ChartStore {
	if ttl <= 0 {
		ttl = DefaultChartTTL
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ChartStore{
		charts:  make(map[string]storedChart),
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   clock,
	}
}

// Put stores c and returns its id.
func (s *ChartStore) Put(c *chart.Chart) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.charts[id] = storedChart{chart: c, expires: s.clock.Now().Add(s.ttl)}
	return id
}

// Get returns the chart stored under id if it has not expired.
func (s *ChartStore) Get(id string) (*chart.Chart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.charts[id]
	if !ok {
		return nil, false
	}
	if !s.clock.Now().Before(sc.expires) {
		delete(s.charts, id)
		return nil, false
	}
	return sc.chart, true
}

// Publish stores c and returns the URL of its SVG rendition.
func (s *ChartStore) Publish(c *chart.Chart) string {
	return s.URL(s.Put(c), "svg")
}

// URL builds the public address of a stored chart in the given format.
func (s *ChartStore) URL(id, ext string) string {
	return s.baseURL + "/charts/" + id + "." + ext
}

// Len reports the number of stored charts, expired ones included until swept.
func (s *ChartStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.charts)
}

// Sweep drops expired charts and returns how many were removed.
func (s *ChartStore) Sweep() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sc := range s.charts {
		if !now.Before(sc.expires) {
			delete(s.charts, id)
			n++
		}
	}
	return n
}

// StartSweeper removes expired charts every interval until ctx is done.
func (s *ChartStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
