package iracing

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/onnwee/lap-trend/backend/testutil"
	"github.com/onnwee/lap-trend/backend/trend"
)

type staticToken string

func (s staticToken) Get(context.Context) (string, error) { return string(s), nil }

type failingToken struct{}

func (failingToken) Get(context.Context) (string, error) { return "", errors.New("bad password") }

func newClient(m *testutil.MockIRacingServer) *Client {
	return &Client{BaseURL: m.URL, Tokens: staticToken("tok"), HTTPClient: m.Client(), Timeout: 2 * time.Second}
}

func TestReady(t *testing.T) {
	m := testutil.NewMockIRacingServer(t)
	if err := newClient(m).Ready(context.Background()); err != nil {
		t.Errorf("Ready() = %v", err)
	}

	c := &Client{BaseURL: m.URL, Tokens: failingToken{}}
	if err := c.Ready(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Ready() = %v, want ErrUnavailable", err)
	}
	if err := (&Client{}).Ready(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Ready() without tokens = %v, want ErrUnavailable", err)
	}
}

func TestResolveRecordDataset(t *testing.T) {
	q := trend.RecordQuery{CarID: 12, TrackID: 34, Filters: trend.DefaultFilters()}

	t.Run("inline rows", func(t *testing.T) {
		m := testutil.NewMockIRacingServer(t)
		m.MockLinkedData("/data/stats/world_records", map[string]any{
			"data": map[string]any{
				"success": true,
				"rows": []map[string]any{
					{"practice_lap_time": 9100, "race_lap_time": 9050},
					{"qualify_lap_time": 9020, "tt_lap_time": -1},
				},
			},
		})
		ds, err := newClient(m).ResolveRecordDataset(context.Background(), q)
		if err != nil {
			t.Fatalf("ResolveRecordDataset() error = %v", err)
		}
		want := trend.Direct([]trend.RecordRow{
			{PracticeLap: 9100, RaceLap: 9050},
			{QualifyLap: 9020, TimeTrialLap: -1},
		})
		if diff := cmp.Diff(want, ds); diff != "" {
			t.Errorf("dataset mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("chunked", func(t *testing.T) {
		m := testutil.NewMockIRacingServer(t)
		m.MockLinkedData("/data/stats/world_records", map[string]any{
			"data": map[string]any{
				"success": true,
				"chunk_info": map[string]any{
					"base_download_url": m.URL + "/chunks/",
					"chunk_file_names":  []string{"a.json", "b.json"},
				},
			},
		})
		ds, err := newClient(m).ResolveRecordDataset(context.Background(), q)
		if err != nil {
			t.Fatalf("ResolveRecordDataset() error = %v", err)
		}
		want := trend.Redirected([]string{m.URL + "/chunks/a.json", m.URL + "/chunks/b.json"})
		if diff := cmp.Diff(want, ds); diff != "" {
			t.Errorf("dataset mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("empty", func(t *testing.T) {
		m := testutil.NewMockIRacingServer(t)
		m.MockLinkedData("/data/stats/world_records", map[string]any{"data": map[string]any{"success": true}})
		ds, err := newClient(m).ResolveRecordDataset(context.Background(), q)
		if err != nil || ds.Kind != trend.DatasetEmpty {
			t.Errorf("ResolveRecordDataset() = %+v, %v; want empty dataset", ds, err)
		}
	})

	t.Run("malformed payload fails closed", func(t *testing.T) {
		m := testutil.NewMockIRacingServer(t)
		m.MockLinkedData("/data/stats/world_records", map[string]any{"data": "nope"})
		if _, err := newClient(m).ResolveRecordDataset(context.Background(), q); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("season parameters", func(t *testing.T) {
		m := testutil.NewMockIRacingServer(t)
		m.Handle("/data/stats/world_records", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("season_year") != "2024" || r.URL.Query().Get("season_quarter") != "2" {
				t.Errorf("query = %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{"data":{"success":true}}`))
		})
		sq := q
		sq.Filters.SeasonYear, sq.Filters.SeasonQuarter = 2024, 2
		if _, err := newClient(m).ResolveRecordDataset(context.Background(), sq); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("unauthorized is unavailable", func(t *testing.T) {
		m := testutil.NewMockIRacingServer(t)
		m.Handle("/data/stats/world_records", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := newClient(m).ResolveRecordDataset(context.Background(), q)
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("err = %v, want ErrUnavailable", err)
		}
	})
}

func TestFetchChunk(t *testing.T) {
	m := testutil.NewMockIRacingServer(t)
	u := m.MockChunk("a.json", []map[string]any{{"race_lap_time": 9000}, {"qualify_lap_time": 8990}})
	rows, err := newClient(m).FetchChunk(context.Background(), u)
	if err != nil {
		t.Fatalf("FetchChunk() error = %v", err)
	}
	want := []trend.RecordRow{{RaceLap: 9000}, {QualifyLap: 8990}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	if _, err := newClient(m).FetchChunk(context.Background(), m.URL+"/chunks/missing.json"); err == nil {
		t.Error("expected error for missing chunk")
	}
}

func TestSessionDetail(t *testing.T) {
	m := testutil.NewMockIRacingServer(t)
	m.MockLinkedData("/data/results/get", map[string]any{
		"session_results": []map[string]any{
			{"simsession_name": "QUALIFY", "results": []map[string]any{{"cust_id": 7, "best_lap_time": 9010}}},
			{"simsession_name": "RACE", "results": []map[string]any{{"cust_id": 7, "best_lap_time": 9030}, {"cust_id": 8, "best_lap_time": -1}}},
		},
	})
	segs, err := newClient(m).SessionDetail(context.Background(), 555)
	if err != nil {
		t.Fatalf("SessionDetail() error = %v", err)
	}
	want := []trend.Segment{
		{Label: "QUALIFY", Rows: []trend.SegmentRow{{CustID: 7, BestLap: 9010}}},
		{Label: "RACE", Rows: []trend.SegmentRow{{CustID: 7, BestLap: 9030}, {CustID: 8, BestLap: -1}}},
	}
	if diff := cmp.Diff(want, segs); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
	if m.Hits("/links/data/results/get") != 1 {
		t.Error("link was not followed")
	}
}

func TestRecentRaces(t *testing.T) {
	m := testutil.NewMockIRacingServer(t)
	m.MockLinkedData("/data/stats/member_recent_races", map[string]any{
		"races": []map[string]any{
			{"subsession_id": 2, "session_start_time": "2025-05-02T18:00:00Z", "car_id": 10, "track": map[string]any{"track_id": 20}},
			{"subsession_id": 0, "session_start_time": "2025-05-01T18:00:00Z"},
		},
	})
	races, err := newClient(m).RecentRaces(context.Background(), 7)
	if err != nil {
		t.Fatalf("RecentRaces() error = %v", err)
	}
	want := []trend.RaceResult{{SubsessionID: 2, CarID: 10, TrackID: 20, StartTime: time.Date(2025, 5, 2, 18, 0, 0, 0, time.UTC)}}
	if diff := cmp.Diff(want, races); diff != "" {
		t.Errorf("races mismatch (-want +got):\n%s", diff)
	}
}

func TestMemberName(t *testing.T) {
	m := testutil.NewMockIRacingServer(t)
	m.MockLinkedData("/data/member/get", map[string]any{
		"members": []map[string]any{{"cust_id": 7, "display_name": "Sam Driver"}},
	})
	c := newClient(m)
	name, err := c.MemberName(context.Background(), 7)
	if err != nil || name != "Sam Driver" {
		t.Errorf("MemberName(7) = %q, %v", name, err)
	}
	if _, err := c.MemberName(context.Background(), 8); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("MemberName(8) err = %v, want ErrMemberNotFound", err)
	}
}
