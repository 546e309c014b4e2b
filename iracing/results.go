package iracing

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/onnwee/lap-trend/backend/trend"
)

type sessionResultsResponse struct {
	SessionResults []struct {
		SimsessionName string `json:"simsession_name"`
		Results        []struct {
			CustID      int64   `json:"cust_id"`
			BestLapTime float64 `json:"best_lap_time"`
		} `json:"results"`
	} `json:"session_results"`
}

// SessionDetail returns the labeled segments of a subsession with each
// competitor's best lap.
func (c *Client) SessionDetail(ctx context.Context, subsessionID int64) ([]trend.Segment, error) {
	v := url.Values{}
	v.Set("subsession_id", strconv.FormatInt(subsessionID, 10))
	var resp sessionResultsResponse
	if err := c.getData(ctx, "/data/results/get", v, &resp); err != nil {
		return nil, err
	}
	out := make([]trend.Segment, 0, len(resp.SessionResults))
	for _, s := range resp.SessionResults {
		seg := trend.Segment{Label: s.SimsessionName, Rows: make([]trend.SegmentRow, 0, len(s.Results))}
		for _, r := range s.Results {
			seg.Rows = append(seg.Rows, trend.SegmentRow{CustID: r.CustID, BestLap: r.BestLapTime})
		}
		out = append(out, seg)
	}
	return out, nil
}

type recentRacesResponse struct {
	Races []struct {
		SubsessionID     int64     `json:"subsession_id"`
		SessionStartTime time.Time `json:"session_start_time"`
		CarID            int       `json:"car_id"`
		Track            struct {
			TrackID int `json:"track_id"`
		} `json:"track"`
	} `json:"races"`
}

// RecentRaces lists a driver's most recent races, newest first as the API
// returns them.
func (c *Client) RecentRaces(ctx context.Context, custID int64) ([]trend.RaceResult, error) {
	v := url.Values{}
	v.Set("cust_id", strconv.FormatInt(custID, 10))
	var resp recentRacesResponse
	if err := c.getData(ctx, "/data/stats/member_recent_races", v, &resp); err != nil {
		return nil, err
	}
	out := make([]trend.RaceResult, 0, len(resp.Races))
	for _, r := range resp.Races {
		if r.SubsessionID == 0 {
			continue
		}
		out = append(out, trend.RaceResult{
			SubsessionID: r.SubsessionID,
			CarID:        r.CarID,
			TrackID:      r.Track.TrackID,
			StartTime:    r.SessionStartTime.UTC(),
		})
	}
	return out, nil
}

type membersResponse struct {
	Members []struct {
		CustID      int64  `json:"cust_id"`
		DisplayName string `json:"display_name"`
	} `json:"members"`
}

// ErrMemberNotFound is returned by MemberName for unknown customer ids.
var ErrMemberNotFound = errors.New("member not found")

// MemberName returns the display name of custID.
func (c *Client) MemberName(ctx context.Context, custID int64) (string, error) {
	v := url.Values{}
	v.Set("cust_ids", strconv.FormatInt(custID, 10))
	var resp membersResponse
	if err := c.getData(ctx, "/data/member/get", v, &resp); err != nil {
		return "", err
	}
	for _, m := range resp.Members {
		if m.CustID == custID {
			return m.DisplayName, nil
		}
	}
	return "", ErrMemberNotFound
}
