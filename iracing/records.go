package iracing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/onnwee/lap-trend/backend/trend"
)

type recordRow struct {
	PracticeLapTime  float64 `json:"practice_lap_time"`
	QualifyLapTime   float64 `json:"qualify_lap_time"`
	TimeTrialLapTime float64 `json:"tt_lap_time"`
	RaceLapTime      float64 `json:"race_lap_time"`
}

func (r recordRow) toTrend() trend.RecordRow {
	return trend.RecordRow{
		PracticeLap:  r.PracticeLapTime,
		QualifyLap:   r.QualifyLapTime,
		TimeTrialLap: r.TimeTrialLapTime,
		RaceLap:      r.RaceLapTime,
	}
}

func toTrendRows(rows []recordRow) []trend.RecordRow {
	out := make([]trend.RecordRow, len(rows))
	for i, r := range rows {
		out[i] = r.toTrend()
	}
	return out
}

type worldRecordsResponse struct {
	Data *struct {
		Success   bool        `json:"success"`
		Rows      []recordRow `json:"rows"`
		ChunkInfo *struct {
			BaseDownloadURL string   `json:"base_download_url"`
			ChunkFileNames  []string `json:"chunk_file_names"`
		} `json:"chunk_info"`
	} `json:"data"`
}

// ResolveRecordDataset looks up the record rows for a car/track combo. Large
// datasets come back as a list of chunk URLs to be fetched with FetchChunk.
// Session-type filters are applied by the caller; only the season narrows the
// request.
func (c *Client) ResolveRecordDataset(ctx context.Context, q trend.RecordQuery) (trend.Dataset, error) {
	v := url.Values{}
	v.Set("car_id", itoa(q.CarID))
	v.Set("track_id", itoa(q.TrackID))
	if q.Filters.SeasonYear > 0 {
		v.Set("season_year", itoa(q.Filters.SeasonYear))
	}
	if q.Filters.SeasonQuarter > 0 {
		v.Set("season_quarter", itoa(q.Filters.SeasonQuarter))
	}
	var resp worldRecordsResponse
	if err := c.getData(ctx, "/data/stats/world_records", v, &resp); err != nil {
		return trend.Dataset{}, err
	}
	if resp.Data == nil {
		return trend.Dataset{}, fmt.Errorf("world records: response has no data")
	}
	if ci := resp.Data.ChunkInfo; ci != nil && len(ci.ChunkFileNames) > 0 {
		urls := make([]string, len(ci.ChunkFileNames))
		for i, name := range ci.ChunkFileNames {
			urls[i] = ci.BaseDownloadURL + name
		}
		return trend.Redirected(urls), nil
	}
	if len(resp.Data.Rows) > 0 {
		return trend.Direct(toTrendRows(resp.Data.Rows)), nil
	}
	return trend.Dataset{}, nil
}

// FetchChunk downloads one record chunk. Chunk URLs are pre-signed and are
// fetched without credentials.
func (c *Client) FetchChunk(ctx context.Context, chunkURL string) ([]trend.RecordRow, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	body, err := c.fetch(ctx, chunkURL, "")
	if err != nil {
		return nil, err
	}
	var rows []recordRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode chunk: %w", err)
	}
	return toTrendRows(rows), nil
}
