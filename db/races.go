package db

import (
	"context"
	"fmt"

	"github.com/onnwee/lap-trend/backend/trend"
)

// RaceHistory returns custID's stored races ordered by start time ascending.
func (s *Store) RaceHistory(ctx context.Context, custID int64) ([]trend.RaceResult, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT subsession_id, car_id, track_id, start_time
		 FROM race_results WHERE cust_id = $1
		 ORDER BY start_time ASC, subsession_id ASC`, custID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trend.RaceResult
	for rows.Next() {
		var r trend.RaceResult
		if err := rows.Scan(&r.SubsessionID, &r.CarID, &r.TrackID, &r.StartTime); err != nil {
			return nil, err
		}
		r.StartTime = r.StartTime.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertRaceResults stores races for custID, ignoring ones already present,
// and returns how many were new.
func (s *Store) UpsertRaceResults(ctx context.Context, custID int64, races []trend.RaceResult) (int, error) {
	if len(races) == 0 {
		return 0, nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO race_results (cust_id, subsession_id, car_id, track_id, start_time)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (cust_id, subsession_id) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range races {
		res, err := stmt.ExecContext(ctx, custID, r.SubsessionID, r.CarID, r.TrackID, r.StartTime)
		if err != nil {
			return 0, fmt.Errorf("insert subsession %d: %w", r.SubsessionID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}
