package db

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"time"
)

// LinkedDriver is a chat account linked to a racing customer id.
type LinkedDriver struct {
	Platform     string
	Username     string
	CustID       int64
	DisplayName  string
	LastSyncedAt time.Time
}

func normalizeUsername(u string) string { return strings.ToLower(strings.TrimSpace(u)) }

// LinkUser links (or relinks) a chat user to custID.
func (s *Store) LinkUser(ctx context.Context, platform, username string, custID int64, displayName string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO linked_users (platform, username, cust_id, display_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (platform, username) DO UPDATE SET
		   cust_id = EXCLUDED.cust_id,
		   display_name = EXCLUDED.display_name,
		   updated_at = NOW()`,
		platform, normalizeUsername(username), custID, displayName)
	return err
}

// UnlinkUser removes a link. It returns ErrNotLinked when there was none.
func (s *Store) UnlinkUser(ctx context.Context, platform, username string) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM linked_users WHERE platform = $1 AND username = $2`,
		platform, normalizeUsername(username))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotLinked
	}
	return nil
}

// LinkedDriver looks up the driver linked to a chat user.
func (s *Store) LinkedDriver(ctx context.Context, platform, username string) (LinkedDriver, error) {
	d := LinkedDriver{Platform: platform, Username: normalizeUsername(username)}
	var synced sql.NullTime
	err := s.DB.QueryRowContext(ctx,
		`SELECT cust_id, display_name, last_synced_at FROM linked_users
		 WHERE platform = $1 AND username = $2`,
		platform, d.Username).Scan(&d.CustID, &d.DisplayName, &synced)
	if errors.Is(err, sql.ErrNoRows) {
		return LinkedDriver{}, ErrNotLinked
	}
	if err != nil {
		return LinkedDriver{}, err
	}
	d.LastSyncedAt = synced.Time
	return d, nil
}

// ListLinkedDrivers returns one entry per distinct customer id, least
// recently synced first.
func (s *Store) ListLinkedDrivers(ctx context.Context) ([]LinkedDriver, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT ON (cust_id) platform, username, cust_id, display_name, last_synced_at
		 FROM linked_users
		 ORDER BY cust_id, last_synced_at ASC NULLS FIRST`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LinkedDriver
	for rows.Next() {
		var d LinkedDriver
		var synced sql.NullTime
		if err := rows.Scan(&d.Platform, &d.Username, &d.CustID, &d.DisplayName, &synced); err != nil {
			return nil, err
		}
		d.LastSyncedAt = synced.Time
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// oldest sync first so a slow pass still reaches everyone eventually
	slices.SortStableFunc(out, func(a, b LinkedDriver) int { return a.LastSyncedAt.Compare(b.LastSyncedAt) })
	return out, nil
}

// MarkSynced records a completed history sync for every link to custID.
func (s *Store) MarkSynced(ctx context.Context, custID int64, at time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE linked_users SET last_synced_at = $2 WHERE cust_id = $1`, custID, at)
	return err
}
