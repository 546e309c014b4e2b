package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// UpsertOAuthToken stores the token for provider. With a Sealer configured the
// access and refresh tokens are encrypted and the row is marked
// encryption_version=1; otherwise it is stored as plaintext (version 0).
func (s *Store) UpsertOAuthToken(ctx context.Context, provider string, tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("nil token")
	}
	access, refresh := tok.AccessToken, tok.RefreshToken
	version, keyID := 0, ""
	if s.Sealer != nil {
		var err error
		if access, err = s.Sealer.Seal(access); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		if refresh, err = s.Sealer.Seal(refresh); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		version, keyID = 1, s.Sealer.KeyID()
	}
	var expiry sql.NullTime
	if !tok.Expiry.IsZero() {
		expiry = sql.NullTime{Time: tok.Expiry, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO oauth_tokens (provider, access_token, refresh_token, token_type, expires_at, encryption_version, encryption_key_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (provider) DO UPDATE SET
		   access_token = EXCLUDED.access_token,
		   refresh_token = EXCLUDED.refresh_token,
		   token_type = EXCLUDED.token_type,
		   expires_at = EXCLUDED.expires_at,
		   encryption_version = EXCLUDED.encryption_version,
		   encryption_key_id = EXCLUDED.encryption_key_id,
		   updated_at = NOW()`,
		provider, access, refresh, tok.TokenType, expiry, version, keyID)
	return err
}

// GetOAuthToken returns the stored token for provider, or nil when none is
// stored. Plaintext rows written before encryption was enabled are still read.
func (s *Store) GetOAuthToken(ctx context.Context, provider string) (*oauth2.Token, error) {
	var (
		tok     oauth2.Token
		expiry  sql.NullTime
		version int
		keyID   string
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, token_type, expires_at, encryption_version, encryption_key_id
		 FROM oauth_tokens WHERE provider = $1`, provider).
		Scan(&tok.AccessToken, &tok.RefreshToken, &tok.TokenType, &expiry, &version, &keyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tok.Expiry = expiry.Time

	if version == 1 {
		if s.Sealer == nil {
			return nil, errors.New("token is encrypted but ENCRYPTION_KEY not configured")
		}
		if keyID != "" && keyID != s.Sealer.KeyID() {
			return nil, fmt.Errorf("token was encrypted with key %s, configured key is %s", keyID, s.Sealer.KeyID())
		}
		if tok.AccessToken, err = s.Sealer.Open(tok.AccessToken); err != nil {
			return nil, fmt.Errorf("decrypt access token: %w", err)
		}
		if tok.RefreshToken, err = s.Sealer.Open(tok.RefreshToken); err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return &tok, nil
}
