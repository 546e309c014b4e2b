// Package oauth refreshes a persisted upstream OAuth token ahead of expiry so
// that restarts and multiple replicas pick up a live token from the database.
package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/oauth2"
)

// TokenStore persists tokens by provider name.
type TokenStore interface {
	GetOAuthToken(ctx context.Context, provider string) (*oauth2.Token, error)
	UpsertOAuthToken(ctx context.Context, provider string, tok *oauth2.Token) error
}

// RefreshFunc performs the provider-specific refresh grant.
type RefreshFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

// RefreshIfDue refreshes the stored token for provider when its remaining
// lifetime is at most window. It reports whether a refresh happened. Missing
// tokens and tokens without a refresh token are left alone.
func RefreshIfDue(ctx context.Context, store TokenStore, provider string, window time.Duration, fn RefreshFunc) (bool, error) {
	tok, err := store.GetOAuthToken(ctx, provider)
	if err != nil {
		return false, fmt.Errorf("load %s token: %w", provider, err)
	}
	if tok == nil || tok.RefreshToken == "" {
		return false, nil
	}
	if !tok.Expiry.IsZero() && time.Until(tok.Expiry) > window {
		return false, nil
	}
	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	fresh, err := fn(ctx2, tok.RefreshToken)
	if err != nil {
		return false, fmt.Errorf("refresh %s token: %w", provider, err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	if err := store.UpsertOAuthToken(ctx, provider, fresh); err != nil {
		return false, fmt.Errorf("persist %s token: %w", provider, err)
	}
	return true, nil
}

// StartRefresher launches a goroutine that periodically checks the stored
// token for provider and refreshes it when it expires within window.
func StartRefresher(ctx context.Context, store TokenStore, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval/2) + 1))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			refreshed, err := RefreshIfDue(ctx, store, provider, window, fn)
			switch {
			case err != nil:
				slog.Warn("token refresh failed", slog.String("provider", provider), slog.Any("err", err), slog.String("component", "oauth_refresh"))
			case refreshed:
				slog.Info("token refreshed", slog.String("provider", provider), slog.String("component", "oauth_refresh"))
			}
			// ±20% of interval
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			next := interval + time.Duration(rand.Int63n(jitterRange*2+1)-jitterRange)
			select {
			case <-ctx.Done():
				return
			case <-time.After(next):
			}
		}
	}()
}
