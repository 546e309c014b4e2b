package iracing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// expiryBuffer is how long before expiry a cached token stops being handed out.
const expiryBuffer = 60 * time.Second

// TokenSource fetches and caches an upstream access token. The first token is
// obtained with the password grant; later ones use the refresh token when the
// server issued one and fall back to the password grant otherwise.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Username     string
	Password     string
	HTTPClient   *http.Client

	// OnToken, when set, is called with every newly issued token while the
	// source's lock is held. It must not call back into the TokenSource.
	OnToken func(ctx context.Context, tok *oauth2.Token)

	mu  sync.RWMutex
	tok *oauth2.Token
}

func (ts *TokenSource) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     ts.ClientID,
		ClientSecret: ts.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  ts.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (ts *TokenSource) ctx(ctx context.Context) context.Context {
	if ts.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
	}
	return ctx
}

func usable(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	return tok.Expiry.IsZero() || time.Until(tok.Expiry) > expiryBuffer
}

// Get returns a valid (fresh or cached) access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if usable(ts.tok) {
		tok := ts.tok.AccessToken
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if usable(ts.tok) {
		return ts.tok.AccessToken, nil
	}
	var tok *oauth2.Token
	var err error
	if ts.tok != nil && ts.tok.RefreshToken != "" {
		tok, err = ts.refresh(ctx, ts.tok.RefreshToken)
	}
	if tok == nil {
		if err != nil {
			// the refresh token may have been revoked; start over
			ts.tok = nil
		}
		tok, err = ts.passwordGrant(ctx)
		if err != nil {
			return "", err
		}
	}
	ts.store(ctx, tok)
	return tok.AccessToken, nil
}

// Refresh exchanges refreshToken for a new token and caches it. It is the
// refresh hook the background token refresher calls.
func (ts *TokenSource) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	tok, err := ts.refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	ts.store(ctx, tok)
	return tok, nil
}

// Seed installs a previously persisted token, for example one loaded from the
// database at startup.
func (ts *TokenSource) Seed(tok *oauth2.Token) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.tok = tok
}

// Token returns a copy of the cached token, or nil.
func (ts *TokenSource) Token() *oauth2.Token {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if ts.tok == nil {
		return nil
	}
	cp := *ts.tok
	return &cp
}

func (ts *TokenSource) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if ts.TokenURL == "" {
		return nil, errors.New("missing token url")
	}
	tok, err := ts.config().TokenSource(ts.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token grant: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

func (ts *TokenSource) passwordGrant(ctx context.Context) (*oauth2.Token, error) {
	if ts.TokenURL == "" || ts.ClientID == "" || ts.Username == "" || ts.Password == "" {
		return nil, errors.New("missing client id, username or password for upstream token")
	}
	tok, err := ts.config().PasswordCredentialsToken(ts.ctx(ctx), ts.Username, ts.Password)
	if err != nil {
		return nil, fmt.Errorf("password grant: %w", err)
	}
	return tok, nil
}

func (ts *TokenSource) store(ctx context.Context, tok *oauth2.Token) {
	ts.tok = tok
	if ts.OnToken != nil {
		cp := *tok
		ts.OnToken(ctx, &cp)
	}
}
