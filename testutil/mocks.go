package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockIRacingServer creates a test server that mocks the iRacing data API and
// its token endpoint.
type MockIRacingServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu     sync.Mutex
	hits   map[string]int
	grants map[string]int
}

// NewMockIRacingServer creates a new mock iRacing API server
func NewMockIRacingServer(t *testing.T) *MockIRacingServer {
	t.Helper()
	m := &MockIRacingServer{
		Handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
		grants:   make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		m.mu.Lock()
		m.hits[key]++
		handler, ok := m.Handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers h for path.
func (m *MockIRacingServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

// Hits reports how many requests path received.
func (m *MockIRacingServer) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

// Grants reports how many token requests used grantType.
func (m *MockIRacingServer) Grants(grantType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[grantType]
}

// TokenURL is the mock token endpoint.
func (m *MockIRacingServer) TokenURL() string { return m.URL + "/oauth2/token" }

// MockTokenResponse adds a handler for the OAuth token endpoint. Every grant
// gets the same access and refresh token.
func (m *MockIRacingServer) MockTokenResponse(accessToken, refreshToken string, expiresIn int) {
	m.Handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm() //nolint:errcheck // test mock
		m.mu.Lock()
		m.grants[r.PostForm.Get("grant_type")]++
		m.mu.Unlock()
		writeJSON(w, map[string]any{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_in":    expiresIn,
			"token_type":    "Bearer",
		})
	})
}

// MockTokenFailure makes the token endpoint reject every grant.
func (m *MockIRacingServer) MockTokenFailure() {
	m.Handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`)) //nolint:errcheck // test mock response
	})
}

// MockLinkedData serves payload behind the link indirection the data API uses:
// path answers with {"link": ...} and the link answers with payload.
func (m *MockIRacingServer) MockLinkedData(path string, payload any) {
	linkPath := "/links" + path
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]string{"link": m.URL + linkPath})
	})
	m.Handle(linkPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, payload)
	})
}

// MockChunk serves rows as the chunk file name under /chunks/ and returns its URL.
func (m *MockIRacingServer) MockChunk(name string, rows []map[string]any) string {
	m.Handle("/chunks/"+name, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, rows)
	})
	return m.URL + "/chunks/" + name
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}
