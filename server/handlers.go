package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/onnwee/lap-trend/backend/db"
	"github.com/onnwee/lap-trend/backend/trend"
)

// TrendBuilder builds charts and exposes the shared record cache.
type TrendBuilder interface {
	Build(ctx context.Context, req trend.Request) (*trend.Result, error)
	FlushRecords() int
	CachedRecords() int
}

// LinkLookup resolves chat usernames to linked drivers.
type LinkLookup interface {
	LinkedDriver(ctx context.Context, platform, username string) (db.LinkedDriver, error)
}

// Pinger checks a dependency's liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Upstream reports whether the upstream API can be used.
type Upstream interface {
	Ready(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	Engine   TrendBuilder
	Links    LinkLookup
	DB       Pinger
	Upstream Upstream
	Charts   *ChartStore
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(engine TrendBuilder, links LinkLookup, database Pinger, upstream Upstream, charts *ChartStore) *Handlers {
	return &Handlers{
		Engine:   engine,
		Links:    links,
		DB:       database,
		Upstream: upstream,
		Charts:   charts,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
