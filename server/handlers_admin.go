package server

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/lap-trend/backend/telemetry"
)

// HandleAdminCacheStats reports cache sizes.
func (h *Handlers) HandleAdminCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"records": h.Engine.CachedRecords(),
		"charts":  h.Charts.Len(),
	})
}

// HandleAdminCacheFlush clears the record cache.
func (h *Handlers) HandleAdminCacheFlush(w http.ResponseWriter, r *http.Request) {
	n := h.Engine.FlushRecords()
	telemetry.LoggerWithCorr(r.Context()).Info("record cache flushed", slog.Int("entries", n), slog.String("component", "http_admin"))
	writeJSON(w, http.StatusOK, map[string]int{"flushed": n})
}
