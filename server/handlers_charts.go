package server

import (
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/onnwee/lap-trend/backend/telemetry"
)

// HandleChart serves a stored chart as /charts/{id}.svg or /charts/{id}.png.
func (h *Handlers) HandleChart(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	ext := path.Ext(file)
	id := strings.TrimSuffix(file, ext)

	c, ok := h.Charts.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "chart not found")
		return
	}

	switch ext {
	case ".svg":
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_, _ = w.Write(c.SVG())
	case ".png":
		data, err := c.PNG()
		if err != nil {
			telemetry.LoggerWithCorr(r.Context()).Error("png render failed", slog.String("chart_id", id), slog.Any("err", err), slog.String("component", "http_charts"))
			writeError(w, http.StatusInternalServerError, "render failed")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_, _ = w.Write(data)
	default:
		writeError(w, http.StatusNotFound, "unsupported format")
	}
}
