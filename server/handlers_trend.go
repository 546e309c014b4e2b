package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/lap-trend/backend/chat"
	"github.com/onnwee/lap-trend/backend/db"
	"github.com/onnwee/lap-trend/backend/iracing"
	"github.com/onnwee/lap-trend/backend/telemetry"
	"github.com/onnwee/lap-trend/backend/trend"
)

type pointJSON struct {
	Time    time.Time `json:"time"`
	Percent float64   `json:"percent"`
}

type trendPointJSON struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

type trendResponse struct {
	CustID      int64            `json:"cust_id"`
	DisplayName string           `json:"display_name,omitempty"`
	Range       string           `json:"range"`
	Summary     trend.Summary    `json:"summary"`
	Points      []pointJSON      `json:"points"`
	Trend       []trendPointJSON `json:"trend"`
	SVGURL      string           `json:"svg_url"`
	PNGURL      string           `json:"png_url"`
}

// HandleTrend builds a chart for ?cust_id= or a linked chat ?user= and
// returns its data with links to the rendered images.
func (h *Handlers) HandleTrend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "http_trend"))
	q := r.URL.Query()

	req := trend.Request{Range: q.Get("range")}
	switch {
	case q.Get("cust_id") != "":
		id, err := strconv.ParseInt(q.Get("cust_id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid cust_id")
			return
		}
		req.CustID = id
	case strings.TrimSpace(q.Get("user")) != "":
		platform := q.Get("platform")
		if platform == "" {
			platform = chat.Platform
		}
		linked, err := h.Links.LinkedDriver(ctx, platform, q.Get("user"))
		if err != nil {
			h.writeBuildError(w, logger, err)
			return
		}
		req.CustID = linked.CustID
		req.DisplayName = linked.DisplayName
	default:
		writeError(w, http.StatusBadRequest, "cust_id or user is required")
		return
	}

	res, err := h.Engine.Build(ctx, req)
	if err != nil {
		h.writeBuildError(w, logger, err)
		return
	}

	id := h.Charts.Put(res.Chart)
	resp := trendResponse{
		CustID:      req.CustID,
		DisplayName: req.DisplayName,
		Range:       trend.NormalizeRange(req.Range),
		Summary:     res.Summary,
		Points:      make([]pointJSON, len(res.Points)),
		Trend:       make([]trendPointJSON, len(res.Trend)),
		SVGURL:      h.Charts.URL(id, "svg"),
		PNGURL:      h.Charts.URL(id, "png"),
	}
	for i, p := range res.Points {
		resp.Points[i] = pointJSON{Time: p.Time, Percent: p.Percent}
	}
	for i, p := range res.Trend {
		resp.Trend[i] = trendPointJSON{Time: p.Time, Value: p.Value}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) writeBuildError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, db.ErrNotLinked):
		writeError(w, http.StatusNotFound, "user not linked")
	case errors.Is(err, iracing.ErrUnavailable):
		logger.Warn("upstream unavailable", slog.Any("err", err))
		writeError(w, http.StatusServiceUnavailable, "upstream unavailable")
	default:
		logger.Error("trend build failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
