package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"world-pulse-map/pkg/database"
	"world-pulse-map/pkg/declutter"
	"world-pulse-map/pkg/firehose"
	"world-pulse-map/pkg/forecast"
	"world-pulse-map/pkg/interactions"
	"world-pulse-map/pkg/navigation"
	"world-pulse-map/pkg/render"
)

// =======================
// Public API entry points
// =======================

// Handler wires the navigation controller, live feed, interaction
// registry, and database together so HTTP routes stay small and only
// translate query parameters into the building blocks behind them.
type Handler struct {
	Nav       *navigation.Controller
	Fire      *firehose.Poller
	Reg       *interactions.Registry
	DB        *database.Database
	Canvas    *render.DisplayList
	Cache     *ResponseCache
	Limiter   *RateLimiter
	ShareBase string
	Logf      func(string, ...any)
}

// NewHandler constructs a Handler with sane defaults.
// Logf is optional; pass nil if logging is not required.
func NewHandler(nav *navigation.Controller, fire *firehose.Poller, reg *interactions.Registry, db *database.Database, canvas *render.DisplayList, logf func(string, ...any)) *Handler {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Handler{Nav: nav, Fire: fire, Reg: reg, DB: db, Canvas: canvas, Logf: logf}
}

// Register attaches API routes to the provided mux.  We keep the
// method tiny and declarative: it simply wires URLs to helpers,
// avoiding clever routing that could obscure how pages are served.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api", h.handleOverview)
	mux.HandleFunc("/api/health", h.handleHealth)
	mux.HandleFunc("/api/view", h.handleView)
	mux.HandleFunc("/api/live", h.handleLive)
	mux.HandleFunc("/api/nav", h.handleNavStack)
	mux.HandleFunc("/api/nav/drill", h.handleDrill)
	mux.HandleFunc("/api/nav/goto", h.handleGoto)
	mux.HandleFunc("/api/cast", h.handleCast)
	mux.HandleFunc("/api/cast/upload", h.handleCastUpload)
	mux.HandleFunc("/api/interactions", h.handleInteractions)
	mux.HandleFunc("/api/interactions/ingest", h.handleInteractionIngest)
	mux.HandleFunc("/share", h.handleShareQR)
}

// handleOverview publishes machine-readable docs so developers
// understand which endpoints to call.
func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview := struct {
		Endpoints map[string]any `json:"endpoints"`
	}{
		Endpoints: map[string]any{
			"view": map[string]any{
				"method":      "GET",
				"path":        "/api/view",
				"description": "Returns the full drawing state: region layer, breadcrumb, camera framing, notices.",
			},
			"live": map[string]any{
				"method":      "GET",
				"path":        "/api/live",
				"query":       []string{"mode", "categories"},
				"description": "Returns decluttered live event markers scoped to the active region. mode is all, critical, or smart.",
			},
			"drill": map[string]any{
				"method":      "POST",
				"path":        "/api/nav/drill",
				"description": "Descends into the region named by {\"ref\": ...}; ref matches ISO code, state code, or display name.",
			},
			"goto": map[string]any{
				"method":      "POST",
				"path":        "/api/nav/goto",
				"description": "Truncates the navigation stack to {\"index\": N} and re-renders that level.",
			},
			"cast": map[string]any{
				"method":      "GET",
				"path":        "/api/cast",
				"query":       []string{"label"},
				"description": "Without label, lists stored forecast datasets. With label, applies that dataset as a choropleth.",
			},
			"interactions": map[string]any{
				"method":      "GET",
				"path":        "/api/interactions",
				"query":       []string{"q", "category", "subtype", "id"},
				"description": "Searches interactions by text, fetches one by id, or renders a category overlay of arcs; subtype narrows the overlay.",
			},
		},
	}
	h.respondJSON(w, overview)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := struct {
		Status string `json:"status"`
		Driver string `json:"driver,omitempty"`
		Time   string `json:"time"`
	}{Status: "ok", Time: time.Now().UTC().Format(time.RFC3339)}
	if h.DB != nil {
		status.Driver = h.DB.Driver
	}
	h.respondJSON(w, status)
}

// handleView hands the whole display list to the client in one
// response.
func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, h.Canvas.Snapshot(r.Context()))
}

// handleLive returns the decluttered live event markers.  Identical
// queries within the cache TTL skip the filter pass.
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	mode := declutter.ParseMode(q.Get("mode"))
	var categories []string
	if raw := strings.TrimSpace(q.Get("categories")); raw != "" {
		categories = strings.Split(raw, ",")
	}

	build := func() ([]byte, error) {
		result, fetchedAt := h.Fire.Snapshot(ctx, mode, categories)
		payload := struct {
			Markers    []render.Marker `json:"markers"`
			Total      int             `json:"total"`
			Suppressed int             `json:"suppressed"`
			FetchedAt  string          `json:"fetchedAt,omitempty"`
		}{Markers: result.Markers, Total: result.Total, Suppressed: result.Suppressed}
		if !fetchedAt.IsZero() {
			payload.FetchedAt = fetchedAt.Format(time.RFC3339)
		}
		return json.Marshal(payload)
	}

	key := liveCacheKey(h.Nav.Stack(ctx), mode, categories)
	data, err := h.Cache.Get(ctx, key, func(context.Context) ([]byte, error) { return build() })
	if err != nil {
		// Cache disabled or stopped: serve directly.
		data, err = build()
		if err != nil {
			http.Error(w, "live snapshot", http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (h *Handler) handleNavStack(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, struct {
		Stack []navigation.Entry `json:"stack"`
	}{Stack: h.Nav.Stack(r.Context())})
}

// handleDrill descends one level.  Drills can trigger an upstream
// boundary download, so they count as heavy for the per-IP limiter.
func (h *Handler) handleDrill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	permit, err := h.Limiter.Acquire(ctx, clientIP(r), RequestHeavy)
	if err != nil {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	defer permit.Release()

	var req struct {
		Ref string `json:"ref"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil || strings.TrimSpace(req.Ref) == "" {
		http.Error(w, "body must be {\"ref\": ...}", http.StatusBadRequest)
		return
	}
	if err := h.Nav.DrillInto(ctx, req.Ref); err != nil {
		h.Logf("api: drill %q: %v", req.Ref, err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.respondJSON(w, struct {
		Stack []navigation.Entry `json:"stack"`
	}{Stack: h.Nav.Stack(ctx)})
}

func (h *Handler) handleGoto(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	var req struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<12)).Decode(&req); err != nil {
		http.Error(w, "body must be {\"index\": N}", http.StatusBadRequest)
		return
	}
	if err := h.Nav.NavigateTo(ctx, req.Index); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respondJSON(w, struct {
		Stack []navigation.Entry `json:"stack"`
	}{Stack: h.Nav.Stack(ctx)})
}

// handleCast lists stored forecast datasets or applies one as a
// choropleth over the state layer.
func (h *Handler) handleCast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	label := strings.TrimSpace(r.URL.Query().Get("label"))
	if label == "" {
		labels, err := h.DB.ForecastLabels(ctx)
		if err != nil {
			http.Error(w, "list forecasts", http.StatusInternalServerError)
			return
		}
		h.respondJSON(w, struct {
			Labels []string `json:"labels"`
		}{Labels: labels})
		return
	}

	rows, err := h.DB.GetForecast(ctx, label)
	if err != nil {
		http.Error(w, "load forecast", http.StatusInternalServerError)
		return
	}
	if len(rows) == 0 {
		http.Error(w, "unknown forecast label", http.StatusNotFound)
		return
	}
	ds := forecast.Dataset{Label: label}
	for _, row := range rows {
		ds.Rows = append(ds.Rows, forecast.Row{
			Admin1: row.Admin1, Total: row.Total,
			Battles: row.Battles, ERV: row.ERV, Violence: row.Violence,
		})
	}
	h.respondJSON(w, forecast.Apply(ctx, h.Nav, ds))
}

// handleCastUpload stores a forecast dataset and immediately applies
// it when the state layer is visible.
func (h *Handler) handleCastUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	var ds forecast.Dataset
	if err := json.NewDecoder(io.LimitReader(r.Body, 8<<20)).Decode(&ds); err != nil {
		http.Error(w, "invalid dataset JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(ds.Label) == "" {
		http.Error(w, "dataset needs a label", http.StatusBadRequest)
		return
	}
	rows := make([]database.ForecastRow, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		rows = append(rows, database.ForecastRow{
			Admin1: row.Admin1, Total: row.Total,
			Battles: row.Battles, ERV: row.ERV, Violence: row.Violence,
		})
	}
	if err := h.DB.ReplaceForecast(ctx, ds.Label, rows); err != nil {
		h.Logf("api: store forecast %q: %v", ds.Label, err)
		http.Error(w, "store forecast", http.StatusInternalServerError)
		return
	}
	h.respondJSON(w, forecast.Apply(ctx, h.Nav, ds))
}

// handleInteractions serves three read paths: search by text, fetch by
// id, and the rendered overlay for one category.
func (h *Handler) handleInteractions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if id := strings.TrimSpace(q.Get("id")); id != "" {
		in, ok := h.Reg.Get(ctx, id)
		if !ok {
			http.Error(w, "unknown interaction id", http.StatusNotFound)
			return
		}
		h.respondJSON(w, in)
		return
	}
	if category := strings.TrimSpace(q.Get("category")); category != "" {
		h.respondJSON(w, h.Reg.RenderCategory(ctx, category, q.Get("subtype")))
		return
	}
	h.respondJSON(w, struct {
		Interactions []interactions.Interaction `json:"interactions"`
		Categories   map[string][]string        `json:"categories"`
	}{
		Interactions: h.Reg.FindByText(ctx, q.Get("q")),
		Categories:   h.Reg.Categories(ctx),
	})
}

// handleInteractionIngest accepts one interaction, stores it in the
// registry and the database, and echoes the stored value with its id.
func (h *Handler) handleInteractionIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	var in interactions.Interaction
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&in); err != nil {
		http.Error(w, "invalid interaction JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(in.Title) == "" || (len(in.Countries) == 0 && in.Location == nil) {
		http.Error(w, "interaction needs a title and countries or a location", http.StatusBadRequest)
		return
	}
	stored := h.Reg.Upsert(ctx, in)
	if h.DB != nil {
		payload, err := json.Marshal(stored)
		if err == nil {
			err = h.DB.UpsertInteraction(ctx, database.InteractionRecord{
				ID: stored.ID, Category: stored.Category, Payload: payload,
			})
		}
		if err != nil {
			h.Logf("api: persist interaction %s: %v", stored.ID, err)
		}
	}
	h.respondJSON(w, stored)
}

// handleShareQR renders the share link as a QR PNG so a desktop view
// moves to a phone in one scan.
func (h *Handler) handleShareQR(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		target = h.ShareBase
	}
	if target == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		target = scheme + "://" + r.Host + "/"
	}
	size := clampInt(parseIntDefault(r.URL.Query().Get("size"), 256), 128, 1024)
	png, err := qrcode.Encode(target, qrcode.Medium, size)
	if err != nil {
		http.Error(w, "encode QR", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// =====================
// Utility helpers
// =====================

func (h *Handler) respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// liveCacheKey scopes cached live responses to the active region so a
// drill never serves markers computed for the level the client left.
func liveCacheKey(stack []navigation.Entry, mode declutter.Mode, categories []string) string {
	region := "world"
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		region = fmt.Sprintf("%d|%s|%s", top.Level, top.ISO, top.StateCode)
	}
	return fmt.Sprintf("live|%s|%s|%s", region, mode, strings.Join(categories, ","))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
