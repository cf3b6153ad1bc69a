// Package httpapi serves the reconciled property catalog over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/property_registry/internal/domain/property"
	"github.com/R3E-Network/property_registry/internal/metrics"
	"github.com/R3E-Network/property_registry/internal/middleware"
	"github.com/R3E-Network/property_registry/internal/source"
	"github.com/R3E-Network/property_registry/pkg/logger"
)

// Source yields the current reconciliation result.
type Source interface {
	Get(ctx context.Context) source.Result
}

// Options configures the handler.
type Options struct {
	Source Source
	// RateLimit is requests per second per client; zero disables limiting.
	RateLimit      float64
	Burst          int
	AllowedOrigins []string
	Logger         *logger.Logger
}

type handler struct {
	src Source
	log *logger.Logger
}

// NewHandler returns the API router.
func NewHandler(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{src: opts.Source, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/properties", h.listProperties).Methods(http.MethodGet)
	api.HandleFunc("/properties/{slug}", h.getProperty).Methods(http.MethodGet)

	r.Use(middleware.NewTracingMiddleware(log).Handler)
	r.Use(metrics.InstrumentHandler)
	if opts.RateLimit > 0 {
		r.Use(middleware.NewRateLimiter(opts.RateLimit, opts.Burst, log).Handler)
	}
	// CORS wraps the router because mux skips route middleware for
	// OPTIONS preflights on GET-only routes.
	if len(opts.AllowedOrigins) > 0 {
		return middleware.NewCORSMiddleware(opts.AllowedOrigins).Handler(r)
	}
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listProperties answers with the reconciliation result, filtered by the
// optional status, city and near (geohash prefix) query parameters.
func (h *handler) listProperties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := property.Filter{City: strings.TrimSpace(q.Get("city"))}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := property.Status(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", raw))
			return
		}
		filter.Status = status
	}
	near := strings.ToLower(strings.TrimSpace(q.Get("near")))
	if near != "" && !validGeohash(near) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("near must be a geohash prefix"))
		return
	}

	res := h.src.Get(r.Context())
	if res.Source == source.Errored {
		h.log.WithField("trace_id", middleware.TraceID(r.Context())).WithField("error", res.Error).Warn("registry unavailable")
		writeJSON(w, http.StatusBadGateway, res)
		return
	}

	items := filter.Apply(res.Items)
	if near != "" {
		items = withinGeohash(items, near)
	}
	writeJSON(w, http.StatusOK, source.Result{Source: res.Source, Items: items})
}

func (h *handler) getProperty(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	res := h.src.Get(r.Context())
	if res.Source == source.Errored {
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	p, ok := property.FindBySlug(res.Items, slug)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("property %q not found", slug))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"source":  res.Source,
		"item":    p,
		"geohash": p.Geohash(),
	})
}

func withinGeohash(items []property.Property, prefix string) []property.Property {
	out := make([]property.Property, 0, len(items))
	for _, p := range items {
		if strings.HasPrefix(p.Geohash(), prefix) {
			out = append(out, p)
		}
	}
	return out
}

func validGeohash(s string) bool {
	if len(s) > property.GeohashPrecision {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789bcdefghjkmnpqrstuvwxyz", c) {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
