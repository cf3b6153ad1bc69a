package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/property_registry/internal/catalog"
	"github.com/R3E-Network/property_registry/internal/domain/property"
	"github.com/R3E-Network/property_registry/internal/source"
	"github.com/R3E-Network/property_registry/pkg/logger"
)

type stubSource struct {
	res   source.Result
	calls int
}

func (s *stubSource) Get(context.Context) source.Result {
	s.calls++
	return s.res
}

func newTestHandler(res source.Result) (http.Handler, *stubSource) {
	src := &stubSource{res: res}
	return NewHandler(Options{Source: src, Logger: logger.NewDiscard("httpapi")}), src
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestListProperties_Fallback(t *testing.T) {
	h, _ := newTestHandler(source.Result{Source: source.Fallback, Items: catalog.Default()})

	rec, body := get(t, h, "/api/properties")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fallback", body["source"])
	assert.Len(t, body["items"], 11)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
}

func TestListProperties_Filters(t *testing.T) {
	h, _ := newTestHandler(source.Result{Source: source.OnChain, Items: catalog.Default()})

	_, body := get(t, h, "/api/properties?status=coming-soon")
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "6601-e-hearn-rd", items[0].(map[string]interface{})["slug"])

	_, body = get(t, h, "/api/properties?city=chicago,%20il")
	assert.Len(t, body["items"], 1)

	_, body = get(t, h, "/api/properties?status=live&city=Detroit,%20MI")
	assert.Len(t, body["items"], 1)

	rec, _ := get(t, h, "/api/properties?status=pending")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProperties_Near(t *testing.T) {
	items := catalog.Default()
	h, _ := newTestHandler(source.Result{Source: source.OnChain, Items: items})

	var scottsdale property.Property
	for _, p := range items {
		if p.Slug == "6601-e-hearn-rd" {
			scottsdale = p
		}
	}
	prefix := scottsdale.Geohash()[:4]

	_, body := get(t, h, "/api/properties?near="+prefix)
	got := body["items"].([]interface{})
	require.Len(t, got, 1)
	assert.Equal(t, "6601-e-hearn-rd", got[0].(map[string]interface{})["slug"])

	rec, _ := get(t, h, "/api/properties?near=ail")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProperties_ErrorSource(t *testing.T) {
	h, _ := newTestHandler(source.Result{Source: source.Errored, Items: []property.Property{}, Error: "rpc timeout"})

	rec, body := get(t, h, "/api/properties")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "error", body["source"])
	assert.Equal(t, "rpc timeout", body["error"])
	assert.Empty(t, body["items"])
}

func TestGetProperty(t *testing.T) {
	h, _ := newTestHandler(source.Result{Source: source.OnChain, Items: catalog.Default()})

	rec, body := get(t, h, "/api/properties/4852-bishop-st")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "onchain", body["source"])
	item := body["item"].(map[string]interface{})
	assert.Equal(t, "4852 Bishop St", item["title"])
	assert.Len(t, body["geohash"], 9)

	rec, _ = get(t, h, "/api/properties/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h, src := newTestHandler(source.Result{Source: source.Fallback})

	_, body := get(t, h, "/healthz")
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 0, src.calls)

	get(t, h, "/api/properties")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "property_registry_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	h := NewHandler(Options{
		Source:         &stubSource{res: source.Result{Source: source.Fallback}},
		AllowedOrigins: []string{"https://app.example.com"},
		Logger:         logger.NewDiscard("httpapi"),
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/properties", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "X-Trace-ID")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Trace-ID")

	req = httptest.NewRequest(http.MethodGet, "/api/properties", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
}

func TestCORSPreflight_UnknownOrigin(t *testing.T) {
	h := NewHandler(Options{
		Source:         &stubSource{res: source.Result{Source: source.Fallback}},
		AllowedOrigins: []string{"https://app.example.com"},
		Logger:         logger.NewDiscard("httpapi"),
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/properties", nil)
	req.Header.Set("Origin", "https://evil.example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
