package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/catalog/search/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := HTTPRequestTotals.WithLabelValues(http.MethodGet, "/catalog/search/{name}", "418")
	before := testutil.ToFloat64(counter)

	for _, name := range []string{"doliprane", "augmentin"} {
		req := httptest.NewRequest(http.MethodGet, "/catalog/search/"+name, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
	assert.Equal(t, 0.0, testutil.ToFloat64(HTTPRequestInFlight))
}

func TestMetricsMiddleware_DefaultStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Post("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	counter := HTTPRequestTotals.WithLabelValues(http.MethodPost, "/ok", "200")
	before := testutil.ToFloat64(counter)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ok", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
