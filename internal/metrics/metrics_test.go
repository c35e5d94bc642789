package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := NewNop()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/campaigns/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	for _, id := range []string{"1", "2", "3"} {
		req := httptest.NewRequest(http.MethodGet, "/campaigns/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/campaigns/{id}", "404"))
	assert.Equal(t, float64(3), got)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `http_requests_total{method="GET",route="/campaigns/{id}",status="404"} 3`)
}

func TestNewNop_IsolatedRegistries(t *testing.T) {
	a := NewNop()
	b := NewNop()
	a.WebhooksTotal.WithLabelValues("processed").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.WebhooksTotal.WithLabelValues("processed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.WebhooksTotal.WithLabelValues("processed")))
}
