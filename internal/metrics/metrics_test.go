package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_CountsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/projects/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := Middleware(mux)

	counter := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "GET /api/projects/{id}", "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestObserveSQL(t *testing.T) {
	c := SQLExecutionsTotal.WithLabelValues("SELECT", "true")
	before := testutil.ToFloat64(c)
	ObserveSQL("SELECT", true)
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestHandler_Exposes(t *testing.T) {
	ObserveSQL("MODIFY", false)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "blitz_sql_console_executions_total")
}
