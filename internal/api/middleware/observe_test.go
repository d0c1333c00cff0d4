package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/ec-shop/internal/logging"
	"github.com/example/ec-shop/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedRouter(t *testing.T) (http.Handler, *observer.ObservedLogs, *metrics.Metrics) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	m := metrics.New("observe_test")

	r := chi.NewRouter()
	r.Use(chimw.RequestID, Observe(zap.New(core), m))
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context(), nil).Info("handler")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	return r, logs, m
}

func TestObserve_LogsWithRequestFields(t *testing.T) {
	router, logs, _ := newObservedRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	handlerLogs := logs.FilterMessage("handler").All()
	require.Len(t, handlerLogs, 1)
	fields := handlerLogs[0].ContextMap()
	assert.NotEmpty(t, fields["request_id"])
	assert.Equal(t, "/orders/abc", fields["path"])

	requestLogs := logs.FilterMessage("request").All()
	require.Len(t, requestLogs, 1)
	assert.Equal(t, int64(200), requestLogs[0].ContextMap()["status"])
}

func TestObserve_ServerErrorsLogAtErrorLevel(t *testing.T) {
	router, logs, _ := newObservedRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	failed := logs.FilterMessage("request failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
}

func TestObserve_RecordsRoutePattern(t *testing.T) {
	router, _, m := newObservedRouter(t)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/abc", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `route="/orders/{id}"`)
	assert.NotContains(t, string(body), `route="/orders/abc"`)
	assert.Contains(t, string(body), `route="unmatched"`)
}
