package logging_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/timekeeper/logging"
)

func TestFromContext(t *testing.T) {
	fallback := zap.NewNop().Named("fallback")
	scoped := zap.NewNop().Named("scoped")

	assert.Same(t, scoped, logging.FromContext(logging.WithLogger(context.Background(), scoped), fallback))
	assert.Same(t, fallback, logging.FromContext(context.Background(), fallback))
	assert.NotNil(t, logging.FromContext(context.Background(), nil))
}

func TestMiddleware_LogsRequestWithRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var inner *zap.Logger
	h := middleware.RequestID(logging.Middleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = logging.FromContext(r.Context(), nil)
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	require.NotNil(t, inner)
	entries := logs.FilterMessage("HTTP request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "/api/me", fields["path"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestNew_WritesRotatedFile(t *testing.T) {
	logger := logging.New(zap.InfoLevel, t.TempDir()+"/timekeeper.log")
	assert.NotPanics(t, func() { logger.Info("hello") })
}
