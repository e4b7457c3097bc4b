package telemetry

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupServesCounters(t *testing.T) {
	ctx := context.Background()
	p, err := Setup(ctx, "orderrt-test", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer p.Shutdown(ctx)
	require.NotNil(t, p.Handler())

	c, err := p.MeterProvider().Meter("test").Int64Counter("orderrt.function_calls")
	require.NoError(t, err)
	c.Add(ctx, 3)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "orderrt_function_calls")
}

func TestSetupTwice(t *testing.T) {
	ctx := context.Background()
	for range 2 {
		p, err := Setup(ctx, "orderrt-test", slog.New(slog.DiscardHandler))
		require.NoError(t, err)
		require.NoError(t, p.Shutdown(ctx))
	}
}
