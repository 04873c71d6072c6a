package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kasava-AI/demokit-sub003/intercept"
)

func TestCollector(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.Served("loader", 20*time.Millisecond)
	c.Served("loader", 30*time.Millisecond)
	c.Served("trpc", time.Millisecond)
	c.Fallback("loader", intercept.ReasonNoMatch)
	c.Fallback("loader", intercept.ReasonDisabled)
	c.Fallback("loader", intercept.ReasonNoMatch)
	c.Failed("action", 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.served.WithLabelValues("loader")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.served.WithLabelValues("trpc")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.fallback.WithLabelValues("loader", "no_match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fallback.WithLabelValues("loader", "disabled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failed.WithLabelValues("action")))

	assert.Equal(t, 3, testutil.CollectAndCount(c.duration))
}

func TestCollectorDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}

func TestHandler(t *testing.T) {
	c := New(nil)
	c.Served("swr", 10*time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `demokit_fixture_served_total{adapter="swr"} 1`)
	assert.Contains(t, string(body), "demokit_fixture_duration_seconds_bucket")
}
