package xmetrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Attempt("tcp", "matched")
	m.Attempt("tcp", "matched")
	m.Attempt("udp", "timed_out")
	m.Connection("ws")
	m.Echoed("tcp", 12)
	m.RTT("tcp", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("tcp", "matched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("udp", "timed_out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("ws")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.echoedBytes.WithLabelValues("tcp")))
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New()
	m.Attempt("udp", "matched")
	addr, err := m.Serve(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gecho_attempts_total{outcome="matched",transport="udp"} 1`)
}
