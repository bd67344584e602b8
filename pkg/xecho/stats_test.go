package xecho

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gecho/pkg/xactor"
	"gecho/pkg/xmetrics"
	"gecho/pkg/xnet"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestStatsSnapshot(t *testing.T) {
	ctx := context.Background()
	metrics := xmetrics.New()
	stats, err := NewStats(ctx, StatsArgs{Network: xnet.NetworkTCP, Metrics: metrics, Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	defer stats.Close(ctx)

	stats.Attempt(ctx, Outcome{Kind: Matched, Bytes: 12, RTT: 2 * time.Millisecond})
	stats.Attempt(ctx, Outcome{Kind: Matched, Bytes: 12, RTT: 4 * time.Millisecond})
	stats.Attempt(ctx, Outcome{Kind: TimedOut, Err: errors.New("i/o timeout")})
	stats.ConnOpened(ctx)
	stats.ConnOpened(ctx)
	stats.ConnClosed(ctx)
	stats.Echoed(ctx, 12)

	snap, err := stats.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Summary.Attempts)
	assert.Equal(t, uint64(2), snap.Summary.Count(Matched))
	assert.Equal(t, uint64(1), snap.Summary.Count(TimedOut))
	assert.Equal(t, 3*time.Millisecond, snap.Summary.RTTAvg())
	assert.Equal(t, uint64(2), snap.Connections)
	assert.Equal(t, uint64(1), snap.Active)
	assert.Equal(t, uint64(1), snap.Messages)
	assert.Equal(t, uint64(12), snap.EchoedBytes)
	assert.Equal(t, uint64(0), snap.Dropped)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `gecho_attempts_total{outcome="matched",transport="tcp"} 2`)
	assert.Contains(t, body, `gecho_attempts_total{outcome="timed_out",transport="tcp"} 1`)
	assert.Contains(t, body, `gecho_connections_total{transport="tcp"} 2`)
	assert.Contains(t, body, `gecho_echoed_bytes_total{transport="tcp"} 12`)
	assert.Contains(t, body, `gecho_rtt_seconds_count{transport="tcp"} 2`)
}

func TestStatsClosed(t *testing.T) {
	ctx := context.Background()
	stats, err := NewStats(ctx, StatsArgs{Network: xnet.NetworkUDP})
	require.NoError(t, err)
	stats.Close(ctx)
	stats.Close(ctx)

	// 关闭后的事件被丢弃
	stats.Attempt(ctx, Outcome{Kind: Matched})
	_, err = stats.Snapshot(ctx)
	assert.Error(t, err)

	stats.Echoed(ctx, 12)
	assert.Equal(t, uint64(1), stats.Dropped())
}

// 处理echo事件时阻塞的stats状态
type stuckState struct {
	release chan struct{}
	handled *atomic.Int32
}

func (st *stuckState) InitArg() xactor.ActorHandlerArgs {
	return xactor.ActorHandlerArgs{
		Asyncs: []xactor.AsyncHandlerArgs{xactor.AsyncHandlerWrap(st.echoed)},
	}
}

func (st *stuckState) Name() string { return "stuck" }

func (st *stuckState) Close(ctx context.Context) {}

func (st *stuckState) echoed(ctx context.Context, req *echoedReq) {
	<-st.release
	st.handled.Inc()
}

func TestStatsEchoedDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	st := &stuckState{release: make(chan struct{}), handled: atomic.NewInt32(0)}
	actor, err := xactor.NewActorGroutine(ctx, st)
	require.NoError(t, err)
	stats := &Stats{actor: actor, dropped: atomic.NewUint64(0)}
	defer stats.Close(ctx)

	const n = 2000
	within(t, time.Second, func() {
		for i := 0; i < n; i++ {
			stats.Echoed(ctx, 1)
		}
	})
	dropped := stats.Dropped()
	assert.Greater(t, dropped, uint64(0))

	close(st.release)
	assert.Eventually(t, func() bool { return uint64(st.handled.Load())+dropped == n }, time.Second, 5*time.Millisecond)
}

func TestSummary(t *testing.T) {
	var s Summary
	s.Add(Outcome{Kind: Matched, Bytes: 12, RTT: 10 * time.Millisecond})
	s.Add(Outcome{Kind: Mismatched, Bytes: 5, RTT: 30 * time.Millisecond})
	s.Add(Outcome{Kind: ReceiveFailed, Bytes: 3})
	s.Add(Outcome{Kind: TimedOut})

	assert.Equal(t, uint64(4), s.Attempts)
	assert.Equal(t, uint64(1), s.Count(Matched))
	assert.Equal(t, uint64(1), s.Count(Mismatched))
	assert.Equal(t, uint64(0), s.Count(SendFailed))
	assert.Equal(t, uint64(0), s.Count(OutcomeKind(42)))
	assert.Equal(t, uint64(20), s.Bytes)
	assert.Equal(t, 10*time.Millisecond, s.RTTMin)
	assert.Equal(t, 30*time.Millisecond, s.RTTMax)
	assert.Equal(t, 20*time.Millisecond, s.RTTAvg())

	var buf bytes.Buffer
	s.Print(context.Background(), &buf)
	out := buf.String()
	for _, want := range []string{"matched", "mismatched", "timed_out", "attempts", "rtt_avg", "20ms"} {
		assert.Contains(t, out, want)
	}
}

func TestSummaryNoRTT(t *testing.T) {
	var s Summary
	s.Add(Outcome{Kind: TimedOut})

	var buf bytes.Buffer
	s.Print(context.Background(), &buf)
	assert.NotContains(t, buf.String(), "rtt_min")
	assert.Equal(t, time.Duration(0), s.RTTAvg())
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "matched", Matched.String())
	assert.Equal(t, "send_failed", SendFailed.String())
	assert.Equal(t, "outcome(9)", OutcomeKind(9).String())
	assert.True(t, Outcome{Kind: Mismatched}.Completed())
	assert.False(t, Outcome{Kind: TimedOut}.Completed())
}

func TestEchoError(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(newEchoError(ErrConnectFailed, "127.0.0.1:7", cause))

	assert.ErrorIs(t, err, ErrConnectFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrBindFailed)
	assert.Equal(t, "connect failed 127.0.0.1:7: connection refused", err.Error())

	wrapped := errors.Wrap(err, "run client")
	var echoErr *EchoError
	require.True(t, errors.As(wrapped, &echoErr))
	assert.Equal(t, "127.0.0.1:7", echoErr.Addr)

	assert.Equal(t, "bind failed: boom", newEchoError(ErrBindFailed, "", errors.New("boom")).Error())
}
