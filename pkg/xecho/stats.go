package xecho

import (
	"context"
	"time"

	"gecho/pkg/xactor"
	"gecho/pkg/xlog"
	"gecho/pkg/xmetrics"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const defaultStatsInterval = 30 * time.Second

type StatsArgs struct {
	Network  string
	Metrics  *xmetrics.Metrics // optional
	Interval time.Duration     // periodic log, default 30s
}

// StatsSnapshot is a copy of the aggregated counters.
type StatsSnapshot struct {
	Summary     Summary
	Connections uint64 // stream connections accepted
	Active      uint64 // stream connections still open
	Messages    uint64 // chunks or datagrams echoed by the server
	EchoedBytes uint64
	Dropped     uint64 // echo events lost to a full stats mailbox
}

// Stats aggregates events from many goroutines on a single actor goroutine, so
// none of the counters is shared.
type Stats struct {
	actor   *xactor.ActorGroutine
	dropped *atomic.Uint64
}

func NewStats(ctx context.Context, arg StatsArgs) (*Stats, error) {
	if arg.Interval <= 0 {
		arg.Interval = defaultStatsInterval
	}
	dropped := atomic.NewUint64(0)
	actor, err := xactor.NewActorGroutine(ctx, &statsState{arg: arg, dropped: dropped})
	if err != nil {
		return nil, err
	}
	return &Stats{actor: actor, dropped: dropped}, nil
}

type attemptReq struct{ Outcome Outcome }

type connOpenReq struct{}

type connCloseReq struct{}

type echoedReq struct{ N int }

type snapshotReq struct{}

func (s *Stats) Attempt(ctx context.Context, o Outcome) {
	s.actor.AsyncRequest(ctx, &attemptReq{Outcome: o})
}

func (s *Stats) ConnOpened(ctx context.Context) {
	s.actor.AsyncRequest(ctx, &connOpenReq{})
}

func (s *Stats) ConnClosed(ctx context.Context) {
	s.actor.AsyncRequest(ctx, &connCloseReq{})
}

// Echoed never blocks the echo path: when the mailbox is full or the actor is
// closed the event is dropped and counted.
func (s *Stats) Echoed(ctx context.Context, n int) {
	if !s.actor.TryAsyncRequest(ctx, &echoedReq{N: n}) {
		s.dropped.Inc()
	}
}

func (s *Stats) Dropped() uint64 {
	return s.dropped.Load()
}

// Snapshot observes every event sent before it from the same goroutine.
func (s *Stats) Snapshot(ctx context.Context) (StatsSnapshot, error) {
	resp, err := xactor.SyncRequest[snapshotReq, StatsSnapshot](ctx, s.actor, &snapshotReq{})
	if err != nil {
		return StatsSnapshot{}, err
	}
	return *resp, nil
}

func (s *Stats) Close(ctx context.Context) {
	s.actor.Close(ctx)
}

type statsState struct {
	arg     StatsArgs
	snap    StatsSnapshot
	dirty   bool
	dropped *atomic.Uint64
}

func (st *statsState) InitArg() xactor.ActorHandlerArgs {
	return xactor.ActorHandlerArgs{
		Syncs: []xactor.SyncHandlerArgs{xactor.SyncHandlerWrap(st.snapshot)},
		Asyncs: []xactor.AsyncHandlerArgs{
			xactor.AsyncHandlerWrap(st.attempt),
			xactor.AsyncHandlerWrap(st.connOpen),
			xactor.AsyncHandlerWrap(st.connClose),
			xactor.AsyncHandlerWrap(st.echoed),
		},
		Tickers:        []xactor.TickHandler{st.tick},
		TickerDuration: st.arg.Interval,
	}
}

func (st *statsState) Name() string { return "stats-" + st.arg.Network }

func (st *statsState) Close(ctx context.Context) {
	st.log(ctx, "Final stats.")
}

func (st *statsState) attempt(ctx context.Context, req *attemptReq) {
	st.snap.Summary.Add(req.Outcome)
	st.dirty = true
	if st.arg.Metrics != nil {
		st.arg.Metrics.Attempt(st.arg.Network, req.Outcome.Kind.String())
		if req.Outcome.Completed() {
			st.arg.Metrics.RTT(st.arg.Network, req.Outcome.RTT)
		}
	}
}

func (st *statsState) connOpen(ctx context.Context, req *connOpenReq) {
	st.snap.Connections++
	st.snap.Active++
	st.dirty = true
	if st.arg.Metrics != nil {
		st.arg.Metrics.Connection(st.arg.Network)
	}
}

func (st *statsState) connClose(ctx context.Context, req *connCloseReq) {
	if st.snap.Active > 0 {
		st.snap.Active--
	}
	st.dirty = true
}

func (st *statsState) echoed(ctx context.Context, req *echoedReq) {
	st.snap.Messages++
	st.snap.EchoedBytes += uint64(req.N)
	st.dirty = true
	if st.arg.Metrics != nil {
		st.arg.Metrics.Echoed(st.arg.Network, req.N)
	}
}

func (st *statsState) snapshot(ctx context.Context, req *snapshotReq) (*StatsSnapshot, error) {
	snap := st.snap
	snap.Dropped = st.dropped.Load()
	return &snap, nil
}

func (st *statsState) tick(ctx context.Context) {
	if !st.dirty {
		return
	}
	st.dirty = false
	st.log(ctx, "Periodic stats.")
}

func (st *statsState) log(ctx context.Context, msg string) {
	xlog.Get(ctx).Info(msg,
		zap.Uint64("attempts", st.snap.Summary.Attempts),
		zap.Uint64("matched", st.snap.Summary.Count(Matched)),
		zap.Uint64("connections", st.snap.Connections),
		zap.Uint64("active", st.snap.Active),
		zap.Uint64("messages", st.snap.Messages),
		zap.Uint64("echoed_bytes", st.snap.EchoedBytes),
		zap.Uint64("dropped", st.dropped.Load()),
	)
}
