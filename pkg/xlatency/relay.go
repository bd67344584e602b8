// Package xlatency provides a udp relay that injects random delay and loss between
// an echo client and its server.
package xlatency

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"time"

	"gecho/pkg/xactor"
	"gecho/pkg/xcommon"
	"gecho/pkg/xlog"
	"gecho/pkg/xnet"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	relayTick = 5 * time.Millisecond

	defaultSessionTimeout = 30 * time.Second
)

// Impairment 单方向的丢包与延迟
type Impairment struct {
	Loss    uint32        // 丢失率 0~100
	Latency time.Duration // 随机延迟上限
}

type RelayArgs struct {
	Listen   string
	Upstream string
	In       Impairment // client -> server
	Out      Impairment // server -> client
	Seed     int64      // 0 = 按当前时间

	// 上游socket空闲超过该时长后关闭, 默认30s
	SessionTimeout time.Duration
}

// RelayStats 所有方向合计
type RelayStats struct {
	Packets  uint64
	Lost     uint64
	AllDelay time.Duration
}

func (s RelayStats) AverageDelay() time.Duration {
	if s.Packets <= s.Lost {
		return 0
	}
	return s.AllDelay / time.Duration(s.Packets-s.Lost)
}

// session 一个客户端源地址对应的上游socket
type session struct {
	client   net.Addr
	pc       net.PacketConn
	activeAt *atomic.Int64 // unix nano, 任一方向有包时刷新
}

func (sess *session) touch() {
	sess.activeAt.Store(time.Now().UnixNano())
}

// Relay 每个客户端源地址对应一个上游socket, 回包按源地址送回
type Relay struct {
	arg      RelayArgs
	pc       net.PacketConn
	upstream *net.UDPAddr
	actor    *xactor.ActorGroutine

	mu       sync.Mutex
	sessions map[string]*session
	expired  *atomic.Uint64
}

func NewRelay(ctx context.Context, arg RelayArgs) (*Relay, error) {
	if arg.In.Loss > 100 || arg.Out.Loss > 100 {
		return nil, errors.Errorf("loss[%d/%d] out of 0~100", arg.In.Loss, arg.Out.Loss)
	}
	upstream, err := xnet.ResolveUDPAddr(arg.Upstream)
	if err != nil {
		return nil, err
	}
	pc, err := xnet.ListenUDP(ctx, arg.Listen)
	if err != nil {
		return nil, err
	}
	if arg.SessionTimeout <= 0 {
		arg.SessionTimeout = defaultSessionTimeout
	}
	seed := arg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	actor, err := xactor.NewActorGroutine(ctx, &delayState{
		name: "relay-" + pc.LocalAddr().String(),
		rnd:  rand.New(rand.NewSource(seed)),
	})
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	return &Relay{
		arg:      arg,
		pc:       pc,
		upstream: upstream,
		actor:    actor,
		sessions: make(map[string]*session),
		expired:  atomic.NewUint64(0),
	}, nil
}

func (r *Relay) Addr() net.Addr {
	return r.pc.LocalAddr()
}

func (r *Relay) Stats(ctx context.Context) (RelayStats, error) {
	resp, err := xactor.SyncRequest[statsReq, RelayStats](ctx, r.actor, &statsReq{})
	if err != nil {
		return RelayStats{}, err
	}
	return *resp, nil
}

// Sessions 当前存活的上游socket数量
func (r *Relay) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Expired 因空闲被关闭的上游socket数量
func (r *Relay) Expired() uint64 {
	return r.expired.Load()
}

// Serve 转发直到ctx取消, 返回前关闭所有上游socket
func (r *Relay) Serve(ctx context.Context) error {
	ctx = xlog.NewContext(ctx, zap.Stringer("relay", r.pc.LocalAddr()), zap.Stringer("upstream", r.upstream))
	log := xlog.Get(ctx)
	log.Info("Latency relay start.",
		zap.Uint32("in_loss", r.arg.In.Loss), zap.Duration("in_latency", r.arg.In.Latency),
		zap.Uint32("out_loss", r.arg.Out.Loss), zap.Duration("out_latency", r.arg.Out.Latency),
		zap.Duration("session_timeout", r.arg.SessionTimeout),
	)

	var wg xcommon.WaitGroup
	checkCtx, stopCheck := context.WithCancel(ctx)
	wg.Go(checkCtx, r.checkLoop)
	defer func() {
		stopCheck()
		r.mu.Lock()
		left := len(r.sessions)
		for id, sess := range r.sessions {
			_ = sess.pc.Close()
			delete(r.sessions, id)
		}
		r.mu.Unlock()
		wg.Wait()
		r.actor.Close(ctx)
		_ = r.pc.Close()
		log.Info("Latency relay stop.", zap.Int("sessions", left), zap.Uint64("expired", r.expired.Load()))
	}()

	stop := xnet.InterruptPacketOnCancel(ctx, r.pc)
	defer stop()

	buf := make([]byte, xnet.MaxChunkSize)
	for {
		n, src, err := r.pc.ReadFrom(buf)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "relay receive")
		}

		sess, err := r.getOrBind(ctx, &wg, src)
		if err != nil {
			log.Warn("Bind upstream socket failed, drop.", zap.Stringer("src", src), zap.Error(err))
			continue
		}
		sess.touch()
		r.actor.AsyncRequest(ctx, &forwardReq{data: append([]byte(nil), buf[:n]...), via: sess.pc, to: r.upstream, dir: r.arg.In})
	}
}

func (r *Relay) getOrBind(ctx context.Context, wg *xcommon.WaitGroup, src net.Addr) (*session, error) {
	id := src.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		return sess, nil
	}
	pc, err := xnet.UDPBinder.Bind(ctx, ":0")
	if err != nil {
		return nil, err
	}
	sess := &session{client: src, pc: pc, activeAt: atomic.NewInt64(time.Now().UnixNano())}
	r.sessions[id] = sess
	wg.Go(ctx, func(ctx context.Context) { r.backward(ctx, sess) })
	return sess, nil
}

// checkLoop 定时关闭空闲的上游socket, 其backward协程随之退出
func (r *Relay) checkLoop(ctx context.Context) {
	interval := r.arg.SessionTimeout / 4
	if interval < relayTick {
		interval = relayTick
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		deadline := time.Now().Add(-r.arg.SessionTimeout).UnixNano()

		r.mu.Lock()
		for id, sess := range r.sessions {
			if sess.activeAt.Load() < deadline {
				_ = sess.pc.Close()
				delete(r.sessions, id)
				r.expired.Inc()
				xlog.Get(ctx).Debug("Relay session timeout.", zap.String("client", id))
			}
		}
		r.mu.Unlock()
	}
}

// backward 上游回包经由relay socket送回客户端
func (r *Relay) backward(ctx context.Context, sess *session) {
	chunk := xnet.GetChunk()
	defer xnet.PutChunk(chunk)
	buf := *chunk

	for {
		n, _, err := sess.pc.ReadFrom(buf)
		if err != nil {
			return
		}
		sess.touch()
		r.actor.AsyncRequest(ctx, &forwardReq{data: append([]byte(nil), buf[:n]...), via: r.pc, to: sess.client, dir: r.arg.Out})
	}
}

type forwardReq struct {
	data []byte
	via  net.PacketConn
	to   net.Addr
	dir  Impairment
}

type statsReq struct{}

type pending struct {
	at  time.Time
	req *forwardReq
}

// delayState 只在actor协程内访问
type delayState struct {
	name  string
	rnd   *rand.Rand
	queue []pending
	stats RelayStats
}

func (st *delayState) InitArg() xactor.ActorHandlerArgs {
	return xactor.ActorHandlerArgs{
		Syncs:          []xactor.SyncHandlerArgs{xactor.SyncHandlerWrap(st.snapshot)},
		Asyncs:         []xactor.AsyncHandlerArgs{xactor.AsyncHandlerWrap(st.forward)},
		Tickers:        []xactor.TickHandler{st.flush},
		TickerDuration: relayTick,
	}
}

func (st *delayState) Name() string { return st.name }

func (st *delayState) Close(ctx context.Context) {
	xlog.Get(ctx).Info("Latency relay stats.",
		zap.Uint64("packets", st.stats.Packets),
		zap.Uint64("lost", st.stats.Lost),
		zap.Int("dropped_pending", len(st.queue)),
		zap.Duration("average_delay", st.stats.AverageDelay()),
	)
}

func (st *delayState) forward(ctx context.Context, req *forwardReq) {
	st.stats.Packets++
	if st.rnd.Int31n(100) < int32(req.dir.Loss) {
		st.stats.Lost++
		return
	}
	var delay time.Duration
	if req.dir.Latency > 0 {
		delay = time.Duration(st.rnd.Int63n(int64(req.dir.Latency)))
	}
	st.stats.AllDelay += delay
	st.queue = append(st.queue, pending{at: time.Now().Add(delay), req: req})
}

func (st *delayState) flush(ctx context.Context) {
	now := time.Now()
	remain := st.queue[:0]
	for _, p := range st.queue {
		if p.at.After(now) {
			remain = append(remain, p)
			continue
		}
		if _, err := p.req.via.WriteTo(p.req.data, p.req.to); err != nil {
			xlog.Get(ctx).Debug("Relay write failed.", zap.Stringer("to", p.req.to), zap.Error(err))
		}
	}
	st.queue = remain
}

func (st *delayState) snapshot(ctx context.Context, req *statsReq) (*RelayStats, error) {
	stats := st.stats
	return &stats, nil
}
