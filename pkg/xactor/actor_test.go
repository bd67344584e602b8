package xactor_test

import (
	"context"
	"testing"
	"time"

	"gecho/pkg/xactor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type counterActor struct {
	n      int
	ticks  *atomic.Int32
	closed *atomic.Bool
}

type addReq struct{ N int }

type getReq struct{}

type getResp struct{ N int }

func (c *counterActor) InitArg() xactor.ActorHandlerArgs {
	return xactor.ActorHandlerArgs{
		Syncs:          []xactor.SyncHandlerArgs{xactor.SyncHandlerWrap(c.get)},
		Asyncs:         []xactor.AsyncHandlerArgs{xactor.AsyncHandlerWrap(c.add)},
		Tickers:        []xactor.TickHandler{func(ctx context.Context) { c.ticks.Inc() }},
		TickerDuration: 10 * time.Millisecond,
	}
}

func (c *counterActor) Name() string { return "counter" }

func (c *counterActor) Close(ctx context.Context) { c.closed.Store(true) }

func (c *counterActor) add(ctx context.Context, req *addReq) { c.n += req.N }

func (c *counterActor) get(ctx context.Context, req *getReq) (*getResp, error) {
	return &getResp{N: c.n}, nil
}

func newCounter(t *testing.T) (*counterActor, *xactor.ActorGroutine) {
	c := &counterActor{ticks: atomic.NewInt32(0), closed: atomic.NewBool(false)}
	actor, err := xactor.NewActorGroutine(context.Background(), c)
	require.NoError(t, err)
	return c, actor
}

func TestActorOrdering(t *testing.T) {
	ctx := context.Background()
	c, actor := newCounter(t)

	for i := 0; i < 100; i++ {
		actor.AsyncRequest(ctx, &addReq{N: 1})
	}
	resp, err := xactor.SyncRequest[getReq, getResp](ctx, actor, &getReq{})
	require.NoError(t, err)
	assert.Equal(t, 100, resp.N)

	assert.Eventually(t, func() bool { return c.ticks.Load() > 0 }, time.Second, 5*time.Millisecond)

	actor.Close(ctx)
	actor.Close(ctx)
	assert.True(t, c.closed.Load())
}

func TestActorClosed(t *testing.T) {
	ctx := context.Background()
	_, actor := newCounter(t)
	actor.Close(ctx)

	actor.AsyncRequest(ctx, &addReq{N: 1})
	_, err := xactor.SyncRequest[getReq, getResp](ctx, actor, &getReq{})
	assert.ErrorIs(t, err, xactor.ErrActorClosed)
}

func TestActorUnknownRequest(t *testing.T) {
	ctx := context.Background()
	_, actor := newCounter(t)
	defer actor.Close(ctx)

	_, err := xactor.SyncRequest[addReq, getResp](ctx, actor, &addReq{})
	assert.Error(t, err)
}

type dupActor struct{ counterActor }

func (d *dupActor) InitArg() xactor.ActorHandlerArgs {
	arg := d.counterActor.InitArg()
	arg.Asyncs = append(arg.Asyncs, arg.Asyncs...)
	return arg
}

func TestActorDuplicateHandler(t *testing.T) {
	_, err := xactor.NewActorGroutine(context.Background(), &dupActor{})
	assert.Error(t, err)
}

type blockReq struct{ release chan struct{} }

type blockActor struct{ n *atomic.Int32 }

func (b *blockActor) InitArg() xactor.ActorHandlerArgs {
	return xactor.ActorHandlerArgs{
		Asyncs: []xactor.AsyncHandlerArgs{xactor.AsyncHandlerWrap(b.block)},
	}
}

func (b *blockActor) Name() string { return "block" }

func (b *blockActor) Close(ctx context.Context) {}

func (b *blockActor) block(ctx context.Context, req *blockReq) {
	if req.release != nil {
		<-req.release
	}
	b.n.Inc()
}

func TestActorTryAsyncRequestFull(t *testing.T) {
	ctx := context.Background()
	b := &blockActor{n: atomic.NewInt32(0)}
	actor, err := xactor.NewActorGroutine(ctx, b)
	require.NoError(t, err)

	release := make(chan struct{})
	require.True(t, actor.TryAsyncRequest(ctx, &blockReq{release: release}))

	// 处理函数阻塞, 填满mailbox后投递被丢弃
	accepted, dropped := 0, 0
	for i := 0; i < 10000 && dropped == 0; i++ {
		if actor.TryAsyncRequest(ctx, &blockReq{}) {
			accepted++
		} else {
			dropped++
		}
	}
	assert.Equal(t, 1, dropped)
	assert.Less(t, accepted, 10000)

	close(release)
	assert.Eventually(t, func() bool { return int(b.n.Load()) == accepted+1 }, time.Second, 5*time.Millisecond)

	actor.Close(ctx)
	assert.False(t, actor.TryAsyncRequest(ctx, &blockReq{}))
}
