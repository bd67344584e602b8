package xactor

import (
	"context"
	"reflect"
	"sync"
	"time"

	"gecho/pkg/xcommon"
	"gecho/pkg/xlog"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrActorClosed = errors.New("actor closed")

// 模拟actor模式
// 特性:
//  1. 异步单协程处理, state只在actor协程内访问
//  2. 同步阻塞消息处理/异步消息处理
//  3. 支持ticker
type ActorGroutine struct {
	state ActorState
	box   *mailBox
	*actorHandler

	wg        xcommon.WaitGroup
	closeOnce sync.Once
	closeCh   chan struct{}
	doneCh    chan struct{}
}

func NewActorGroutine(ctx context.Context, state ActorState) (*ActorGroutine, error) {
	handler, err := newActorHandler(state.InitArg())
	if err != nil {
		return nil, err
	}
	actor := &ActorGroutine{
		state:        state,
		box:          newMailBox(),
		actorHandler: handler,
		closeCh:      make(chan struct{}),
		doneCh:       make(chan struct{}),
	}

	actor.wg.Go(xlog.NewContext(ctx, zap.String("actor", state.Name())), actor.logicLoop)
	return actor, nil
}

// 业务循环
func (actor *ActorGroutine) logicLoop(ctx context.Context) {
	defer close(actor.doneCh)

	ticker := time.NewTicker(actor.actorHandler.tickerDuration)
	defer ticker.Stop()

	defer actor.state.Close(ctx)

	for {
		select {
		case m := <-actor.box.recvMail():
			actor.dispatch(ctx, m)
		case <-ticker.C:
			actor.actorHandler.tick(ctx)
		case <-actor.closeCh:
			// 关闭前处理完已投递的mail
			for {
				select {
				case m := <-actor.box.recvMail():
					actor.dispatch(ctx, m)
				default:
					return
				}
			}
		}
	}
}

func (actor *ActorGroutine) dispatch(ctx context.Context, m *mail) {
	switch m.t {
	case syncMail:
		handler := actor.actorHandler.getSyncHandler(reflect.TypeOf(m.req))
		if handler == nil {
			m.resultCh <- &result{err: errors.Errorf("sync handler for %v is nil", reflect.TypeOf(m.req))}
			return
		}
		resp, err := handler(m.ctx, m.req)
		m.resultCh <- &result{resp: resp, err: err}
	case asyncMail:
		handler := actor.actorHandler.getAsyncHandler(reflect.TypeOf(m.req))
		if handler == nil {
			xlog.Get(ctx).Warn("Async handler is nil", zap.Any("req", reflect.TypeOf(m.req)))
			return
		}
		handler(ctx, m.req)
	default:
		xlog.Get(ctx).Warn("Mail type invalid", zap.Any("type", m.t))
	}
}

// 同步请求
func (actor *ActorGroutine) syncRequest(ctx context.Context, req interface{}) (interface{}, error) {
	m := newMail(ctx, syncMail, req)
	if !actor.box.sendMail(m, actor.closeCh) {
		return nil, ErrActorClosed
	}
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "cancel request")
	case r := <-m.resultCh:
		return r.resp, r.err
	case <-actor.doneCh:
		// 关闭前可能已经处理
		select {
		case r := <-m.resultCh:
			return r.resp, r.err
		default:
			return nil, ErrActorClosed
		}
	}
}

// 同步请求(模板)
func SyncRequest[M1 any, M2 any](ctx context.Context, actor *ActorGroutine, req *M1) (*M2, error) {
	res, err := actor.syncRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, ok := res.(*M2)
	if !ok {
		return nil, errors.Errorf("result [%v] not type [%v]", reflect.TypeOf(res), reflect.TypeOf(new(M2)))
	}
	return resp, nil
}

// 异步请求, actor关闭后丢弃
func (actor *ActorGroutine) AsyncRequest(ctx context.Context, req interface{}) {
	if !actor.box.sendMail(newMail(ctx, asyncMail, req), actor.closeCh) {
		xlog.Get(ctx).Debug("Actor closed, drop async request.", zap.Any("req", reflect.TypeOf(req)))
	}
}

// TryAsyncRequest 不阻塞的异步请求, mailbox已满或actor已关闭时丢弃并返回false
func (actor *ActorGroutine) TryAsyncRequest(ctx context.Context, req interface{}) bool {
	return actor.box.trySendMail(newMail(ctx, asyncMail, req), actor.closeCh)
}

// 关闭, 可重复调用
func (actor *ActorGroutine) Close(ctx context.Context) {
	actor.closeOnce.Do(func() {
		close(actor.closeCh)
	})
	actor.wg.Wait()
}
