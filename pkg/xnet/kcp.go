package xnet

import (
	"context"
	"net"

	"gecho/pkg/xlog"

	"github.com/pkg/errors"
	"github.com/xtaci/kcp-go"
	"go.uber.org/zap"
)

const (
	kcpWindowSize = 128
	kcpMTU        = 1400
)

// kcp会话参数, 两端保持一致: 流模式 + 快速模式
func tuneKCP(sess *kcp.UDPSession) {
	sess.SetStreamMode(true)
	sess.SetWriteDelay(false)
	sess.SetNoDelay(1, 10, 2, 1)
	sess.SetWindowSize(kcpWindowSize, kcpWindowSize)
	sess.SetMtu(kcpMTU)
	sess.SetACKNoDelay(true)
}

// KCPDialer kcp无握手, Dial只创建本地会话
type KCPDialer struct{}

func (d *KCPDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	tuneKCP(sess)
	return sess, nil
}

type kcpListener struct {
	*kcp.Listener
}

func (l *kcpListener) Accept() (net.Conn, error) {
	sess, err := l.AcceptKCP()
	if err != nil {
		return nil, err
	}
	tuneKCP(sess)
	return sess, nil
}

func ListenKCP(ctx context.Context, addr string) (net.Listener, error) {
	listener, err := kcp.ListenWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "listen addr[%s] failed", addr)
	}
	xlog.Get(ctx).Debug("KCP listen success.", zap.Stringer("addr", listener.Addr()))
	return &kcpListener{Listener: listener}, nil
}
