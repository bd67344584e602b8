package xnet

import (
	"context"
	"net"

	"gecho/pkg/xlog"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type TCPDialer struct {
	net.Dialer
}

func (d *TCPDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	conn, err := d.DialContext(ctx, NetworkTCP, addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		// 小包ping-pong, 关闭Nagle
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

func ListenTCP(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, NetworkTCP, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen addr[%s] failed", addr)
	}
	xlog.Get(ctx).Debug("TCP listen success.", zap.Stringer("addr", listener.Addr()))
	return listener, nil
}
