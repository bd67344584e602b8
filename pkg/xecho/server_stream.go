package xecho

import (
	"context"
	"net"
	"time"

	"gecho/pkg/xcommon"
	"gecho/pkg/xlog"
	"gecho/pkg/xnet"

	"go.uber.org/zap"
)

type StreamServerArgs struct {
	Network     string // xnet.NetworkTCP|KCP|WS
	Addr        string
	IdleTimeout time.Duration // 0 = handlers wait for the peer forever
	Stats       *Stats        // optional
}

// StreamServer accepts connections and echoes each one on its own goroutine.
type StreamServer struct {
	arg      StreamServerArgs
	listener net.Listener
}

func NewStreamServer(ctx context.Context, arg StreamServerArgs) (*StreamServer, error) {
	listener, err := xnet.Listen(ctx, arg.Network, arg.Addr)
	if err != nil {
		return nil, newEchoError(ErrBindFailed, arg.Addr, err)
	}
	return &StreamServer{arg: arg, listener: listener}, nil
}

func (svr *StreamServer) Addr() net.Addr {
	return svr.listener.Addr()
}

// Serve accepts until ctx is cancelled. Handlers already running are not joined:
// they end when their peer closes, on an I/O error, or with the process.
func (svr *StreamServer) Serve(ctx context.Context) error {
	ctx = xlog.NewContext(ctx, zap.String("network", svr.arg.Network), zap.Stringer("listen", svr.listener.Addr()))
	log := xlog.Get(ctx)
	log.Info("Echo server listening.")

	stop := context.AfterFunc(ctx, func() { _ = svr.listener.Close() })
	defer stop()
	defer svr.listener.Close()

	// 仅acceptor协程访问
	var accepted uint64
	for {
		conn, err := svr.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Echo server stop.", zap.Uint64("accepted", accepted))
				return nil
			}
			err = newEchoError(ErrAcceptFailed, svr.listener.Addr().String(), err)
			log.Error("Accept failed.", zap.Error(err))
			return err
		}
		accepted++
		connCtx := xlog.NewContext(context.WithoutCancel(ctx), zap.Uint64("conn", accepted), zap.Stringer("peer", conn.RemoteAddr()))
		xlog.Get(connCtx).Info("Peer connected.")
		go svr.handle(connCtx, conn)
	}
}

func (svr *StreamServer) handle(ctx context.Context, conn net.Conn) {
	defer xcommon.Recover(ctx)
	defer conn.Close()

	log := xlog.Get(ctx)
	if svr.arg.Stats != nil {
		svr.arg.Stats.ConnOpened(ctx)
		defer svr.arg.Stats.ConnClosed(ctx)
	}

	chunk := xnet.GetChunk()
	defer xnet.PutChunk(chunk)
	buf := *chunk

	var count uint64
	for {
		if svr.arg.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(svr.arg.IdleTimeout)); err != nil {
				log.Warn("Set read deadline failed.", zap.Error(err))
				return
			}
		}
		n, err := conn.Read(buf)
		if n > 0 {
			count++
			log.Debug("Received chunk.", zap.Uint64("seq", count), zap.Int("bytes", n))
			if svr.arg.IdleTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(svr.arg.IdleTimeout))
			}
			if _, werr := conn.Write(buf[:n]); werr != nil {
				log.Warn("Echo write failed, close connection.", zap.Uint64("seq", count), zap.Error(werr))
				return
			}
			if svr.arg.Stats != nil {
				svr.arg.Stats.Echoed(ctx, n)
			}
		}
		if err != nil {
			switch {
			case xnet.IsClosed(err):
				log.Info("Connection closed by peer.", zap.Uint64("messages", count))
			case xnet.IsTimeout(err):
				log.Info("Connection idle, close.", zap.Uint64("messages", count), zap.Duration("idle", svr.arg.IdleTimeout))
			default:
				log.Warn("Read failed, close connection.", zap.Uint64("messages", count), zap.Error(err))
			}
			return
		}
	}
}
