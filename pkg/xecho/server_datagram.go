package xecho

import (
	"context"
	"net"

	"gecho/pkg/xlog"
	"gecho/pkg/xnet"

	"go.uber.org/zap"
)

type DatagramServerArgs struct {
	Addr   string
	Binder xnet.PacketBinder // defaults to xnet.UDPBinder
	Stats  *Stats            // optional
}

// DatagramServer echoes datagrams one at a time on a single socket.
type DatagramServer struct {
	arg DatagramServerArgs
	pc  net.PacketConn
}

func NewDatagramServer(ctx context.Context, arg DatagramServerArgs) (*DatagramServer, error) {
	if arg.Binder == nil {
		arg.Binder = xnet.UDPBinder
	}
	pc, err := arg.Binder.Bind(ctx, arg.Addr)
	if err != nil {
		return nil, newEchoError(ErrBindFailed, arg.Addr, err)
	}
	return &DatagramServer{arg: arg, pc: pc}, nil
}

func (svr *DatagramServer) Addr() net.Addr {
	return svr.pc.LocalAddr()
}

// Serve receives and replies until ctx is cancelled or the socket fails.
func (svr *DatagramServer) Serve(ctx context.Context) error {
	ctx = xlog.NewContext(ctx, zap.String("network", xnet.NetworkUDP), zap.Stringer("listen", svr.pc.LocalAddr()))
	log := xlog.Get(ctx)
	log.Info("Echo server listening.")
	defer svr.pc.Close()

	stop := xnet.InterruptPacketOnCancel(ctx, svr.pc)
	defer stop()

	buf := make([]byte, xnet.MaxChunkSize)
	var count uint64
	for {
		n, src, err := svr.pc.ReadFrom(buf)
		if ctx.Err() != nil {
			log.Info("Echo server stop.", zap.Uint64("messages", count))
			return nil
		}
		if err != nil {
			err = newEchoError(ErrReceiveFailed, svr.pc.LocalAddr().String(), err)
			log.Error("Receive failed, stop server.", zap.Error(err))
			return err
		}
		count++
		log.Debug("Received datagram.", zap.Uint64("seq", count), zap.Int("bytes", n), zap.Stringer("peer", src))

		if _, err := svr.pc.WriteTo(buf[:n], src); err != nil {
			if ctx.Err() != nil {
				log.Info("Echo server stop.", zap.Uint64("messages", count))
				return nil
			}
			err = newEchoError(ErrSendFailed, src.String(), err)
			log.Error("Send failed, stop server.", zap.Error(err))
			return err
		}
		if svr.arg.Stats != nil {
			svr.arg.Stats.Echoed(ctx, n)
		}
	}
}
