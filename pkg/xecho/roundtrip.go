package xecho

import (
	"bytes"
	"context"
	"io"
	"net"
	"time"

	"gecho/pkg/xnet"
)

// StreamRoundTrip writes payload to conn and reads back exactly len(payload) bytes.
// Each phase is bounded by timeout on its own. The returned error is non-nil only
// when ctx was cancelled; every other failure is reported in the Outcome.
func StreamRoundTrip(ctx context.Context, conn net.Conn, payload []byte, timeout time.Duration) (Outcome, error) {
	stop := xnet.InterruptOnCancel(ctx, conn)
	defer stop()

	start := time.Now()
	if err := conn.SetWriteDeadline(start.Add(timeout)); err != nil {
		return Outcome{Kind: SendFailed, Err: err}, nil
	}
	if ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}
	// net.Conn.Write returns a non-nil error on any short write
	if _, err := conn.Write(payload); err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		if xnet.IsTimeout(err) {
			return Outcome{Kind: TimedOut, Err: err}, nil
		}
		return Outcome{Kind: SendFailed, Err: err}, nil
	}

	buf := make([]byte, len(payload))
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Outcome{Kind: ReceiveFailed, Err: err}, nil
	}
	// 取消可能发生在设置deadline之前, 其过去的deadline已被覆盖
	if ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}
	n, err := io.ReadFull(conn, buf)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		if xnet.IsTimeout(err) {
			return Outcome{Kind: TimedOut, Bytes: n, Err: err}, nil
		}
		return Outcome{Kind: ReceiveFailed, Bytes: n, Err: err}, nil
	}
	return verify(payload, buf[:n], time.Since(start)), nil
}

// DatagramRoundTrip binds a socket for this attempt only, sends one datagram to raddr and
// waits for one reply. A bind failure is returned as an error since it ends the loop.
func DatagramRoundTrip(ctx context.Context, binder xnet.PacketBinder, laddr string, raddr net.Addr, payload []byte, timeout time.Duration) (Outcome, error) {
	pc, err := binder.Bind(ctx, laddr)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, newEchoError(ErrBindFailed, laddr, err)
	}
	defer pc.Close()

	stop := xnet.InterruptPacketOnCancel(ctx, pc)
	defer stop()

	start := time.Now()
	if _, err := pc.WriteTo(payload, raddr); err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{Kind: SendFailed, Err: err}, nil
	}

	// 接收缓冲等于payload长度, 更长的回包被截断
	buf := make([]byte, len(payload))
	if err := pc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Outcome{Kind: ReceiveFailed, Err: err}, nil
	}
	if ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		if xnet.IsTimeout(err) {
			return Outcome{Kind: TimedOut, Err: err}, nil
		}
		return Outcome{Kind: ReceiveFailed, Bytes: n, Err: err}, nil
	}
	return verify(payload, buf[:n], time.Since(start)), nil
}

func verify(sent, received []byte, rtt time.Duration) Outcome {
	kind := Mismatched
	if bytes.Equal(sent, received) {
		kind = Matched
	}
	return Outcome{Kind: kind, Bytes: len(received), RTT: rtt}
}
