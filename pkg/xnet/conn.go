package xnet

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
)

const (
	NetworkTCP = "tcp"
	NetworkUDP = "udp"
	NetworkKCP = "kcp"
	NetworkWS  = "ws"

	// MaxChunkSize 单次读取上限, 同时也是udp接收缓冲大小
	MaxChunkSize = 65536
)

// 用于立即唤醒阻塞中的读写
var aLongTimeAgo = time.Unix(1, 0)

// Dialer 建立一条流式连接, 所有流式传输(tcp/kcp/ws)都以net.Conn形式返回
type Dialer interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

type DialerFunc func(ctx context.Context, addr string) (net.Conn, error)

func (fn DialerFunc) Dial(ctx context.Context, addr string) (net.Conn, error) {
	return fn(ctx, addr)
}

func NewDialer(network string) (Dialer, error) {
	switch network {
	case NetworkTCP:
		return &TCPDialer{}, nil
	case NetworkKCP:
		return &KCPDialer{}, nil
	case NetworkWS:
		return &WSDialer{}, nil
	default:
		return nil, errors.Errorf("network[%s] has no stream dialer", network)
	}
}

// Listen 流式监听, 返回的net.Listener在Close后Accept立即返回错误
func Listen(ctx context.Context, network, addr string) (net.Listener, error) {
	switch network {
	case NetworkTCP:
		return ListenTCP(ctx, addr)
	case NetworkKCP:
		return ListenKCP(ctx, addr)
	case NetworkWS:
		return ListenWS(ctx, addr)
	default:
		return nil, errors.Errorf("network[%s] has no stream listener", network)
	}
}

type interrupter interface {
	Interrupt()
}

// Interrupt 让conn上阻塞的读写立即返回超时错误
func Interrupt(conn net.Conn) {
	if i, ok := conn.(interrupter); ok {
		i.Interrupt()
		return
	}
	_ = conn.SetDeadline(aLongTimeAgo)
}

// InterruptOnCancel ctx取消时唤醒conn, 返回的stop用于解除绑定
func InterruptOnCancel(ctx context.Context, conn net.Conn) (stop func() bool) {
	return context.AfterFunc(ctx, func() { Interrupt(conn) })
}

// InterruptPacketOnCancel 同InterruptOnCancel, 作用于udp socket
func InterruptPacketOnCancel(ctx context.Context, pc net.PacketConn) (stop func() bool) {
	return context.AfterFunc(ctx, func() { _ = pc.SetDeadline(aLongTimeAgo) })
}

// IsTimeout 读写deadline到期
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsClosed 对端关闭或本端已关闭
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}
