package xecho

import (
	"context"
	"net"
	"testing"
	"time"

	"gecho/pkg/xlog"
	"gecho/pkg/xnet"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var helloWorld = []byte("Hello World!")

// startStreamServer 启动一个回显服务, 测试结束时取消
func startStreamServer(t *testing.T, network string, stats *Stats) (*StreamServer, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	svr, err := NewStreamServer(ctx, StreamServerArgs{Network: network, Addr: "127.0.0.1:0", Stats: stats})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svr.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return svr, done
}

func startDatagramServer(t *testing.T, stats *Stats) *DatagramServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	svr, err := NewDatagramServer(ctx, DatagramServerArgs{Addr: "127.0.0.1:0", Stats: stats})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svr.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return svr
}

// silentUDPPeer 只接收不回复
func silentUDPPeer(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	go func() {
		buf := make([]byte, xnet.MaxChunkSize)
		for {
			if _, _, err := pc.ReadFrom(buf); err != nil {
				return
			}
		}
	}()
	return pc
}

// silentStreamPeer 接受连接并读取, 从不回写
func silentStreamPeer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, 1024)
				for {
					if _, err := conn.Read(buf); err != nil {
						return
					}
				}
			}()
		}
	}()
	return ln
}

// countingDialer 统计Dial调用次数
type countingDialer struct {
	dials *atomic.Int32
	inner xnet.Dialer
}

func newCountingDialer(inner xnet.Dialer) *countingDialer {
	return &countingDialer{dials: atomic.NewInt32(0), inner: inner}
}

func (d *countingDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	d.dials.Inc()
	return d.inner.Dial(ctx, addr)
}

// countingBinder 统计Bind次数并记录每次的本地地址
type countingBinder struct {
	binds *atomic.Int32
	addrs chan net.Addr
}

func newCountingBinder() *countingBinder {
	return &countingBinder{binds: atomic.NewInt32(0), addrs: make(chan net.Addr, 1024)}
}

func (b *countingBinder) Bind(ctx context.Context, addr string) (net.PacketConn, error) {
	pc, err := xnet.ListenUDP(ctx, addr)
	if err != nil {
		return nil, err
	}
	b.binds.Inc()
	select {
	case b.addrs <- pc.LocalAddr():
	default:
	}
	return pc, nil
}

func within(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("did not return within %v", d)
	}
}

// observedContext 记录ctx logger输出的所有日志
func observedContext() (context.Context, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return xlog.WithLogger(context.Background(), zap.New(core)), logs
}
