package xecho

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"gecho/pkg/xconf"
	"gecho/pkg/xnet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func portOf(t *testing.T, addr net.Addr) uint16 {
	t.Helper()
	_, port, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return uint16(p)
}

func TestRunClient(t *testing.T) {
	tests := []struct {
		transport xconf.Transport
		addr      func(t *testing.T) net.Addr
	}{
		{xconf.TransportUDP, func(t *testing.T) net.Addr { return startDatagramServer(t, nil).Addr() }},
		{xconf.TransportTCP, func(t *testing.T) net.Addr {
			svr, _ := startStreamServer(t, xnet.NetworkTCP, nil)
			return svr.Addr()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.transport.String(), func(t *testing.T) {
			conf := &xconf.EchoConfig{
				Role:       xconf.RoleClient,
				Transport:  tt.transport,
				RemoteHost: "127.0.0.1",
				RemotePort: portOf(t, tt.addr(t)),
				Payload:    helloWorld,
				Count:      2,
				Timeout:    time.Second,
			}
			var out bytes.Buffer
			err := Run(context.Background(), RunArgs{Config: conf, Out: &out})
			require.NoError(t, err)
			assert.Contains(t, out.String(), "matched")
			assert.Contains(t, out.String(), "attempts")
		})
	}
}

func TestRunClientConnectFailed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := portOf(t, ln.Addr())
	_ = ln.Close()

	var out bytes.Buffer
	err = Run(context.Background(), RunArgs{Out: &out, Config: &xconf.EchoConfig{
		Role:       xconf.RoleClient,
		Transport:  xconf.TransportTCP,
		RemoteHost: "127.0.0.1",
		RemotePort: port,
		Payload:    helloWorld,
		Count:      1,
		Timeout:    time.Second,
	}})
	assert.ErrorIs(t, err, ErrConnectFailed)
	// 失败时仍输出汇总
	assert.Contains(t, out.String(), "attempts")
}

func TestRunServer(t *testing.T) {
	for _, transport := range []xconf.Transport{xconf.TransportTCP, xconf.TransportUDP, xconf.TransportKCP, xconf.TransportWS} {
		t.Run(transport.String()+" cancel", func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() {
				done <- Run(ctx, RunArgs{Config: &xconf.EchoConfig{Role: xconf.RoleServer, Transport: transport, LocalPort: 0}})
			}()

			time.Sleep(50 * time.Millisecond)
			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(time.Second):
				t.Fatal("server did not stop")
			}
		})
	}
}

func TestRunServerBindFailed(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	err = Run(context.Background(), RunArgs{Config: &xconf.EchoConfig{
		Role:      xconf.RoleServer,
		Transport: xconf.TransportTCP,
		LocalPort: portOf(t, ln.Addr()),
	}})
	assert.ErrorIs(t, err, ErrBindFailed)
}

func TestRunBindFailedLoggedOnce(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, logs := observedContext()
	err = Run(ctx, RunArgs{Config: &xconf.EchoConfig{
		Role:      xconf.RoleServer,
		Transport: xconf.TransportTCP,
		LocalPort: portOf(t, ln.Addr()),
	}})
	assert.ErrorIs(t, err, ErrBindFailed)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRunConnectFailedLoggedOnce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := portOf(t, ln.Addr())
	_ = ln.Close()

	ctx, logs := observedContext()
	err = Run(ctx, RunArgs{Config: &xconf.EchoConfig{
		Role:       xconf.RoleClient,
		Transport:  xconf.TransportTCP,
		RemoteHost: "127.0.0.1",
		RemotePort: port,
		Payload:    helloWorld,
		Count:      1,
		Timeout:    time.Second,
	}})
	assert.ErrorIs(t, err, ErrConnectFailed)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}
