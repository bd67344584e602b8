package xnet

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"gecho/pkg/xlog"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	WSPath = "/echo"

	wsBufferSize = 4096
	wsAcceptChan = 64
)

// WSDialer 建立 ws://addr/echo 连接
type WSDialer struct {
	HandshakeTimeout time.Duration
}

func (d *WSDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		ReadBufferSize:   wsBufferSize,
		WriteBufferSize:  wsBufferSize,
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: WSPath}
	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return newWSConn(ws), nil
}

// wsListener 将http升级后的连接以net.Listener形式交给调用者
type wsListener struct {
	ln       net.Listener
	svr      *http.Server
	upgrader websocket.Upgrader
	connCh   chan net.Conn

	closeOnce sync.Once
	closeCh   chan struct{}
}

func ListenWS(ctx context.Context, addr string) (net.Listener, error) {
	ln, err := ListenTCP(ctx, addr)
	if err != nil {
		return nil, err
	}
	l := &wsListener{
		ln: ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsBufferSize,
			WriteBufferSize: wsBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		connCh:  make(chan net.Conn, wsAcceptChan),
		closeCh: make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(WSPath, l.upgrade(ctx))
	l.svr = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := l.svr.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			xlog.Get(ctx).Warn("WebSocket http serve exit.", zap.Error(err))
		}
		l.Close()
	}()
	return l, nil
}

func (l *wsListener) upgrade(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := l.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade已回写http错误
			xlog.Get(ctx).Debug("WebSocket upgrade failed.", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
		conn := newWSConn(ws)
		select {
		case l.connCh <- conn:
		case <-l.closeCh:
			_ = conn.Close()
		}
	}
}

func (l *wsListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.connCh:
		return conn, nil
	case <-l.closeCh:
		return nil, net.ErrClosed
	}
}

// Close 只停止接收新连接, 已升级的连接由各自持有者负责
func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closeCh)
		err = l.svr.Close()
	})
	return err
}

func (l *wsListener) Addr() net.Addr {
	return l.ln.Addr()
}
