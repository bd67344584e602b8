package xcommon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"gecho/pkg/xlog"

	"go.uber.org/zap"
)

// SignalContext 信号监听, SIGINT/SIGTERM触发后ctx取消; stop释放监听
func SignalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			xlog.Get(ctx).Info("Recv exit signal, shutting down.", zap.Stringer("signal", sig))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
