package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"gecho/pkg/xcommon"
	"gecho/pkg/xlatency"
	"gecho/pkg/xlog"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// udp中继, 在echo客户端和服务端之间模拟丢包与延迟
func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("gecho-relay", pflag.ContinueOnError)
	fs.SortFlags = false
	listen := fs.String("listen", ":6000", "udp listen addr")
	upstream := fs.String("upstream", "127.0.0.1:7", "udp echo server addr")
	inLoss := fs.Uint32("in-loss", 0, "client->server loss 0~100")
	inLatency := fs.Duration("in-latency", 0, "client->server max random latency")
	outLoss := fs.Uint32("out-loss", 0, "server->client loss 0~100")
	outLatency := fs.Duration("out-latency", 0, "server->client max random latency")
	seed := fs.Int64("seed", 0, "random seed, 0 = time based")
	sessionTimeout := fs.Duration("session-timeout", 30*time.Second, "close an upstream socket after this long without traffic")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	logFormat := fs.String("log-format", xlog.FormatConsole, "log format: console|json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if err := xlog.Init(xlog.Options{Level: *logLevel, Format: *logFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "gecho-relay: %v\n", err)
		return 2
	}
	defer xlog.Sync()

	ctx := context.Background()
	defer xcommon.Recover(ctx)
	ctx, stop := xcommon.SignalContext(ctx)
	defer stop()

	relay, err := xlatency.NewRelay(ctx, xlatency.RelayArgs{
		Listen:   *listen,
		Upstream: *upstream,
		In:       xlatency.Impairment{Loss: *inLoss, Latency: *inLatency},
		Out:      xlatency.Impairment{Loss: *outLoss, Latency: *outLatency},
		Seed:     *seed,

		SessionTimeout: *sessionTimeout,
	})
	if err != nil {
		xlog.Get(ctx).Error("Start relay failed.", zap.Error(err))
		return 1
	}

	start := time.Now()
	if err := relay.Serve(ctx); err != nil {
		xlog.Get(ctx).Error("Relay exit with error.", zap.Error(err), zap.Duration("uptime", time.Since(start)))
		return 1
	}
	return 0
}
