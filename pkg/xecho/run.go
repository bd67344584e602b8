package xecho

import (
	"context"
	"io"
	"time"

	"gecho/pkg/xconf"
	"gecho/pkg/xlog"
	"gecho/pkg/xmetrics"
	"gecho/pkg/xnet"

	"go.uber.org/zap"
)

// kcp has no FIN, a silent peer is only detected by idleness.
const kcpIdleTimeout = 2 * time.Minute

type RunArgs struct {
	Config  *xconf.EchoConfig
	Metrics *xmetrics.Metrics // optional
	Out     io.Writer         // client summary table, nil = no table
}

// Run starts the one loop selected by (role, transport) and blocks until it ends.
func Run(ctx context.Context, arg RunArgs) error {
	conf := arg.Config
	network := string(conf.Transport)
	ctx = xlog.NewContext(ctx, zap.String("role", conf.Role.String()))

	stats, err := NewStats(ctx, StatsArgs{Network: network, Metrics: arg.Metrics})
	if err != nil {
		xlog.Get(ctx).Error("Start stats failed.", zap.Error(err))
		return err
	}
	defer stats.Close(ctx)

	if conf.Role == xconf.RoleClient {
		return runClient(ctx, arg, stats)
	}

	if conf.Transport.IsStream() {
		var idle time.Duration
		if conf.Transport == xconf.TransportKCP {
			idle = kcpIdleTimeout
		}
		svr, err := NewStreamServer(ctx, StreamServerArgs{Network: network, Addr: conf.LocalAddr(), IdleTimeout: idle, Stats: stats})
		if err != nil {
			xlog.Get(ctx).Error("Bind failed.", zap.Error(err))
			return err
		}
		return svr.Serve(ctx)
	}

	svr, err := NewDatagramServer(ctx, DatagramServerArgs{Addr: conf.LocalAddr(), Binder: xnet.UDPBinder, Stats: stats})
	if err != nil {
		xlog.Get(ctx).Error("Bind failed.", zap.Error(err))
		return err
	}
	return svr.Serve(ctx)
}

func runClient(ctx context.Context, arg RunArgs, stats *Stats) error {
	conf := arg.Config
	cli, err := NewClient(ctx, ClientArgs{
		Network:    string(conf.Transport),
		RemoteAddr: conf.RemoteAddr(),
		LocalAddr:  conf.LocalAddr(),
		Payload:    conf.Payload,
		Count:      conf.Count,
		Timeout:    conf.Timeout,
		Stats:      stats,
	})
	if err != nil {
		xlog.Get(ctx).Error("Create client failed.", zap.Error(err))
		return err
	}
	summary, err := cli.Run(ctx)
	if arg.Out != nil {
		summary.Print(ctx, arg.Out)
	}
	return err
}
