package main

import (
	"context"
	"fmt"
	"os"

	"gecho/pkg/xcommon"
	"gecho/pkg/xconf"
	"gecho/pkg/xecho"
	"gecho/pkg/xlog"
	"gecho/pkg/xmetrics"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	conf, err := xconf.Load(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "gecho: %v\n", err)
		return 2
	}
	if err := xlog.Init(xlog.Options{Level: conf.LogLevel, Format: conf.LogFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "gecho: %v\n", err)
		return 2
	}
	defer xlog.Sync()

	ctx := xlog.NewContext(context.Background(), zap.String("run", conf.RunID))
	defer xcommon.Recover(ctx)

	ctx, stop := xcommon.SignalContext(ctx)
	defer stop()

	var metrics *xmetrics.Metrics
	if conf.MetricsAddr != "" {
		metrics = xmetrics.New()
		if _, err := metrics.Serve(ctx, conf.MetricsAddr); err != nil {
			xlog.Get(ctx).Error("Start metrics failed.", zap.Error(err))
			return 1
		}
	}

	xlog.Get(ctx).Info("gecho start.",
		zap.String("role", conf.Role.String()),
		zap.String("protocol", conf.Transport.String()),
		zap.String("local", conf.LocalAddr()),
	)
	// 失败已在发生处记录, 这里只转换退出码
	if err := xecho.Run(ctx, xecho.RunArgs{Config: conf, Metrics: metrics, Out: os.Stdout}); err != nil {
		return 1
	}
	return 0
}
