package xecho

import (
	"context"
	"net"
	"time"

	"gecho/pkg/xlog"
	"gecho/pkg/xnet"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultPacing is the delay between two consecutive attempts.
const DefaultPacing = 100 * time.Millisecond

type ClientArgs struct {
	Network    string // xnet.NetworkTCP|UDP|KCP|WS
	RemoteAddr string
	LocalAddr  string // udp only, port 0 = ephemeral
	Payload    []byte
	Count      uint32 // 0 = until ctx is cancelled
	Timeout    time.Duration
	Pacing     time.Duration

	Dialer xnet.Dialer       // stream networks, defaults to xnet.NewDialer(Network)
	Binder xnet.PacketBinder // udp, defaults to xnet.UDPBinder
	Stats  *Stats            // optional
}

type Client struct {
	arg ClientArgs
}

func NewClient(ctx context.Context, arg ClientArgs) (*Client, error) {
	if len(arg.Payload) == 0 {
		return nil, errors.New("payload is empty")
	}
	if arg.Timeout <= 0 {
		return nil, errors.Errorf("timeout[%v] invalid", arg.Timeout)
	}
	if arg.Pacing <= 0 {
		arg.Pacing = DefaultPacing
	}
	if arg.Network == xnet.NetworkUDP {
		if arg.Binder == nil {
			arg.Binder = xnet.UDPBinder
		}
		if arg.LocalAddr == "" {
			arg.LocalAddr = ":0"
		}
	} else if arg.Dialer == nil {
		dialer, err := xnet.NewDialer(arg.Network)
		if err != nil {
			return nil, err
		}
		arg.Dialer = dialer
	}
	return &Client{arg: arg}, nil
}

// attemptFunc runs one round trip. A non-nil error ends the loop.
type attemptFunc func(ctx context.Context) (Outcome, error)

// Run drives the round trips until Count is exhausted or ctx is cancelled.
// Cancellation is a clean stop and returns a nil error.
func (cli *Client) Run(ctx context.Context) (*Summary, error) {
	ctx = xlog.NewContext(ctx, zap.String("network", cli.arg.Network), zap.String("remote", cli.arg.RemoteAddr))
	log := xlog.Get(ctx)
	log.Info("Echo client start.", zap.Uint32("count", cli.arg.Count), zap.Duration("timeout", cli.arg.Timeout))
	defer log.Info("Echo client stop.")

	summary := &Summary{}
	var attempt attemptFunc

	if cli.arg.Network == xnet.NetworkUDP {
		raddr, err := xnet.ResolveUDPAddr(cli.arg.RemoteAddr)
		if err != nil {
			err = newEchoError(ErrConnectFailed, cli.arg.RemoteAddr, err)
			log.Error("Resolve remote failed.", zap.Error(err))
			return summary, err
		}
		attempt = func(ctx context.Context) (Outcome, error) {
			return DatagramRoundTrip(ctx, cli.arg.Binder, cli.arg.LocalAddr, raddr, cli.arg.Payload, cli.arg.Timeout)
		}
	} else {
		conn, err := cli.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return summary, nil
			}
			log.Error("Connect failed.", zap.Error(err))
			return summary, err
		}
		defer conn.Close()
		log.Info("Connected to peer.", zap.Stringer("local", conn.LocalAddr()), zap.Stringer("peer", conn.RemoteAddr()))

		attempt = func(ctx context.Context) (Outcome, error) {
			o, err := StreamRoundTrip(ctx, conn, cli.arg.Payload, cli.arg.Timeout)
			if err == nil && o.Kind == SendFailed {
				// 连接复用, 写失败后字节流已不可信
				return o, newEchoError(ErrSendFailed, cli.arg.RemoteAddr, o.Err)
			}
			return o, err
		}
	}

	return summary, cli.loop(ctx, attempt, summary)
}

func (cli *Client) connect(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cli.arg.Timeout)
	defer cancel()

	conn, err := cli.arg.Dialer.Dial(dialCtx, cli.arg.RemoteAddr)
	if err != nil {
		if dialCtx.Err() == context.DeadlineExceeded {
			err = errors.Wrapf(ErrTimedOut, "no connection within %v: %v", cli.arg.Timeout, err)
		}
		return nil, newEchoError(ErrConnectFailed, cli.arg.RemoteAddr, err)
	}
	return conn, nil
}

func (cli *Client) loop(ctx context.Context, attempt attemptFunc, summary *Summary) error {
	log := xlog.Get(ctx)
	infinite := cli.arg.Count == 0
	remaining := cli.arg.Count

	pacing := time.NewTimer(cli.arg.Pacing)
	defer pacing.Stop()

	for seq := uint64(1); infinite || remaining > 0; seq++ {
		if ctx.Err() != nil {
			log.Info("Cancelled, stop sending.", zap.Uint64("attempts", summary.Attempts))
			return nil
		}

		log.Debug("Sending payload.", zap.Uint64("seq", seq), zap.Int("bytes", len(cli.arg.Payload)))
		o, err := attempt(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Cancelled during round trip.", zap.Uint64("seq", seq))
				return nil
			}
			if o.Kind == SendFailed {
				summary.Add(o)
				cli.record(ctx, o)
			}
			log.Error("Echo client abort.", zap.Uint64("seq", seq), zap.Error(err))
			return err
		}
		summary.Add(o)
		cli.record(ctx, o)
		logOutcome(ctx, seq, o)

		if remaining > 0 {
			remaining--
		}
		if !infinite && remaining == 0 {
			break
		}

		if !pacing.Stop() {
			select {
			case <-pacing.C:
			default:
			}
		}
		pacing.Reset(cli.arg.Pacing)
		select {
		case <-ctx.Done():
			log.Info("Cancelled, stop sending.", zap.Uint64("attempts", summary.Attempts))
			return nil
		case <-pacing.C:
		}
	}
	return nil
}

func (cli *Client) record(ctx context.Context, o Outcome) {
	if cli.arg.Stats != nil {
		cli.arg.Stats.Attempt(ctx, o)
	}
}

func logOutcome(ctx context.Context, seq uint64, o Outcome) {
	log := xlog.Get(ctx)
	fields := []zap.Field{zap.Uint64("seq", seq), zap.Int("bytes", o.Bytes)}
	switch o.Kind {
	case Matched:
		log.Info("Payloads match.", append(fields, zap.Duration("rtt", o.RTT))...)
	case Mismatched:
		log.Warn("Payloads do not match.", append(fields, zap.Duration("rtt", o.RTT))...)
	case TimedOut:
		log.Warn("Round trip timed out.", append(fields, zap.Error(o.Err))...)
	case SendFailed:
		log.Error("Send failed.", append(fields, zap.Error(o.Err))...)
	case ReceiveFailed:
		log.Error("Receive failed.", append(fields, zap.Error(o.Err))...)
	}
}
