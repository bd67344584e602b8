package xnet

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// ListenUDP 绑定一个udp socket, addr端口为0时由系统分配
func ListenUDP(ctx context.Context, addr string) (net.PacketConn, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, NetworkUDP, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "bind addr[%s] failed", addr)
	}
	return pc, nil
}

func ResolveUDPAddr(addr string) (*net.UDPAddr, error) {
	udpAddr, err := net.ResolveUDPAddr(NetworkUDP, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve addr[%s] failed", addr)
	}
	return udpAddr, nil
}

// PacketBinder 绑定一个本地udp socket
type PacketBinder interface {
	Bind(ctx context.Context, addr string) (net.PacketConn, error)
}

type BinderFunc func(ctx context.Context, addr string) (net.PacketConn, error)

func (fn BinderFunc) Bind(ctx context.Context, addr string) (net.PacketConn, error) {
	return fn(ctx, addr)
}

var UDPBinder PacketBinder = BinderFunc(ListenUDP)
