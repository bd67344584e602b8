// Package xconf builds the immutable EchoConfig from flags, environment and an optional YAML file.
package xconf

import (
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultPort    = 7
	DefaultPayload = "Hello World!"
	DefaultCount   = 5
	DefaultTimeout = 1.0

	// MinTimeout avoids degenerate zero-timeout races.
	MinTimeout = 200 * time.Millisecond

	// MaxUDPPayload is the largest payload that fits one IPv4 UDP datagram.
	MaxUDPPayload = 65507
)

type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

type Transport string

const (
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
	TransportKCP Transport = "kcp"
	TransportWS  Transport = "ws"
)

func ParseTransport(s string) (Transport, error) {
	switch t := Transport(strings.ToLower(strings.TrimSpace(s))); t {
	case TransportTCP, TransportUDP, TransportKCP, TransportWS:
		return t, nil
	default:
		return "", errors.Errorf("protocol[%s] invalid, want one of tcp|udp|kcp|ws", s)
	}
}

// IsStream reports whether the transport keeps one connection for all round trips.
func (t Transport) IsStream() bool {
	return t != TransportUDP
}

func (t Transport) String() string { return string(t) }

// EchoConfig is built once by Load and only read afterwards.
type EchoConfig struct {
	Role       Role
	Transport  Transport
	RemoteHost string // client only
	RemotePort uint16
	LocalPort  uint16
	Payload    []byte
	Count      uint32 // 0 = until cancelled
	Timeout    time.Duration

	LogLevel    string
	LogFormat   string
	MetricsAddr string
	RunID       string
}

func (c *EchoConfig) RemoteAddr() string {
	return net.JoinHostPort(c.RemoteHost, strconv.Itoa(int(c.RemotePort)))
}

func (c *EchoConfig) LocalAddr() string {
	return net.JoinHostPort("", strconv.Itoa(int(c.LocalPort)))
}

func (c *EchoConfig) Infinite() bool {
	return c.Count == 0
}

// SecondsToTimeout converts fractional seconds and floors the result to MinTimeout.
func SecondsToTimeout(sec float64) (time.Duration, error) {
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0, errors.Errorf("timeout[%v] invalid", sec)
	}
	if sec > math.MaxInt64/float64(time.Second) {
		return 0, errors.Errorf("timeout[%v] too large", sec)
	}
	d := time.Duration(sec * float64(time.Second))
	if d < MinTimeout {
		d = MinTimeout
	}
	return d, nil
}

// rawConfig 合并 默认值 <- yaml <- 环境变量 <- 命令行 后再校验
type rawConfig struct {
	RemoteHost  string  `yaml:"remote_host" env:"REMOTE_HOST"`
	RemotePort  uint16  `yaml:"remote_port" env:"REMOTE_PORT"`
	LocalPort   uint16  `yaml:"local_port" env:"LOCAL_PORT"`
	Payload     string  `yaml:"data_payload" env:"DATA_PAYLOAD"`
	Count       uint32  `yaml:"count" env:"COUNT"`
	Timeout     float64 `yaml:"timeout" env:"TIMEOUT"`
	Protocol    string  `yaml:"protocol" env:"PROTOCOL"`
	LogLevel    string  `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat   string  `yaml:"log_format" env:"LOG_FORMAT"`
	MetricsAddr string  `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

func defaultRaw() rawConfig {
	return rawConfig{
		RemotePort: DefaultPort,
		Payload:    DefaultPayload,
		Count:      DefaultCount,
		Timeout:    DefaultTimeout,
		Protocol:   string(TransportUDP),
		LogLevel:   "info",
		LogFormat:  "console",
	}
}

func (raw *rawConfig) build(runID string) (*EchoConfig, error) {
	transport, err := ParseTransport(raw.Protocol)
	if err != nil {
		return nil, err
	}
	timeout, err := SecondsToTimeout(raw.Timeout)
	if err != nil {
		return nil, err
	}
	if raw.Payload == "" {
		return nil, errors.New("data_payload is empty")
	}
	if transport == TransportUDP && len(raw.Payload) > MaxUDPPayload {
		return nil, errors.Errorf("data_payload[%d bytes] exceeds one udp datagram", len(raw.Payload))
	}

	conf := &EchoConfig{
		Role:        RoleServer,
		Transport:   transport,
		RemoteHost:  strings.TrimSpace(raw.RemoteHost),
		RemotePort:  raw.RemotePort,
		LocalPort:   raw.LocalPort,
		Payload:     []byte(raw.Payload),
		Count:       raw.Count,
		Timeout:     timeout,
		LogLevel:    raw.LogLevel,
		LogFormat:   raw.LogFormat,
		MetricsAddr: raw.MetricsAddr,
		RunID:       runID,
	}
	if conf.RemoteHost != "" {
		conf.Role = RoleClient
		if conf.RemotePort == 0 {
			return nil, errors.New("remote_port must be in 1..65535")
		}
	} else if conf.LocalPort == 0 {
		conf.LocalPort = DefaultPort
	}
	return conf, nil
}
