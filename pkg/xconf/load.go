package xconf

import (
	"os"
	"strings"

	"gecho/pkg/xenv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "GECHO_"

// Load parses args (without the program name). pflag.ErrHelp is returned unchanged after usage has been printed.
func Load(args []string) (*EchoConfig, error) {
	def := defaultRaw()
	fs := pflag.NewFlagSet("gecho", pflag.ContinueOnError)
	fs.SortFlags = false
	// --remote_port 等下划线写法等同于 --remote-port
	fs.SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	remotePort := fs.Uint16P("remote-port", "r", def.RemotePort, "the remote port to connect to (client only)")
	localPort := fs.Uint16P("local-port", "l", def.LocalPort, "the local port to bind to (server default 7, client default ephemeral)")
	payload := fs.StringP("data-payload", "d", def.Payload, "the data payload to send (client only)")
	count := fs.Uint32P("count", "c", def.Count, "the number of times to send the payload, 0 runs until interrupted (client only)")
	timeout := fs.Float64P("timeout", "t", def.Timeout, "the timeout in seconds, floored to 0.2 (client only)")
	protocol := fs.StringP("protocol", "p", def.Protocol, "the protocol to use: udp|tcp|kcp|ws")
	logLevel := fs.String("log-level", def.LogLevel, "log level: debug|info|warn|error")
	logFormat := fs.String("log-format", def.LogFormat, "log format: console|json")
	metricsAddr := fs.String("metrics-addr", def.MetricsAddr, "serve prometheus metrics on this address")
	configPath := fs.String("config", "", "optional yaml config file")
	envFile := fs.String("env-file", ".env", "optional dotenv file")

	fs.Usage = func() {
		_, _ = os.Stderr.WriteString("Usage: gecho [remote_host] [flags]\n\nOmit remote_host to run as a server.\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 1 {
		return nil, errors.Errorf("unexpected arguments %v", fs.Args()[1:])
	}

	raw := def
	if *configPath != "" {
		if err := loadYAML(*configPath, &raw); err != nil {
			return nil, err
		}
	}
	if err := xenv.DotEnvLoad(*envFile); err != nil {
		return nil, err
	}
	if err := xenv.EnvLoad(&raw, EnvPrefix); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}

	if fs.NArg() == 1 {
		raw.RemoteHost = fs.Arg(0)
	}
	if fs.Changed("remote-port") {
		raw.RemotePort = *remotePort
	}
	if fs.Changed("local-port") {
		raw.LocalPort = *localPort
	}
	if fs.Changed("data-payload") {
		raw.Payload = *payload
	}
	if fs.Changed("count") {
		raw.Count = *count
	}
	if fs.Changed("timeout") {
		raw.Timeout = *timeout
	}
	if fs.Changed("protocol") {
		raw.Protocol = *protocol
	}
	if fs.Changed("log-level") {
		raw.LogLevel = *logLevel
	}
	if fs.Changed("log-format") {
		raw.LogFormat = *logFormat
	}
	if fs.Changed("metrics-addr") {
		raw.MetricsAddr = *metricsAddr
	}

	return raw.build(uuid.NewString())
}

func loadYAML(path string, raw *rawConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, raw); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}
