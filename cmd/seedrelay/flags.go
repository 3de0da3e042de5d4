// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/seedrelay/lib/config"
)

const program = "seedrelay"

// options holds the raw flag values. Only flags the user actually set
// override the configuration file.
type options struct {
	configPath string
	version    bool
	help       bool
	verbose    int

	dialup         bool
	network        string
	state          string
	selectors      string
	streamFile     string
	streams        string
	timeWindow     string
	ack            bool
	keepalive      time.Duration
	networkTimeout time.Duration
	timeout        time.Duration
	backoff        time.Duration
	metricsAddr    string
	logFormat      string
}

func newFlagSet(o *options) *pflag.FlagSet {
	flags := pflag.NewFlagSet(program, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.SortFlags = false
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "tw" {
			name = "time-window"
		}
		return pflag.NormalizedName(name)
	})

	defaults := config.Default()
	flags.BoolVarP(&o.version, "version", "V", false, "print version information and exit")
	flags.BoolVarP(&o.help, "help", "h", false, "print this help and exit")
	flags.CountVarP(&o.verbose, "verbose", "v", "be more verbose; repeat for per-packet tracing")
	flags.StringVar(&o.configPath, "config", "", "read settings from a YAML or JSONC `file`")
	flags.BoolVarP(&o.dialup, "dialup", "d", false, "dial-up mode: fetch buffered data, then exit")
	flags.StringVarP(&o.network, "network", "N", "", "replace the network code of every record with `NET`")
	flags.StringVarP(&o.state, "state", "x", "", "save and restore stream positions in `sfile[:interval]`")
	flags.StringVarP(&o.selectors, "selectors", "s", "", "default SeedLink `selectors`, space separated")
	flags.StringVarP(&o.streamFile, "stream-file", "l", "", "read the stream list from `file`")
	flags.StringVarP(&o.streams, "streams", "S", "", "stream list: `NET_STA[:selectors],...`")
	flags.StringVar(&o.timeWindow, "time-window", "", "time window `begin:[end]` as YYYY,MM,DD,HH,MM,SS")
	flags.BoolVarP(&o.ack, "ack", "A", false, "request an acknowledgement for every write")
	flags.DurationVar(&o.keepalive, "keepalive", defaults.SeedLink.Keepalive, "idle `interval` before a SeedLink keepalive, 0 disables")
	flags.DurationVar(&o.networkTimeout, "network-timeout", defaults.SeedLink.NetworkTimeout, "idle `interval` before the SeedLink link is declared dead, 0 disables")
	flags.DurationVar(&o.timeout, "timeout", defaults.DataLink.Timeout, "DataLink exchange `timeout`")
	flags.DurationVar(&o.backoff, "backoff", defaults.Relay.Backoff, "wait between DataLink reconnection attempts")
	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on `address`")
	flags.StringVar(&o.logFormat, "log-format", defaults.Log.Format, "log format: auto, text, or json")
	return flags
}

// loadConfig reads the configuration file, if any, and applies the
// flags and positional arguments over it.
func loadConfig(flags *pflag.FlagSet, o *options) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.LoadFile(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	switch args := flags.Args(); len(args) {
	case 0:
	case 2:
		cfg.SeedLink.Address = args[0]
		cfg.DataLink.Address = args[1]
	default:
		return nil, fmt.Errorf("%w: expected slhost and dlhost, got %d arguments", config.ErrConfig, len(args))
	}

	if flags.Changed("verbose") {
		cfg.Log.Verbosity = o.verbose
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if flags.Changed("dialup") {
		cfg.SeedLink.Dialup = o.dialup
	}
	if flags.Changed("network") {
		cfg.Relay.Network = o.network
	}
	if flags.Changed("state") {
		if err := cfg.SetStateSpec(o.state); err != nil {
			return nil, err
		}
	}
	if flags.Changed("selectors") {
		cfg.SeedLink.Selectors = o.selectors
	}
	if flags.Changed("stream-file") {
		cfg.SeedLink.StreamFile = o.streamFile
	}
	if flags.Changed("streams") {
		cfg.SeedLink.Streams = o.streams
	}
	if flags.Changed("time-window") {
		cfg.SeedLink.TimeWindow = o.timeWindow
	}
	if flags.Changed("ack") {
		cfg.DataLink.Ack = o.ack
	}
	if flags.Changed("keepalive") {
		cfg.SeedLink.Keepalive = o.keepalive
	}
	if flags.Changed("network-timeout") {
		cfg.SeedLink.NetworkTimeout = o.networkTimeout
	}
	if flags.Changed("timeout") {
		cfg.DataLink.Timeout = o.timeout
	}
	if flags.Changed("backoff") {
		cfg.Relay.Backoff = o.backoff
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printUsage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintf(w, `Usage: %s [options] slhost dlhost

Relay miniSEED records from a SeedLink server to a DataLink server.

  slhost   SeedLink server, [host][:port] (default localhost:18000)
  dlhost   DataLink server, [host][:port] (default localhost:16000)

Both may instead come from --config.

Options:
%s`, program, flags.FlagUsages())
}

func printShortUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s [options] slhost dlhost\nTry '%s --help' for more information.\n", program, program)
}
