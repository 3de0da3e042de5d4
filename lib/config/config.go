// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/seedrelay/lib/checkpoint"
	"github.com/bureau-foundation/seedrelay/lib/seedlink"
	"github.com/bureau-foundation/seedrelay/lib/translate"
)

// ErrConfig is the single errors.Is target for invalid configuration,
// whether it came from the file, the flags, or a package constructor.
var ErrConfig = errors.New("configuration error")

// Log formats.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the complete relay configuration.
type Config struct {
	SeedLink SeedLinkConfig `yaml:"seedlink"`
	DataLink DataLinkConfig `yaml:"datalink"`
	Relay    RelayConfig    `yaml:"relay"`
	State    StateConfig    `yaml:"state"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// SeedLinkConfig configures the source session.
type SeedLinkConfig struct {
	// Address is host[:port] of the SeedLink server.
	Address string `yaml:"address"`

	// Selectors are the default selectors, space separated.
	Selectors string `yaml:"selectors"`

	// Streams is a multi-station list: "NET_STA[:selectors],...".
	Streams string `yaml:"streams"`

	// StreamFile names a file of "NET STA [selectors]" lines.
	// Mutually exclusive with Streams.
	StreamFile string `yaml:"stream_file"`

	// TimeWindow is "begin:[end]" in YYYY,MM,DD,HH,MM,SS form.
	TimeWindow string `yaml:"time_window"`

	Dialup bool `yaml:"dialup"`

	// Keepalive is the idle interval before an INFO ID request.
	// Zero disables keepalives.
	Keepalive time.Duration `yaml:"keepalive"`

	// NetworkTimeout is the idle interval after which the link is
	// considered dead. Zero disables the check.
	NetworkTimeout time.Duration `yaml:"network_timeout"`
}

// DataLinkConfig configures the sink session.
type DataLinkConfig struct {
	Address string `yaml:"address"`

	// Ack requests a server acknowledgement for every WRITE.
	Ack bool `yaml:"ack"`

	// Timeout bounds every exchange with the server.
	Timeout time.Duration `yaml:"timeout"`
}

// RelayConfig configures the delivery controller.
type RelayConfig struct {
	// Network, when set, replaces the network code of every record.
	Network string `yaml:"network"`

	// Backoff is the fixed wait between reconnection attempts.
	Backoff time.Duration `yaml:"backoff"`
}

// StateConfig configures checkpointing.
type StateConfig struct {
	// Path selects the store; the extension picks the backend.
	// Empty disables checkpointing.
	Path string `yaml:"path"`

	// Interval saves the checkpoint every Interval forwarded
	// records. Zero saves only at shutdown.
	Interval int `yaml:"interval"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address. Empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Verbosity: 0 info, 1 debug, 2 or more trace.
	Verbosity int `yaml:"verbosity"`

	// Format is auto, text, or json. Auto picks text on a terminal.
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		SeedLink: SeedLinkConfig{
			Keepalive:      seedlink.DefaultKeepalive,
			NetworkTimeout: seedlink.DefaultNetworkTimeout,
		},
		DataLink: DataLinkConfig{
			Timeout: 60 * time.Second,
		},
		Relay: RelayConfig{
			Backoff: 10 * time.Second,
		},
		Log: LogConfig{
			Format: FormatAuto,
		},
	}
}

// LoadFile reads path over the defaults. The result is not validated;
// call [Config.Validate] once command-line overrides are applied.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrConfig, path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrConfig, path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// decode merges a YAML (or JSON) document into c. An empty document
// leaves c unchanged.
func (c *Config) decode(data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	c.SeedLink.StreamFile = expandVars(c.SeedLink.StreamFile)
	c.State.Path = expandVars(c.State.Path)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors. Every problem found is
// reported, joined, under [ErrConfig].
func (c *Config) Validate() error {
	var errs []error

	if c.SeedLink.Address == "" {
		errs = append(errs, fmt.Errorf("seedlink.address is required"))
	}
	if c.DataLink.Address == "" {
		errs = append(errs, fmt.Errorf("datalink.address is required"))
	}
	if c.SeedLink.Streams != "" && c.SeedLink.StreamFile != "" {
		errs = append(errs, fmt.Errorf("seedlink.streams and seedlink.stream_file are mutually exclusive"))
	}
	if c.SeedLink.TimeWindow != "" {
		if _, _, err := seedlink.ParseTimeWindow(c.SeedLink.TimeWindow); err != nil {
			errs = append(errs, fmt.Errorf("seedlink.time_window: %w", err))
		}
	}
	if c.SeedLink.Keepalive < 0 {
		errs = append(errs, fmt.Errorf("seedlink.keepalive must not be negative"))
	}
	if c.SeedLink.NetworkTimeout < 0 {
		errs = append(errs, fmt.Errorf("seedlink.network_timeout must not be negative"))
	}
	if c.DataLink.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("datalink.timeout must be positive"))
	}
	if c.Relay.Network != "" {
		if _, err := translate.New(c.Relay.Network); err != nil {
			errs = append(errs, fmt.Errorf("relay.network: %w", err))
		}
	}
	if c.Relay.Backoff <= 0 {
		errs = append(errs, fmt.Errorf("relay.backoff must be positive"))
	}
	if c.State.Interval < 0 || c.State.Interval > 1e9 {
		errs = append(errs, fmt.Errorf("state.interval must be between 0 and 1000000000"))
	}
	if c.State.Interval > 0 && c.State.Path == "" {
		errs = append(errs, fmt.Errorf("state.interval requires state.path"))
	}
	if c.Log.Verbosity < 0 {
		errs = append(errs, fmt.Errorf("log.verbosity must not be negative"))
	}
	formats := []string{FormatAuto, FormatText, FormatJSON}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}

// SetStateSpec applies a "path[:interval]" specification, the form
// taken by the --state flag.
func (c *Config) SetStateSpec(spec string) error {
	path, interval, err := checkpoint.ParseSpec(spec)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	c.State.Path = path
	c.State.Interval = interval
	return nil
}
