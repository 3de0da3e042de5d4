// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package seedlink

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/seedrelay/lib/checkpoint"
	"github.com/bureau-foundation/seedrelay/lib/hptime"
	"github.com/bureau-foundation/seedrelay/lib/netutil"
)

// Protocol defaults.
const (
	DefaultHost           = "localhost"
	DefaultPort           = 18000
	DefaultKeepalive      = 300 * time.Second
	DefaultNetworkTimeout = 600 * time.Second
)

// Uni-station packets are attributed to this stream.
const (
	UniNetwork = "XX"
	UniStation = "UNI"
)

var (
	// ErrConfig is returned for an invalid session configuration.
	ErrConfig = errors.New("seedlink: invalid configuration")

	// ErrConnect is returned when the link cannot be established or
	// the server refuses the subscription.
	ErrConnect = errors.New("seedlink: connection failed")

	// ErrEndOfStream is returned by Next when no further packets will
	// arrive: termination was requested or the server ended the
	// stream.
	ErrEndOfStream = errors.New("seedlink: end of stream")
)

// StreamSelector is one multi-station subscription entry.
type StreamSelector struct {
	Network string
	Station string

	// Selectors filter the station's channels, e.g. "BH?" or
	// "HH?.D". Empty means all.
	Selectors []string
}

// String returns the NET_STA form used on the command line.
func (s StreamSelector) String() string {
	return s.Network + "_" + s.Station
}

// Config describes a SeedLink subscription.
type Config struct {
	// Address is "host:port". Missing parts default to DefaultHost
	// and DefaultPort.
	Address string

	// Selectors apply in uni-station mode. In multi-station mode they
	// are the default for streams that list none.
	Selectors []string

	// Streams enables multi-station mode when non-empty.
	Streams []StreamSelector

	// BeginTime and EndTime select a time window in the SeedLink
	// "YYYY,MM,DD,HH,MM,SS" form. EndTime may be empty.
	BeginTime string
	EndTime   string

	// Dialup requests FETCH instead of DATA: the server sends what it
	// has buffered and then ends the stream.
	Dialup bool

	// Keepalive is the idle interval after which an INFO ID request
	// is sent. Zero disables keepalives.
	Keepalive time.Duration

	// NetworkTimeout is the idle interval after which the link is
	// considered dead. Zero disables the check.
	NetworkTimeout time.Duration

	// Resume holds positions to continue from.
	Resume checkpoint.State
}

// DefaultConfig returns the configuration for address with protocol
// default timers.
func DefaultConfig(address string) Config {
	return Config{
		Address:        address,
		Keepalive:      DefaultKeepalive,
		NetworkTimeout: DefaultNetworkTimeout,
	}
}

// validate checks the configuration and returns a copy with the
// address normalized.
func (c Config) validate() (Config, error) {
	address, err := netutil.Address(c.Address, DefaultHost, DefaultPort)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	c.Address = address

	if c.Keepalive < 0 {
		return c, fmt.Errorf("%w: negative keepalive interval %s", ErrConfig, c.Keepalive)
	}
	if c.NetworkTimeout < 0 {
		return c, fmt.Errorf("%w: negative network timeout %s", ErrConfig, c.NetworkTimeout)
	}
	if c.BeginTime == "" && c.EndTime != "" {
		return c, fmt.Errorf("%w: time window must specify a begin time", ErrConfig)
	}
	for _, value := range []string{c.BeginTime, c.EndTime} {
		if value == "" {
			continue
		}
		if err := checkWindowTime(value); err != nil {
			return c, err
		}
	}
	if err := checkSelectors(c.Selectors); err != nil {
		return c, err
	}
	for _, stream := range c.Streams {
		if stream.Network == "" || stream.Station == "" {
			return c, fmt.Errorf("%w: stream %q not in NET_STA format", ErrConfig, stream.String())
		}
		if err := checkSelectors(stream.Selectors); err != nil {
			return c, err
		}
	}
	return c, nil
}

func checkSelectors(selectors []string) error {
	for _, selector := range selectors {
		if selector == "" || strings.ContainsAny(selector, " \t\r\n") {
			return fmt.Errorf("%w: invalid selector %q", ErrConfig, selector)
		}
		if len(selector) > 8 {
			return fmt.Errorf("%w: selector %q longer than 8 characters", ErrConfig, selector)
		}
	}
	return nil
}

// ParseTimeWindow splits a "begin:[end]" time window. Both times use
// the "YYYY,MM,DD,HH,MM,SS" form; the colon is required even when the
// end is omitted.
func ParseTimeWindow(window string) (begin, end string, err error) {
	if !strings.Contains(window, ":") {
		return "", "", fmt.Errorf("%w: time window not in begin:[end] format", ErrConfig)
	}
	parts := strings.Split(window, ":")
	if len(parts) > 2 {
		return "", "", fmt.Errorf("%w: time window not in begin:[end] format", ErrConfig)
	}
	begin, end = parts[0], parts[1]
	if begin == "" {
		return "", "", fmt.Errorf("%w: time window must specify a begin time", ErrConfig)
	}
	if err := checkWindowTime(begin); err != nil {
		return "", "", err
	}
	if end != "" {
		if err := checkWindowTime(end); err != nil {
			return "", "", err
		}
	}
	return begin, end, nil
}

// checkWindowTime validates one "YYYY,MM,DD,HH,MM,SS" time.
func checkWindowTime(value string) error {
	fields := strings.Split(value, ",")
	if len(fields) != 6 {
		return fmt.Errorf("%w: time %q not in YYYY,MM,DD,HH,MM,SS format", ErrConfig, value)
	}
	for _, field := range fields {
		if _, err := strconv.ParseUint(field, 10, 16); err != nil {
			return fmt.Errorf("%w: time %q not in YYYY,MM,DD,HH,MM,SS format", ErrConfig, value)
		}
	}
	if _, err := hptime.Parse(value); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}

// ParseStreamList parses a multi-station stream list of the form
// "NET_STA[:selectors],NET_STA[:selectors],...". Selectors within an
// entry are space separated. Entries without selectors take
// defaultSelectors.
//
//	ParseStreamList("IU_KONO:BHE BHN,GE_WLF,MN_AQU:HH?.D", nil)
func ParseStreamList(list string, defaultSelectors []string) ([]StreamSelector, error) {
	var streams []StreamSelector
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, selectorText, hasSelectors := strings.Cut(entry, ":")
		network, station, ok := strings.Cut(name, "_")
		if !ok || network == "" || station == "" || strings.Contains(station, "_") {
			return nil, fmt.Errorf("%w: stream %q not in NET_STA format", ErrConfig, name)
		}
		stream := StreamSelector{Network: network, Station: station}
		if hasSelectors && strings.TrimSpace(selectorText) != "" {
			stream.Selectors = strings.Fields(selectorText)
		} else {
			stream.Selectors = cloneSelectors(defaultSelectors)
		}
		streams = append(streams, stream)
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("%w: empty stream list", ErrConfig)
	}
	return streams, nil
}

// ReadStreamListFile reads a stream list file. Each line holds
// "NET STA [selectors...]"; lines starting with '#' or '*' and blank
// lines are ignored.
func ReadStreamListFile(path string, defaultSelectors []string) ([]StreamSelector, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening stream list: %v", ErrConfig, err)
	}
	defer file.Close()

	var streams []StreamSelector
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || text[0] == '#' || text[0] == '*' {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: %s:%d: expected NET STA [selectors]", ErrConfig, path, line)
		}
		stream := StreamSelector{Network: fields[0], Station: fields[1]}
		if len(fields) > 2 {
			stream.Selectors = fields[2:]
		} else {
			stream.Selectors = cloneSelectors(defaultSelectors)
		}
		streams = append(streams, stream)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading stream list: %v", ErrConfig, err)
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("%w: stream list %s is empty", ErrConfig, path)
	}
	return streams, nil
}

func cloneSelectors(selectors []string) []string {
	if len(selectors) == 0 {
		return nil
	}
	return append([]string(nil), selectors...)
}
