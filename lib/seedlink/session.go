// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package seedlink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/seedrelay/lib/clock"
	"github.com/bureau-foundation/seedrelay/lib/hptime"
	"github.com/bureau-foundation/seedrelay/lib/mseed"
	"github.com/bureau-foundation/seedrelay/lib/netutil"
)

const (
	// negotiationTimeout bounds the dial and each command/response
	// exchange during Open.
	negotiationTimeout = 30 * time.Second

	// defaultPollInterval bounds how long a single socket read blocks
	// before the idle timers are re-evaluated.
	defaultPollInterval = time.Second
)

// Session is a SeedLink client connection. Next and Close must be
// called from a single goroutine; Terminate may be called from any.
type Session struct {
	config Config
	logger *slog.Logger
	clock  clock.Clock

	pollInterval time.Duration

	// mutex guards conn against Terminate from other goroutines.
	mutex sync.Mutex
	conn  net.Conn

	terminated atomic.Bool

	reader *bufio.Reader
	buffer [HeaderSize + RecordSize]byte
	filled int

	serverID string
	version  float64

	header  mseed.Header
	streams map[string]bool

	lastReceived     time.Time
	keepaliveSent    time.Time
	keepalivePending bool
}

// NewSession validates cfg and returns an unconnected session.
func NewSession(cfg Config, logger *slog.Logger, clk clock.Clock) (*Session, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	streams := make(map[string]bool, len(cfg.Streams))
	for _, stream := range cfg.Streams {
		streams[stream.String()] = true
	}
	return &Session{
		config:       cfg,
		logger:       logger,
		clock:        clk,
		pollInterval: defaultPollInterval,
		streams:      streams,
	}, nil
}

// Address returns the normalized server address.
func (s *Session) Address() string {
	return s.config.Address
}

// Version returns the protocol version the server announced, or 0
// before Open.
func (s *Session) Version() float64 {
	return s.version
}

// Open dials the server and negotiates the subscription. Errors wrap
// ErrConnect.
func (s *Session) Open(ctx context.Context) error {
	if s.Connected() {
		return nil
	}
	stop := context.AfterFunc(ctx, s.Terminate)
	defer stop()

	dialer := net.Dialer{Timeout: negotiationTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %v", ErrConnect, s.config.Address, err)
	}

	s.mutex.Lock()
	s.conn = conn
	s.mutex.Unlock()
	s.reader = bufio.NewReader(conn)
	s.filled = 0
	s.keepalivePending = false

	if err := s.negotiate(); err != nil {
		s.dropLink()
		return fmt.Errorf("%w: %s: %v", ErrConnect, s.config.Address, err)
	}

	now := s.clock.Now()
	s.lastReceived = now
	s.keepaliveSent = now
	s.logger.Info("connected to SeedLink server",
		"address", s.config.Address,
		"server", s.serverID,
		"version", s.version,
		"streams", len(s.config.Streams),
	)
	return nil
}

// Connected reports whether a link is established.
func (s *Session) Connected() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.conn != nil
}

func (s *Session) negotiate() error {
	if err := s.command("HELLO"); err != nil {
		return err
	}
	serverID, err := s.readLine()
	if err != nil {
		return fmt.Errorf("reading HELLO response: %w", err)
	}
	site, err := s.readLine()
	if err != nil {
		return fmt.Errorf("reading HELLO response: %w", err)
	}
	s.serverID = serverID
	s.version = parseVersion(serverID)
	s.logger.Debug("SeedLink server identified", "server", serverID, "site", site)

	if s.config.BeginTime != "" && s.version < 3 {
		return fmt.Errorf("time window requires SeedLink >= 3, server reports %q", serverID)
	}

	if len(s.config.Streams) == 0 {
		for _, selector := range s.config.Selectors {
			if err := s.exchange("SELECT " + selector); err != nil {
				return err
			}
		}
		return s.command(s.startCommand(UniNetwork, UniStation))
	}

	for _, stream := range s.config.Streams {
		if err := s.exchange("STATION " + stream.Station + " " + stream.Network); err != nil {
			return err
		}
		selectors := stream.Selectors
		if len(selectors) == 0 {
			selectors = s.config.Selectors
		}
		for _, selector := range selectors {
			if err := s.exchange("SELECT " + selector); err != nil {
				return err
			}
		}
		if err := s.exchange(s.startCommand(stream.Network, stream.Station)); err != nil {
			return err
		}
	}
	return s.command("END")
}

// startCommand builds the DATA, FETCH or TIME command for one stream.
func (s *Session) startCommand(network, station string) string {
	if s.config.BeginTime != "" {
		command := "TIME " + s.config.BeginTime
		if s.config.EndTime != "" {
			command += " " + s.config.EndTime
		}
		return command
	}
	verb := "DATA"
	if s.config.Dialup {
		verb = "FETCH"
	}
	position, ok := s.config.Resume.Lookup(network, station)
	if !ok || position.Sequence < 0 {
		return verb
	}
	command := fmt.Sprintf("%s %06X", verb, (position.Sequence+1)&0xFFFFFF)
	if !position.Time.IsZero() {
		command += " " + hptime.FromTime(position.Time).SeedLinkString()
	}
	return command
}

// exchange sends a command and requires an OK response.
func (s *Session) exchange(command string) error {
	if err := s.command(command); err != nil {
		return err
	}
	response, err := s.readLine()
	if err != nil {
		return fmt.Errorf("reading response to %q: %w", command, err)
	}
	switch {
	case response == "OK":
		return nil
	case strings.HasPrefix(response, "ERROR"):
		return fmt.Errorf("server rejected %q: %s", command, response)
	default:
		return fmt.Errorf("unexpected response to %q: %q", command, response)
	}
}

func (s *Session) command(command string) error {
	s.mutex.Lock()
	conn := s.conn
	s.mutex.Unlock()
	if conn == nil {
		return net.ErrClosed
	}
	if err := conn.SetWriteDeadline(time.Now().Add(negotiationTimeout)); err != nil { //nolint:realclock socket deadlines are wall-clock
		return err
	}
	s.logger.Debug("sending SeedLink command", "command", command)
	_, err := conn.Write([]byte(command + "\r\n"))
	return err
}

// armRead sets the read deadline unless the session was terminated,
// in which case the deadline Terminate forced must stand.
func (s *Session) armRead(timeout time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.conn == nil || s.terminated.Load() {
		return ErrEndOfStream
	}
	return s.conn.SetReadDeadline(time.Now().Add(timeout)) //nolint:realclock socket deadlines are wall-clock
}

func (s *Session) readLine() (string, error) {
	if err := s.armRead(negotiationTimeout); err != nil {
		return "", err
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// parseVersion extracts X.Y from a "SeedLink vX.Y ..." identifier.
func parseVersion(serverID string) float64 {
	const marker = "SeedLink v"
	index := strings.Index(serverID, marker)
	if index < 0 {
		return 0
	}
	rest := serverID[index+len(marker):]
	if end := strings.IndexFunc(rest, func(r rune) bool {
		return r != '.' && (r < '0' || r > '9')
	}); end >= 0 {
		rest = rest[:end]
	}
	version, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0
	}
	return version
}

// Next returns the next packet, opening the link first if needed.
// It returns ErrEndOfStream once termination is requested, ctx is
// cancelled, or the server ends the stream. Any other error is fatal
// to the session.
func (s *Session) Next(ctx context.Context) (*Packet, error) {
	if s.terminated.Load() || ctx.Err() != nil {
		return nil, ErrEndOfStream
	}
	stop := context.AfterFunc(ctx, s.Terminate)
	defer stop()

	if !s.Connected() {
		if err := s.Open(ctx); err != nil {
			if s.terminated.Load() {
				return nil, ErrEndOfStream
			}
			return nil, err
		}
	}

	for {
		packet, err := s.readPacket()
		if err == nil {
			return packet, nil
		}
		if s.terminated.Load() || errors.Is(err, ErrEndOfStream) {
			return nil, ErrEndOfStream
		}
		if !netutil.IsTimeout(err) {
			if netutil.IsExpectedCloseError(err) {
				return nil, fmt.Errorf("seedlink: connection to %s closed by server: %w", s.config.Address, err)
			}
			return nil, fmt.Errorf("seedlink: reading from %s: %w", s.config.Address, err)
		}
		if err := s.checkIdle(); err != nil {
			return nil, err
		}
	}
}

// readPacket reads until one complete packet is framed. Partial
// reads survive a deadline expiry so that reading can resume.
func (s *Session) readPacket() (*Packet, error) {
	for {
		packet, complete, err := s.frame()
		if complete || err != nil {
			return packet, err
		}

		if err := s.armRead(s.pollInterval); err != nil {
			return nil, err
		}

		count, err := s.reader.Read(s.buffer[s.filled:])
		if count > 0 {
			s.filled += count
			s.lastReceived = s.clock.Now()
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

// frame inspects the buffered bytes. It reports complete when a
// packet (or the end of the stream) has been consumed.
func (s *Session) frame() (*Packet, bool, error) {
	data := s.buffer[:s.filled]
	if len(data) == 0 {
		return nil, false, nil
	}
	if data[0] == 'E' {
		switch {
		case len(data) >= 3 && string(data[:3]) == "END":
			s.filled = 0
			return nil, true, ErrEndOfStream
		case len(data) >= 5 && string(data[:5]) == "ERROR":
			s.filled = 0
			return nil, true, fmt.Errorf("seedlink: server %s reported ERROR", s.config.Address)
		case len(data) >= 5:
			return nil, true, fmt.Errorf("seedlink: unexpected response %q", data[:5])
		}
		return nil, false, nil
	}
	if len(data) >= 2 && string(data[:2]) != "SL" {
		return nil, true, fmt.Errorf("seedlink: bad packet signature %q", data[:2])
	}
	if len(data) < HeaderSize+RecordSize {
		return nil, false, nil
	}

	packet := &Packet{Record: make([]byte, RecordSize)}
	copy(packet.Record, data[HeaderSize:])
	header := string(data[:HeaderSize])
	s.filled = 0

	if strings.HasPrefix(header, "SLINFO") {
		packet.Sequence = -1
		terminated := header[7] != '*'
		switch {
		case s.keepalivePending:
			packet.Type = KeepAlive
		case terminated:
			packet.Type = InfoTerminated
		default:
			packet.Type = Info
		}
		if terminated {
			s.keepalivePending = false
		}
		return packet, true, nil
	}

	sequence, err := strconv.ParseInt(header[2:], 16, 64)
	if err != nil {
		return nil, true, fmt.Errorf("seedlink: bad sequence number in header %q", header)
	}
	packet.Sequence = sequence
	packet.Type = classify(&s.header, packet.Record)
	if packet.Type.DataBearing() {
		packet.Network, packet.Station = s.attribute(packet.Record)
	}
	return packet, true, nil
}

// attribute names the subscription stream a record belongs to.
func (s *Session) attribute(record []byte) (string, string) {
	if len(s.config.Streams) == 0 {
		return UniNetwork, UniStation
	}
	network, station, _, _ := mseed.RawIdentifiers(record)
	if !s.streams[network+"_"+station] {
		s.logger.Debug("record for unsubscribed stream", "network", network, "station", station)
	}
	return network, station
}

// checkIdle runs after a read deadline expires with no data. It sends
// a keepalive when due and fails once the network timeout passes.
func (s *Session) checkIdle() error {
	now := s.clock.Now()
	idle := now.Sub(s.lastReceived)
	if s.config.NetworkTimeout > 0 && idle >= s.config.NetworkTimeout {
		return fmt.Errorf("seedlink: no data from %s for %s", s.config.Address, idle)
	}
	if s.config.Keepalive <= 0 || s.keepalivePending {
		return nil
	}
	since := s.lastReceived
	if s.keepaliveSent.After(since) {
		since = s.keepaliveSent
	}
	if now.Sub(since) < s.config.Keepalive {
		return nil
	}
	s.logger.Debug("sending keepalive", "address", s.config.Address, "idle", idle)
	if err := s.command("INFO ID"); err != nil {
		return fmt.Errorf("seedlink: sending keepalive: %w", err)
	}
	s.keepalivePending = true
	s.keepaliveSent = now
	return nil
}

// Terminate asks the session to stop. A blocked Next returns
// ErrEndOfStream promptly. Safe for concurrent use.
func (s *Session) Terminate() {
	s.terminated.Store(true)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.conn != nil {
		_ = s.conn.SetReadDeadline(time.Unix(1, 0))
	}
}

// Terminated reports whether Terminate has been called.
func (s *Session) Terminated() bool {
	return s.terminated.Load()
}

// Close says BYE and closes the link. Closing a session with no link
// is a no-op.
func (s *Session) Close() error {
	s.mutex.Lock()
	conn := s.conn
	s.conn = nil
	s.mutex.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second)) //nolint:realclock socket deadlines are wall-clock
	_, _ = conn.Write([]byte("BYE\r\n"))
	if err := conn.Close(); err != nil && !netutil.IsExpectedCloseError(err) {
		return fmt.Errorf("seedlink: closing %s: %w", s.config.Address, err)
	}
	s.logger.Debug("disconnected from SeedLink server", "address", s.config.Address)
	return nil
}

func (s *Session) dropLink() {
	s.mutex.Lock()
	conn := s.conn
	s.conn = nil
	s.mutex.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
