// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datalink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/user"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/seedrelay/lib/hptime"
	"github.com/bureau-foundation/seedrelay/lib/netutil"
	"github.com/bureau-foundation/seedrelay/lib/translate"
)

// Protocol defaults.
const (
	DefaultHost    = "localhost"
	DefaultPort    = 16000
	DefaultTimeout = 60 * time.Second

	// maxHeaderLength is the largest header the one-byte length
	// prefix can describe.
	maxHeaderLength = 255

	// maxMessageLength bounds the message that follows an OK or ERROR
	// header.
	maxMessageLength = 1 << 16
)

var (
	// ErrConnect is returned when the link or the ID exchange fails.
	ErrConnect = errors.New("datalink: connection failed")

	// ErrDelivery is returned when a WRITE could not be completed.
	// Every Deliver failure wraps it.
	ErrDelivery = errors.New("datalink: delivery failed")

	// ErrRejected is returned, alongside ErrDelivery, when the server
	// answers a WRITE with ERROR.
	ErrRejected = errors.New("datalink: write rejected")

	// ErrNotConnected is returned, alongside ErrDelivery, when
	// Deliver is called with no link.
	ErrNotConnected = errors.New("datalink: not connected")
)

// Options configure a Session.
type Options struct {
	// ClientID is sent in the ID exchange. See ClientID.
	ClientID string

	// Timeout bounds each network exchange. Zero means
	// DefaultTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// Ack is the server's reply to an acknowledged WRITE.
type Ack struct {
	// Value is the packet ID the server assigned.
	Value   int64
	Message string
}

// Capabilities are the server properties announced in the ID reply.
type Capabilities struct {
	ServerID   string
	Protocol   string
	PacketSize int
	Write      bool
}

// Session is a DataLink client connection. It is not safe for
// concurrent use.
type Session struct {
	address string
	options Options
	logger  *slog.Logger

	conn         net.Conn
	reader       *bufio.Reader
	capabilities Capabilities
}

// ClientID builds the "program:user:pid:arch" identifier DataLink
// servers log for each client.
func ClientID(program string) string {
	username := "unknown"
	if current, err := user.Current(); err == nil && current.Username != "" {
		username = current.Username
	}
	return fmt.Sprintf("%s:%s:%d:%s-%s", program, username, os.Getpid(), runtime.GOOS, runtime.GOARCH)
}

// NewSession returns an unconnected session for address. Missing
// host or port default to DefaultHost and DefaultPort.
func NewSession(address string, options Options) (*Session, error) {
	normalized, err := netutil.Address(address, DefaultHost, DefaultPort)
	if err != nil {
		return nil, fmt.Errorf("datalink: %w", err)
	}
	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}
	if options.ClientID == "" {
		options.ClientID = ClientID("seedrelay")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{address: normalized, options: options, logger: logger}, nil
}

// Address returns the normalized server address.
func (s *Session) Address() string {
	return s.address
}

// Capabilities returns what the server announced on the current
// link. The zero value is returned when disconnected.
func (s *Session) Capabilities() Capabilities {
	return s.capabilities
}

// Connected reports whether a link is established.
func (s *Session) Connected() bool {
	return s.conn != nil
}

// Connect dials the server and exchanges IDs. A session that is
// already connected is left as is.
func (s *Session) Connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: s.options.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %v", ErrConnect, s.address, err)
	}
	s.conn = conn
	s.reader = bufio.NewReader(conn)

	capabilities, err := s.exchangeIDs(ctx)
	if err != nil {
		s.Disconnect()
		return fmt.Errorf("%w: %s: %v", ErrConnect, s.address, err)
	}
	s.capabilities = capabilities
	s.logger.Info("connected to DataLink server",
		"address", s.address,
		"server", capabilities.ServerID,
		"protocol", capabilities.Protocol,
		"packet_size", capabilities.PacketSize,
	)
	return nil
}

func (s *Session) exchangeIDs(ctx context.Context) (Capabilities, error) {
	stop := s.guard(ctx)
	defer stop()

	if err := s.writePacket("ID "+s.options.ClientID, nil); err != nil {
		return Capabilities{}, err
	}
	header, err := s.readHeader()
	if err != nil {
		return Capabilities{}, err
	}
	if strings.HasPrefix(header, "ERROR") {
		reply, err := s.readReply(header)
		if err != nil {
			return Capabilities{}, err
		}
		return Capabilities{}, fmt.Errorf("server refused ID: %s", reply.message)
	}
	if !strings.HasPrefix(header, "ID DataLink") {
		return Capabilities{}, fmt.Errorf("unexpected ID reply %q", header)
	}
	capabilities := parseCapabilities(header)
	if !capabilities.Write {
		return Capabilities{}, fmt.Errorf("server %q does not accept writes", capabilities.ServerID)
	}
	return capabilities, nil
}

// parseCapabilities reads "ID DataLink <version> :: DLPROTO:1.0 PACKETSIZE:512 WRITE".
func parseCapabilities(header string) Capabilities {
	identity, flags, _ := strings.Cut(strings.TrimPrefix(header, "ID "), "::")
	capabilities := Capabilities{ServerID: strings.TrimSpace(identity)}
	for _, flag := range strings.Fields(flags) {
		name, value, _ := strings.Cut(flag, ":")
		switch name {
		case "DLPROTO":
			capabilities.Protocol = value
		case "PACKETSIZE":
			if size, err := strconv.Atoi(value); err == nil {
				capabilities.PacketSize = size
			}
		case "WRITE":
			capabilities.Write = true
		}
	}
	return capabilities
}

// Deliver writes one unit. With requestAck it waits for the server's
// reply; without, success means the bytes were handed to the socket.
// Cancelling ctx does not interrupt an exchange that has started: a
// record the server may already hold is finished or fails on the
// exchange timeout. Every error wraps ErrDelivery.
func (s *Session) Deliver(ctx context.Context, unit translate.Unit, requestAck bool) (Ack, error) {
	if s.conn == nil {
		return Ack{}, fmt.Errorf("%w: %w", ErrDelivery, ErrNotConnected)
	}
	if size := s.capabilities.PacketSize; size > 0 && unit.Length > size {
		return Ack{}, fmt.Errorf("%w: %s is %d bytes, server accepts at most %d",
			ErrDelivery, unit.StreamID, unit.Length, size)
	}
	_ = s.conn.SetDeadline(s.deadline(ctx))

	flag := "N"
	if requestAck {
		flag = "A"
	}
	header := fmt.Sprintf("WRITE %s %d %d %s %d", unit.StreamID,
		int64(hptime.FromTime(unit.Start)), int64(hptime.FromTime(unit.End)), flag, unit.Length)
	if err := s.writePacket(header, unit.Data[:unit.Length]); err != nil {
		return Ack{}, fmt.Errorf("%w: writing %s: %w", ErrDelivery, unit.StreamID, err)
	}
	if !requestAck {
		return Ack{}, nil
	}

	replyHeader, err := s.readHeader()
	if err != nil {
		return Ack{}, fmt.Errorf("%w: awaiting acknowledgement for %s: %w", ErrDelivery, unit.StreamID, err)
	}
	reply, err := s.readReply(replyHeader)
	if err != nil {
		return Ack{}, fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	if !reply.ok {
		return Ack{}, fmt.Errorf("%w: %w: %s: %s", ErrDelivery, ErrRejected, unit.StreamID, reply.message)
	}
	return Ack{Value: reply.value, Message: reply.message}, nil
}

// Disconnect closes the link. It is a no-op without one.
func (s *Session) Disconnect() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil && !netutil.IsExpectedCloseError(err) {
		s.logger.Warn("closing DataLink connection", "address", s.address, "error", err)
	}
	s.conn = nil
	s.reader = nil
	s.capabilities = Capabilities{}
	s.logger.Debug("disconnected from DataLink server", "address", s.address)
}

// deadline is the end of an exchange starting now: the session
// timeout, or ctx's deadline when that comes first.
func (s *Session) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(s.options.Timeout) //nolint:realclock socket deadlines are wall-clock
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return deadline
}

// guard applies the exchange deadline and makes ctx cancellation
// interrupt the blocked handshake. The returned function releases it.
func (s *Session) guard(ctx context.Context) func() {
	conn := s.conn
	_ = conn.SetDeadline(s.deadline(ctx))
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	return func() { stop() }
}

func (s *Session) writePacket(header string, payload []byte) error {
	if len(header) > maxHeaderLength {
		return fmt.Errorf("header of %d bytes exceeds %d", len(header), maxHeaderLength)
	}
	frame := make([]byte, 0, 3+len(header)+len(payload))
	frame = append(frame, 'D', 'L', byte(len(header)))
	frame = append(frame, header...)
	frame = append(frame, payload...)
	_, err := s.conn.Write(frame)
	return err
}

func (s *Session) readHeader() (string, error) {
	var preheader [3]byte
	if _, err := io.ReadFull(s.reader, preheader[:]); err != nil {
		return "", err
	}
	if preheader[0] != 'D' || preheader[1] != 'L' {
		return "", fmt.Errorf("bad packet signature %q", preheader[:2])
	}
	header := make([]byte, preheader[2])
	if _, err := io.ReadFull(s.reader, header); err != nil {
		return "", err
	}
	return string(header), nil
}

type reply struct {
	ok      bool
	value   int64
	message string
}

// readReply parses "OK|ERROR <value> <size>" and reads the message.
func (s *Session) readReply(header string) (reply, error) {
	fields := strings.Fields(header)
	if len(fields) != 3 || (fields[0] != "OK" && fields[0] != "ERROR") {
		return reply{}, fmt.Errorf("unexpected reply %q", header)
	}
	value, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return reply{}, fmt.Errorf("bad reply value in %q", header)
	}
	size, err := strconv.Atoi(fields[2])
	if err != nil || size < 0 || size > maxMessageLength {
		return reply{}, fmt.Errorf("bad reply size in %q", header)
	}
	message := make([]byte, size)
	if _, err := io.ReadFull(s.reader, message); err != nil {
		return reply{}, err
	}
	return reply{ok: fields[0] == "OK", value: value, message: string(message)}, nil
}
