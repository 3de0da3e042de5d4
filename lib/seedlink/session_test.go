// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package seedlink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/seedrelay/lib/checkpoint"
	"github.com/bureau-foundation/seedrelay/lib/clock"
	"github.com/bureau-foundation/seedrelay/lib/mseed/mseedtest"
	"github.com/bureau-foundation/seedrelay/lib/testutil"
)

var epoch = time.Date(2002, time.August, 5, 14, 0, 0, 0, time.UTC)

func dataRecord(network, station string) []byte {
	return mseedtest.Build(mseedtest.Data(network, station, "00", "BHZ", epoch, 100))
}

func newTestSession(t *testing.T, cfg Config, clk clock.Clock) *Session {
	t.Helper()
	if clk == nil {
		clk = clock.Fake(epoch)
	}
	session, err := NewSession(cfg, testutil.Logger(t), clk)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	session.pollInterval = 10 * time.Millisecond
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestUniStationSession(t *testing.T) {
	server := startServer(t, func(c *serverConn) {
		if !c.hello(serverIdentity) || !c.reply("SELECT BHZ", "OK") || !c.expect("DATA") {
			return
		}
		c.sendData(0x1A, dataRecord("IU", "KONO"))
		c.send("END")
		c.waitClosed()
	})

	cfg := DefaultConfig(server.address)
	cfg.Selectors = []string{"BHZ"}
	session := newTestSession(t, cfg, nil)

	packet, err := session.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if packet.Type != Data || packet.Sequence != 0x1A {
		t.Errorf("packet = %v seq %d, want Data seq 26", packet.Type, packet.Sequence)
	}
	if packet.Network != UniNetwork || packet.Station != UniStation {
		t.Errorf("stream = %s_%s, want XX_UNI", packet.Network, packet.Station)
	}
	if len(packet.Record) != RecordSize {
		t.Errorf("record length = %d", len(packet.Record))
	}
	if session.Version() != 3.1 {
		t.Errorf("Version = %v, want 3.1", session.Version())
	}

	if _, err := session.Next(context.Background()); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("Next after END: %v, want ErrEndOfStream", err)
	}
}

func TestMultiStationNegotiationWithResume(t *testing.T) {
	server := startServer(t, func(c *serverConn) {
		ok := c.hello(serverIdentity) &&
			c.reply("STATION KONO IU", "OK") &&
			c.reply("SELECT BHE", "OK") &&
			c.reply("SELECT BHN", "OK") &&
			c.reply("DATA 00001B 2002,08,05,14,00,00", "OK") &&
			c.reply("STATION WLF GE", "OK") &&
			c.reply("SELECT HH?.D", "OK") &&
			c.reply("DATA", "OK") &&
			c.expect("END")
		if !ok {
			return
		}
		c.sendData(7, dataRecord("GE", "WLF"))
		c.waitClosed()
	})

	streams, err := ParseStreamList("IU_KONO:BHE BHN,GE_WLF", []string{"HH?.D"})
	if err != nil {
		t.Fatalf("ParseStreamList: %v", err)
	}
	cfg := DefaultConfig(server.address)
	cfg.Streams = streams
	cfg.Resume.Update(checkpoint.Position{Network: "IU", Station: "KONO", Sequence: 0x1A, Time: epoch})
	session := newTestSession(t, cfg, nil)

	packet, err := session.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if packet.Network != "GE" || packet.Station != "WLF" || packet.Sequence != 7 {
		t.Errorf("packet = %s_%s seq %d, want GE_WLF seq 7", packet.Network, packet.Station, packet.Sequence)
	}
}

func TestResumeSequenceWraps(t *testing.T) {
	cfg := DefaultConfig("localhost")
	cfg.Resume.Update(checkpoint.Position{Network: UniNetwork, Station: UniStation, Sequence: 0xFFFFFF})
	session, err := NewSession(cfg, testutil.Logger(t), clock.Fake(epoch))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if got := session.startCommand(UniNetwork, UniStation); got != "DATA 000000" {
		t.Errorf("startCommand = %q, want DATA 000000", got)
	}
	session.config.Dialup = true
	session.config.Resume = checkpoint.State{}
	if got := session.startCommand(UniNetwork, UniStation); got != "FETCH" {
		t.Errorf("dial-up startCommand = %q, want FETCH", got)
	}
}

func TestPacketClassification(t *testing.T) {
	withExtra := func(extra ...uint16) []byte {
		record := mseedtest.Data("IU", "KONO", "00", "BHZ", epoch, 0)
		record.Extra = extra
		return mseedtest.Build(record)
	}
	message := mseedtest.Data("IU", "KONO", "", "LOG", epoch, 60)
	message.RateFactor, message.RateMultiplier = 0, 0

	records := []struct {
		record []byte
		want   PacketType
	}{
		{dataRecord("IU", "KONO"), Data},
		{withExtra(201), Detection},
		{withExtra(300), Calibration},
		{withExtra(500), Timing},
		{mseedtest.Build(message), Message},
		{mseedtest.Build(mseedtest.Data("IU", "KONO", "", "ACE", epoch, 0)), General},
		{make([]byte, RecordSize), Data},
	}

	server := startServer(t, func(c *serverConn) {
		if !c.hello(serverIdentity) || !c.expect("DATA") {
			return
		}
		for i, r := range records {
			c.sendData(i, r.record)
		}
		c.sendInfo(false)
		c.sendInfo(true)
		c.waitClosed()
	})
	session := newTestSession(t, DefaultConfig(server.address), nil)

	for i, r := range records {
		packet, err := session.Next(context.Background())
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if packet.Type != r.want {
			t.Errorf("record %d classified as %v, want %v", i, packet.Type, r.want)
		}
	}
	for _, want := range []PacketType{Info, InfoTerminated} {
		packet, err := session.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if packet.Type != want || packet.Sequence != -1 {
			t.Errorf("INFO packet = %v seq %d, want %v seq -1", packet.Type, packet.Sequence, want)
		}
		if packet.Type.DataBearing() {
			t.Errorf("%v reported as data bearing", packet.Type)
		}
	}
}

func TestTimeWindow(t *testing.T) {
	server := startServer(t, func(c *serverConn) {
		if !c.hello(serverIdentity) || !c.expect("TIME 2002,08,05,14,00,00 2002,08,05,14,15,00") {
			return
		}
		c.send("END")
		c.waitClosed()
	})
	cfg := DefaultConfig(server.address)
	begin, end, err := ParseTimeWindow("2002,08,05,14,00,00:2002,08,05,14,15,00")
	if err != nil {
		t.Fatalf("ParseTimeWindow: %v", err)
	}
	cfg.BeginTime, cfg.EndTime = begin, end
	session := newTestSession(t, cfg, nil)

	if _, err := session.Next(context.Background()); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("Next: %v, want ErrEndOfStream", err)
	}
}

func TestTimeWindowRequiresVersion3(t *testing.T) {
	server := startServer(t, func(c *serverConn) {
		c.hello("SeedLink v2.93 (2004.170) :: SLPROTO:2.93")
		c.waitClosed()
	})
	cfg := DefaultConfig(server.address)
	cfg.BeginTime = "2002,08,05,14,00,00"
	session := newTestSession(t, cfg, nil)

	_, err := session.Next(context.Background())
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("Next: %v, want ErrConnect", err)
	}
	if session.Connected() {
		t.Error("session still connected after failed negotiation")
	}
}

func TestServerRejectsStation(t *testing.T) {
	server := startServer(t, func(c *serverConn) {
		if !c.hello(serverIdentity) {
			return
		}
		c.reply("STATION NOPE IU", "ERROR")
		c.waitClosed()
	})
	cfg := DefaultConfig(server.address)
	cfg.Streams = []StreamSelector{{Network: "IU", Station: "NOPE"}}
	session := newTestSession(t, cfg, nil)

	if _, err := session.Next(context.Background()); !errors.Is(err, ErrConnect) {
		t.Fatalf("Next: %v, want ErrConnect", err)
	}
}

func TestServerErrorDuringStreamIsFatal(t *testing.T) {
	server := startServer(t, func(c *serverConn) {
		if !c.hello(serverIdentity) || !c.expect("DATA") {
			return
		}
		c.send("ERROR\r\n")
		c.waitClosed()
	})
	session := newTestSession(t, DefaultConfig(server.address), nil)

	_, err := session.Next(context.Background())
	if err == nil || errors.Is(err, ErrEndOfStream) {
		t.Fatalf("Next: %v, want fatal error", err)
	}
}

func TestUnexpectedCloseIsFatal(t *testing.T) {
	server := startServer(t, func(c *serverConn) {
		if !c.hello(serverIdentity) || !c.expect("DATA") {
			return
		}
		c.send("SL0000")
	})
	session := newTestSession(t, DefaultConfig(server.address), nil)

	_, err := session.Next(context.Background())
	if err == nil || errors.Is(err, ErrEndOfStream) {
		t.Fatalf("Next: %v, want fatal error", err)
	}
}

func TestCancelUnblocksNext(t *testing.T) {
	server := startServer(t, func(c *serverConn) {
		if !c.hello(serverIdentity) || !c.expect("DATA") {
			return
		}
		c.waitClosed()
	})
	cfg := DefaultConfig(server.address)
	cfg.Keepalive = 0
	session := newTestSession(t, cfg, nil)
	session.pollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errs := make(chan error, 1)
	go func() {
		_, err := session.Next(ctx)
		errs <- err
	}()

	for server.waitCommand() != "DATA" {
	}
	cancel()
	err := testutil.RequireReceive(t, errs, 5*time.Second, "Next did not return after cancel")
	if !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("Next: %v, want ErrEndOfStream", err)
	}
	if !session.Terminated() {
		t.Error("cancellation did not terminate the session")
	}
	if _, err := session.Next(context.Background()); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("Next after termination: %v, want ErrEndOfStream", err)
	}
}

func TestKeepalive(t *testing.T) {
	server := startServer(t, func(c *serverConn) {
		if !c.hello(serverIdentity) || !c.expect("DATA") {
			return
		}
		c.sendData(1, dataRecord("IU", "KONO"))
		if !c.expect("INFO ID") {
			return
		}
		c.sendInfo(false)
		c.sendInfo(true)
		c.sendInfo(true)
		c.waitClosed()
	})
	fake := clock.Fake(epoch)
	cfg := DefaultConfig(server.address)
	cfg.Keepalive = 300 * time.Second
	cfg.NetworkTimeout = 0
	session := newTestSession(t, cfg, fake)

	if _, err := session.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	fake.Advance(301 * time.Second)

	for i, want := range []PacketType{KeepAlive, KeepAlive, InfoTerminated} {
		packet, err := session.Next(context.Background())
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if packet.Type != want {
			t.Errorf("packet %d = %v, want %v", i, packet.Type, want)
		}
	}
}

func TestNetworkTimeout(t *testing.T) {
	server := startServer(t, func(c *serverConn) {
		if !c.hello(serverIdentity) || !c.expect("DATA") {
			return
		}
		c.sendData(1, dataRecord("IU", "KONO"))
		c.waitClosed()
	})
	fake := clock.Fake(epoch)
	cfg := DefaultConfig(server.address)
	cfg.Keepalive = 0
	cfg.NetworkTimeout = time.Minute
	session := newTestSession(t, cfg, fake)

	if _, err := session.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	fake.Advance(2 * time.Minute)
	_, err := session.Next(context.Background())
	if err == nil || errors.Is(err, ErrEndOfStream) {
		t.Fatalf("Next: %v, want network timeout error", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	server := startServer(t, func(c *serverConn) {
		if !c.hello(serverIdentity) || !c.expect("DATA") {
			return
		}
		c.expect("BYE")
	})
	session := newTestSession(t, DefaultConfig(server.address), nil)
	if err := session.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for range 2 {
		if err := session.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	if session.Connected() {
		t.Error("Connected after Close")
	}
}

func TestConnectRefused(t *testing.T) {
	listener := testutil.Listen(t)
	address := listener.Addr().String()
	_ = listener.Close()

	session := newTestSession(t, DefaultConfig(address), nil)
	if _, err := session.Next(context.Background()); !errors.Is(err, ErrConnect) {
		t.Fatalf("Next: %v, want ErrConnect", err)
	}
}
