// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package seedlink

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/seedrelay/lib/testutil"
)

const serverIdentity = "SeedLink v3.1 (2020.075 RingServer) :: SLPROTO:3.1 CAP EXTREPLY NSWILDCARD BATCH WS:13"

// fakeServer is a scripted SeedLink server. The script runs on its
// own goroutine against the first accepted connection; failures are
// reported with t.Errorf and surface when the test ends.
type fakeServer struct {
	t        *testing.T
	address  string
	commands chan string
	done     chan struct{}
}

type serverConn struct {
	t        *testing.T
	conn     net.Conn
	reader   *bufio.Reader
	commands chan<- string
}

func startServer(t *testing.T, script func(*serverConn)) *fakeServer {
	t.Helper()
	listener := testutil.Listen(t)
	server := &fakeServer{
		t:        t,
		address:  listener.Addr().String(),
		commands: make(chan string, 64),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(server.done)
		conn, err := listener.Accept()
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.Close()
		script(&serverConn{t: t, conn: conn, reader: bufio.NewReader(conn), commands: server.commands})
	}()
	t.Cleanup(func() {
		_ = listener.Close()
		testutil.RequireClosed(t, server.done, 5*time.Second, "server script did not finish")
	})
	return server
}

// expect reads one command line and reports a mismatch.
func (c *serverConn) expect(want string) bool {
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		c.t.Errorf("server waiting for %q: %v", want, err)
		return false
	}
	line = strings.TrimRight(line, "\r\n")
	c.commands <- line
	if line != want {
		c.t.Errorf("server received %q, want %q", line, want)
		return false
	}
	return true
}

func (c *serverConn) send(text string) {
	if _, err := c.conn.Write([]byte(text)); err != nil {
		c.t.Errorf("server write: %v", err)
	}
}

func (c *serverConn) reply(command, response string) bool {
	if !c.expect(command) {
		return false
	}
	c.send(response + "\r\n")
	return true
}

func (c *serverConn) hello(identity string) bool {
	if !c.expect("HELLO") {
		return false
	}
	c.send(identity + "\r\nTest Observatory\r\n")
	return true
}

func (c *serverConn) sendData(sequence int, record []byte) {
	c.send(fmt.Sprintf("SL%06X", sequence))
	c.send(string(record))
}

func (c *serverConn) sendInfo(terminated bool) {
	header := "SLINFO *"
	if terminated {
		header = "SLINFO  "
	}
	c.send(header)
	c.send(string(make([]byte, RecordSize)))
}

// waitClosed blocks until the client closes the connection.
func (c *serverConn) waitClosed() {
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return
		}
		c.commands <- strings.TrimRight(line, "\r\n")
	}
}

// waitCommand returns the next command the server recorded.
func (s *fakeServer) waitCommand() string {
	s.t.Helper()
	return testutil.RequireReceive(s.t, s.commands, 5*time.Second, "waiting for client command")
}
