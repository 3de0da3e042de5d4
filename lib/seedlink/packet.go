// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package seedlink

import (
	"fmt"

	"github.com/bureau-foundation/seedrelay/lib/mseed"
)

// Wire sizes of a SeedLink packet.
const (
	HeaderSize = 8
	RecordSize = 512
)

// PacketType classifies a received packet. The values follow the
// SeedLink/libslink numbering.
type PacketType uint8

const (
	Data PacketType = iota
	Detection
	Calibration
	Timing
	Message
	General
	Request
	Info
	InfoTerminated
	KeepAlive
)

// String returns the display name of the packet type.
func (t PacketType) String() string {
	switch t {
	case Data:
		return "Data"
	case Detection:
		return "Detection"
	case Calibration:
		return "Calibration"
	case Timing:
		return "Timing"
	case Message:
		return "Message"
	case General:
		return "General"
	case Request:
		return "Request"
	case Info:
		return "Info"
	case InfoTerminated:
		return "Info (terminated)"
	case KeepAlive:
		return "KeepAlive"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// DataBearing reports whether packets of this type carry a miniSEED
// record that belongs in the archive.
func (t PacketType) DataBearing() bool {
	return t <= General
}

// Packet is one SeedLink packet.
type Packet struct {
	Type PacketType

	// Sequence is the 24-bit SeedLink sequence number, or -1 for INFO
	// packets.
	Sequence int64

	// Network and Station name the subscription stream the packet
	// belongs to, taken from the record as received (before any
	// rewrite by the relay). Uni-station packets use UniNetwork and
	// UniStation. Both are empty for packets that are not data
	// bearing.
	Network string
	Station string

	// Record holds the RecordSize byte payload. It is owned by the
	// caller.
	Record []byte
}

// classify determines the type of a data packet from its record. The
// header is scratch space reused between calls. Unparseable records
// are reported as Data so that the consumer sees the parse failure.
func classify(header *mseed.Header, record []byte) PacketType {
	if err := header.Parse(record); err != nil {
		return Data
	}
	switch {
	case header.HasBlockette(200, 299):
		return Detection
	case header.HasBlockette(300, 399):
		return Calibration
	case header.HasBlockette(500, 599):
		return Timing
	case header.SampleCount > 0 && header.RateFactor == 0:
		return Message
	case header.SampleCount == 0:
		return General
	default:
		return Data
	}
}
