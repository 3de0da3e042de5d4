// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mseed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/bureau-foundation/seedrelay/lib/hptime"
)

// Fixed section of data header layout. Offsets are protocol constants.
const (
	// FixedHeaderSize is the length of the fixed section of data
	// header that starts every record.
	FixedHeaderSize = 48

	offsetSequence        = 0
	offsetQuality         = 6
	offsetReserved        = 7
	offsetStation         = 8
	offsetLocation        = 13
	offsetChannel         = 15
	offsetNetwork         = 18
	offsetYear            = 20
	offsetDayOfYear       = 22
	offsetHour            = 24
	offsetMinute          = 25
	offsetSecond          = 26
	offsetFraction        = 28
	offsetSampleCount     = 30
	offsetRateFactor      = 32
	offsetRateMultiplier  = 34
	offsetActivityFlags   = 36
	offsetIOFlags         = 37
	offsetQualityFlags    = 38
	offsetBlocketteCount  = 39
	offsetTimeCorrection  = 40
	offsetDataOffset      = 44
	offsetFirstBlockette  = 46
	activityTimeCorrected = 0x02
)

var (
	// ErrShortRecord is returned when the buffer cannot hold a fixed
	// header or the record length declared by blockette 1000.
	ErrShortRecord = errors.New("mseed: record too short")

	// ErrInvalidHeader is returned when the fixed header fails basic
	// sanity checks (sequence digits, quality indicator, time fields).
	ErrInvalidHeader = errors.New("mseed: invalid fixed header")

	// ErrBlockette is returned for a malformed blockette chain.
	ErrBlockette = errors.New("mseed: malformed blockette chain")
)

// Header is the decoded fixed header of one record plus the values
// taken from its blockettes. The zero value is ready for [Header.Parse].
type Header struct {
	Sequence int
	Quality  byte

	Network  string
	Station  string
	Location string
	Channel  string

	// Start is the corrected record start time.
	Start hptime.Time

	SampleCount    int
	RateFactor     int16
	RateMultiplier int16

	// SampleRate is the nominal rate in samples per second. When
	// blockette 100 is present its actual rate takes precedence.
	SampleRate float64

	ActivityFlags byte
	IOFlags       byte
	QualityFlags  byte

	// TimeCorrection is in units of 0.0001 seconds.
	TimeCorrection int32

	DataOffset int

	// BigEndian reports the header byte order.
	BigEndian bool

	// Encoding and RecordLength come from blockette 1000. Both are
	// zero when the record carries no blockette 1000.
	Encoding     uint8
	RecordLength int

	// TimingQuality comes from blockette 1001, or -1 when absent.
	TimingQuality int

	// Blockettes lists blockette types in chain order. The backing
	// array is reused by subsequent Parse calls.
	Blockettes []uint16
}

// Parse decodes record into h, overwriting every field.
func (h *Header) Parse(record []byte) error {
	if len(record) < FixedHeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrShortRecord, len(record))
	}
	if err := checkFixedHeader(record); err != nil {
		return err
	}

	order, bigEndian, err := detectByteOrder(record)
	if err != nil {
		return err
	}

	blockettes := h.Blockettes[:0]
	*h = Header{
		Quality:       record[offsetQuality],
		Network:       field(record, offsetNetwork, 2),
		Station:       field(record, offsetStation, 5),
		Location:      field(record, offsetLocation, 2),
		Channel:       field(record, offsetChannel, 3),
		BigEndian:     bigEndian,
		TimingQuality: -1,
		Blockettes:    blockettes,
	}
	h.Sequence = parseSequence(record[offsetSequence : offsetSequence+6])

	year := int(order.Uint16(record[offsetYear:]))
	doy := int(order.Uint16(record[offsetDayOfYear:]))
	fraction := int(order.Uint16(record[offsetFraction:]))
	if fraction > 9999 {
		return fmt.Errorf("%w: fractional seconds %d", ErrInvalidHeader, fraction)
	}
	start, err := hptime.Date(year, doy,
		int(record[offsetHour]), int(record[offsetMinute]), int(record[offsetSecond]),
		fraction*100)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	h.SampleCount = int(order.Uint16(record[offsetSampleCount:]))
	h.RateFactor = int16(order.Uint16(record[offsetRateFactor:]))
	h.RateMultiplier = int16(order.Uint16(record[offsetRateMultiplier:]))
	h.SampleRate = NominalRate(h.RateFactor, h.RateMultiplier)
	h.ActivityFlags = record[offsetActivityFlags]
	h.IOFlags = record[offsetIOFlags]
	h.QualityFlags = record[offsetQualityFlags]
	h.TimeCorrection = int32(order.Uint32(record[offsetTimeCorrection:]))
	h.DataOffset = int(order.Uint16(record[offsetDataOffset:]))

	microseconds, err := h.readBlockettes(record, order)
	if err != nil {
		return err
	}
	if h.RecordLength > len(record) {
		return fmt.Errorf("%w: blockette 1000 declares %d bytes, have %d",
			ErrShortRecord, h.RecordLength, len(record))
	}

	start += hptime.Time(microseconds)
	if h.TimeCorrection != 0 && h.ActivityFlags&activityTimeCorrected == 0 {
		start += hptime.Time(h.TimeCorrection) * 100
	}
	h.Start = start
	return nil
}

// SourceName returns "NET_STA_LOC_CHAN" with padding removed. An
// empty location keeps its (empty) position.
func (h *Header) SourceName() string {
	return h.Network + "_" + h.Station + "_" + h.Location + "_" + h.Channel
}

// End returns the time just past the last sample: Start plus
// SampleCount sample periods. A record with no samples or no rate
// ends where it starts.
func (h *Header) End() hptime.Time {
	if h.SampleCount == 0 || h.SampleRate == 0 {
		return h.Start
	}
	span := float64(h.SampleCount) / h.SampleRate * hptime.Modulus
	return h.Start + hptime.Time(math.Round(span))
}

// HasBlockette reports whether any blockette type in [low, high] is in
// the chain.
func (h *Header) HasBlockette(low, high uint16) bool {
	for _, blockette := range h.Blockettes {
		if blockette >= low && blockette <= high {
			return true
		}
	}
	return false
}

// RawIdentifiers returns the fixed header identifiers without
// validating the rest of the record. All four are empty when record is
// shorter than the identifier fields.
func RawIdentifiers(record []byte) (network, station, location, channel string) {
	if len(record) < offsetNetwork+2 {
		return "", "", "", ""
	}
	return field(record, offsetNetwork, 2), field(record, offsetStation, 5),
		field(record, offsetLocation, 2), field(record, offsetChannel, 3)
}

// RawSourceName builds a best-effort NET_STA_LOC_CHAN from
// [RawIdentifiers]. It returns "" for records too short to hold them.
func RawSourceName(record []byte) string {
	if len(record) < offsetNetwork+2 {
		return ""
	}
	network, station, location, channel := RawIdentifiers(record)
	return network + "_" + station + "_" + location + "_" + channel
}

func checkFixedHeader(record []byte) error {
	for _, c := range record[offsetSequence : offsetSequence+6] {
		if (c < '0' || c > '9') && c != ' ' && c != 0 {
			return fmt.Errorf("%w: sequence number %q", ErrInvalidHeader, record[offsetSequence:offsetSequence+6])
		}
	}
	switch record[offsetQuality] {
	case 'D', 'R', 'Q', 'M':
	default:
		return fmt.Errorf("%w: quality indicator %q", ErrInvalidHeader, record[offsetQuality])
	}
	if c := record[offsetReserved]; c != ' ' && c != 0 {
		return fmt.Errorf("%w: reserved byte %#x", ErrInvalidHeader, c)
	}
	if record[offsetHour] > 23 || record[offsetMinute] > 59 || record[offsetSecond] > 60 {
		return fmt.Errorf("%w: start time %02d:%02d:%02d", ErrInvalidHeader,
			record[offsetHour], record[offsetMinute], record[offsetSecond])
	}
	return nil
}

// detectByteOrder picks the order in which year and day-of-year are
// plausible, preferring big-endian as SEED does.
func detectByteOrder(record []byte) (binary.ByteOrder, bool, error) {
	if plausibleDate(binary.BigEndian, record) {
		return binary.BigEndian, true, nil
	}
	if plausibleDate(binary.LittleEndian, record) {
		return binary.LittleEndian, false, nil
	}
	return nil, false, fmt.Errorf("%w: cannot determine byte order from start time", ErrInvalidHeader)
}

func plausibleDate(order binary.ByteOrder, record []byte) bool {
	year := order.Uint16(record[offsetYear:])
	doy := order.Uint16(record[offsetDayOfYear:])
	return year >= 1900 && year <= 2100 && doy >= 1 && doy <= 366
}

func parseSequence(raw []byte) int {
	value := 0
	for _, c := range raw {
		if c >= '0' && c <= '9' {
			value = value*10 + int(c-'0')
		}
	}
	return value
}

// field returns a fixed-width ASCII field with spaces and NULs
// removed.
func field(record []byte, offset, width int) string {
	raw := record[offset : offset+width]
	var builder strings.Builder
	for _, c := range raw {
		if c != ' ' && c != 0 {
			builder.WriteByte(c)
		}
	}
	return builder.String()
}
