// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mseedtest builds synthetic miniSEED 2.x records for tests.
// Records carry a valid fixed header and blockette chain; the data
// section is zero-filled.
package mseedtest

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// RecordSize is the record length produced by [Build], matching the
// SeedLink payload size.
const RecordSize = 512

// Record describes the header of a synthetic record. Zero fields take
// the defaults documented on each field.
type Record struct {
	Sequence int
	// Quality defaults to 'D'.
	Quality byte

	Network  string
	Station  string
	Location string
	Channel  string

	Start time.Time

	Samples        int
	RateFactor     int16
	RateMultiplier int16

	// ActualRate, when non-zero, adds a blockette 100.
	ActualRate float32

	ActivityFlags  byte
	TimeCorrection int32

	// Microseconds, when non-zero, adds a blockette 1001 carrying the
	// sub-tenth-millisecond start time offset.
	Microseconds int8

	// Extra appends blockettes of the listed types after blockette
	// 1000. Each occupies 16 zero-filled bytes.
	Extra []uint16

	LittleEndian bool

	// NoBlockette1000 omits the record length blockette.
	NoBlockette1000 bool
}

// Data returns a 40 Hz data record description for the given stream.
func Data(network, station, location, channel string, start time.Time, samples int) Record {
	return Record{
		Sequence:       1,
		Network:        network,
		Station:        station,
		Location:       location,
		Channel:        channel,
		Start:          start,
		Samples:        samples,
		RateFactor:     40,
		RateMultiplier: 1,
	}
}

// Build encodes r into a RecordSize byte record. It panics on values
// that cannot be represented, since those are test-authoring mistakes.
func Build(r Record) []byte {
	var order binary.ByteOrder = binary.BigEndian
	byteOrderFlag := byte(1)
	if r.LittleEndian {
		order = binary.LittleEndian
		byteOrderFlag = 0
	}

	record := make([]byte, RecordSize)
	copy(record[0:6], fmt.Sprintf("%06d", r.Sequence%1000000))
	record[6] = r.Quality
	if record[6] == 0 {
		record[6] = 'D'
	}
	record[7] = ' '
	putField(record[8:13], r.Station)
	putField(record[13:15], r.Location)
	putField(record[15:18], r.Channel)
	putField(record[18:20], r.Network)

	start := r.Start.UTC()
	order.PutUint16(record[20:], uint16(start.Year()))
	order.PutUint16(record[22:], uint16(start.YearDay()))
	record[24] = byte(start.Hour())
	record[25] = byte(start.Minute())
	record[26] = byte(start.Second())
	order.PutUint16(record[28:], uint16(start.Nanosecond()/100000))

	if r.Samples < 0 || r.Samples > math.MaxUint16 {
		panic(fmt.Sprintf("mseedtest: sample count %d out of range", r.Samples))
	}
	order.PutUint16(record[30:], uint16(r.Samples))
	order.PutUint16(record[32:], uint16(r.RateFactor))
	order.PutUint16(record[34:], uint16(r.RateMultiplier))
	record[36] = r.ActivityFlags
	order.PutUint32(record[40:], uint32(r.TimeCorrection))

	type blockette struct {
		kind uint16
		size int
		fill func(body []byte)
	}
	var chain []blockette
	if !r.NoBlockette1000 {
		chain = append(chain, blockette{1000, 8, func(body []byte) {
			body[4] = 11
			body[5] = byteOrderFlag
			body[6] = 9
		}})
	}
	if r.Microseconds != 0 {
		chain = append(chain, blockette{1001, 8, func(body []byte) {
			body[4] = 100
			body[5] = byte(r.Microseconds)
		}})
	}
	if r.ActualRate != 0 {
		chain = append(chain, blockette{100, 12, func(body []byte) {
			order.PutUint32(body[4:], math.Float32bits(r.ActualRate))
		}})
	}
	for _, kind := range r.Extra {
		chain = append(chain, blockette{kind, 16, nil})
	}

	offset := 48
	if len(chain) > 0 {
		order.PutUint16(record[46:], uint16(offset))
	}
	for i, b := range chain {
		body := record[offset : offset+b.size]
		order.PutUint16(body[0:], b.kind)
		next := 0
		if i < len(chain)-1 {
			next = offset + b.size
		}
		order.PutUint16(body[2:], uint16(next))
		if b.fill != nil {
			b.fill(body)
		}
		offset += b.size
	}
	record[39] = byte(len(chain))

	dataOffset := (offset + 63) / 64 * 64
	if dataOffset >= RecordSize {
		panic("mseedtest: blockettes overflow the record")
	}
	order.PutUint16(record[44:], uint16(dataOffset))
	return record
}

func putField(destination []byte, value string) {
	if len(value) > len(destination) {
		panic(fmt.Sprintf("mseedtest: %q exceeds %d-byte field", value, len(destination)))
	}
	for i := range destination {
		destination[i] = ' '
	}
	copy(destination, value)
}
