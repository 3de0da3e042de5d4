// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package translate turns raw miniSEED records into units ready for a
// DataLink WRITE: an optional network code rewrite, header parsing,
// and derivation of the stream ID and time span.
package translate

import (
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/seedrelay/lib/mseed"
)

// StreamSuffix marks the payload type in DataLink stream IDs.
const StreamSuffix = "/MSEED"

// ErrConfig is returned by New for an unusable network override.
var ErrConfig = errors.New("translate: invalid configuration")

// Unit is a record ready for delivery.
type Unit struct {
	// Data is the record after any rewrite. It does not alias the
	// input of Translate.
	Data   []byte
	Length int

	// StreamID is "NET_STA_LOC_CHAN/MSEED".
	StreamID string

	// Start and End bound the record's samples at microsecond
	// precision. End is exclusive of the following record's start.
	Start time.Time
	End   time.Time
}

// ParseError reports a record whose header could not be parsed.
type ParseError struct {
	// Stream is a best-effort NET_STA_LOC_CHAN read from the raw
	// fixed header.
	Stream string
	Reason error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unpacking %s: %v", e.Stream, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Reason
}

// Translator converts records. It reuses a header between calls and
// is not safe for concurrent use.
type Translator struct {
	network string
	header  mseed.Header
}

// New returns a translator. A non-empty network replaces the network
// code of every record; it must be one or two ASCII letters or digits.
func New(network string) (*Translator, error) {
	if network != "" {
		if len(network) > 2 {
			return nil, fmt.Errorf("%w: network code %q longer than 2 characters", ErrConfig, network)
		}
		for _, c := range []byte(network) {
			if !isAlphanumeric(c) {
				return nil, fmt.Errorf("%w: network code %q contains %q", ErrConfig, network, c)
			}
		}
	}
	return &Translator{network: network}, nil
}

// Network returns the override network code, or "" when records pass
// through unchanged.
func (t *Translator) Network() string {
	return t.network
}

// Translate copies record, applies the network rewrite to the copy,
// and parses it. record itself is never modified, so translating the
// same bytes twice yields identical units.
func (t *Translator) Translate(record []byte) (Unit, error) {
	data := make([]byte, len(record))
	copy(data, record)

	if t.network != "" {
		if err := mseed.RewriteNetwork(data, t.network); err != nil {
			return Unit{}, &ParseError{Stream: mseed.RawSourceName(record), Reason: err}
		}
	}
	if err := t.header.Parse(data); err != nil {
		return Unit{}, &ParseError{Stream: mseed.RawSourceName(data), Reason: err}
	}

	return Unit{
		Data:     data,
		Length:   len(data),
		StreamID: t.header.SourceName() + StreamSuffix,
		Start:    t.header.Start.Std(),
		End:      t.header.End().Std(),
	}, nil
}

func isAlphanumeric(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
