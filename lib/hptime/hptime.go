// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hptime

import (
	"fmt"
	"time"
)

// Modulus is the number of Time ticks per second.
const Modulus = 1_000_000

// Time is microseconds since 1970-01-01T00:00:00Z.
type Time int64

// FromTime converts t to a Time, truncating below one microsecond.
func FromTime(t time.Time) Time {
	return Time(t.Unix()*Modulus + int64(t.Nanosecond()/1000))
}

// Std returns t as a UTC time.Time.
func (t Time) Std() time.Time {
	seconds, fraction := t.split()
	return time.Unix(seconds, fraction*1000).UTC()
}

// split returns whole epoch seconds and a non-negative microsecond
// remainder, flooring for times before the epoch.
func (t Time) split() (int64, int64) {
	seconds := int64(t) / Modulus
	fraction := int64(t) - seconds*Modulus
	if fraction < 0 {
		seconds--
		fraction += Modulus
	}
	return seconds, fraction
}

// Date builds a Time from SEED-style ordinal components. Year must be
// within 1900-2100, day-of-year within 1-366, and second may be 60 to
// allow for a leap second.
func Date(year, doy, hour, minute, second, microsecond int) (Time, error) {
	if year < 1900 || year > 2100 {
		return 0, fmt.Errorf("year %d is out of range", year)
	}
	if err := checkClock(doy, hour, minute, second, microsecond); err != nil {
		return 0, err
	}
	return ordinal(year, doy, hour, minute, second, microsecond), nil
}

func checkClock(doy, hour, minute, second, microsecond int) error {
	switch {
	case doy < 1 || doy > 366:
		return fmt.Errorf("day-of-year %d is out of range", doy)
	case hour < 0 || hour > 23:
		return fmt.Errorf("hour %d is out of range", hour)
	case minute < 0 || minute > 59:
		return fmt.Errorf("minute %d is out of range", minute)
	case second < 0 || second > 60:
		return fmt.Errorf("second %d is out of range", second)
	case microsecond < 0 || microsecond > 999999:
		return fmt.Errorf("microsecond %d is out of range", microsecond)
	}
	return nil
}

// ordinal does no range checking. time.Date normalizes overflowing
// fields, so day 366 of a non-leap year rolls into January and second
// 60 rolls into the next minute, matching plain epoch arithmetic.
func ordinal(year, doy, hour, minute, second, microsecond int) Time {
	std := time.Date(year, time.January, doy, hour, minute, second, microsecond*1000, time.UTC)
	return FromTime(std)
}

// ISOString formats t as "YYYY-MM-DDTHH:MM:SS[.FFFFFF]".
func (t Time) ISOString(subseconds bool) string {
	return t.format('T', subseconds)
}

// monthDayString formats t as "YYYY-MM-DD HH:MM:SS[.FFFFFF]".
func (t Time) monthDayString(subseconds bool) string {
	return t.format(' ', subseconds)
}

func (t Time) format(separator byte, subseconds bool) string {
	std := t.Std()
	text := fmt.Sprintf("%4d-%02d-%02d%c%02d:%02d:%02d",
		std.Year(), int(std.Month()), std.Day(), separator,
		std.Hour(), std.Minute(), std.Second())
	if subseconds {
		_, fraction := t.split()
		text += fmt.Sprintf(".%06d", fraction)
	}
	return text
}

// SEEDString formats t as "YYYY,DDD,HH:MM:SS[.FFFFFF]".
func (t Time) SEEDString(subseconds bool) string {
	std := t.Std()
	text := fmt.Sprintf("%4d,%03d,%02d:%02d:%02d",
		std.Year(), std.YearDay(), std.Hour(), std.Minute(), std.Second())
	if subseconds {
		_, fraction := t.split()
		text += fmt.Sprintf(".%06d", fraction)
	}
	return text
}

// SeedLinkString formats t as "YYYY,MM,DD,HH,MM,SS", the form SeedLink
// servers accept in DATA, FETCH and TIME commands and the form used in
// SeedLink state files.
func (t Time) SeedLinkString() string {
	std := t.Std()
	return fmt.Sprintf("%04d,%02d,%02d,%02d,%02d,%02d",
		std.Year(), int(std.Month()), std.Day(),
		std.Hour(), std.Minute(), std.Second())
}

// String implements fmt.Stringer using the ISO form with subseconds.
func (t Time) String() string {
	return t.ISOString(true)
}
