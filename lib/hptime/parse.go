// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hptime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parseSEED parses a SEED ordinal time string "YYYY[,DDD[,HH[:MM[:SS[.FFFFFF]]]]]",
// the inverse of SEEDString. Fields may be separated by any run of
// ',', ':' or '.' characters. Omitted trailing fields default to the
// start of the period.
func parseSEED(text string) (Time, error) {
	fields, microsecond, err := scanFields(text, 5, ",:.")
	if err != nil {
		return 0, fmt.Errorf("parsing SEED time %q: %w", text, err)
	}
	values := [5]int{0, 1, 0, 0, 0}
	copy(values[:], fields)

	year := values[0]
	if year < 1900 || year > 3000 {
		return 0, fmt.Errorf("parsing SEED time %q: year %d is out of range", text, year)
	}
	if err := checkClock(values[1], values[2], values[3], values[4], microsecond); err != nil {
		return 0, fmt.Errorf("parsing SEED time %q: %w", text, err)
	}
	return ordinal(year, values[1], values[2], values[3], values[4], microsecond), nil
}

// Parse parses a calendar time string "YYYY[-MM[-DD[THH[:MM[:SS[.FFFFFF]]]]]]".
// Fields may be separated by any run of '-', '/', ':', '.', ',', 'T'
// or space characters, so "2002/08/05 14:00:00" and
// "2002,08,05,14,00,00" are both accepted.
func Parse(text string) (Time, error) {
	fields, microsecond, err := scanFields(text, 6, "-/:.,T ")
	if err != nil {
		return 0, fmt.Errorf("parsing time %q: %w", text, err)
	}
	values := [6]int{0, 1, 1, 0, 0, 0}
	copy(values[:], fields)

	year, month, mday := values[0], values[1], values[2]
	if year < 1900 || year > 3000 {
		return 0, fmt.Errorf("parsing time %q: year %d is out of range", text, year)
	}
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("parsing time %q: month %d is out of range", text, month)
	}
	if mday < 1 || mday > 31 {
		return 0, fmt.Errorf("parsing time %q: day %d is out of range", text, mday)
	}
	if mday > daysInMonth(year, month) {
		return 0, fmt.Errorf("parsing time %q: day %d is out of range for month %d", text, mday, month)
	}
	doy := mday
	for m := 1; m < month; m++ {
		doy += daysInMonth(year, m)
	}
	if err := checkClock(doy, values[3], values[4], values[5], microsecond); err != nil {
		return 0, fmt.Errorf("parsing time %q: %w", text, err)
	}
	return ordinal(year, doy, values[3], values[4], values[5], microsecond), nil
}

// scanFields reads up to count unsigned integers separated by runs of
// separator characters. A '.' immediately following the final field
// introduces a fractional second, returned rounded to microseconds.
// Scanning stops quietly at the first unexpected character once at
// least one field has been read, mirroring sscanf semantics.
func scanFields(text string, count int, separators string) ([]int, int, error) {
	var fields []int
	position := 0
	for len(fields) < count {
		start := position
		for position < len(text) && text[position] >= '0' && text[position] <= '9' {
			position++
		}
		if start == position {
			break
		}
		value, err := strconv.Atoi(text[start:position])
		if err != nil {
			return nil, 0, err
		}
		fields = append(fields, value)
		if len(fields) == count {
			break
		}
		skipped := position
		for position < len(text) && strings.IndexByte(separators, text[position]) >= 0 {
			position++
		}
		if skipped == position {
			break
		}
	}
	if len(fields) == 0 {
		return nil, 0, fmt.Errorf("no numeric fields")
	}

	microsecond := 0
	if len(fields) == count && position < len(text) && text[position] == '.' {
		start := position
		position++
		for position < len(text) && text[position] >= '0' && text[position] <= '9' {
			position++
		}
		fraction, err := strconv.ParseFloat("0"+text[start:position], 64)
		if err != nil {
			return nil, 0, fmt.Errorf("fractional seconds: %w", err)
		}
		microsecond = int(math.Floor(fraction*Modulus + 0.5))
	}
	return fields, microsecond, nil
}
