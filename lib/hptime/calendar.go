// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hptime

import "fmt"

var monthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// IsLeapYear reports whether year has 366 days in the Gregorian
// calendar.
func IsLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

func daysInMonth(year, month int) int {
	if month == 2 && IsLeapYear(year) {
		return 29
	}
	return monthDays[month-1]
}

// DOYToMonthDay converts a day-of-year (1-366) into a month (1-12)
// and day-of-month (1-31). Year must be within 1900-2100.
func DOYToMonthDay(year, doy int) (month, mday int, err error) {
	if year < 1900 || year > 2100 {
		return 0, 0, fmt.Errorf("year %d is out of range", year)
	}
	days := 365
	if IsLeapYear(year) {
		days = 366
	}
	if doy < 1 || doy > days {
		return 0, 0, fmt.Errorf("day-of-year %d is out of range", doy)
	}
	for month = 1; month <= 12; month++ {
		length := daysInMonth(year, month)
		if doy <= length {
			return month, doy, nil
		}
		doy -= length
	}
	panic("unreachable")
}

// MonthDayToDOY converts a month and day-of-month into a day-of-year.
// The day must exist in that month of that year.
func MonthDayToDOY(year, month, mday int) (int, error) {
	if year < 1900 || year > 2100 {
		return 0, fmt.Errorf("year %d is out of range", year)
	}
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("month %d is out of range", month)
	}
	if mday < 1 || mday > 31 {
		return 0, fmt.Errorf("day-of-month %d is out of range", mday)
	}
	if mday > daysInMonth(year, month) {
		return 0, fmt.Errorf("day-of-month %d is out of range for month %d", mday, month)
	}
	doy := mday
	for m := 1; m < month; m++ {
		doy += daysInMonth(year, m)
	}
	return doy, nil
}
