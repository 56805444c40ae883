// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fieldSet is a compact set of integers 0-63 backed by a uint64. All
// cron field domains (minutes 0-59, hours 0-23, days 1-31, months
// 1-12, weekdays 0-6) fit.
type fieldSet uint64

func (s fieldSet) contains(value int) bool { return s&(1<<uint(value)) != 0 }
func (s *fieldSet) add(value int)          { *s |= 1 << uint(value) }

// Schedule is a parsed cron expression. Use Parse to create one, then
// Next to compute the next matching time.
type Schedule struct {
	minute   fieldSet
	hour     fieldSet
	monthDay fieldSet
	month    fieldSet
	weekday  fieldSet
}

// fieldSpec describes one of the five cron fields for parsing.
var fieldSpecs = []struct {
	name string
	min  int
	max  int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// Parse parses a standard 5-field cron expression. Returns an error
// if the expression is malformed or contains out-of-range values.
func Parse(expression string) (Schedule, error) {
	fields := strings.Fields(expression)
	if len(fields) != len(fieldSpecs) {
		return Schedule{}, fmt.Errorf("cron: expected %d fields, got %d", len(fieldSpecs), len(fields))
	}

	var sets [5]fieldSet
	for i, spec := range fieldSpecs {
		set, err := parseField(fields[i], spec.min, spec.max)
		if err != nil {
			return Schedule{}, fmt.Errorf("cron: %s field: %w", spec.name, err)
		}
		sets[i] = set
	}

	return Schedule{
		minute:   sets[0],
		hour:     sets[1],
		monthDay: sets[2],
		month:    sets[3],
		weekday:  sets[4],
	}, nil
}

// Next returns the earliest time strictly after t that matches the
// schedule. All computation is in UTC.
//
// Returns an error if no matching time exists within 4 years of t,
// which prevents infinite loops on impossible schedules like Feb 31.
func (s Schedule) Next(t time.Time) (time.Time, error) {
	t = t.UTC().Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		if !s.month.contains(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
			continue
		}

		// Both day fields are checked as AND. A wildcard field has
		// every bit set, so it never constrains. Standard cron's
		// OR-when-both-restricted rule is not implemented — relockd
		// schedules never restrict both day fields at once.
		if !s.monthDay.contains(t.Day()) || !s.weekday.contains(int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
			continue
		}

		if !s.hour.contains(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, time.UTC)
			continue
		}

		if !s.minute.contains(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}

		return t, nil
	}

	return time.Time{}, fmt.Errorf("cron: no matching time within 4 years of %s", t.Format(time.RFC3339))
}

// parseField parses a comma-separated list of terms into a fieldSet.
func parseField(field string, minimum, maximum int) (fieldSet, error) {
	var result fieldSet
	for _, term := range strings.Split(field, ",") {
		set, err := parseTerm(term, minimum, maximum)
		if err != nil {
			return 0, err
		}
		result |= set
	}
	if result == 0 {
		return 0, fmt.Errorf("field %q produces empty set", field)
	}
	return result, nil
}

// parseTerm parses a single term: *, */N, V, V-V, or V-V/N.
func parseTerm(term string, minimum, maximum int) (fieldSet, error) {
	rangePart, stepPart, hasStep := strings.Cut(term, "/")

	step := 1
	if hasStep {
		parsed, err := strconv.Atoi(stepPart)
		if err != nil {
			return 0, fmt.Errorf("invalid step %q: %w", stepPart, err)
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", parsed)
		}
		step = parsed
	}

	start, end := minimum, maximum
	if rangePart != "*" {
		startStr, endStr, isRange := strings.Cut(rangePart, "-")
		var err error
		start, err = strconv.Atoi(startStr)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q: %w", startStr, err)
		}
		if isRange {
			end, err = strconv.Atoi(endStr)
			if err != nil {
				return 0, fmt.Errorf("invalid range end %q: %w", endStr, err)
			}
			if start > end {
				return 0, fmt.Errorf("range start %d > end %d", start, end)
			}
		} else {
			end = start
		}
	}

	if start < minimum || end > maximum {
		return 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", minimum, maximum, start, end)
	}

	var result fieldSet
	for value := start; value <= end; value += step {
		result.add(value)
	}
	return result, nil
}
