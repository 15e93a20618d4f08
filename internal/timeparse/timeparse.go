// Package timeparse provides layered parsing for deadline expressions.
//
// Three layers are tried in order:
//  1. Compact duration (+6h, 2w, -1d)
//  2. Natural language (tomorrow, next friday at 5pm)
//  3. Absolute timestamp (RFC3339, date-only)
package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// compactDurationRe matches compact duration patterns: [+-]?(\d+)([hdwmy])
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// nlpParser is the shared natural language parser; safe for concurrent use.
var nlpParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// Parse resolves a deadline expression against now, trying each layer in
// order. Returns an error only when no layer matches.
func Parse(s string, now time.Time) (time.Time, error) {
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}
	if t, err := ParseNaturalLanguage(s, now); err == nil {
		return t, nil
	}
	if t, err := ParseAbsolute(s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("could not parse %q as a duration, natural language date, or timestamp", s)
}

// ParseCompactDuration parses compact duration syntax relative to now.
// Units: h=hours, d=days, w=weeks, m=months, y=years. No sign means
// positive.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}

	switch matches[3] {
	case "h":
		return now.Add(time.Duration(amount) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, amount), nil
	case "w":
		return now.AddDate(0, 0, amount*7), nil
	case "m":
		return now.AddDate(0, amount, 0), nil
	case "y":
		return now.AddDate(amount, 0, 0), nil
	}
	return now, nil
}

// IsCompactDuration returns true if the string matches compact duration
// syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

// ParseNaturalLanguage resolves expressions like "tomorrow" or
// "next friday at 5pm" against now.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	result, err := nlpParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("natural language parse failed: %w", err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("not a recognized date expression: %q", s)
	}
	return result.Time, nil
}

// ParseAbsolute parses RFC3339 timestamps and date-only values. Date-only
// values resolve to end of day local time, which is what a deadline means.
func ParseAbsolute(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t.Add(24*time.Hour - time.Second), nil
	}
	return time.Time{}, fmt.Errorf("not an absolute timestamp: %q", s)
}
