// Package dateparse turns loosely formatted date strings scraped from
// university pages into calendar dates.
package dateparse

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// layouts are tried in order; the most specific and most likely correct
// layouts come first because numeric-only strings can match several.
var layouts = []string{
	"2 January 2006",
	"Monday 2 January 2006",
	"Monday, 2 January 2006",
	"2 Jan 2006",
	"Mon 2 Jan 2006",
	"Mon, 2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04",
	"2/1/2006 15:04",
	"02-01-2006",
}

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

var (
	ordinalRe   = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)\b`)
	dayMonthRe  = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]+)\.?,?\s+(\d{4})`)
	monthDayRe  = regexp.MustCompile(`([A-Za-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})`)
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	numDateRe   = regexp.MustCompile(`\b(\d{1,2})[/.](\d{1,2})[/.](\d{4})\b`)
	bareYearRe  = regexp.MustCompile(`\b(20\d{2})\b`)
	spaceRunsRe = regexp.MustCompile(`\s+`)
)

// Parser parses dates with a fixed fallback order: exact layouts, then
// day-month-year and month-day-year scans, then numeric dates inside
// longer text, then a bare year combined with today's month and day.
type Parser struct {
	// Now supplies the processing date for the year-only approximation.
	Now func() time.Time
}

var defaultParser = &Parser{Now: time.Now}

// Parse parses text with the default parser.
func Parse(text string) (time.Time, bool) {
	return defaultParser.Parse(text)
}

// FindInText scans free text with the default parser.
func FindInText(text string) (time.Time, bool) {
	return defaultParser.FindInText(text)
}

// Parse returns the calendar date in text at UTC midnight.
func (p *Parser) Parse(text string) (time.Time, bool) {
	text = strings.TrimSpace(spaceRunsRe.ReplaceAllString(text, " "))
	if text == "" {
		return time.Time{}, false
	}

	stripped := ordinalRe.ReplaceAllString(text, "$1")
	for _, layout := range layouts {
		if t, err := time.Parse(layout, stripped); err == nil {
			return dateOnly(t.Year(), t.Month(), t.Day()), true
		}
	}

	if t, ok := p.FindInText(text); ok {
		return t, true
	}
	if t, ok := findNumeric(text); ok {
		return t, true
	}

	if m := bareYearRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		t := p.approximate(year)
		slog.Warn("dateparse: approximated date from bare year",
			"text", text, "date", t.Format("2006-01-02"))
		return t, true
	}

	slog.Warn("dateparse: could not parse date", "text", text)
	return time.Time{}, false
}

// FindInText searches free text for "<day> <month> <year>" and then
// "<month> <day> <year>". It never falls back to a bare year.
func (p *Parser) FindInText(text string) (time.Time, bool) {
	for _, m := range dayMonthRe.FindAllStringSubmatch(text, -1) {
		if t, ok := build(m[1], m[2], m[3]); ok {
			return t, true
		}
	}
	for _, m := range monthDayRe.FindAllStringSubmatch(text, -1) {
		if t, ok := build(m[2], m[1], m[3]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// findNumeric searches text for an ISO "yyyy-mm-dd" date and then a
// day-first "dd/mm/yyyy" or "dd.mm.yyyy" date.
func findNumeric(text string) (time.Time, bool) {
	for _, m := range isoDateRe.FindAllStringSubmatch(text, -1) {
		if t, ok := numericDate(m[1], m[2], m[3]); ok {
			return t, true
		}
	}
	for _, m := range numDateRe.FindAllStringSubmatch(text, -1) {
		if t, ok := numericDate(m[3], m[2], m[1]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func numericDate(yearStr, monthStr, dayStr string) (time.Time, bool) {
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, false
	}
	return calendarDate(yearStr, time.Month(month), dayStr)
}

// ResolveMonth maps a month name or abbreviation to its month. Either
// string may be a prefix of the other, so "Sept" and "Septembre" both
// resolve to September. At least three letters are required.
func ResolveMonth(name string) (time.Month, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) < 3 {
		return 0, false
	}
	for i, full := range monthNames {
		if strings.HasPrefix(full, name) || strings.HasPrefix(name, full) {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

func build(dayStr, monthStr, yearStr string) (time.Time, bool) {
	month, ok := ResolveMonth(monthStr)
	if !ok {
		return time.Time{}, false
	}
	return calendarDate(yearStr, month, dayStr)
}

// calendarDate rejects days that time.Date would roll over, such as
// 30 February.
func calendarDate(yearStr string, month time.Month, dayStr string) (time.Time, bool) {
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, false
	}
	t := dateOnly(year, month, day)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

func (p *Parser) approximate(year int) time.Time {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	today := now()
	month, day := today.Month(), today.Day()
	if month == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return dateOnly(year, month, day)
}

func dateOnly(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
