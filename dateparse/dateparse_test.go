package dateparse

import (
	"testing"
	"time"
)

func fixedNow(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 15, 30, 0, 0, time.UTC) }
}

func TestParseRoundTripLayouts(t *testing.T) {
	want := time.Date(2025, time.April, 23, 0, 0, 0, 0, time.UTC)
	p := &Parser{Now: fixedNow(2030, time.January, 1)}
	for _, layout := range layouts {
		text := want.Format(layout)
		got, ok := p.Parse(text)
		if !ok {
			t.Errorf("layout %q: Parse(%q) failed", layout, text)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("layout %q: Parse(%q) = %v, want %v", layout, text, got, want)
		}
	}
}

func TestParse(t *testing.T) {
	p := &Parser{Now: fixedNow(2026, time.October, 16)}
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"23 April 2025", time.Date(2025, 4, 23, 0, 0, 0, 0, time.UTC), true},
		{"  23rd April 2025 ", time.Date(2025, 4, 23, 0, 0, 0, 0, time.UTC), true},
		{"Wednesday, 1st May 2024", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), true},
		{"Posted on 5 Sept 2024 by admin", time.Date(2024, 9, 5, 0, 0, 0, 0, time.UTC), true},
		{"Starts March 3rd, 2025 at 10am", time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), true},
		{"2024-11-05", time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC), true},
		{"05/11/2024", time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC), true},
		{"2025-04-23T10:00", time.Date(2025, 4, 23, 0, 0, 0, 0, time.UTC), true},
		{"2025-04-23 10:00", time.Date(2025, 4, 23, 0, 0, 0, 0, time.UTC), true},
		{"2025-04-23 10:00:00", time.Date(2025, 4, 23, 0, 0, 0, 0, time.UTC), true},
		{"23/04/2025 10:00", time.Date(2025, 4, 23, 0, 0, 0, 0, time.UTC), true},
		{"Updated 2025-04-23 at noon", time.Date(2025, 4, 23, 0, 0, 0, 0, time.UTC), true},
		{"Deadline: 23.04.2025, 5pm", time.Date(2025, 4, 23, 0, 0, 0, 0, time.UTC), true},
		{"Opens 7/3/2025 (Friday)", time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC), true},
		{"Ref 2025-13-40 issued 2025", time.Date(2025, 10, 16, 0, 0, 0, 0, time.UTC), true},
		{"Event in 2024 sometime", time.Date(2024, 10, 16, 0, 0, 0, 0, time.UTC), true},
		{"not a date", time.Time{}, false},
		{"", time.Time{}, false},
		{"   ", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := p.Parse(tt.in)
			if ok != tt.ok {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseInvalidCalendarDate(t *testing.T) {
	p := &Parser{Now: fixedNow(2026, time.June, 1)}
	// 30 February is rejected by the name scan; the year approximation
	// still applies because the text carries a year.
	got, ok := p.Parse("on 30 February 2025")
	if !ok {
		t.Fatal("expected year approximation")
	}
	want := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, ok := p.FindInText("30 February 2025"); ok {
		t.Error("FindInText accepted 30 February")
	}
}

func TestApproximationLeapDay(t *testing.T) {
	p := &Parser{Now: fixedNow(2028, time.February, 29)}
	got, ok := p.Parse("Class of 2025")
	if !ok {
		t.Fatal("expected approximation")
	}
	want := time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFindInTextIgnoresBareYear(t *testing.T) {
	if _, ok := FindInText("Open days 2025"); ok {
		t.Error("FindInText should not approximate from a bare year")
	}
	got, ok := FindInText("Join us on 14 June 2025 in the Hub")
	if !ok || !got.Equal(time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("FindInText = %v, %v", got, ok)
	}
}

func TestResolveMonth(t *testing.T) {
	tests := []struct {
		in   string
		want time.Month
		ok   bool
	}{
		{"January", time.January, true},
		{"jan", time.January, true},
		{"Sept", time.September, true},
		{"Septembre", time.September, true},
		{"DEC", time.December, true},
		{"ma", 0, false},
		{"Foo", 0, false},
	}
	for _, tt := range tests {
		got, ok := ResolveMonth(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ResolveMonth(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
