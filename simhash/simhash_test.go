package simhash

import (
	"testing"
	"time"

	"github.com/use-agent/uniassist/models"
)

func TestFingerprint_Empty(t *testing.T) {
	for _, in := range []string{"", "   \t\n  ", "!!! -- ..."} {
		if fp := Fingerprint(in); fp != 0 {
			t.Errorf("Fingerprint(%q) = %064b, want 0", in, fp)
		}
	}
	if Fingerprint("library") == 0 {
		t.Error("a single word should give a non-zero fingerprint")
	}
}

func TestFingerprint_Distances(t *testing.T) {
	const base = "the quick brown fox jumps over the lazy dog"
	tests := []struct {
		name    string
		other   string
		minDist int
		maxDist int
	}{
		{"same text", base, 0, 0},
		{"case and punctuation", "The quick, brown fox jumps over the LAZY dog!", 0, 0},
		{"one word swapped", "the quick brown fox leaps over the lazy dog", 1, 16},
		{"unrelated", "completely unrelated content about quantum physics and mathematics", 5, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Distance(Fingerprint(base), Fingerprint(tt.other))
			if d < tt.minDist || d > tt.maxDist {
				t.Errorf("distance = %d, want within [%d, %d]", d, tt.minDist, tt.maxDist)
			}
		})
	}
}

func TestDistanceAndSimilar(t *testing.T) {
	tests := []struct {
		a, b      uint64
		dist      int
		similarAt int
	}{
		{0xFF, 0xFF, 0, 0},
		{0, ^uint64(0), 64, 64},
		{0, 1, 1, 1},
		{0b1010, 0b0101, 4, 4},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); got != tt.dist {
			t.Errorf("Distance(%b, %b) = %d, want %d", tt.a, tt.b, got, tt.dist)
		}
		if !Similar(tt.a, tt.b, tt.similarAt) {
			t.Errorf("Similar(%b, %b, %d) = false", tt.a, tt.b, tt.similarAt)
		}
		if tt.similarAt > 0 && Similar(tt.a, tt.b, tt.similarAt-1) {
			t.Errorf("Similar(%b, %b, %d) = true", tt.a, tt.b, tt.similarAt-1)
		}
	}
}

func TestChanged(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want bool
	}{
		{"equal", 0xF0, 0xF0, false},
		{"at threshold", 0, 0b111, false},
		{"over threshold", 0, 0b1111, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Changed(tt.a, tt.b); got != tt.want {
				t.Errorf("Changed(%b, %b) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestContent(t *testing.T) {
	day := time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC)
	base := models.ContentRecord{
		Title:         "Open day",
		Summary:       "Visit the campus and meet lecturers from every department.",
		Body:          "Tours of the halls, the library and the sports centre run all day. Parking is free.",
		PublishedDate: &day,
		Kind:          models.KindEvent,
	}

	resaved := base
	resaved.ImageURL = "https://uni.example/new.jpg"
	if Changed(Content(base), Content(resaved)) {
		t.Error("image-only change should not count as changed content")
	}

	rewritten := base
	rewritten.Title = "Graduation ceremony"
	rewritten.Summary = "Graduates celebrate with families in the great hall."
	rewritten.Body = "The ceremony starts at noon and is streamed online for relatives abroad."
	if !Changed(Content(base), Content(rewritten)) {
		t.Errorf("rewritten record should count as changed, distance %d",
			Distance(Content(base), Content(rewritten)))
	}
}

func TestMakeShingles(t *testing.T) {
	tests := []struct {
		tokens []string
		n      int
		want   []string
	}{
		{[]string{"open", "day", "tours"}, 2, []string{"open_day", "day_tours"}},
		{[]string{"a", "b", "c", "d"}, 3, []string{"a_b_c", "b_c_d"}},
		{[]string{"a", "b"}, 3, nil},
	}
	for _, tt := range tests {
		got := makeShingles(tt.tokens, tt.n)
		if len(got) != len(tt.want) {
			t.Errorf("makeShingles(%v, %d) = %v, want %v", tt.tokens, tt.n, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("makeShingles(%v, %d)[%d] = %q, want %q", tt.tokens, tt.n, i, got[i], tt.want[i])
			}
		}
	}
}
