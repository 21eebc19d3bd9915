// Package simhash fingerprints scraped content so a refresh can tell a
// rewritten article from one that was merely re-saved.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"

	"github.com/use-agent/uniassist/models"
)

// ChangeThreshold is the Hamming distance above which two fingerprints
// count as different content.
const ChangeThreshold = 3

// Fingerprint computes a 64-bit SimHash of text. Features are the
// lower-cased words plus word bigrams, each hashed with FNV-64a.
func Fingerprint(text string) uint64 {
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}

	var vector [64]int
	add := func(feature string) {
		h := fnv.New64a()
		h.Write([]byte(feature))
		hash := h.Sum64()
		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}
	for _, w := range words {
		add(w)
	}
	for _, s := range makeShingles(words, 2) {
		add(s)
	}

	var fingerprint uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fingerprint |= 1 << uint(i)
		}
	}
	return fingerprint
}

// Content fingerprints the parts of a record a reader would notice
// changing: title, summary, body, date and location.
func Content(r models.ContentRecord) uint64 {
	var b strings.Builder
	b.WriteString(r.Title)
	b.WriteByte(' ')
	b.WriteString(r.Summary)
	b.WriteByte(' ')
	b.WriteString(r.Body)
	if r.PublishedDate != nil {
		b.WriteByte(' ')
		b.WriteString(r.PublishedDate.Format("2006-01-02"))
	}
	if r.Location != "" {
		b.WriteByte(' ')
		b.WriteString(r.Location)
	}
	return Fingerprint(b.String())
}

// Distance returns the Hamming distance between two SimHash fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar returns true if the Hamming distance between two fingerprints
// is less than or equal to the threshold.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// Changed reports whether prev and next differ by more than ChangeThreshold.
func Changed(prev, next uint64) bool {
	return !Similar(prev, next, ChangeThreshold)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// makeShingles creates n-gram shingles from a slice of tokens.
func makeShingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}

	shingles := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		shingles = append(shingles, strings.Join(tokens[i:i+n], "_"))
	}
	return shingles
}
