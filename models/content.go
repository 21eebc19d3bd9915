package models

import (
	"fmt"
	"strings"
	"time"
)

// ContentKind determines which extraction rules and storage bucket apply.
type ContentKind string

const (
	KindNews  ContentKind = "news"
	KindEvent ContentKind = "event"
)

// ParseKind accepts "news", "event" or "events" in any case.
func ParseKind(s string) (ContentKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "news":
		return KindNews, nil
	case "event", "events":
		return KindEvent, nil
	default:
		return "", fmt.Errorf("unknown content kind %q", s)
	}
}

// ContentRecord is a piece of scraped information produced by one scrape
// pass. URL is always absolute.
type ContentRecord struct {
	Title         string      `json:"title"`
	URL           string      `json:"url"`
	Summary       string      `json:"summary"`
	Body          string      `json:"body"`
	BodyHTML      string      `json:"body_html,omitempty"`
	PublishedDate *time.Time  `json:"published_date,omitempty"`
	ImageURL      string      `json:"image_url,omitempty"`
	Kind          ContentKind `json:"content_kind"`
	Location      string      `json:"location,omitempty"`
}

// StoredContent is a ContentRecord as persisted by the content store,
// keyed on (SourceID, URL).
type StoredContent struct {
	ContentRecord
	ID          int64     `json:"id"`
	SourceID    string    `json:"source_id"`
	SourceName  string    `json:"source_name"`
	University  string    `json:"university,omitempty"`
	Fingerprint uint64    `json:"-"`
	ScrapedAt   time.Time `json:"scraped_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Source is a listing page to scrape periodically.
type Source struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	URL         string      `json:"url" yaml:"url"`
	Kind        ContentKind `json:"content_kind" yaml:"kind"`
	University  string      `json:"university" yaml:"university"`
	MaxItems    int         `json:"max_items" yaml:"max_items"`
	PathPattern string      `json:"path_pattern,omitempty" yaml:"path_pattern"`
	Active      bool        `json:"active" yaml:"active"`
	LastScraped *time.Time  `json:"last_scraped,omitempty" yaml:"-"`
}

// ProcessingLog records one refresh run of a source.
type ProcessingLog struct {
	ID           string     `json:"id"`
	SourceID     string     `json:"source_id"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Success      bool       `json:"success"`
	Processed    int        `json:"items_processed"`
	Added        int        `json:"items_added"`
	Updated      int        `json:"items_updated"`
	Changed      int        `json:"items_changed"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// ContentFilter narrows content listings. Zero values mean "no filter".
type ContentFilter struct {
	Kind     ContentKind
	SourceID string
	Search   string
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
}
