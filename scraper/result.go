package scraper

import "github.com/use-agent/uniassist/models"

// Result is the outcome of one listing scrape. Err is set only when the
// whole batch could not run (no browser engine, listing page unreachable);
// per-item problems are logged and the item is skipped, so an empty Items
// with a nil Err means the page simply had nothing usable.
type Result struct {
	Items []models.ContentRecord
	Err   error
}

// OK reports whether the scrape ran.
func (r Result) OK() bool { return r.Err == nil }
