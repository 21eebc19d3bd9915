// Package store persists sources, scraped content and processing logs in
// SQLite.
//
// Usage:
//
//	st, err := store.Open("data/uniassist.db")
//	defer st.Close()
//	res, err := st.UpsertContent(ctx, "campus-news", record, time.Now())
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/use-agent/uniassist/models"
	"github.com/use-agent/uniassist/simhash"
)

// ErrNotFound is returned when a source, content row or log does not exist.
var ErrNotFound = errors.New("store: not found")

// Fixed-width layouts so text columns sort chronologically.
const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if memory {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- sources ---

// SyncSources inserts or updates every source by ID. Sources missing from
// the list are left untouched.
func (s *Store) SyncSources(ctx context.Context, sources []models.Source) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, src := range sources {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sources (id, name, url, kind, university, max_items, path_pattern, active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				url = excluded.url,
				kind = excluded.kind,
				university = excluded.university,
				max_items = excluded.max_items,
				path_pattern = excluded.path_pattern,
				active = excluded.active`,
			src.ID, src.Name, src.URL, string(src.Kind), src.University,
			src.MaxItems, src.PathPattern, boolInt(src.Active))
		if err != nil {
			return fmt.Errorf("store: sync source %s: %w", src.ID, err)
		}
	}
	return tx.Commit()
}

const sourceColumns = `id, name, url, kind, university, max_items, path_pattern, active, last_scraped`

// ListSources returns sources ordered by name. activeOnly skips inactive ones.
func (s *Store) ListSources(ctx context.Context, activeOnly bool) ([]models.Source, error) {
	q := `SELECT ` + sourceColumns + ` FROM sources`
	if activeOnly {
		q += ` WHERE active = 1`
	}
	q += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list sources: %w", err)
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// GetSource returns one source by ID.
func (s *Store) GetSource(ctx context.Context, id string) (models.Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Source{}, ErrNotFound
	}
	return src, err
}

// MarkScraped records a successful refresh of the source.
func (s *Store) MarkScraped(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sources SET last_scraped = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("store: mark scraped: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(sc scanner) (models.Source, error) {
	var (
		src         models.Source
		kind        string
		active      int
		lastScraped sql.NullString
	)
	if err := sc.Scan(&src.ID, &src.Name, &src.URL, &kind, &src.University,
		&src.MaxItems, &src.PathPattern, &active, &lastScraped); err != nil {
		return models.Source{}, err
	}
	src.Kind = models.ContentKind(kind)
	src.Active = active == 1
	src.LastScraped = parseTime(lastScraped)
	return src, nil
}

// --- contents ---

// UpsertResult reports what UpsertContent did.
type UpsertResult struct {
	ID      int64
	Created bool
	// Changed is true when an existing row's fingerprint moved by more
	// than simhash.ChangeThreshold.
	Changed bool
}

// UpsertContent creates or updates the row keyed on (sourceID, rec.URL).
// An update overwrites every scraped field and keeps scraped_at.
func (s *Store) UpsertContent(ctx context.Context, sourceID string, rec models.ContentRecord, now time.Time) (UpsertResult, error) {
	if rec.URL == "" {
		return UpsertResult{}, fmt.Errorf("store: upsert content: empty url")
	}
	fp := simhash.Content(rec)
	stamp := now.UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, err
	}
	defer tx.Rollback()

	var (
		id     int64
		prevFP int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, fingerprint FROM contents WHERE source_id = ? AND url = ?`,
		sourceID, rec.URL).Scan(&id, &prevFP)

	var res UpsertResult
	switch {
	case errors.Is(err, sql.ErrNoRows):
		r, err := tx.ExecContext(ctx, `
			INSERT INTO contents (source_id, url, title, summary, body, body_html,
				published_date, image_url, kind, location, fingerprint, scraped_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sourceID, rec.URL, rec.Title, rec.Summary, rec.Body, rec.BodyHTML,
			formatDate(rec.PublishedDate), rec.ImageURL, string(rec.Kind), rec.Location,
			int64(fp), stamp, stamp)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("store: insert content: %w", err)
		}
		id, _ = r.LastInsertId()
		res = UpsertResult{ID: id, Created: true}
	case err != nil:
		return UpsertResult{}, fmt.Errorf("store: lookup content: %w", err)
	default:
		_, err := tx.ExecContext(ctx, `
			UPDATE contents SET title = ?, summary = ?, body = ?, body_html = ?,
				published_date = ?, image_url = ?, kind = ?, location = ?,
				fingerprint = ?, updated_at = ?
			WHERE id = ?`,
			rec.Title, rec.Summary, rec.Body, rec.BodyHTML,
			formatDate(rec.PublishedDate), rec.ImageURL, string(rec.Kind), rec.Location,
			int64(fp), stamp, id)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("store: update content: %w", err)
		}
		res = UpsertResult{ID: id, Changed: simhash.Changed(uint64(prevFP), fp)}
	}
	if err := tx.Commit(); err != nil {
		return UpsertResult{}, err
	}
	return res, nil
}

const contentColumns = `c.id, c.source_id, s.name, s.university, c.url, c.title, c.summary,
	c.body, c.body_html, c.published_date, c.image_url, c.kind, c.location,
	c.fingerprint, c.scraped_at, c.updated_at`

// GetContent returns one content row by ID.
func (s *Store) GetContent(ctx context.Context, id int64) (models.StoredContent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contentColumns+`
		FROM contents c JOIN sources s ON s.id = c.source_id
		WHERE c.id = ?`, id)
	c, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredContent{}, ErrNotFound
	}
	return c, err
}

// ListContents returns content matching f, newest published first with
// undated rows last. A zero Limit returns every match.
func (s *Store) ListContents(ctx context.Context, f models.ContentFilter) ([]models.StoredContent, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "c.kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.SourceID != "" {
		where = append(where, "c.source_id = ?")
		args = append(args, f.SourceID)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		where = append(where, `(c.title LIKE ? ESCAPE '\' OR c.summary LIKE ? ESCAPE '\' OR c.body LIKE ? ESCAPE '\')`)
		like := "%" + escapeLike(q) + "%"
		args = append(args, like, like, like)
	}
	if f.DateFrom != nil {
		where = append(where, "c.published_date >= ?")
		args = append(args, f.DateFrom.Format(dateLayout))
	}
	if f.DateTo != nil {
		where = append(where, "c.published_date <= ?")
		args = append(args, f.DateTo.Format(dateLayout))
	}

	q := `SELECT ` + contentColumns + ` FROM contents c JOIN sources s ON s.id = c.source_id`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY c.published_date IS NULL, c.published_date DESC, c.id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list contents: %w", err)
	}
	defer rows.Close()

	var out []models.StoredContent
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanContent(sc scanner) (models.StoredContent, error) {
	var (
		c         models.StoredContent
		published sql.NullString
		kind      string
		fp        int64
		scraped   string
		updated   string
	)
	err := sc.Scan(&c.ID, &c.SourceID, &c.SourceName, &c.University, &c.URL, &c.Title,
		&c.Summary, &c.Body, &c.BodyHTML, &published, &c.ImageURL, &kind, &c.Location,
		&fp, &scraped, &updated)
	if err != nil {
		return models.StoredContent{}, err
	}
	c.Kind = models.ContentKind(kind)
	c.Fingerprint = uint64(fp)
	if published.Valid {
		if t, err := time.Parse(dateLayout, published.String); err == nil {
			c.PublishedDate = &t
		}
	}
	c.ScrapedAt, _ = time.Parse(timeLayout, scraped)
	c.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return c, nil
}

// --- processing logs ---

// CreateLog starts a processing log for sourceID.
func (s *Store) CreateLog(ctx context.Context, sourceID string, start time.Time) (*models.ProcessingLog, error) {
	l := &models.ProcessingLog{
		ID:        uuid.NewString(),
		SourceID:  sourceID,
		StartTime: start.UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processing_logs (id, source_id, start_time) VALUES (?, ?, ?)`,
		l.ID, l.SourceID, l.StartTime.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("store: create log: %w", err)
	}
	return l, nil
}

// CompleteLog writes the end state of l. EndTime must be set by the caller.
func (s *Store) CompleteLog(ctx context.Context, l *models.ProcessingLog) error {
	var end any
	if l.EndTime != nil {
		end = l.EndTime.UTC().Format(timeLayout)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_logs SET end_time = ?, success = ?, processed = ?,
			added = ?, updated = ?, changed = ?, error_message = ?
		WHERE id = ?`,
		end, boolInt(l.Success), l.Processed, l.Added, l.Updated, l.Changed,
		l.ErrorMessage, l.ID)
	if err != nil {
		return fmt.Errorf("store: complete log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLogs returns the most recent logs first. An empty sourceID lists all
// sources; a zero limit returns every log.
func (s *Store) ListLogs(ctx context.Context, sourceID string, limit int) ([]models.ProcessingLog, error) {
	q := `SELECT id, source_id, start_time, end_time, success, processed, added,
		updated, changed, error_message FROM processing_logs`
	var args []any
	if sourceID != "" {
		q += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}
	q += ` ORDER BY start_time DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list logs: %w", err)
	}
	defer rows.Close()

	var out []models.ProcessingLog
	for rows.Next() {
		var (
			l       models.ProcessingLog
			start   string
			end     sql.NullString
			success int
		)
		if err := rows.Scan(&l.ID, &l.SourceID, &start, &end, &success, &l.Processed,
			&l.Added, &l.Updated, &l.Changed, &l.ErrorMessage); err != nil {
			return nil, err
		}
		l.StartTime, _ = time.Parse(timeLayout, start)
		l.EndTime = parseTime(end)
		l.Success = success == 1
		out = append(out, l)
	}
	return out, rows.Err()
}

// --- helpers ---

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(dateLayout)
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
