package store

// Schema creates the source registry, the scraped content table keyed on
// (source_id, url) and the per-run processing log. Dates are ISO-8601 text
// so range filters compare lexicographically.
const Schema = `
CREATE TABLE IF NOT EXISTS sources (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    url          TEXT NOT NULL,
    kind         TEXT NOT NULL CHECK(kind IN ('news','event')),
    university   TEXT NOT NULL DEFAULT '',
    max_items    INTEGER NOT NULL DEFAULT 0,
    path_pattern TEXT NOT NULL DEFAULT '',
    active       INTEGER NOT NULL DEFAULT 1 CHECK(active IN (0, 1)),
    last_scraped TEXT
);

CREATE TABLE IF NOT EXISTS contents (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id      TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    url            TEXT NOT NULL,
    title          TEXT NOT NULL,
    summary        TEXT NOT NULL DEFAULT '',
    body           TEXT NOT NULL DEFAULT '',
    body_html      TEXT NOT NULL DEFAULT '',
    published_date TEXT,
    image_url      TEXT NOT NULL DEFAULT '',
    kind           TEXT NOT NULL CHECK(kind IN ('news','event')),
    location       TEXT NOT NULL DEFAULT '',
    fingerprint    INTEGER NOT NULL DEFAULT 0,
    scraped_at     TEXT NOT NULL,
    updated_at     TEXT NOT NULL,
    UNIQUE(source_id, url)
);

CREATE INDEX IF NOT EXISTS idx_contents_kind ON contents(kind);
CREATE INDEX IF NOT EXISTS idx_contents_published ON contents(published_date);

CREATE TABLE IF NOT EXISTS processing_logs (
    id            TEXT PRIMARY KEY,
    source_id     TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    start_time    TEXT NOT NULL,
    end_time      TEXT,
    success       INTEGER NOT NULL DEFAULT 0 CHECK(success IN (0, 1)),
    processed     INTEGER NOT NULL DEFAULT 0,
    added         INTEGER NOT NULL DEFAULT 0,
    updated       INTEGER NOT NULL DEFAULT 0,
    changed       INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_logs_source ON processing_logs(source_id, start_time);
`
