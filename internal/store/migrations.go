package store

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id           TEXT PRIMARY KEY,
    source_id    TEXT NOT NULL,
    tags         TEXT NOT NULL DEFAULT '[]',
    timestamp    DATETIME NOT NULL,
    repost_of_id TEXT NOT NULL DEFAULT '',
    engaged      BOOLEAN NOT NULL DEFAULT 0,
    dropped      BOOLEAN NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_source ON events(source_id);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);

CREATE TABLE IF NOT EXISTS follows (
    id            TEXT PRIMARY KEY,
    handle        TEXT NOT NULL DEFAULT '',
    feed_url      TEXT NOT NULL DEFAULT '',
    weight        REAL NOT NULL DEFAULT 1.0,
    topics        TEXT NOT NULL DEFAULT '[]',
    tracked_since DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS current_snapshot (
    slot         INTEGER PRIMARY KEY CHECK (slot = 1),
    id           TEXT NOT NULL,
    quota_number REAL NOT NULL,
    computed_at  DATETIME NOT NULL,
    body         TEXT NOT NULL
);
`
