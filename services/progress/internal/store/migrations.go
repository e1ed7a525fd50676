package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS courses (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS course_modules (
    course_id        TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    module_index     INTEGER NOT NULL,
    kind             TEXT NOT NULL,
    title            TEXT NOT NULL,
    content_url      TEXT NOT NULL,
    duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (course_id, module_index),
    CONSTRAINT valid_module_kind CHECK (kind IN ('video', 'audio', 'document')),
    CONSTRAINT valid_module_index CHECK (module_index >= 0)
);

CREATE TABLE IF NOT EXISTS enrollments (
    user_id     TEXT NOT NULL,
    course_id   TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    enrolled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, course_id)
);

CREATE TABLE IF NOT EXISTS course_module_progress (
    user_id               TEXT NOT NULL,
    course_id             TEXT NOT NULL,
    module_index          INTEGER NOT NULL,
    module_kind           TEXT NOT NULL,
    percent               INTEGER NOT NULL DEFAULT 0,
    watch_time_seconds    DOUBLE PRECISION NOT NULL DEFAULT 0,
    last_position_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    completed_at          TIMESTAMPTZ,
    last_watched_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, course_id, module_index),
    CONSTRAINT valid_percent CHECK (percent >= 0 AND percent <= 100)
);

CREATE INDEX IF NOT EXISTS idx_progress_course ON course_module_progress(course_id, user_id);
CREATE INDEX IF NOT EXISTS idx_progress_completed ON course_module_progress(course_id) WHERE completed_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS processed_events (
    event_id   TEXT PRIMARY KEY,
    subject    TEXT NOT NULL,
    created_at TEXT,
    payload    JSONB
);
`

// Migrate applies the schema. Statements are idempotent so the service can
// run it unconditionally at startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
