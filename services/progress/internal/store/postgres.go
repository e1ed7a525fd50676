package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProgressRepository is the production Postgres-backed implementation.
type PostgresProgressRepository struct {
	db *pgxpool.Pool
}

func NewPostgresProgressRepository(db *pgxpool.Pool) *PostgresProgressRepository {
	return &PostgresProgressRepository{db: db}
}

// upsertSQL merges a write into course_module_progress. Percent and watch
// time take GREATEST so late or replayed writes never regress completion.
// Position always follows the incoming write (the client resolved freshness
// before submitting). completed_at is sticky once set. The prev CTE reads
// the pre-write row so the query can report first-time completion.
const upsertSQL = `
WITH prev AS (
  SELECT completed_at FROM course_module_progress
  WHERE user_id = $1 AND course_id = $2 AND module_index = $3
), up AS (
  INSERT INTO course_module_progress AS p
    (user_id, course_id, module_index, module_kind, percent, watch_time_seconds,
     last_position_seconds, completed_at, last_watched_at, updated_at)
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
  ON CONFLICT (user_id, course_id, module_index)
  DO UPDATE SET
    module_kind           = EXCLUDED.module_kind,
    percent               = GREATEST(p.percent, EXCLUDED.percent),
    watch_time_seconds    = GREATEST(p.watch_time_seconds, EXCLUDED.watch_time_seconds),
    last_position_seconds = EXCLUDED.last_position_seconds,
    completed_at          = COALESCE(p.completed_at, EXCLUDED.completed_at),
    last_watched_at       = EXCLUDED.last_watched_at,
    updated_at            = EXCLUDED.updated_at
  RETURNING percent, watch_time_seconds, last_position_seconds, completed_at, last_watched_at, updated_at
)
SELECT up.percent, up.watch_time_seconds, up.last_position_seconds,
       up.completed_at, up.last_watched_at, up.updated_at,
       up.completed_at IS NOT NULL
         AND NOT EXISTS (SELECT 1 FROM prev WHERE prev.completed_at IS NOT NULL)
FROM up`

func (r *PostgresProgressRepository) Upsert(ctx context.Context, rec Record) (Record, bool, error) {
	out, newly, err := applyUpsert(ctx, r.db, rec)
	if err != nil {
		return Record{}, false, fmt.Errorf("upsert progress: %w", err)
	}
	return out, newly, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the JetStream
// consumer can reuse the same merge inside its batch transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ApplyUpsertTx runs the progress merge inside an existing transaction.
func ApplyUpsertTx(ctx context.Context, tx pgx.Tx, rec Record) (Record, bool, error) {
	return applyUpsert(ctx, tx, rec)
}

func applyUpsert(ctx context.Context, q querier, rec Record) (Record, bool, error) {
	now := time.Now().UTC()
	var completedAt *time.Time
	if IsComplete(rec.ModuleKind, rec.Percent) {
		completedAt = &now
	}

	out := Record{
		UserID:      rec.UserID,
		CourseID:    rec.CourseID,
		ModuleIndex: rec.ModuleIndex,
		ModuleKind:  rec.ModuleKind,
	}
	var newlyCompleted bool
	err := q.QueryRow(ctx, upsertSQL,
		rec.UserID, rec.CourseID, rec.ModuleIndex, rec.ModuleKind,
		rec.Percent, rec.WatchTimeSeconds, rec.LastPositionSeconds,
		completedAt, now,
	).Scan(&out.Percent, &out.WatchTimeSeconds, &out.LastPositionSeconds,
		&out.CompletedAt, &out.LastWatchedAt, &out.UpdatedAt, &newlyCompleted)
	if err != nil {
		return Record{}, false, err
	}
	return out, newlyCompleted, nil
}

func (r *PostgresProgressRepository) ListCourse(ctx context.Context, userID, courseID string) ([]Record, error) {
	q := `SELECT module_index, module_kind, percent, watch_time_seconds, last_position_seconds,
	             completed_at, last_watched_at, updated_at
	      FROM course_module_progress
	      WHERE user_id = $1 AND course_id = $2
	      ORDER BY module_index`
	rows, err := r.db.Query(ctx, q, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec := Record{UserID: userID, CourseID: courseID}
		if err := rows.Scan(&rec.ModuleIndex, &rec.ModuleKind, &rec.Percent, &rec.WatchTimeSeconds,
			&rec.LastPositionSeconds, &rec.CompletedAt, &rec.LastWatchedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresProgressRepository) GetModule(ctx context.Context, userID, courseID string, moduleIndex int) (Record, error) {
	q := `SELECT module_kind, percent, watch_time_seconds, last_position_seconds,
	             completed_at, last_watched_at, updated_at
	      FROM course_module_progress
	      WHERE user_id = $1 AND course_id = $2 AND module_index = $3`
	rec := Record{UserID: userID, CourseID: courseID, ModuleIndex: moduleIndex}
	err := r.db.QueryRow(ctx, q, userID, courseID, moduleIndex).
		Scan(&rec.ModuleKind, &rec.Percent, &rec.WatchTimeSeconds, &rec.LastPositionSeconds,
			&rec.CompletedAt, &rec.LastWatchedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get progress: %w", err)
	}
	return rec, nil
}

func (r *PostgresProgressRepository) CourseRollup(ctx context.Context, courseID string) ([]UserRollup, error) {
	q := `SELECT e.user_id,
	             COUNT(*) FILTER (WHERE p.completed_at IS NOT NULL),
	             (SELECT COUNT(*) FROM course_modules m WHERE m.course_id = $1),
	             COALESCE(MAX(p.last_watched_at), e.enrolled_at)
	      FROM enrollments e
	      LEFT JOIN course_module_progress p
	        ON p.user_id = e.user_id AND p.course_id = e.course_id
	      WHERE e.course_id = $1
	      GROUP BY e.user_id, e.enrolled_at
	      ORDER BY e.user_id`
	rows, err := r.db.Query(ctx, q, courseID)
	if err != nil {
		return nil, fmt.Errorf("course rollup: %w", err)
	}
	defer rows.Close()

	var out []UserRollup
	for rows.Next() {
		var u UserRollup
		if err := rows.Scan(&u.UserID, &u.CompletedModules, &u.TotalModules, &u.LastWatchedAt); err != nil {
			return nil, fmt.Errorf("scan rollup: %w", err)
		}
		if u.TotalModules > 0 {
			u.ProgressPercent = int(float64(u.CompletedModules) / float64(u.TotalModules) * 100)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// PostgresCourseRepository serves course metadata from the courses tables.
type PostgresCourseRepository struct {
	db *pgxpool.Pool
}

func NewPostgresCourseRepository(db *pgxpool.Pool) *PostgresCourseRepository {
	return &PostgresCourseRepository{db: db}
}

func (r *PostgresCourseRepository) GetCourse(ctx context.Context, courseID string) (Course, error) {
	var c Course
	err := r.db.QueryRow(ctx, `SELECT id, title FROM courses WHERE id = $1`, courseID).
		Scan(&c.ID, &c.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return Course{}, ErrNotFound
	}
	if err != nil {
		return Course{}, fmt.Errorf("get course: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT module_index, kind, title, content_url, duration_seconds
	                              FROM course_modules WHERE course_id = $1 ORDER BY module_index`, courseID)
	if err != nil {
		return Course{}, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m := Module{CourseID: courseID}
		if err := rows.Scan(&m.ModuleIndex, &m.Kind, &m.Title, &m.ContentURL, &m.DurationSeconds); err != nil {
			return Course{}, fmt.Errorf("scan module: %w", err)
		}
		c.Modules = append(c.Modules, m)
	}
	return c, rows.Err()
}

func (r *PostgresCourseRepository) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM enrollments WHERE user_id = $1 AND course_id = $2`,
		userID, courseID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("enrollment check: %w", err)
	}
	return n > 0, nil
}
