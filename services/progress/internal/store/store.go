// Package store defines persistence for course module progress and the
// course metadata the progress API validates against.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record, course, or module does not exist.
var ErrNotFound = errors.New("store: not found")

// Module kinds accepted by the progress API.
const (
	KindVideo    = "video"
	KindAudio    = "audio"
	KindDocument = "document"
)

// completeThresholdPercent marks video and audio modules complete. Documents
// only complete at exactly 100.
const completeThresholdPercent = 90

// Record is one user's progress on one module of a course.
type Record struct {
	UserID              string
	CourseID            string
	ModuleIndex         int
	ModuleKind          string
	Percent             int
	WatchTimeSeconds    float64
	LastPositionSeconds float64
	CompletedAt         *time.Time
	LastWatchedAt       time.Time
	UpdatedAt           time.Time
}

// IsComplete applies the per-kind completion rule to a record.
func IsComplete(kind string, percent int) bool {
	if kind == KindDocument {
		return percent >= 100
	}
	return percent >= completeThresholdPercent
}

// Module is one entry of a course's ordered content list.
type Module struct {
	CourseID        string
	ModuleIndex     int
	Kind            string
	Title           string
	ContentURL      string
	DurationSeconds float64
}

// Course is the metadata the API serves and validates writes against.
type Course struct {
	ID      string
	Title   string
	Modules []Module
}

// UserRollup is one row of the per-course tutor report.
type UserRollup struct {
	UserID           string
	CompletedModules int
	TotalModules     int
	ProgressPercent  int
	LastWatchedAt    time.Time
}

// ProgressRepository persists module progress. Writes are merges, never
// overwrites: percent and watch time ratchet upward, position follows the
// latest write.
type ProgressRepository interface {
	// Upsert merges rec into the stored record and reports whether this
	// write completed the module for the first time.
	Upsert(ctx context.Context, rec Record) (Record, bool, error)
	// ListCourse returns every stored record for the user and course,
	// ordered by module index.
	ListCourse(ctx context.Context, userID, courseID string) ([]Record, error)
	// GetModule returns a single record or ErrNotFound.
	GetModule(ctx context.Context, userID, courseID string, moduleIndex int) (Record, error)
	// CourseRollup aggregates completion across all enrolled users.
	CourseRollup(ctx context.Context, courseID string) ([]UserRollup, error)
}

// CourseRepository serves course metadata and enrollment checks.
type CourseRepository interface {
	// GetCourse returns the course with its modules ordered by index,
	// or ErrNotFound.
	GetCourse(ctx context.Context, courseID string) (Course, error)
	IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
}
