package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryProgressRepository is the in-memory implementation used by tests
// and local development without Postgres.
type MemoryProgressRepository struct {
	mu   sync.RWMutex
	recs map[string]Record
	// enrollees lets CourseRollup report users with zero progress rows.
	enrollees map[string][]string
	modules   map[string]int
}

func NewMemoryProgressRepository() *MemoryProgressRepository {
	return &MemoryProgressRepository{
		recs:      map[string]Record{},
		enrollees: map[string][]string{},
		modules:   map[string]int{},
	}
}

func progressKey(userID, courseID string, moduleIndex int) string {
	return fmt.Sprintf("%s|%s|%d", userID, courseID, moduleIndex)
}

// SetCourseShape registers the enrolled users and module count used by
// CourseRollup. Test helper.
func (r *MemoryProgressRepository) SetCourseShape(courseID string, users []string, moduleCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrollees[courseID] = append([]string(nil), users...)
	r.modules[courseID] = moduleCount
}

func (r *MemoryProgressRepository) Upsert(ctx context.Context, rec Record) (Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	key := progressKey(rec.UserID, rec.CourseID, rec.ModuleIndex)
	cur, ok := r.recs[key]
	if !ok {
		cur = Record{
			UserID:      rec.UserID,
			CourseID:    rec.CourseID,
			ModuleIndex: rec.ModuleIndex,
		}
	}

	wasComplete := cur.CompletedAt != nil

	cur.ModuleKind = rec.ModuleKind
	if rec.Percent > cur.Percent {
		cur.Percent = rec.Percent
	}
	if rec.WatchTimeSeconds > cur.WatchTimeSeconds {
		cur.WatchTimeSeconds = rec.WatchTimeSeconds
	}
	cur.LastPositionSeconds = rec.LastPositionSeconds
	if cur.CompletedAt == nil && IsComplete(rec.ModuleKind, rec.Percent) {
		t := now
		cur.CompletedAt = &t
	}
	cur.LastWatchedAt = now
	cur.UpdatedAt = now

	r.recs[key] = cur
	return cur, !wasComplete && cur.CompletedAt != nil, nil
}

func (r *MemoryProgressRepository) ListCourse(ctx context.Context, userID, courseID string) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Record
	for _, rec := range r.recs {
		if rec.UserID == userID && rec.CourseID == courseID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleIndex < out[j].ModuleIndex })
	return out, nil
}

func (r *MemoryProgressRepository) GetModule(ctx context.Context, userID, courseID string, moduleIndex int) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.recs[progressKey(userID, courseID, moduleIndex)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryProgressRepository) CourseRollup(ctx context.Context, courseID string) ([]UserRollup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := r.modules[courseID]
	var out []UserRollup
	for _, uid := range r.enrollees[courseID] {
		u := UserRollup{UserID: uid, TotalModules: total}
		for _, rec := range r.recs {
			if rec.UserID != uid || rec.CourseID != courseID {
				continue
			}
			if rec.CompletedAt != nil {
				u.CompletedModules++
			}
			if rec.LastWatchedAt.After(u.LastWatchedAt) {
				u.LastWatchedAt = rec.LastWatchedAt
			}
		}
		if total > 0 {
			u.ProgressPercent = int(float64(u.CompletedModules) / float64(total) * 100)
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// MemoryCourseRepository holds course metadata and enrollments in memory.
type MemoryCourseRepository struct {
	mu       sync.RWMutex
	courses  map[string]Course
	enrolled map[string]struct{}
}

func NewMemoryCourseRepository() *MemoryCourseRepository {
	return &MemoryCourseRepository{
		courses:  map[string]Course{},
		enrolled: map[string]struct{}{},
	}
}

func (r *MemoryCourseRepository) AddCourse(c Course) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.Slice(c.Modules, func(i, j int) bool { return c.Modules[i].ModuleIndex < c.Modules[j].ModuleIndex })
	r.courses[c.ID] = c
}

func (r *MemoryCourseRepository) Enroll(userID, courseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrolled[userID+"|"+courseID] = struct{}{}
}

func (r *MemoryCourseRepository) GetCourse(ctx context.Context, courseID string) (Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.courses[courseID]
	if !ok {
		return Course{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryCourseRepository) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.enrolled[userID+"|"+courseID]
	return ok, nil
}
