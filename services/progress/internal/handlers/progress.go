// Package handlers implements the progress service HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/studyhub/internal/platform/analytics"
	"github.com/example/studyhub/internal/platform/api"
	"github.com/example/studyhub/internal/platform/auth"
	"github.com/example/studyhub/internal/platform/httpserver"
	"github.com/example/studyhub/services/progress/internal/store"
)

type progressItem struct {
	ModuleIndex         int       `json:"module_index"`
	ModuleKind          string    `json:"module_kind"`
	Percent             int       `json:"percent"`
	WatchTimeSeconds    float64   `json:"watch_time_seconds"`
	LastPositionSeconds float64   `json:"last_position_seconds"`
	Completed           bool      `json:"completed"`
	LastUpdatedAt       time.Time `json:"last_updated_at"`
}

type listProgressResponse struct {
	Progress []progressItem `json:"progress"`
}

type submitProgressRequest struct {
	UserID              string  `json:"user_id"`
	CourseID            string  `json:"course_id"`
	ModuleIndex         int     `json:"module_index"`
	ModuleKind          string  `json:"module_kind"`
	Percent             int     `json:"percent"`
	WatchTimeSeconds    float64 `json:"watch_time_seconds"`
	LastPositionSeconds float64 `json:"last_position_seconds"`
}

func toItem(rec store.Record) progressItem {
	return progressItem{
		ModuleIndex:         rec.ModuleIndex,
		ModuleKind:          rec.ModuleKind,
		Percent:             rec.Percent,
		WatchTimeSeconds:    rec.WatchTimeSeconds,
		LastPositionSeconds: rec.LastPositionSeconds,
		Completed:           rec.CompletedAt != nil,
		LastUpdatedAt:       rec.UpdatedAt,
	}
}

// canReadUser allows the owner plus tutors and admins.
func canReadUser(r *http.Request, userID string) bool {
	uid, _ := auth.UserIDFromContext(r.Context())
	if uid == userID {
		return true
	}
	role, _ := auth.RoleFromContext(r.Context())
	return role == "tutor" || role == "admin"
}

// ListProgress handles GET /v1/progress/{user_id}/{course_id}.
func ListProgress(progress store.ProgressRepository, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID := chi.URLParam(r, "user_id")
		courseID := chi.URLParam(r, "course_id")
		if !canReadUser(r, userID) {
			api.Forbidden(w, "FORBIDDEN", "Cannot read another user's progress", rid)
			return
		}

		recs, err := progress.ListCourse(r.Context(), userID, courseID)
		if err != nil {
			log.Error("list progress", zap.Error(err), zap.String("request_id", rid))
			api.Internal(w, rid)
			return
		}

		resp := listProgressResponse{Progress: make([]progressItem, 0, len(recs))}
		for _, rec := range recs {
			resp.Progress = append(resp.Progress, toItem(rec))
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}

// GetModuleProgress handles GET /v1/progress/{user_id}/{course_id}/{module_index}.
func GetModuleProgress(progress store.ProgressRepository, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID := chi.URLParam(r, "user_id")
		courseID := chi.URLParam(r, "course_id")
		idx, err := strconv.Atoi(chi.URLParam(r, "module_index"))
		if err != nil || idx < 0 {
			api.BadRequest(w, "INVALID_MODULE_INDEX", "module_index must be a non-negative integer", rid, nil)
			return
		}
		if !canReadUser(r, userID) {
			api.Forbidden(w, "FORBIDDEN", "Cannot read another user's progress", rid)
			return
		}

		rec, err := progress.GetModule(r.Context(), userID, courseID, idx)
		if errors.Is(err, store.ErrNotFound) {
			api.NotFound(w, "PROGRESS_NOT_FOUND", "No progress recorded for this module", rid)
			return
		}
		if err != nil {
			log.Error("get progress", zap.Error(err), zap.String("request_id", rid))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, toItem(rec))
	}
}

// SubmitProgress handles POST /v1/progress. The write is a merge: stored
// percent and watch time never decrease, position follows this write.
func SubmitProgress(progress store.ProgressRepository, courses store.CourseRepository, events *analytics.Publisher, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}

		var req submitProgressRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		if req.UserID != uid {
			api.Forbidden(w, "FORBIDDEN", "Cannot write another user's progress", rid)
			return
		}
		rec, code, msg := validateSubmission(r, courses, req)
		if code != "" {
			api.BadRequest(w, code, msg, rid, nil)
			return
		}

		stored, newlyCompleted, err := progress.Upsert(r.Context(), rec)
		if err != nil {
			log.Error("upsert progress", zap.Error(err), zap.String("request_id", rid))
			api.Internal(w, rid)
			return
		}

		events.Publish(analytics.SubjectProgressWritten, "progress_written", uid, map[string]any{
			"course_id":    req.CourseID,
			"module_index": req.ModuleIndex,
			"percent":      stored.Percent,
		})
		if newlyCompleted {
			events.Publish(analytics.SubjectModuleCompleted, "module_completed", uid, map[string]any{
				"course_id":    req.CourseID,
				"module_index": req.ModuleIndex,
			})
		}

		api.WriteJSON(w, http.StatusOK, map[string]any{"progress": toItem(stored)})
	}
}

// validateSubmission checks the write against course metadata and normalizes
// it into a store record. A non-empty code means rejection.
func validateSubmission(r *http.Request, courses store.CourseRepository, req submitProgressRequest) (store.Record, string, string) {
	if strings.TrimSpace(req.CourseID) == "" {
		return store.Record{}, "INVALID_COURSE", "course_id is required"
	}
	switch req.ModuleKind {
	case store.KindVideo, store.KindAudio, store.KindDocument:
	default:
		return store.Record{}, "INVALID_MODULE_KIND", "module_kind must be video, audio, or document"
	}

	if req.ModuleIndex < 0 {
		return store.Record{}, "INVALID_MODULE_INDEX", "module_index must not be negative"
	}

	course, err := courses.GetCourse(r.Context(), req.CourseID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Record{}, "INVALID_COURSE", "Unknown course"
	}
	if err == nil && req.ModuleIndex >= len(course.Modules) {
		return store.Record{}, "INVALID_MODULE_INDEX", "Module does not exist in this course"
	}
	// On a metadata read failure the write is still accepted; progress
	// must not be lost because the courses table was briefly unreachable.

	rec := store.Record{
		UserID:              req.UserID,
		CourseID:            req.CourseID,
		ModuleIndex:         req.ModuleIndex,
		ModuleKind:          req.ModuleKind,
		Percent:             clampPercent(req.Percent),
		WatchTimeSeconds:    req.WatchTimeSeconds,
		LastPositionSeconds: req.LastPositionSeconds,
	}
	if rec.WatchTimeSeconds < 0 {
		rec.WatchTimeSeconds = 0
	}
	if rec.LastPositionSeconds < 0 || rec.ModuleKind == store.KindDocument {
		rec.LastPositionSeconds = 0
	}
	return rec, "", ""
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
