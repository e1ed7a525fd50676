package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/studyhub/internal/platform/api"
	"github.com/example/studyhub/internal/platform/httpserver"
	"github.com/example/studyhub/services/progress/internal/store"
)

type rollupItem struct {
	UserID           string    `json:"user_id"`
	CompletedModules int       `json:"completed_modules"`
	TotalModules     int       `json:"total_modules"`
	ProgressPercent  int       `json:"progress_percent"`
	LastWatchedAt    time.Time `json:"last_watched_at"`
}

type rollupResponse struct {
	CourseID string       `json:"course_id"`
	Users    []rollupItem `json:"users"`
}

// CourseRollup handles GET /v1/courses/{course_id}/rollup. Routed behind
// auth.RequireTutor.
func CourseRollup(progress store.ProgressRepository, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		courseID := chi.URLParam(r, "course_id")

		rows, err := progress.CourseRollup(r.Context(), courseID)
		if err != nil {
			log.Error("course rollup", zap.Error(err), zap.String("request_id", rid))
			api.Internal(w, rid)
			return
		}

		resp := rollupResponse{CourseID: courseID, Users: make([]rollupItem, 0, len(rows))}
		for _, u := range rows {
			resp.Users = append(resp.Users, rollupItem{
				UserID:           u.UserID,
				CompletedModules: u.CompletedModules,
				TotalModules:     u.TotalModules,
				ProgressPercent:  u.ProgressPercent,
				LastWatchedAt:    u.LastWatchedAt,
			})
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}
