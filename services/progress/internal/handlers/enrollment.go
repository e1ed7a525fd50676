package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/studyhub/internal/platform/api"
	"github.com/example/studyhub/internal/platform/httpserver"
	"github.com/example/studyhub/services/progress/internal/store"
)

type enrollmentResponse struct {
	Enrolled bool `json:"enrolled"`
}

// GetEnrollment handles GET /v1/enrollments/{user_id}/{course_id}.
func GetEnrollment(courses store.CourseRepository, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID := chi.URLParam(r, "user_id")
		courseID := chi.URLParam(r, "course_id")
		if !canReadUser(r, userID) {
			api.Forbidden(w, "FORBIDDEN", "Cannot read another user's enrollment", rid)
			return
		}

		enrolled, err := courses.IsEnrolled(r.Context(), userID, courseID)
		if err != nil {
			log.Error("enrollment check", zap.Error(err), zap.String("request_id", rid))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, enrollmentResponse{Enrolled: enrolled})
	}
}
