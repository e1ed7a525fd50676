package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/studyhub/internal/platform/api"
	"github.com/example/studyhub/internal/platform/auth"
	"github.com/example/studyhub/internal/platform/httpserver"
	"github.com/example/studyhub/internal/platform/signing"
	"github.com/example/studyhub/services/progress/internal/store"
)

type moduleItem struct {
	Order           int     `json:"order"`
	Kind            string  `json:"kind"`
	Title           string  `json:"title"`
	ContentURL      string  `json:"content_url"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type courseResponse struct {
	Course struct {
		ID      string       `json:"id"`
		Title   string       `json:"title"`
		Modules []moduleItem `json:"modules"`
	} `json:"course"`
}

// CourseSigning carries the content URL signer. A nil signer or empty
// gateway degrades to raw content URLs, used in local development.
type CourseSigning struct {
	Signer  *signing.Signer
	Gateway string
	TTL     time.Duration
}

// GetCourse handles GET /v1/courses/{course_id}. Content URLs are replaced
// with expiring signed gateway links bound to the requesting user.
func GetCourse(courses store.CourseRepository, sign CourseSigning, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, _ := auth.UserIDFromContext(r.Context())
		courseID := chi.URLParam(r, "course_id")

		course, err := courses.GetCourse(r.Context(), courseID)
		if errors.Is(err, store.ErrNotFound) {
			api.NotFound(w, "COURSE_NOT_FOUND", "Unknown course", rid)
			return
		}
		if err != nil {
			log.Error("get course", zap.Error(err), zap.String("request_id", rid))
			api.Internal(w, rid)
			return
		}

		var resp courseResponse
		resp.Course.ID = course.ID
		resp.Course.Title = course.Title
		resp.Course.Modules = make([]moduleItem, 0, len(course.Modules))
		for _, m := range course.Modules {
			item := moduleItem{
				Order:           m.ModuleIndex,
				Kind:            m.Kind,
				Title:           m.Title,
				ContentURL:      m.ContentURL,
				DurationSeconds: m.DurationSeconds,
			}
			if sign.Signer != nil && sign.Gateway != "" {
				signed := sign.Signer.Sign(m.ContentURL, uid, time.Now().Add(sign.TTL))
				if u, err := signing.BuildSignedURL(sign.Gateway, signed); err == nil {
					item.ContentURL = u
				} else {
					log.Warn("sign content url", zap.Error(err), zap.String("course_id", courseID))
				}
			}
			resp.Course.Modules = append(resp.Course.Modules, item)
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}
