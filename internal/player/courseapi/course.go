package courseapi

import (
	"context"
	"net/http"
	"net/url"
	"sort"

	"github.com/example/studyhub/internal/player/progress"
)

// Course is the course metadata slice the player needs: title plus the
// ordered module list.
type Course struct {
	ID      string
	Title   string
	Modules []progress.ModuleDescriptor
}

// GetCourse fetches course metadata. Modules are returned sorted by their
// authored order so the slice index is the module index everywhere else.
func (c *Client) GetCourse(ctx context.Context, courseID string) (Course, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/courses/"+url.PathEscape(courseID), nil)
	if err != nil {
		return Course{}, err
	}

	var resp courseResponse
	if err := c.do(req, &resp); err != nil {
		return Course{}, err
	}

	out := Course{ID: resp.Course.ID, Title: resp.Course.Title}
	for _, m := range resp.Course.Modules {
		out.Modules = append(out.Modules, progress.ModuleDescriptor{
			Order:        m.Order,
			Kind:         progress.ModuleKind(m.Kind),
			Title:        m.Title,
			ContentRef:   m.ContentURL,
			DurationHint: m.DurationSeconds,
		})
	}
	sort.Slice(out.Modules, func(i, j int) bool { return out.Modules[i].Order < out.Modules[j].Order })
	return out, nil
}

// IsEnrolled checks enrollment once before the player core engages.
func (c *Client) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	u := c.BaseURL + "/v1/enrollments/" + url.PathEscape(userID) + "/" + url.PathEscape(courseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}

	var resp enrollmentResponse
	if err := c.do(req, &resp); err != nil {
		return false, err
	}
	return resp.Enrolled, nil
}
