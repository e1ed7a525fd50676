package courseapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/example/studyhub/internal/player/progress"
)

// ListProgress implements progress.RemoteReader. Records the server does not
// know about are simply absent from the map.
func (c *Client) ListProgress(ctx context.Context, userID, courseID string) (map[int]progress.ProgressRecord, error) {
	u := c.BaseURL + "/v1/progress/" + url.PathEscape(userID) + "/" + url.PathEscape(courseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var resp listProgressResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	out := make(map[int]progress.ProgressRecord, len(resp.Progress))
	for _, p := range resp.Progress {
		out[p.ModuleIndex] = progress.ProgressRecord{
			Percent:             progress.ClampPercent(p.Percent),
			WatchTimeSeconds:    p.WatchTimeSeconds,
			LastPositionSeconds: p.LastPositionSeconds,
			LastUpdatedAt:       p.LastUpdatedAt,
		}
	}
	return out, nil
}

// GetModuleProgress fetches a single module record. ok is false when the
// server has never seen a write for this module.
func (c *Client) GetModuleProgress(ctx context.Context, userID, courseID string, moduleIndex int) (progress.ProgressRecord, bool, error) {
	u := c.BaseURL + "/v1/progress/" + url.PathEscape(userID) + "/" + url.PathEscape(courseID) + "/" + strconv.Itoa(moduleIndex)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return progress.ProgressRecord{}, false, err
	}

	var resp struct {
		Progress progressDTO `json:"progress"`
	}
	err = c.do(req, &resp)
	if err != nil {
		if isNotFound(err) {
			return progress.ProgressRecord{}, false, nil
		}
		return progress.ProgressRecord{}, false, err
	}
	return progress.ProgressRecord{
		Percent:             progress.ClampPercent(resp.Progress.Percent),
		WatchTimeSeconds:    resp.Progress.WatchTimeSeconds,
		LastPositionSeconds: resp.Progress.LastPositionSeconds,
		LastUpdatedAt:       resp.Progress.LastUpdatedAt,
	}, true, nil
}

// Submit posts one progress sample. Implements the tracker's RemoteWriter.
func (c *Client) Submit(ctx context.Context, s progress.Sample) error {
	body, err := json.Marshal(submitRequest{
		UserID:              s.UserID,
		CourseID:            s.CourseID,
		ModuleIndex:         s.ModuleIndex,
		ModuleKind:          string(s.Kind),
		Percent:             s.Percent,
		WatchTimeSeconds:    s.WatchTimeSeconds,
		LastPositionSeconds: s.LastPositionSeconds,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/progress", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}
