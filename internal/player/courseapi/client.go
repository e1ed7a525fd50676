// Package courseapi is the player-side client for the remote progress,
// course-metadata and enrollment APIs. The remote store is the durable
// source of truth across sessions and devices; the player never blocks on
// it for rendering.
package courseapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL    string
	Token      string // bearer token for the current user
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Method string
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("progress api: %s %s: status %d", e.Method, e.Path, e.Code)
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

type progressDTO struct {
	ModuleIndex         int       `json:"module_index"`
	ModuleKind          string    `json:"module_kind"`
	Percent             int       `json:"percent"`
	WatchTimeSeconds    float64   `json:"watch_time_seconds"`
	LastPositionSeconds float64   `json:"last_position_seconds"`
	LastUpdatedAt       time.Time `json:"last_updated_at"`
}

type listProgressResponse struct {
	Progress []progressDTO `json:"progress"`
}

type moduleDTO struct {
	Order           int     `json:"order"`
	Kind            string  `json:"kind"`
	Title           string  `json:"title"`
	ContentURL      string  `json:"content_url"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type courseResponse struct {
	Course struct {
		ID      string      `json:"id"`
		Title   string      `json:"title"`
		Modules []moduleDTO `json:"modules"`
	} `json:"course"`
}

type enrollmentResponse struct {
	Enrolled bool `json:"enrolled"`
}

type submitRequest struct {
	UserID              string  `json:"user_id"`
	CourseID            string  `json:"course_id"`
	ModuleIndex         int     `json:"module_index"`
	ModuleKind          string  `json:"module_kind"`
	Percent             int     `json:"percent"`
	WatchTimeSeconds    float64 `json:"watch_time_seconds"`
	LastPositionSeconds float64 `json:"last_position_seconds"`
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Method: req.Method, Path: req.URL.Path}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
