// Package api is a thin client for the task tracker REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("HTTP %s", e.Status)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client calls the REST API. The zero HTTP client gets a 10s timeout.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// New returns a client for baseURL authenticating with apiKey.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Projects lists projects.
func (c *Client) Projects(ctx context.Context, limit, offset int) (Page[Project], error) {
	var p Page[Project]
	err := c.getJSON(ctx, "/api/projects", pageQuery(limit, offset), &p)
	return p, err
}

// Project fetches one project by name.
func (c *Client) Project(ctx context.Context, name string) (Project, error) {
	var p Project
	err := c.getJSON(ctx, "/api/projects/"+url.PathEscape(name), nil, &p)
	return p, err
}

// Tasks lists tasks across projects.
func (c *Client) Tasks(ctx context.Context, f TaskFilter) (Page[Task], error) {
	q := pageQuery(f.Limit, f.Offset)
	setIf(q, "project_name", f.Project)
	setIf(q, "status", f.Status)

	var p Page[Task]
	err := c.getJSON(ctx, "/api/tasks", q, &p)
	return p, err
}

// ProjectTasks lists the tasks of one project.
func (c *Client) ProjectTasks(ctx context.Context, project, status string, limit, offset int) (Page[Task], error) {
	q := pageQuery(limit, offset)
	setIf(q, "status", status)

	var p Page[Task]
	err := c.getJSON(ctx, "/api/projects/"+url.PathEscape(project)+"/tasks", q, &p)
	return p, err
}

// SearchTasks finds tasks by title and agent name.
func (c *Client) SearchTasks(ctx context.Context, taskName, agent string, limit, offset int) (Page[Task], error) {
	q := pageQuery(limit, offset)
	setIf(q, "task_name", taskName)
	setIf(q, "agent", agent)

	var p Page[Task]
	err := c.getJSON(ctx, "/api/tasks/search", q, &p)
	return p, err
}

// ProjectStats returns per-project aggregates. The server does not fix the
// shape, so it is returned as decoded JSON.
func (c *Client) ProjectStats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.getJSON(ctx, "/api/stats/projects", nil, &out)
	return out, err
}

// TaskStats returns task aggregates.
func (c *Client) TaskStats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.getJSON(ctx, "/api/stats/tasks", nil, &out)
	return out, err
}

// Settings lists the caller's settings.
func (c *Client) Settings(ctx context.Context) ([]Setting, error) {
	var out []Setting
	err := c.getJSON(ctx, "/api/settings", nil, &out)
	return out, err
}

// UpdateSetting creates or replaces one setting.
func (c *Client) UpdateSetting(ctx context.Context, key string, value any, description string) (Setting, error) {
	body := settingUpdate{Key: key, Value: value, Description: description}
	var out Setting
	err := c.sendJSON(ctx, http.MethodPut, "/api/settings", body, &out)
	return out, err
}

// Health checks the server.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.getJSON(ctx, "/health", nil, &h)
	return h, err
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, dst any) error {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, dst)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body, dst any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dst)
}

func (c *Client) do(req *http.Request, dst any) error {
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, dst)
}

// decodeJSON decodes a JSON response body into dst. It checks the status
// code and returns a *StatusError carrying the body for non-2xx responses.
func decodeJSON(resp *http.Response, dst any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   strings.TrimSpace(string(b)),
		}
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s response: %w", resp.Request.URL.Path, err)
	}
	return nil
}

func pageQuery(limit, offset int) url.Values {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	return url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
