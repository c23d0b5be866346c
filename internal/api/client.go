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
	"strings"
	"time"

	"slidecast/internal/controller"
	"slidecast/internal/jobs"
)

// Client talks to a running daemon over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is a non-2xx response decoded from the server.
type APIError struct {
	StatusCode int
	Body       ErrorResponse
}

func (e *APIError) Error() string {
	msg := e.Body.Error
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, msg)
}

// NewClient targets baseURL, which may be a bare host:port.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{baseURL: base, httpClient: httpClient}
}

// IngestParams carries optional processing overrides.
type IngestParams struct {
	OwnerID            string
	FileName           string
	DurationSeconds    float64
	Transition         string
	TransitionDuration float64
	UseNotesTiming     bool
	SkipHidden         bool
}

// Ingest uploads a deck as a raw body.
func (c *Client) Ingest(ctx context.Context, data []byte, params IngestParams) (controller.Result, error) {
	query := url.Values{}
	if params.FileName != "" {
		query.Set("name", params.FileName)
	}
	if params.DurationSeconds > 0 {
		query.Set("duration", fmt.Sprint(params.DurationSeconds))
	}
	if params.Transition != "" {
		query.Set("transition", params.Transition)
	}
	if params.TransitionDuration > 0 {
		query.Set("transitionDuration", fmt.Sprint(params.TransitionDuration))
	}
	if params.UseNotesTiming {
		query.Set("useNotesTiming", "true")
	}
	if params.SkipHidden {
		query.Set("skipHidden", "true")
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/ingest?"+query.Encode(), bytes.NewReader(data))
	if err != nil {
		return controller.Result{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(OwnerHeader, params.OwnerID)

	var result controller.Result
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("ingest request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return result, fmt.Errorf("decode ingest result: %w", err)
		}
		return result, nil
	}
	return result, decodeError(resp)
}

// Submit requests a render.
func (c *Client) Submit(ctx context.Context, req controller.SubmitRequest) (controller.SubmitResponse, error) {
	var resp controller.SubmitResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/render", req, &resp)
	return resp, err
}

// Job fetches a job view.
func (c *Client) Job(ctx context.Context, id string) (controller.JobView, error) {
	var view controller.JobView
	err := c.doJSON(ctx, http.MethodGet, "/api/render/"+url.PathEscape(id), nil, &view)
	return view, err
}

// Cancel cancels a job.
func (c *Client) Cancel(ctx context.Context, id string) (controller.JobView, error) {
	var view controller.JobView
	err := c.doJSON(ctx, http.MethodPost, "/api/render/"+url.PathEscape(id)+"/cancel", nil, &view)
	return view, err
}

// Retry resubmits a failed job.
func (c *Client) Retry(ctx context.Context, id string) (controller.SubmitResponse, error) {
	var resp controller.SubmitResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/render/"+url.PathEscape(id)+"/retry", nil, &resp)
	return resp, err
}

// Jobs lists jobs for owner, optionally filtered by status.
func (c *Client) Jobs(ctx context.Context, owner string, statuses ...jobs.Status) ([]controller.JobView, error) {
	query := url.Values{}
	if owner != "" {
		query.Set("owner", owner)
	}
	for _, status := range statuses {
		query.Add("status", string(status))
	}
	var resp JobListResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/render?"+query.Encode(), nil, &resp)
	return resp.Jobs, err
}

// Timeline fetches a stored timeline.
func (c *Client) Timeline(ctx context.Context, id string) (TimelineResponse, error) {
	var resp TimelineResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/timelines/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/status", nil, &resp)
	return resp, err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &apiErr.Body); err != nil {
		apiErr.Body.Error = strings.TrimSpace(string(data))
	}
	return apiErr
}

// IsNotFound reports a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
