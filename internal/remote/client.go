// Package remote implements the HTTP client for the remote progress API
// and the classification of its failures into the engine's error taxonomy.
package remote

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ventlearn/progress-sync/internal/auth"
	"github.com/ventlearn/progress-sync/internal/domain"
)

// Client talks to the remote progress API. All failures are returned as
// *APIError so callers can apply retry policy without inspecting transport
// details.
type Client struct {
	http   *resty.Client
	auth   auth.Provider
	logger *slog.Logger
}

// NewClient creates a client for the API at baseURL. Every request carries
// the bearer token and user ID supplied by the auth provider.
func NewClient(baseURL string, timeout time.Duration, provider auth.Provider, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   provider,
		logger: logger.With("component", "remote_client"),
	}
}

// request builds a request with the session credentials attached, or
// reports that no credentials exist.
func (c *Client) request(ctx context.Context) (*resty.Request, bool) {
	creds, ok := c.auth.Credentials(ctx)
	if !ok {
		return nil, false
	}
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(creds.Token).
		SetHeader("X-User-ID", creds.UserID), true
}

// FetchProgress implements API.
func (c *Client) FetchProgress(ctx context.Context, lessonID string) ([]domain.ProgressRecord, error) {
	const op = "fetch_progress"

	req, ok := c.request(ctx)
	if !ok {
		return nil, &APIError{Kind: KindTransient, Op: op, LessonID: lessonID, Err: ErrNoCredentials}
	}
	if lessonID != "" {
		req.SetQueryParam("lessonId", lessonID)
	}

	resp, err := req.Get("/progress")
	if err != nil {
		return nil, &APIError{Kind: KindTransient, Op: op, LessonID: lessonID, Err: err}
	}
	if apiErr := c.classify(op, lessonID, resp); apiErr != nil {
		return nil, apiErr
	}

	var records []domain.ProgressRecord
	if err := json.Unmarshal(resp.Body(), &records); err != nil {
		return nil, &APIError{Kind: KindProtocol, Op: op, LessonID: lessonID, Err: err}
	}
	return records, nil
}

// UpsertProgress implements API.
func (c *Client) UpsertProgress(ctx context.Context, rec domain.ProgressRecord) (domain.ProgressRecord, error) {
	const op = "upsert"

	req, ok := c.request(ctx)
	if !ok {
		return domain.ProgressRecord{}, &APIError{Kind: KindTransient, Op: op, LessonID: rec.LessonID, Err: ErrNoCredentials}
	}

	resp, err := req.SetBody(rec).Put("/progress")
	if err != nil {
		return domain.ProgressRecord{}, &APIError{Kind: KindTransient, Op: op, LessonID: rec.LessonID, Err: err}
	}
	if apiErr := c.classify(op, rec.LessonID, resp); apiErr != nil {
		return domain.ProgressRecord{}, apiErr
	}

	var server domain.ProgressRecord
	if err := json.Unmarshal(resp.Body(), &server); err != nil {
		return domain.ProgressRecord{}, &APIError{Kind: KindProtocol, Op: op, LessonID: rec.LessonID, Err: err}
	}
	if server.LessonID == "" || server.ServerUpdatedAt.IsZero() {
		return domain.ProgressRecord{}, &APIError{Kind: KindProtocol, Op: op, LessonID: rec.LessonID}
	}
	return server, nil
}

// SyncBatch implements API.
func (c *Client) SyncBatch(ctx context.Context, items []domain.ProgressRecord) (*SyncResult, error) {
	const op = "sync_batch"

	req, ok := c.request(ctx)
	if !ok {
		return nil, &APIError{Kind: KindTransient, Op: op, Err: ErrNoCredentials}
	}

	resp, err := req.SetBody(syncRequest{Items: items}).Post("/progress/sync")
	if err != nil {
		return nil, &APIError{Kind: KindTransient, Op: op, Err: err}
	}
	if apiErr := c.classify(op, "", resp); apiErr != nil {
		return nil, apiErr
	}

	var result SyncResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, &APIError{Kind: KindProtocol, Op: op, Err: err}
	}
	// Responses are matched positionally to the request items; a mismatch
	// means the reply cannot be trusted.
	if len(result.Merged) != len(items) {
		return nil, &APIError{Kind: KindProtocol, Op: op}
	}
	return &result, nil
}

// classify maps a non-success HTTP response into the error taxonomy.
// Returns nil for success responses.
func (c *Client) classify(op, lessonID string, resp *resty.Response) *APIError {
	if resp.IsSuccess() {
		return nil
	}

	status := resp.StatusCode()
	apiErr := &APIError{Op: op, LessonID: lessonID, StatusCode: status}

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		var body errorResponse
		if err := json.Unmarshal(resp.Body(), &body); err != nil || body.Error == "" {
			// A 4xx without a readable code cannot be attributed to the
			// payload, so retain the item.
			apiErr.Kind = KindProtocol
			apiErr.Err = err
			return apiErr
		}
		apiErr.Kind = KindValidation
		apiErr.Code = body.Error
		return apiErr

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		// Auth trouble reads as "cannot sync", the same as offline.
		apiErr.Kind = KindTransient
		apiErr.Err = ErrNoCredentials
		return apiErr

	default:
		apiErr.Kind = KindTransient
		return apiErr
	}
}

var _ API = (*Client)(nil)
