// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/riqo-ingest/internal/models"
)

// Polling defaults.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 60
)

// ErrStillProcessing is returned when polling gives up before the job is terminal.
var ErrStillProcessing = errors.New("processing is taking longer than expected")

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string

	// HTTPClient defaults to a client with a 60s timeout.
	HTTPClient *http.Client

	PollInterval time.Duration
	MaxAttempts  int
}

// Client talks to one ingest server as one tenant.
type Client struct {
	base         *url.URL
	token        string
	http         *http.Client
	pollInterval time.Duration
	maxAttempts  int
	sleep        func(ctx context.Context, d time.Duration) error
}

// New validates cfg and creates a Client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}
	if cfg.Token == "" {
		return nil, errors.New("token is required")
	}

	c := &Client{
		base:         base,
		token:        cfg.Token,
		http:         cfg.HTTPClient,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		sleep:        sleepCtx,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	return c, nil
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string

	// UploadID is set on 409 responses: the job already running for the tenant.
	UploadID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ingest API returned %d: %s", e.StatusCode, e.Message)
}

// JobFailedError reports a job that finished in the failed state.
type JobFailedError struct {
	UploadID string
	Message  string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("upload %s failed: %s", e.UploadID, e.Message)
}

// UploadResult is the acceptance response.
type UploadResult struct {
	Message  string           `json:"message"`
	UploadID string           `json:"uploadId"`
	FileName string           `json:"fileName"`
	FileSize int64            `json:"fileSize"`
	Status   models.JobStatus `json:"status"`
}

// Status is the subset of the status view the client acts on.
type Status struct {
	ID                    string           `json:"id"`
	Status                models.JobStatus `json:"status"`
	RowsProcessed         *int64           `json:"rows_processed"`
	ColumnsProcessed      *int             `json:"columns_processed"`
	ErrorMessage          *string          `json:"error_message"`
	ClientDatabaseSynced  bool             `json:"client_database_synced"`
	ColumnsInfo           []string         `json:"columns_info"`
	ProcessingCompletedAt *time.Time       `json:"processing_completed_at"`
}

// UploadFile opens path and uploads it under its base name.
func (c *Client) UploadFile(ctx context.Context, path string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return c.Upload(ctx, filepath.Base(path), f)
}

// Upload sends r as the multipart "file" field.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (*UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out UploadResult
	if err := c.do(ctx, http.MethodPost, "/api/upload", &body, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the job once.
func (c *Client) Status(ctx context.Context, uploadID string) (*Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodGet, "/api/upload/status/"+url.PathEscape(uploadID), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitForCompletion polls until the job is terminal. A completed job is
// returned as is; a failed one as *JobFailedError together with its status.
// Transient fetch errors count as attempts. ErrStillProcessing is returned
// once MaxAttempts polls have been made.
func (c *Client) WaitForCompletion(ctx context.Context, uploadID string) (*Status, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		status, err := c.Status(ctx, uploadID)
		switch {
		case err == nil && status.Status == models.StatusCompleted:
			return status, nil
		case err == nil && status.Status == models.StatusFailed:
			msg := "unknown error"
			if status.ErrorMessage != nil {
				msg = *status.ErrorMessage
			}
			return status, &JobFailedError{UploadID: uploadID, Message: msg}
		case err != nil:
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				return nil, err
			}
			lastErr = err
		}

		if attempt == c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return nil, err
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w (last error: %v)", ErrStillProcessing, lastErr)
	}
	return nil, ErrStillProcessing
}

// DataPage is one page of GET /api/data.
type DataPage struct {
	Rows    []map[string]any
	Total   int64
	HasMore bool
}

// Data reads a page of the tenant's destination table.
func (c *Client) Data(ctx context.Context, limit, offset int) (*DataPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var env struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Pagination struct {
				Total   int64 `json:"total"`
				HasMore bool  `json:"has_more"`
			} `json:"pagination"`
		} `json:"meta"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/data?"+q.Encode(), nil, "", &env); err != nil {
		return nil, err
	}
	return &DataPage{Rows: env.Data, Total: env.Meta.Pagination.Total, HasMore: env.Meta.Pagination.HasMore}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeAPIError accepts both the flat {"error": "..."} body and the
// envelope {"error": {"message": "..."}} used by /api/data.
func decodeAPIError(status int, raw []byte) error {
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}

	var body struct {
		Error    json.RawMessage `json:"error"`
		UploadID string          `json:"uploadId"`
	}
	if json.Unmarshal(raw, &body) != nil || len(body.Error) == 0 {
		return apiErr
	}
	apiErr.UploadID = body.UploadID

	var flat string
	if json.Unmarshal(body.Error, &flat) == nil {
		apiErr.Message = flat
		return apiErr
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
		apiErr.Message = nested.Message
	}
	return apiErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
