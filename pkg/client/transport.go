package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"edulink/pkg/errors"
)

// restClient wraps the HTTP API with auth and bounded retries. Server errors
// and network failures are retried; client errors are returned as-is.
type restClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxElapsed time.Duration
}

func newRestClient(baseURL, token string) *restClient {
	return &restClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxElapsed: 30 * time.Second,
	}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type pageEnvelope struct {
	Items      json.RawMessage `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"totalPages"`
}

// do performs one API call. The out argument, when non-nil, receives the
// decoded data payload.
func (r *restClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Internal("Failed to encode request body", err)
		}
	}

	operation := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(errors.Internal("Failed to build request", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if r.token != "" {
			req.Header.Set("Authorization", "Bearer "+r.token)
		}

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request %s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response %s %s: %w", method, path, err)
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error %d on %s %s", resp.StatusCode, method, path)
		}

		var env apiEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return backoff.Permanent(errors.Internal("Failed to decode response", err))
		}

		if !env.Success {
			code := "INTERNAL_ERROR"
			message := "Request failed"
			if env.Error != nil {
				code = env.Error.Code
				message = env.Error.Message
			}
			return backoff.Permanent(errors.New(code, message, resp.StatusCode, nil))
		}

		if out != nil && env.Data != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return backoff.Permanent(errors.Internal("Failed to decode response data", err))
			}
		}

		return nil
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(r.maxElapsed)), ctx)
	return backoff.Retry(operation, policy)
}

// doPaginated performs a GET against a paginated endpoint and decodes the
// items payload.
func (r *restClient) doPaginated(ctx context.Context, path string, items interface{}) (int64, error) {
	var page pageEnvelope
	if err := r.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return 0, err
	}

	if page.Items != nil {
		if err := json.Unmarshal(page.Items, items); err != nil {
			return 0, errors.Internal("Failed to decode page items", err)
		}
	}

	return page.Total, nil
}
