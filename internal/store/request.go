package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/spigell/socius/internal/utils"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
	maxErrorDetail  = 512
)

// do sends a JSON request and decodes the JSON response into target when it is not nil.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, target any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Kind: ErrValidation, Method: method, Path: path, Err: fmt.Errorf("encode body: %w", err)}
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIURL+path, payload)
	if err != nil {
		return &RequestError{Kind: ErrValidation, Method: method, Path: path, Err: err}
	}

	req = c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.request(req)
	if err != nil {
		kind := transportKind(err)
		c.logger.Debug("data store request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return &RequestError{Kind: kind, Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	reader, err := decodedBody(resp)
	if err != nil {
		return &RequestError{Kind: ErrServer, Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return &RequestError{Kind: transportKind(err), Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{
			Kind:   statusKind(resp.StatusCode),
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Detail: errorDetail(data),
		}
	}

	if target == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return &RequestError{Kind: ErrServer, Method: method, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("method", req.Method), zap.String("url", req.URL.String()))
	return c.HTTPClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", contentType)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

func decodedBody(resp *http.Response) (io.ReadCloser, error) {
	if resp.Header.Get("Content-Encoding") != "gzip" {
		return io.NopCloser(resp.Body), nil
	}
	return gzip.NewReader(resp.Body)
}

// errorDetail extracts a readable message from an error response body.
func errorDetail(data []byte) string {
	var parsed struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error != nil {
		switch v := parsed.Error.(type) {
		case string:
			return v
		case map[string]any:
			if msg, ok := v["message"].(string); ok {
				return msg
			}
		}
	}

	return utils.TruncateForLog(string(data), maxErrorDetail)
}
