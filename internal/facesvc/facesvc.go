// Package facesvc is a client for the face recognition service that registers visitor faces.
package facesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kozaktomas/visitor-desk/internal/visitor"
)

const (
	// StatusSuccess is the only response status treated as a successful enrollment.
	StatusSuccess = "success"

	scanFacePath = "api/scan-face"
)

// ScanFaceRequest is the enrollment payload: a still image plus visitor metadata.
type ScanFaceRequest struct {
	Image       string       `json:"image"` // data URI
	VisitorInfo visitor.Info `json:"visitorInfo"`
}

// ScanFaceResponse is the service answer. FaceID is only meaningful on success.
type ScanFaceResponse struct {
	Status  string `json:"status"`
	FaceID  string `json:"face_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK reports whether the service registered the face.
func (r *ScanFaceResponse) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

// StatusError is returned when the service answers with a non-2xx status and a body
// that is not a scan-face response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Body)
}

// Client talks to the face recognition service.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	captureDir string
}

// NewClient creates a client for the service at rawURL (e.g. http://faces:5000).
func NewClient(rawURL string, timeout time.Duration) (*Client, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("face service URL is required")
	}
	parsed, err := url.Parse(strings.TrimSuffix(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid face service URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid face service URL %q: scheme must be http or https", rawURL)
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// SetCaptureDir enables response capturing to the specified directory.
// Pass an empty string to disable capturing.
func (c *Client) SetCaptureDir(dir string) error {
	if dir == "" {
		c.captureDir = ""
		return nil
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("could not create capture directory: %w", err)
	}
	c.captureDir = dir
	return nil
}

// ScanFace submits an enrollment. A decoded response is returned whatever its status,
// the caller decides what a non-success status means. Errors are transport failures.
func (c *Client) ScanFace(ctx context.Context, req ScanFaceRequest) (*ScanFaceResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.JoinPath(scanFacePath).String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq) //nolint:gosec // URL built from the configured base URL
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}

	c.captureResponse(respBody)

	var result ScanFaceResponse
	if err := json.Unmarshal(respBody, &result); err != nil || result.Status == "" {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(respBody), 512)}
		}
		if err != nil {
			return nil, fmt.Errorf("could not unmarshal response: %w", err)
		}
		return nil, fmt.Errorf("response has no status")
	}

	return &result, nil
}

// captureResponse saves the raw response body if capturing is enabled.
func (c *Client) captureResponse(body []byte) {
	if c.captureDir == "" {
		return
	}

	filename := fmt.Sprintf("scan-face_%s.json", time.Now().Format("20060102_150405.000"))
	path := filepath.Join(c.captureDir, filename)

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err == nil {
		body = pretty.Bytes()
	}

	if err := os.WriteFile(path, body, 0600); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to capture response to %s: %v\n", path, err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
