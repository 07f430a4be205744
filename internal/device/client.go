// Package device is a typed HTTP client for the ESP32 camera/detection
// appliance. It only speaks the appliance's documented endpoints; retries and
// timeouts are the caller's business (via ctx).
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

// maxBodyBytes caps JSON bodies read from the appliance.
const maxBodyBytes = 1 << 20

// HTTPClient abstracts *http.Client so tests can swap the transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to one appliance.
type Client struct {
	baseURL    string
	streamHost string
	http       HTTPClient
}

// NewClient returns a client for the appliance at baseURL. streamHost may be
// empty, in which case the MJPEG stream is read from baseURL as well.
func NewClient(baseURL, streamHost string, httpClient HTTPClient) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	streamHost = strings.TrimRight(streamHost, "/")
	if streamHost == "" {
		streamHost = baseURL
	}
	return &Client{
		baseURL:    baseURL,
		streamHost: streamHost,
		http:       httpClient,
	}
}

// BaseURL returns the appliance base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Control issues GET /control?var={key}&val={value}.
func (c *Client) Control(ctx context.Context, key, value string) error {
	q := url.Values{}
	q.Set("var", key)
	q.Set("val", value)
	_, err := c.get(ctx, "/control?"+q.Encode())
	return err
}

// Status fetches GET /status and fills absent fields with defaults.
func (c *Client) Status(ctx context.Context) (CameraSettings, error) {
	body, err := c.get(ctx, "/status")
	if err != nil {
		return CameraSettings{}, err
	}
	return ParseSettings(body), nil
}

// TestConnection probes GET /testConnection.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.get(ctx, "/testConnection")
	return err
}

// SetDetection issues POST /detection/{feature} {"enabled": enabled}.
func (c *Client) SetDetection(ctx context.Context, feature types.Feature, enabled bool) error {
	return c.postJSON(ctx, "/detection/"+string(feature), map[string]bool{"enabled": enabled})
}

// Info fetches GET /{feature}/info and returns the raw JSON document.
func (c *Client) Info(ctx context.Context, feature types.Feature) (json.RawMessage, error) {
	body, err := c.get(ctx, "/"+string(feature)+"/info")
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%s info: invalid JSON body", feature)
	}
	return json.RawMessage(body), nil
}

// Sensitivity is the body of POST /motion/sensitivity.
type Sensitivity struct {
	MotionThreshold int `json:"motion_threshold"`
	AlarmThreshold  int `json:"alarm_threshold"`
}

// SetMotionSensitivity issues POST /motion/sensitivity.
func (c *Client) SetMotionSensitivity(ctx context.Context, s Sensitivity) error {
	return c.postJSON(ctx, "/motion/sensitivity", s)
}

// PostLines issues POST /{feature}/lines.
func (c *Client) PostLines(ctx context.Context, feature types.Feature, payload types.LinesPayload) error {
	if payload.Lines == nil {
		payload.Lines = []types.WireLine{}
	}
	return c.postJSON(ctx, "/"+string(feature)+"/lines", payload)
}

// CaptureURL returns the snapshot URL cache-busted with at's unix millis.
func (c *Client) CaptureURL(at time.Time) string {
	return c.baseURL + "/capture?_cb=" + strconv.FormatInt(at.UnixMilli(), 10)
}

// StreamURL returns the main MJPEG stream URL.
func (c *Client) StreamURL() string {
	return c.streamHost + "/stream"
}

// FeatureStreamURL returns the per-feature MJPEG stream URL.
func (c *Client) FeatureStreamURL(feature types.Feature) string {
	return c.baseURL + "/" + string(feature) + "/stream"
}

// Open performs a GET on an absolute appliance URL and returns the live
// response for streaming. The caller must close the body.
func (c *Client) Open(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &HTTPError{Method: http.MethodGet, Path: req.URL.Path, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Method: req.Method, Path: req.URL.Path, StatusCode: resp.StatusCode}
	}
	return body, nil
}
