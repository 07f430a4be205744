package apicompat

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestMJPEGStream(t *testing.T) {
	client := newAPIClient(t)
	for _, path := range []string{"/stream", "/motion/stream", "/crossline/stream"} {
		resp, cancel := client.openStream(t, path, 3*time.Second)
		contentType := resp.Header.Get("Content-Type")
		_ = resp.Body.Close()
		cancel()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
		if !strings.Contains(contentType, "multipart/x-mixed-replace") {
			t.Fatalf("GET %s content-type = %q", path, contentType)
		}
	}
}

func TestDetectionStreamJSON(t *testing.T) {
	client := newAPIClient(t)
	resp, cancel := client.openStream(t, "/api/detection/stream", 3*time.Second)
	defer cancel()
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("detection stream content-type = %q", resp.Header.Get("Content-Type"))
	}
	if got := resp.Header.Get("X-Content-Format"); got != "application/json" {
		t.Fatalf("X-Content-Format = %q", got)
	}
	event, err := readSSEEvent(resp)
	if err != nil {
		t.Fatalf("detection stream: %v", err)
	}
	assertFeatureState(t, parseSSEData(t, event))
}
