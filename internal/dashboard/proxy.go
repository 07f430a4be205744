package dashboard

import (
	"context"
	"io"
	"net/http"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

const maxSnapshotBytes = 8 << 20

// handleCapture proxies one snapshot, cache-busted. When the camera cannot be
// reached the color-bar frame is returned so <img> tags still render.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ProxyTimeout)
	defer cancel()

	resp, err := s.device.Open(ctx, s.device.CaptureURL(s.cfg.Clock.Now()))
	s.metrics.ProxyRequest("capture", err == nil)
	s.conn.Observe(err)
	if err != nil {
		s.log.Debug("capture failed: %v", err)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Camera-Placeholder", "1")
		_, _ = w.Write(s.blank)
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := io.Copy(w, io.LimitReader(resp.Body, maxSnapshotBytes)); err != nil {
		s.log.Debug("capture relay interrupted: %v", err)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.proxyStream(w, r, "stream", s.device.StreamURL())
}

func (s *Server) handleFeatureStream(f types.Feature) http.HandlerFunc {
	route := string(f) + "_stream"
	return func(w http.ResponseWriter, r *http.Request) {
		s.proxyStream(w, r, route, s.device.FeatureStreamURL(f))
	}
}

// proxyStream relays an MJPEG stream for as long as the client stays. The
// upstream request has no timeout; it ends with the client's request.
func (s *Server) proxyStream(w http.ResponseWriter, r *http.Request, route, upstreamURL string) {
	resp, err := s.device.Open(r.Context(), upstreamURL)
	s.metrics.ProxyRequest(route, err == nil)
	if err != nil {
		s.conn.Observe(err)
		s.log.Info("%s unavailable, serving placeholder: %v", route, err)
		streamPlaceholder(r.Context(), w, s.blank)
		return
	}
	defer resp.Body.Close()
	s.conn.Observe(nil)

	s.log.Debug("relaying %s", route)
	if err := relayStream(w, resp); err != nil {
		s.log.Debug("%s relay ended: %v", route, err)
	}
}
