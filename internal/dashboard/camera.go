package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/device"
)

const (
	minProbeTimeout = 3 * time.Second
	maxProbeTimeout = 10 * time.Second
)

func (s *Server) handleCameraStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ProxyTimeout)
	defer cancel()

	settings, err := s.device.Status(ctx)
	s.metrics.ProxyRequest("status", err == nil)
	s.conn.Observe(err)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{
			"success":  false,
			"error":    device.Describe(err),
			"settings": device.DefaultSettings(),
		}, http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]any{
		"success":  true,
		"settings": settings,
	})
}

type controlRequest struct {
	Var string          `json:"var"`
	Val json.RawMessage `json:"val"`
}

func (s *Server) handleCameraControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Var == "" || len(req.Val) == 0 {
		writeFailure(w, http.StatusBadRequest, "var and val are required")
		return
	}

	res := s.conn.UpdateConfig(r.Context(), req.Var, controlValue(req.Val))
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	writeJSONWithStatus(w, res, status)
}

// controlValue renders a JSON scalar the way the appliance's query string
// expects it: strings unquoted, booleans as 1/0, numbers verbatim.
func controlValue(raw json.RawMessage) string {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "1"
		}
		return "0"
	}
	return strings.TrimSpace(string(raw))
}

func (s *Server) handleCameraTest(w http.ResponseWriter, r *http.Request) {
	timeout := s.cfg.ProbeTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "invalid timeout: "+err.Error())
			return
		}
		timeout = min(max(d, minProbeTimeout), maxProbeTimeout)
	}

	res := s.conn.TestConnection(r.Context(), timeout)
	writeJSON(w, map[string]any{
		"success":    res.Success,
		"error":      res.Error,
		"connection": s.conn.Status(),
	})
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.conn.Status())
}
