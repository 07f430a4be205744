package dashboard

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/detection"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/device"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

// featureParam validates the {feature} path segment, writing a 404 when it
// is not a known feature.
func featureParam(w http.ResponseWriter, r *http.Request) (types.Feature, bool) {
	f, err := types.ParseFeature(r.PathValue("feature"))
	if err != nil {
		writeFailure(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return f, true
}

func writeDetectionError(w http.ResponseWriter, err error) {
	if errors.Is(err, detection.ErrUnknownFeature) {
		writeFailure(w, http.StatusNotFound, err.Error())
		return
	}
	writeFailure(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleDetectionList(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"features": s.detection.Store().All(),
	}
	if sens, ok := s.detection.MotionSensitivity(); ok {
		payload["sensitivity"] = sens
	}
	writeJSON(w, payload)
}

func (s *Server) handleDetectionGet(w http.ResponseWriter, r *http.Request) {
	f, ok := featureParam(w, r)
	if !ok {
		return
	}
	st, err := s.detection.Store().Get(f)
	if err != nil {
		writeDetectionError(w, err)
		return
	}
	writeJSON(w, st)
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleDetectionToggle(w http.ResponseWriter, r *http.Request) {
	f, ok := featureParam(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		writeFailure(w, http.StatusBadRequest, "enabled is required")
		return
	}

	st, res, err := s.detection.Toggle(r.Context(), f, *req.Enabled)
	if err != nil {
		writeDetectionError(w, err)
		return
	}
	s.syncEditor(f)

	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	writeJSONWithStatus(w, map[string]any{
		"success": res.Success,
		"error":   res.Error,
		"state":   st,
	}, status)
}

func (s *Server) handleDetectionExpand(w http.ResponseWriter, r *http.Request) {
	f, ok := featureParam(w, r)
	if !ok {
		return
	}
	st, err := s.detection.Expand(f)
	if err != nil {
		writeDetectionError(w, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleDetectionCollapse(w http.ResponseWriter, r *http.Request) {
	f, ok := featureParam(w, r)
	if !ok {
		return
	}
	st, err := s.detection.Collapse(f)
	if err != nil {
		writeDetectionError(w, err)
		return
	}
	writeJSON(w, st)
}

type streamingRequest struct {
	Streaming bool `json:"streaming"`
}

func (s *Server) handleDetectionStreaming(w http.ResponseWriter, r *http.Request) {
	f, ok := featureParam(w, r)
	if !ok {
		return
	}
	var req streamingRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.detection.SetStreaming(f, req.Streaming)
	if err != nil {
		writeDetectionError(w, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleMotionSensitivity(w http.ResponseWriter, r *http.Request) {
	var req device.Sensitivity
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MotionThreshold < 0 || req.AlarmThreshold < 0 {
		writeFailure(w, http.StatusBadRequest, "thresholds must not be negative")
		return
	}
	res := s.detection.SetMotionSensitivity(r.Context(), req)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	writeJSONWithStatus(w, res, status)
}

func (s *Server) handleDetectionStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)

	accept := r.Header.Get("Accept")
	useProtobuf := strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")

	streamStateEvents(r.Context(), w, s.broadcaster.Snapshot(), eventCh, useProtobuf)
}
