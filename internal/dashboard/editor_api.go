package dashboard

import (
	"image/png"
	"net/http"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/device"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/geometry"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/lineeditor"
)

// editorParam resolves {feature} to an editor. Only crossline and pipeline
// expose one.
func (s *Server) editorParam(w http.ResponseWriter, r *http.Request) (*lineeditor.Editor, bool) {
	f, ok := featureParam(w, r)
	if !ok {
		return nil, false
	}
	e, exists := s.editors[f]
	if !exists || !f.HasLineEditor() {
		writeFailure(w, http.StatusNotFound, "no line editor for "+string(f))
		return nil, false
	}
	return e, true
}

type editorResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	View    lineeditor.View `json:"view"`
	Sync    *device.Result  `json:"sync,omitempty"`
}

func (s *Server) handleEditorView(w http.ResponseWriter, r *http.Request) {
	e, ok := s.editorParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, e.View())
}

func (s *Server) handleEditorAdd(w http.ResponseWriter, r *http.Request) {
	e, ok := s.editorParam(w, r)
	if !ok {
		return
	}
	res, added := e.AddLine(r.Context())
	if !added {
		writeJSONWithStatus(w, editorResponse{
			Success: false,
			Error:   "detection is disabled or the image size is unknown",
			View:    e.View(),
		}, http.StatusConflict)
		return
	}
	writeJSON(w, editorResponse{Success: res.Success, Error: res.Error, View: e.View(), Sync: &res})
}

func (s *Server) handleEditorClear(w http.ResponseWriter, r *http.Request) {
	e, ok := s.editorParam(w, r)
	if !ok {
		return
	}
	res := e.ClearLines(r.Context())
	writeJSON(w, editorResponse{Success: res.Success, Error: res.Error, View: e.View(), Sync: &res})
}

type viewportRequest struct {
	Natural geometry.Size `json:"natural"`
	Display geometry.Size `json:"display"`
	Canvas  geometry.Size `json:"canvas"`
}

func (s *Server) handleEditorViewport(w http.ResponseWriter, r *http.Request) {
	e, ok := s.editorParam(w, r)
	if !ok {
		return
	}
	var req viewportRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Natural.Valid() {
		e.SetImageSize(req.Natural)
	}
	e.SetViewport(req.Display, req.Canvas)
	writeJSON(w, editorResponse{Success: true, View: e.View()})
}

type pointerRequest struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func (s *Server) handleEditorPointer(w http.ResponseWriter, r *http.Request) {
	e, ok := s.editorParam(w, r)
	if !ok {
		return
	}
	var req pointerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	p := geometry.Point{X: req.X, Y: req.Y}
	resp := editorResponse{Success: true}
	switch req.Type {
	case "down":
		e.PointerDown(p)
	case "move":
		e.PointerMove(p)
	case "up":
		resp.Sync = e.PointerUp(r.Context())
	case "leave":
		resp.Sync = e.PointerLeave(r.Context())
	default:
		writeFailure(w, http.StatusBadRequest, "type must be down, move, up or leave")
		return
	}
	if resp.Sync != nil {
		resp.Success = resp.Sync.Success
		resp.Error = resp.Sync.Error
	}
	resp.View = e.View()
	writeJSON(w, resp)
}

func (s *Server) handleEditorOverlay(w http.ResponseWriter, r *http.Request) {
	e, ok := s.editorParam(w, r)
	if !ok {
		return
	}
	img := e.Render()
	if img == nil {
		writeFailure(w, http.StatusNotFound, "image size unknown")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		s.log.Debug("overlay encode: %v", err)
	}
}
