package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/connection"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/detection"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/device"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/lineeditor"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/linesync"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/logger"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/metrics"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/session"
	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/pkg/types"
)

// Server is the dashboard application: it owns every piece of state the
// browser page renders and proxies the appliance.
type Server struct {
	cfg         Config
	device      *device.Client
	conn        *connection.Manager
	detection   *detection.Service
	editors     map[types.Feature]*lineeditor.Editor
	sessions    *session.Manager
	metrics     *metrics.Metrics
	broadcaster *StateBroadcaster
	blank       []byte
	log         logger.Module

	mirrorMu  sync.Mutex
	mirrorID  int
	stop      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewServer wires the application context. m may be nil.
func NewServer(ctx context.Context, cfg Config, m *metrics.Metrics) (*Server, error) {
	cfg = cfg.withDefaults()

	blank, err := blankJPEG()
	if err != nil {
		return nil, fmt.Errorf("render placeholder frame: %w", err)
	}

	sessions, err := session.Open(ctx, cfg.SessionDB, cfg.UsersFile)
	if err != nil {
		return nil, err
	}

	dev := device.NewClient(cfg.DeviceURL, cfg.StreamHost, &http.Client{})

	s := &Server{
		cfg:    cfg,
		device: dev,
		conn: connection.NewManager(dev, connection.Config{
			Attempts:       cfg.ControlAttempts,
			AttemptTimeout: cfg.ControlTimeout,
			ProbeTimeout:   cfg.ProbeTimeout,
			Clock:          cfg.Clock,
			Metrics:        m,
		}),
		detection: detection.NewService(dev, detection.ServiceConfig{
			Clock:          cfg.Clock,
			PollInterval:   cfg.PollInterval,
			RequestTimeout: cfg.ProxyTimeout,
			Metrics:        m,
		}),
		editors:  make(map[types.Feature]*lineeditor.Editor),
		sessions: sessions,
		metrics:  m,
		blank:    blank,
		log:      logger.For("Dashboard"),
		stop:     make(chan struct{}),
	}

	// Motion keeps a line set too, it just has no editor routes.
	for _, f := range []types.Feature{types.FeatureMotion, types.FeatureCrossline, types.FeaturePipeline} {
		s.editors[f] = lineeditor.New(f, linesync.New(f, dev, m), cfg.Clock)
	}

	store := s.detection.Store()
	s.broadcaster = NewStateBroadcaster(store, m)
	s.broadcaster.Start()

	id, ch := store.Watch()
	s.mirrorID = id
	go s.mirrorEditors(ch)

	return s, nil
}

// Close stops pollers and broadcasters and closes the session database.
// Later calls return the first call's result.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.detection.Store().Unwatch(s.mirrorID)
		s.broadcaster.Stop()
		s.detection.Close()
		s.closeErr = s.sessions.Close()
	})
	return s.closeErr
}

// mirrorEditors keeps each editor's enabled flag in step with its feature.
// Change signals coalesce, so every editor is resynced on each one.
func (s *Server) mirrorEditors(changed <-chan struct{}) {
	for {
		select {
		case <-s.stop:
			return
		case _, ok := <-changed:
			if !ok {
				return
			}
			for f := range s.editors {
				s.syncEditor(f)
			}
		}
	}
}

// syncEditor copies the feature's current enabled flag into its editor. The
// store is read under mirrorMu so a lagging event cannot apply a stale flag.
func (s *Server) syncEditor(f types.Feature) {
	e, ok := s.editors[f]
	if !ok {
		return
	}
	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()
	if st, err := s.detection.Store().Get(f); err == nil {
		e.SetEnabled(st.Enabled)
	}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	assetHandler := newAssetHandler(s.cfg.BuildAssetsDir, s.cfg.AssetsDir)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /assets/", http.StripPrefix("/assets/", assetHandler))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metricsHandler())

	mux.HandleFunc("GET /capture", s.handleCapture)
	mux.HandleFunc("GET /stream", s.handleStream)
	for _, f := range types.Features {
		mux.HandleFunc("GET /"+string(f)+"/stream", s.handleFeatureStream(f))
	}

	mux.HandleFunc("GET /api/camera/status", s.handleCameraStatus)
	mux.HandleFunc("POST /api/camera/control", s.handleCameraControl)
	mux.HandleFunc("GET /api/camera/test", s.handleCameraTest)
	mux.HandleFunc("GET /api/connection", s.handleConnection)

	mux.HandleFunc("GET /api/detection", s.handleDetectionList)
	mux.HandleFunc("GET /api/detection/stream", s.handleDetectionStream)
	mux.HandleFunc("GET /api/detection/{feature}", s.handleDetectionGet)
	mux.HandleFunc("POST /api/detection/{feature}", s.handleDetectionToggle)
	mux.HandleFunc("POST /api/detection/{feature}/expand", s.handleDetectionExpand)
	mux.HandleFunc("POST /api/detection/{feature}/collapse", s.handleDetectionCollapse)
	mux.HandleFunc("POST /api/detection/{feature}/streaming", s.handleDetectionStreaming)
	mux.HandleFunc("POST /api/motion/sensitivity", s.handleMotionSensitivity)

	mux.HandleFunc("GET /api/editor/{feature}", s.handleEditorView)
	mux.HandleFunc("POST /api/editor/{feature}/lines", s.handleEditorAdd)
	mux.HandleFunc("DELETE /api/editor/{feature}/lines", s.handleEditorClear)
	mux.HandleFunc("POST /api/editor/{feature}/viewport", s.handleEditorViewport)
	mux.HandleFunc("POST /api/editor/{feature}/pointer", s.handleEditorPointer)
	mux.HandleFunc("GET /api/editor/{feature}/overlay.png", s.handleEditorOverlay)

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/qr.png", s.handleQR)

	return recoverJSON(mux)
}

func (s *Server) metricsHandler() http.Handler {
	if s.metrics == nil {
		return http.NotFoundHandler()
	}
	return s.metrics.Handler()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":     "ok",
		"connection": s.conn.Status(),
	})
}

// recoverJSON turns a handler panic into the usual {success:false} body.
func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.Error("Dashboard", "panic serving %s %s: %v", r.Method, r.URL.Path, v)
				writeFailure(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"success":false,"error":%q}`, err.Error())
	}
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSONWithStatus(w, device.Result{Success: false, Error: msg}, status)
}

// decodeBody reads a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
