package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/session"
)

const (
	sessionCookie = "dashboard_session"
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.sessions.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, session.ErrInvalidCredentials) {
		writeFailure(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, map[string]any{
		"success":  true,
		"username": sess.Username,
		"token":    sess.Token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(r.Context()); err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:   sessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	writeJSON(w, map[string]any{"success": true})
}

// handleSession reports whether the caller holds the active session. The
// token is read from the cookie or an Authorization: Bearer header.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	token := requestToken(r)
	sess, err := s.sessions.Current()
	if err != nil || !s.sessions.Valid(token) {
		writeJSON(w, map[string]any{"loggedIn": false})
		return
	}
	writeJSON(w, map[string]any{
		"loggedIn":  true,
		"username":  sess.Username,
		"createdAt": sess.CreatedAt,
	})
}

func requestToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if auth, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(auth)
	}
	return ""
}

// handleQR renders a QR code pointing phones at this dashboard.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	size := defaultQRSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "invalid size")
			return
		}
		size = min(max(n, minQRSize), maxQRSize)
	}

	target := s.cfg.PublicURL
	if target == "" {
		target = "http://" + r.Host + "/"
	}

	png, err := qrcode.Encode(target, qrcode.Medium, size)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-QR-Target", target)
	_, _ = w.Write(png)
}
