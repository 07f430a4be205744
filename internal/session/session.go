// Package session keeps the dashboard's single login session.
//
// Credentials come from a users.json file shared with the appliance tooling.
// The active session survives restarts in a small SQLite database. This is
// a convenience login for a LAN device, not an access-control layer.
package session

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/logger"
)

var (
	// ErrInvalidCredentials is returned when the username or password is wrong.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrNoSession is returned when nobody is logged in.
	ErrNoSession = errors.New("no active session")
)

const schema = `
CREATE TABLE IF NOT EXISTS session (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	username   TEXT    NOT NULL,
	token      TEXT    NOT NULL,
	created_at INTEGER NOT NULL
)`

// Session is the logged-in user.
type Session struct {
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is one entry of users.json.
type User struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type usersFile struct {
	Users []User `json:"users"`
}

// Manager owns the session row and the user list.
type Manager struct {
	db        *sql.DB
	usersPath string
	now       func() time.Time
	log       logger.Module

	mu      sync.Mutex
	current *Session
}

// Open opens (creating if needed) the session database at dbPath and loads
// any persisted session. usersPath is read on every login so edits apply
// without a restart.
func Open(ctx context.Context, dbPath, usersPath string) (*Manager, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// SQLite wants a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session table: %w", err)
	}

	m := &Manager{
		db:        db,
		usersPath: usersPath,
		now:       time.Now,
		log:       logger.For("Session"),
	}

	s, err := m.load(ctx)
	switch {
	case errors.Is(err, ErrNoSession):
	case err != nil:
		_ = db.Close()
		return nil, err
	default:
		m.current = s
		m.log.Info("Restored session for %s", s.Username)
	}
	return m, nil
}

// Close closes the database.
func (m *Manager) Close() error {
	return m.db.Close()
}

func (m *Manager) load(ctx context.Context) (*Session, error) {
	var (
		s       Session
		created int64
	)
	err := m.db.QueryRowContext(ctx,
		`SELECT username, token, created_at FROM session WHERE id = 1`).Scan(&s.Username, &s.Token, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	s.CreatedAt = time.UnixMilli(created)
	return &s, nil
}

// Login checks the credentials against users.json and replaces the current
// session.
func (m *Manager) Login(ctx context.Context, username, password string) (Session, error) {
	users, err := LoadUsers(m.usersPath)
	if err != nil {
		return Session{}, err
	}

	var matched bool
	for _, u := range users {
		if u.Username == username && checkPassword(u.Password, password) {
			matched = true
			break
		}
	}
	if !matched {
		m.log.Warn("Failed login for %q", username)
		return Session{}, ErrInvalidCredentials
	}

	s := Session{
		Username:  username,
		Token:     NewToken(username),
		CreatedAt: m.now().Truncate(time.Millisecond),
	}
	if _, err := m.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO session (id, username, token, created_at) VALUES (1, ?, ?, ?)`,
		s.Username, s.Token, s.CreatedAt.UnixMilli()); err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}

	m.mu.Lock()
	m.current = &s
	m.mu.Unlock()

	m.log.Info("%s logged in", username)
	return s, nil
}

// Logout drops the current session. Logging out twice is not an error.
func (m *Manager) Logout(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if prev != nil {
		m.log.Info("%s logged out", prev.Username)
	}
	return nil
}

// Current returns the active session or ErrNoSession.
func (m *Manager) Current() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Session{}, ErrNoSession
	}
	return *m.current, nil
}

// Valid reports whether token belongs to the active session.
func (m *Manager) Valid(token string) bool {
	s, err := m.Current()
	return err == nil && token != "" && s.Token == token
}

// NewToken returns base64("username:" + random UUID).
func NewToken(username string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + uuid.NewString()))
}

// LoadUsers reads users.json.
func LoadUsers(path string) ([]User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var f usersFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse users file %s: %w", path, err)
	}
	return f.Users, nil
}

// checkPassword accepts a bcrypt hash ("$2a$...", "$2b$...") or plaintext.
func checkPassword(stored, given string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return stored != "" && stored == given
}
