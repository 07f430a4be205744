package session

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func writeUsers(t *testing.T, dir string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	path := filepath.Join(dir, "users.json")
	body := `{"users":[{"username":"admin","password":"admin"},{"username":"ops","password":"` + string(hash) + `"}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func openManager(t *testing.T) (*Manager, string, string) {
	t.Helper()
	dir := t.TempDir()
	users := writeUsers(t, dir)
	dbPath := filepath.Join(dir, "session.db")
	m, err := Open(context.Background(), dbPath, users)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, dbPath, users
}

func TestLoginPlaintextAndBcrypt(t *testing.T) {
	m, _, _ := openManager(t)
	ctx := context.Background()

	s, err := m.Login(ctx, "admin", "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", s.Username)

	s, err = m.Login(ctx, "ops", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "ops", s.Username)

	cur, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, "ops", cur.Username, "a new login replaces the session")
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	m, _, _ := openManager(t)
	ctx := context.Background()

	_, err := m.Login(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = m.Login(ctx, "ops", "$2a$10$notthehash")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = m.Login(ctx, "nobody", "admin")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionSurvivesReopen(t *testing.T) {
	m, dbPath, users := openManager(t)
	ctx := context.Background()

	s, err := m.Login(ctx, "admin", "admin")
	require.NoError(t, err)
	require.NoError(t, m.Close())

	reopened, err := Open(ctx, dbPath, users)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Current()
	require.NoError(t, err)
	assert.Equal(t, s.Token, got.Token)
	assert.Equal(t, s.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())
	assert.True(t, reopened.Valid(s.Token))
	assert.False(t, reopened.Valid(""))
}

func TestLogoutClearsPersistedSession(t *testing.T) {
	m, dbPath, users := openManager(t)
	ctx := context.Background()

	_, err := m.Login(ctx, "admin", "admin")
	require.NoError(t, err)
	require.NoError(t, m.Logout(ctx))
	require.NoError(t, m.Logout(ctx), "second logout is harmless")

	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoSession)
	require.NoError(t, m.Close())

	reopened, err := Open(ctx, dbPath, users)
	require.NoError(t, err)
	defer reopened.Close()
	_, err = reopened.Current()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestNewTokenShape(t *testing.T) {
	raw, err := base64.StdEncoding.DecodeString(NewToken("admin"))
	require.NoError(t, err)

	name, id, ok := strings.Cut(string(raw), ":")
	require.True(t, ok)
	assert.Equal(t, "admin", name)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	assert.NotEqual(t, NewToken("admin"), NewToken("admin"))
}

func TestLoadUsersErrors(t *testing.T) {
	_, err := LoadUsers(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = LoadUsers(path)
	assert.Error(t, err)
}
