package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/and161185/gymflow/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// ConfigDir returns the client's configuration directory.
func ConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "gymflow")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "gymflow")
}

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// FileStore keeps the access token in a JSON file.
type FileStore struct {
	path string
}

// NewFileStore stores the token at path; an empty path means token.json in ConfigDir.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = filepath.Join(ConfigDir(), "token.json")
	}
	return &FileStore{path: path}
}

// Path returns the token file location.
func (s *FileStore) Path() string { return s.path }

// Load returns the stored session, or nil when nothing is stored.
func (s *FileStore) Load() (*model.Session, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if tf.AccessToken == "" {
		return nil, nil
	}
	sess, err := SessionFromToken(tf.AccessToken)
	if err != nil {
		return nil, err
	}
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = tf.ExpiresAt
	}
	return &sess, nil
}

// Save writes sess with owner-only permissions.
func (s *FileStore) Save(sess model.Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	b, err := json.MarshalIndent(tokenFile{AccessToken: sess.AccessToken, ExpiresAt: sess.ExpiresAt}, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Clear removes the stored token.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

type tokenClaims struct {
	Provider model.Provider `json:"provider"`
	jwt.RegisteredClaims
}

// SessionFromToken reads the session fields from an access token without verifying it.
// The backend verifies every call; the client only needs the subject, provider and expiry.
func SessionFromToken(token string) (model.Session, error) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return model.Session{}, fmt.Errorf("parse token: %w", err)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return model.Session{}, fmt.Errorf("token subject: %w", err)
	}
	sess := model.Session{UserID: id, AccessToken: token, Provider: claims.Provider}
	if sess.Provider == "" {
		sess.Provider = model.ProviderEmail
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}
