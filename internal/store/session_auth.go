package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/hamiltonprep/mathcoach/internal/model"
)

// AuthSessionTTL is how long a bearer token stays valid.
const AuthSessionTTL = 24 * time.Hour

// CreateAuthSession issues a new bearer token for a user.
func (s *Store) CreateAuthSession(userID int64) (model.AuthSession, error) {
	token, err := generateToken()
	if err != nil {
		return model.AuthSession{}, err
	}
	now := time.Now()
	sess := model.AuthSession{ID: token, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(AuthSessionTTL)}
	_, err = s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return model.AuthSession{}, err
	}
	return sess, nil
}

// GetAuthSession returns the session for a token, or nil if it is unknown or expired.
// Expired sessions are removed on lookup.
func (s *Store) GetAuthSession(token string) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.db.QueryRow(
		`SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = ?`, token,
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteAuthSession(token)
		return nil, nil
	}
	return &sess, nil
}

// DeleteAuthSession revokes a token.
func (s *Store) DeleteAuthSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// CleanupExpiredSessions removes all expired tokens.
func (s *Store) CleanupExpiredSessions() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at < ?`, time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
