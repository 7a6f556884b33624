package authorize

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/authbox/internal/adapter/cache"
	"github.com/smallbiznis/authbox/internal/clock"
	"github.com/smallbiznis/authbox/internal/codec"
)

const sessionKeyPrefix = "session:"

// Session carries the authentication progress of one browser between the
// steps of the authorize flow. It never holds the password itself.
type Session struct {
	ID               string    `json:"id"`
	OrganizationID   string    `json:"organization_id"`
	ClientID         string    `json:"client_id"`
	UserID           string    `json:"user_id"`
	Username         string    `json:"username"`
	PasswordVerified bool      `json:"password_verified"`
	TwoFactorPassed  bool      `json:"two_factor_passed"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Sessions stores authorize sessions under an opaque id with a fixed lifetime.
type Sessions struct {
	store cache.Store
	ttl   time.Duration
	clock clock.Clock
}

func NewSessions(store cache.Store, ttl time.Duration, clk clock.Clock) *Sessions {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Sessions{store: store, ttl: ttl, clock: clk}
}

// New returns an unsaved session bound to an organization and client.
func (s *Sessions) New(organizationID, clientID string) Session {
	return Session{
		ID:             codec.NewOpaqueValue(),
		OrganizationID: organizationID,
		ClientID:       clientID,
	}
}

// Save writes sess and extends its expiry.
func (s *Sessions) Save(ctx context.Context, sess Session) error {
	sess.ExpiresAt = s.clock.Now().Add(s.ttl)
	if err := s.store.Set(ctx, sessionKeyPrefix+sess.ID, sess, s.ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the live session for id. A missing or expired session reports false.
func (s *Sessions) Load(ctx context.Context, id string) (Session, bool, error) {
	if id == "" {
		return Session{}, false, nil
	}
	var sess Session
	ok, err := s.store.Get(ctx, sessionKeyPrefix+id, &sess)
	if err != nil {
		return Session{}, false, fmt.Errorf("load session: %w", err)
	}
	if !ok || s.clock.Now().After(sess.ExpiresAt) {
		return Session{}, false, nil
	}
	return sess, true, nil
}

func (s *Sessions) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.store.Delete(ctx, sessionKeyPrefix+id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
