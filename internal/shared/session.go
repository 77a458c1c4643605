package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionStore reads cookie sessions written to Redis by the login service.
// The dashboard never issues or mutates sessions.
type SessionStore struct {
	client     *redis.Client
	cookieName string
}

type sessionPayload struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	PharmacyID string `json:"pharmacy_id"`
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, cookieName string) *SessionStore {
	return &SessionStore{client: client, cookieName: cookieName}
}

// CookieName returns the cookie identifier used for sessions.
func (s *SessionStore) CookieName() string {
	return s.cookieName
}

// Load resolves the principal behind the request cookie. It returns
// ErrUnauthenticated when there is no cookie or the session expired.
func (s *SessionStore) Load(ctx context.Context, r *http.Request) (*Principal, error) {
	if s == nil || s.client == nil {
		return nil, ErrUnauthenticated
	}
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, ErrUnauthenticated
	}
	raw, err := s.client.Get(ctx, s.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("session: load: %w", err)
	}
	var stored sessionPayload
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return stored.principal()
}

// Save persists a principal under id. Used by tests and local tooling that
// stand in for the login service.
func (s *SessionStore) Save(ctx context.Context, id string, p Principal) error {
	payload := sessionPayload{UserID: p.UserID, Role: string(p.Role)}
	if p.PharmacyID != nil {
		payload.PharmacyID = p.PharmacyID.String()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.redisKey(id), data, 0).Err()
}

func (p sessionPayload) principal() (*Principal, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, ErrUnauthenticated
	}
	principal := &Principal{UserID: p.UserID, Role: ParseRole(p.Role)}
	if p.PharmacyID != "" {
		id, err := uuid.Parse(p.PharmacyID)
		if err != nil {
			return nil, fmt.Errorf("session: pharmacy id: %w", err)
		}
		principal.PharmacyID = &id
	}
	return principal, nil
}

func (s *SessionStore) redisKey(id string) string {
	return "session:" + id
}
