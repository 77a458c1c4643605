// Package auth resolves the caller of an API request from a bearer token or
// the session cookie set by the login service.
package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pharmalytics/pharmalytics/internal/platform/httpx"
	"github.com/pharmalytics/pharmalytics/internal/shared"
)

// Authenticator puts the request principal into the context.
type Authenticator struct {
	logger   *slog.Logger
	tokens   *Tokens
	sessions *shared.SessionStore
}

// NewAuthenticator wires the two principal sources. Either may be nil.
func NewAuthenticator(logger *slog.Logger, tokens *Tokens, sessions *shared.SessionStore) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{logger: logger, tokens: tokens, sessions: sessions}
}

// Middleware rejects requests without a principal with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.Principal(r)
		if err != nil {
			httpx.Fail(w, r, a.logger, "auth", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// Principal resolves the caller. A bearer token, when present, is authoritative.
func (a *Authenticator) Principal(r *http.Request) (*shared.Principal, error) {
	if raw, ok := bearer(r); ok {
		if a.tokens == nil {
			return nil, shared.ErrUnauthenticated
		}
		p, err := a.tokens.Verify(raw)
		if err != nil {
			a.logger.Debug("bearer rejected", slog.Any("error", err))
			return nil, shared.ErrUnauthenticated
		}
		return p, nil
	}
	p, err := a.sessions.Load(r.Context(), r)
	if err != nil {
		if errors.Is(err, shared.ErrUnauthenticated) {
			return nil, err
		}
		return nil, &shared.UpstreamError{Op: "session lookup", Err: err}
	}
	return p, nil
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[7:])
	return token, token != ""
}
