package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pharmalytics/pharmalytics/internal/shared"
)

// ErrInvalidToken covers malformed, expired and wrongly signed bearer tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims carried by bearer tokens issued by the login service.
type Claims struct {
	jwt.RegisteredClaims
	Role       string `json:"role"`
	PharmacyID string `json:"pharmacy_id,omitempty"`
}

// Tokens verifies HS256 bearer tokens.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens constructs a verifier for secret.
func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), now: time.Now}
}

// Verify parses raw and returns the principal it names.
func (t *Tokens) Verify(raw string) (*shared.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	p := &shared.Principal{UserID: claims.Subject, Role: shared.ParseRole(claims.Role)}
	if claims.PharmacyID != "" {
		id, err := uuid.Parse(claims.PharmacyID)
		if err != nil {
			return nil, fmt.Errorf("%w: pharmacy_id: %v", ErrInvalidToken, err)
		}
		p.PharmacyID = &id
	}
	return p, nil
}

// Issue signs a token for p. The dashboard only verifies tokens; Issue backs
// tests and local tooling.
func (t *Tokens) Issue(p shared.Principal, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(p.Role),
	}
	if p.PharmacyID != nil {
		claims.PharmacyID = p.PharmacyID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}
