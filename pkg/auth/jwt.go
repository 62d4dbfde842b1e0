// Package auth issues and validates room-scoped participant credentials.
//
// A credential is an HS256 JWT whose claims bind an opaque participant
// token to exactly one room. The participant token is what gets recorded on
// each stored message and compared, by equality, to decide redaction on
// read-back. The JWT expiry is capped at the room's remaining TTL so a
// credential can never outlive its room.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidCredential is returned whenever no usable (room, token) pair
// can be resolved from a presented credential.
var ErrInvalidCredential = errors.New("auth: invalid credential")

// Claims binds a participant token to a single room.
type Claims struct {
	RoomID string `json:"room_id"`
	Token  string `json:"token"`
	jwt.RegisteredClaims
}

type contextKey string

// ClaimsKey is the request-context key under which validated claims are
// stored by the API's auth middleware.
const ClaimsKey contextKey = "claims"

// Authority signs and validates credentials with a shared secret.
type Authority struct {
	secret []byte
}

// NewAuthority creates an Authority from the configured signing secret.
func NewAuthority(secret string) *Authority {
	return &Authority{secret: []byte(secret)}
}

// Issue mints a fresh participant credential for roomID. remaining is the
// room's remaining TTL at issue time and bounds the credential's lifetime.
func (a *Authority) Issue(roomID string, remaining time.Duration) (string, error) {
	claims := &Claims{
		RoomID: roomID,
		Token:  uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(remaining)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Validate parses and verifies a credential, returning its claims. Any
// parse, signature, or expiry failure maps to ErrInvalidCredential.
func (a *Authority) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredential
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredential
	}
	if claims.RoomID == "" || claims.Token == "" {
		return nil, ErrInvalidCredential
	}

	return claims, nil
}

// FromRequest extracts the raw credential string from a request: the
// Authorization Bearer header, falling back to a "token" query parameter
// for websocket clients that cannot set headers.
func FromRequest(r *http.Request) string {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	return tokenString
}
