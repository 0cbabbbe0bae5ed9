package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

const revokedPrefix = "revoked:"

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 session tokens. Revocation is tracked by
// token id in a KV until the token would have expired anyway.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	kv     KV
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration, kv KV) (*Tokens, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if kv == nil {
		kv = NewMemoryKV()
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, kv: kv, now: time.Now}, nil
}

func (t *Tokens) Issue(id Identity) (string, error) {
	now := t.now()
	claims := Claims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (t *Tokens) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verify checks signature, expiry and revocation.
func (t *Tokens) Verify(ctx context.Context, tokenString string) (Identity, error) {
	claims, err := t.parse(tokenString)
	if err != nil {
		return Identity{}, err
	}
	_, err = t.kv.Get(ctx, revokedPrefix+claims.ID)
	switch {
	case err == nil:
		return Identity{}, ErrTokenRevoked
	case !errors.Is(err, ErrMiss):
		return Identity{}, fmt.Errorf("check revocation: %w", err)
	}
	return Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// Revoke invalidates a token for the rest of its lifetime. Revoking an
// already invalid token is a no-op.
func (t *Tokens) Revoke(ctx context.Context, tokenString string) error {
	claims, err := t.parse(tokenString)
	if err != nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(t.now())
	if ttl <= 0 {
		return nil
	}
	if err := t.kv.Set(ctx, revokedPrefix+claims.ID, claims.Subject, ttl); err != nil {
		return fmt.Errorf("store revocation: %w", err)
	}
	return nil
}
