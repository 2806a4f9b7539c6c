// Package media hands out short-lived channel tokens for the external media provider.
package media

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ChannelClaims bind a token to one channel and one user.
type ChannelClaims struct {
	jwt.RegisteredClaims

	Channel string `json:"channel"`
	UserID  string `json:"user_id"`
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("MEDIA_TOKEN_SECRET is required")
	}
	if ttl <= 0 {
		return nil, errors.New("media token ttl must be positive")
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}, nil
}

func (i *Issuer) Issue(now time.Time, channel, userID string) (string, time.Time, error) {
	exp := now.Add(i.ttl)
	claims := ChannelClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Channel: channel,
		UserID:  userID,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, exp, nil
}

// Parse verifies a token and returns its claims. Used by media edges and tests.
func (i *Issuer) Parse(token string, now time.Time) (ChannelClaims, error) {
	var claims ChannelClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}); err != nil {
		return ChannelClaims{}, err
	}
	if claims.Channel == "" || claims.UserID == "" {
		return ChannelClaims{}, errors.New("media: channel claims missing")
	}
	return claims, nil
}
