package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nocturnal-archive/gateway/internal/apperr"
)

// claims is the signed payload of a gateway token: self-contained and
// verifiable without a storage round-trip.
type claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// tokenCodec issues and verifies HMAC-signed JWTs.
type tokenCodec struct {
	signingKey []byte
	ttl        time.Duration
}

func newTokenCodec(signingKey string, ttl time.Duration) *tokenCodec {
	return &tokenCodec{signingKey: []byte(signingKey), ttl: ttl}
}

// issue mints a new signed token bound to userID, expiring after the
// codec's configured TTL.
func (c *tokenCodec) issue(tokenID, userID string, issuedAt time.Time) (raw string, expiresAt time.Time, err error) {
	expiresAt = issuedAt.Add(c.ttl)
	cl := claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, cl)
	raw, err = tok.SignedString(c.signingKey)
	return raw, expiresAt, err
}

// verify validates raw and returns the bound user id. Returns an
// *apperr.Error with Kind Expired or Malformed on failure, matching
// the service's validate() contract.
func (c *tokenCodec) verify(raw string, now time.Time) (userID string, err error) {
	var cl claims
	parsed, err := jwt.ParseWithClaims(raw, &cl, func(t *jwt.Token) (interface{}, error) {
		return c.signingKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperr.New(apperr.Expired, "token expired")
		}
		return "", apperr.Wrap(apperr.Malformed, "token could not be parsed", err)
	}
	if !parsed.Valid || cl.UserID == "" {
		return "", apperr.New(apperr.Malformed, "token claims invalid")
	}
	if cl.ExpiresAt != nil && !now.Before(cl.ExpiresAt.Time) {
		return "", apperr.New(apperr.Expired, "token expired")
	}
	return cl.UserID, nil
}
