// Package auth implements the Auth Service: registration,
// login, and stateless token validation. Grounded on the Bearer-
// extraction shape used by this gateway's auth middleware — the
// service owns real issuance and verification end to end, signed
// with github.com/golang-jwt/jwt/v5.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/nocturnal-archive/gateway/internal/model"
	"github.com/nocturnal-archive/gateway/internal/store"
	"github.com/rs/zerolog"
)

// Service implements register/login/validate over a UserRepo and a
// signed-token codec.
type Service struct {
	users                 *store.UserRepo
	codec                 *tokenCodec
	autoRegisterOnUnknown bool
	logger                zerolog.Logger
	now                   func() time.Time
}

// New constructs the Auth Service.
func New(users *store.UserRepo, signingKey string, tokenTTL time.Duration, autoRegisterOnUnknown bool, logger zerolog.Logger) *Service {
	return &Service{
		users:                 users,
		codec:                 newTokenCodec(signingKey, tokenTTL),
		autoRegisterOnUnknown: autoRegisterOnUnknown,
		logger:                logger,
		now:                   time.Now,
	}
}

// Register creates a new user and issues a token. Fails with
// EMAIL_TAKEN or WEAK_PASSWORD.
func (s *Service) Register(ctx context.Context, email, password string) (model.Token, error) {
	if weakPassword(password) {
		return model.Token{}, apperr.New(apperr.WeakPassword, "password must be at least 8 characters")
	}

	hash, err := hashPassword(password)
	if err != nil {
		return model.Token{}, err
	}

	u := model.User{
		UserID:           uuid.NewString(),
		Email:            email,
		PasswordVerifier: hash,
		CreatedAt:        s.now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if err == store.ErrDuplicateEmail {
			return model.Token{}, apperr.New(apperr.EmailTaken, "email already registered")
		}
		return model.Token{}, err
	}

	return s.issueToken(u.UserID)
}

// Login validates credentials and issues a token. On an unknown email
// it either fails INVALID_CREDENTIALS or auto-registers, per the
// autoRegisterOnUnknown policy — defaults to false; see DESIGN.md.
func (s *Service) Login(ctx context.Context, email, password string) (model.Token, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err == store.ErrNotFound {
		if s.autoRegisterOnUnknown {
			s.logger.Info().Str("email", email).Msg("auto-registering unknown email on login")
			return s.Register(ctx, email, password)
		}
		return model.Token{}, apperr.New(apperr.InvalidCredentials, "invalid email or password")
	}
	if err != nil {
		return model.Token{}, err
	}

	if !verifyPassword(u.PasswordVerifier, password) {
		return model.Token{}, apperr.New(apperr.InvalidCredentials, "invalid email or password")
	}

	return s.issueToken(u.UserID)
}

// Validate verifies a bearer token and returns the bound user id.
// Fails with EXPIRED or MALFORMED.
func (s *Service) Validate(raw string) (string, error) {
	return s.codec.verify(raw, s.now())
}

func (s *Service) issueToken(userID string) (model.Token, error) {
	tokenID := uuid.NewString()
	issuedAt := s.now()
	raw, expiresAt, err := s.codec.issue(tokenID, userID, issuedAt)
	if err != nil {
		return model.Token{}, err
	}
	return model.Token{
		TokenID:   tokenID,
		UserID:    userID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Raw:       raw,
	}, nil
}
