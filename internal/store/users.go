package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nocturnal-archive/gateway/internal/model"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicateEmail is returned by Create when the email already exists.
var ErrDuplicateEmail = errors.New("store: duplicate email")

// UserRepo is the single owner of the users table.
type UserRepo struct {
	db *DB
}

// NewUserRepo constructs a UserRepo over db.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row. Returns ErrDuplicateEmail if the email
// is already registered.
func (r *UserRepo) Create(ctx context.Context, u model.User) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO users (user_id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.UserID, u.Email, u.PasswordVerifier, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

// GetByEmail returns the user with the given email, or ErrNotFound.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	row := r.db.Pool.QueryRow(ctx,
		`SELECT user_id, email, password_hash, created_at FROM users WHERE email = $1`, email)
	err := row.Scan(&u.UserID, &u.Email, &u.PasswordVerifier, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// GetByID returns the user with the given user id, or ErrNotFound.
func (r *UserRepo) GetByID(ctx context.Context, userID string) (model.User, error) {
	var u model.User
	row := r.db.Pool.QueryRow(ctx,
		`SELECT user_id, email, password_hash, created_at FROM users WHERE user_id = $1`, userID)
	err := row.Scan(&u.UserID, &u.Email, &u.PasswordVerifier, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// nowUTCDate formats t as the YYYY-MM-DD key used by DailyQuota rows.
func nowUTCDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
