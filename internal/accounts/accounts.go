// internal/accounts/accounts.go
//
// Player accounts and session tokens.
// Responsibilities:
//   - Signup validation and bcrypt password hashing.
//   - User lookup by id or username (case-insensitive).
//   - HS256 session JWTs carrying {id, username}.
//   - Seeding the admin account at startup.
//
// The username is the identity the game sees: it is what MakeGuess and the
// admin check receive as caller.

package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidUsername = errors.New("username must be 3-24 letters, numbers or underscores")
	ErrInvalidPassword = errors.New("password must be 8-100 chars")
	ErrUsernameTaken   = errors.New("username taken")
	ErrBadCredentials  = errors.New("invalid username or password")
	ErrNotFound        = errors.New("user not found")
	ErrInvalidToken    = errors.New("invalid token")
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Claims is what a session token proves.
type Claims struct {
	ID       string
	Username string
}

type Service struct {
	db     *sql.DB
	secret []byte
	ttl    time.Duration
}

// NewService returns an account service over the users table. Tokens are
// signed with secret and expire after ttl.
func NewService(db *sql.DB, secret string, ttl time.Duration) *Service {
	return &Service{db: db, secret: []byte(secret), ttl: ttl}
}

func normalizeUsername(u string) string {
	return strings.TrimSpace(u)
}

// Validate checks signup input.
func Validate(username, password string) error {
	if len(username) < 3 || len(username) > 24 {
		return ErrInvalidUsername
	}
	for _, r := range username {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ErrInvalidUsername
		}
	}
	if len(password) < 8 || len(password) > 100 {
		return ErrInvalidPassword
	}
	return nil
}

// Create registers a new user.
func (s *Service) Create(ctx context.Context, username, password string) (*User, error) {
	username = normalizeUsername(username)
	if err := Validate(username, password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?,?,?,?)
		 ON CONFLICT(username) DO NOTHING`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrUsernameTaken
	}
	return u, nil
}

// Authenticate returns the user if password matches.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.FindByUsername(ctx, normalizeUsername(username))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return u, nil
}

func (s *Service) FindByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username=?`, username))
}

func (s *Service) FindByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id=?`, id))
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u       User
		created string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &u, nil
}

// ErrAdminCaseMismatch is returned when the admin name is held by an account
// whose stored spelling differs only in case.
var ErrAdminCaseMismatch = errors.New("admin username differs in case from the registered account")

// EnsureAdmin creates the admin account if it does not exist. An existing
// account is left untouched. An empty password only checks for existence.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (*User, error) {
	u, err := s.FindByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		if password == "" {
			return nil, fmt.Errorf("admin %q does not exist and no password is configured", username)
		}
		u, err = s.Create(ctx, username, password)
		if errors.Is(err, ErrUsernameTaken) {
			u, err = s.FindByUsername(ctx, username)
		}
	}
	if err != nil {
		return nil, err
	}
	if u.Username != username {
		return nil, fmt.Errorf("%w: configured %q, registered %q", ErrAdminCaseMismatch, username, u.Username)
	}
	return u, nil
}

// Sign issues a session token for u.
func (s *Service) Sign(u *User) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       u.ID,
		"username": u.Username,
		"exp":      exp.Unix(),
		"iat":      now.Unix(),
	})
	ss, err := token.SignedString(s.secret)
	return ss, exp, err
}

// Parse validates a session token and returns its claims.
func (s *Service) Parse(tokenStr string) (Claims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	id, _ := claims["id"].(string)
	username, _ := claims["username"].(string)
	if id == "" || username == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{ID: id, Username: username}, nil
}
