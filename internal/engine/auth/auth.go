package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"jobledger/internal/domain"
	"jobledger/internal/repo"
)

var (
	ErrNoCredentials      = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type ProfileReader interface {
	GetProfile(ctx context.Context, tx *sql.Tx, id int64) (domain.Profile, error)
}

// Authenticator resolves request credentials to a stored profile.
type Authenticator struct {
	Profiles ProfileReader
	// JWTSecret enables HS256 bearer tokens whose subject is the profile id.
	JWTSecret string
	// AllowProfileHeader trusts a bare profile id supplied by the caller.
	AllowProfileHeader bool
}

// Credentials are the raw values taken from a request.
type Credentials struct {
	ProfileID string
	Bearer    string
}

type Principal struct {
	Profile domain.Profile
	Source  string
}

// Authenticate prefers a bearer token and falls back to the trusted profile header.
func (a Authenticator) Authenticate(ctx context.Context, c Credentials) (Principal, error) {
	if tok := strings.TrimSpace(c.Bearer); tok != "" {
		id, err := a.verifyToken(tok)
		if err != nil {
			return Principal{}, err
		}
		return a.resolve(ctx, id, "jwt")
	}
	raw := strings.TrimSpace(c.ProfileID)
	if raw == "" || !a.AllowProfileHeader {
		return Principal{}, ErrNoCredentials
	}
	id, err := ParseProfileID(raw)
	if err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	return a.resolve(ctx, id, "header")
}

func (a Authenticator) resolve(ctx context.Context, id int64, source string) (Principal, error) {
	p, err := a.Profiles.GetProfile(ctx, nil, id)
	if errors.Is(err, repo.ErrNotFound) {
		return Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return Principal{}, fmt.Errorf("load profile %d: %w", id, err)
	}
	return Principal{Profile: p, Source: source}, nil
}

func (a Authenticator) verifyToken(token string) (int64, error) {
	if strings.TrimSpace(a.JWTSecret) == "" {
		return 0, ErrInvalidCredentials
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(a.JWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidCredentials
	}
	id, err := ParseProfileID(claims.Subject)
	if err != nil {
		return 0, ErrInvalidCredentials
	}
	return id, nil
}

// IssueToken signs a bearer token for the profile.
func (a Authenticator) IssueToken(profileID int64, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(a.JWTSecret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims := jwt.RegisteredClaims{
		Subject:  strconv.FormatInt(profileID, 10),
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.JWTSecret))
}

func ParseProfileID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid profile id %q", s)
	}
	return id, nil
}
