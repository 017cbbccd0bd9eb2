package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"shiftdesk.org/internal/obs"
)

const issuer = "shiftdesk"

// TokenType distinguishes access and refresh tokens; verification
// rejects a token presented for the wrong use.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the signed token payload. TokenVersion pins the token to
// the credential row's current version; bumping the version invalidates
// every outstanding token without per-token bookkeeping.
type Claims struct {
	EmployeeID         string `json:"employee_id"`
	Name               string `json:"name,omitempty"`
	Email              string `json:"email,omitempty"`
	Role               string `json:"role,omitempty"`
	MustChangePassword bool   `json:"must_change_password"`
	TokenVersion       int    `json:"token_version"`
	TokenType          string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies access/refresh tokens with a
// symmetric secret and a fixed algorithm (HS256).
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs the service. The secret is assumed to have
// passed config validation; an empty one is still rejected here as a
// last line of defense.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: token secret is not configured")
	}
	svc := &TokenService{
		secret:     []byte(secret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccess signs a short-lived access token for the user.
func (s *TokenService) IssueAccess(u *UserCredential) (string, time.Time, error) {
	return s.issue(u, TokenAccess, s.accessTTL)
}

// IssueRefresh signs a longer-lived refresh token for the user.
func (s *TokenService) IssueRefresh(u *UserCredential) (string, time.Time, error) {
	return s.issue(u, TokenRefresh, s.refreshTTL)
}

func (s *TokenService) issue(u *UserCredential, typ TokenType, ttl time.Duration) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		EmployeeID:         u.EmployeeID,
		Name:               u.Name,
		Email:              u.Email,
		Role:               string(u.Role),
		MustChangePassword: u.MustChangePassword,
		TokenVersion:       u.TokenVersion,
		TokenType:          string(typ),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	obs.ObserveTokenIssued(string(typ))
	return signed, exp, nil
}

// Verify decodes the token and checks signature, expiry and type.
// Failures map to distinct sentinels so callers can branch: an expired
// access token funnels into the refresh flow, a malformed one does not.
func (s *TokenService) Verify(token string, want TokenType) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != string(want) {
		return nil, ErrTokenWrongType
	}
	return claims, nil
}

// HashToken derives the storage key for the blacklist; raw tokens are
// never persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
