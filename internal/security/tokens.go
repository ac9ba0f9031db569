package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed, badly signed, or carries unusable claims.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a token's signature is valid but now >= exp.
	ErrTokenExpired = errors.New("token expired")
)

// Purpose is the value of the "type" claim and restricts what a token may be used for.
type Purpose string

const (
	PurposeAccess            Purpose = "access"
	PurposeRefresh           Purpose = "refresh"
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeAccess, PurposeRefresh, PurposeEmailVerification, PurposePasswordReset:
		return true
	}
	return false
}

// Claims is the claim set carried by every token: sub, iat, exp, jti and type.
type Claims struct {
	jwt.RegisteredClaims
	Purpose Purpose `json:"type"`
}

// ExpiresAtTime returns exp as a time.Time (zero if absent).
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// TokenConfig configures a TokenProvider. Zero TTLs fall back to the package defaults.
type TokenConfig struct {
	// Secret is the HMAC signing key.
	Secret []byte
	// Algorithm is HS256, HS384 or HS512. Empty means HS256.
	Algorithm        string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
	// Now overrides the clock used for iat/exp and validation. Nil means time.Now.
	Now func() time.Time
}

// Default lifetimes per purpose.
const (
	DefaultAccessTTL        = 3 * time.Minute
	DefaultRefreshTTL       = 30 * 24 * time.Hour
	DefaultVerificationTTL  = time.Hour
	DefaultPasswordResetTTL = time.Hour
)

var hmacMethods = map[string]*jwt.SigningMethodHMAC{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// SupportedAlgorithm reports whether alg can be used as TokenConfig.Algorithm.
func SupportedAlgorithm(alg string) bool {
	_, ok := hmacMethods[alg]
	return ok
}

// TokenProvider issues and verifies purpose-bound JWTs signed with a shared HMAC secret.
// It holds no mutable state and is safe for concurrent use.
type TokenProvider struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttls   map[Purpose]time.Duration
	now    func() time.Time
}

// NewTokenProvider validates cfg and returns a TokenProvider.
func NewTokenProvider(cfg TokenConfig) (*TokenProvider, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("security: signing secret must not be empty")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = "HS256"
	}
	method, ok := hmacMethods[alg]
	if !ok {
		return nil, fmt.Errorf("security: unsupported signing algorithm %q", alg)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenProvider{
		secret: cfg.Secret,
		method: method,
		ttls: map[Purpose]time.Duration{
			PurposeAccess:            orDefault(cfg.AccessTTL, DefaultAccessTTL),
			PurposeRefresh:           orDefault(cfg.RefreshTTL, DefaultRefreshTTL),
			PurposeEmailVerification: orDefault(cfg.VerificationTTL, DefaultVerificationTTL),
			PurposePasswordReset:     orDefault(cfg.PasswordResetTTL, DefaultPasswordResetTTL),
		},
		now: now,
	}, nil
}

// TTL returns the default lifetime for purpose.
func (p *TokenProvider) TTL(purpose Purpose) time.Duration {
	return p.ttls[purpose]
}

// Now returns the provider clock, so callers compute remaining lifetimes against the same time source.
func (p *TokenProvider) Now() time.Time {
	return p.now()
}

// Issue signs a token for subject with the given purpose. An empty jti is replaced by a fresh one;
// a zero ttl uses the purpose default.
func (p *TokenProvider) Issue(subject string, purpose Purpose, jti string, ttl time.Duration) (string, error) {
	if !purpose.Valid() {
		return "", fmt.Errorf("security: unknown token purpose %q", purpose)
	}
	if jti == "" {
		jti = NewJTI()
	}
	if ttl <= 0 {
		ttl = p.ttls[purpose]
	}
	now := p.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Purpose: purpose,
	}
	return jwt.NewWithClaims(p.method, claims).SignedString(p.secret)
}

// Verify checks signature, algorithm and expiry and returns the claims.
// Returns ErrTokenExpired when now >= exp and the token is otherwise valid, ErrInvalidToken for anything else.
func (p *TokenProvider) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return p.secret, nil
		},
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" || claims.IssuedAt == nil || !claims.Purpose.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewJTI returns a fresh token id.
func NewJTI() string {
	return uuid.NewString()
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
