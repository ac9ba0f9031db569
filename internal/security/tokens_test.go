package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenProvider_RoundTrip(t *testing.T) {
	clock := NewTestClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	p := NewTestTokenProvider(clock.Now)

	tests := []struct {
		purpose Purpose
		ttl     time.Duration
	}{
		{PurposeAccess, DefaultAccessTTL},
		{PurposeRefresh, DefaultRefreshTTL},
		{PurposeEmailVerification, DefaultVerificationTTL},
		{PurposePasswordReset, DefaultPasswordResetTTL},
	}
	for _, tt := range tests {
		t.Run(string(tt.purpose), func(t *testing.T) {
			tok, err := p.Issue("user-1", tt.purpose, "", 0)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			claims, err := p.Verify(tok)
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if claims.Subject != "user-1" {
				t.Errorf("Subject = %q, want user-1", claims.Subject)
			}
			if claims.Purpose != tt.purpose {
				t.Errorf("Purpose = %q, want %q", claims.Purpose, tt.purpose)
			}
			if claims.ID == "" {
				t.Error("jti should be generated when empty")
			}
			if want := clock.Now().Add(tt.ttl); !claims.ExpiresAtTime().Equal(want) {
				t.Errorf("exp = %v, want %v", claims.ExpiresAtTime(), want)
			}
			if !claims.IssuedAt.Time.Equal(clock.Now()) {
				t.Errorf("iat = %v, want %v", claims.IssuedAt.Time, clock.Now())
			}
		})
	}
}

func TestTokenProvider_ExplicitJTIAndTTL(t *testing.T) {
	clock := NewTestClock(time.Now())
	p := NewTestTokenProvider(clock.Now)

	tok, err := p.Issue("user-2", PurposeRefresh, "fixed-jti", 10*time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := p.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.ID != "fixed-jti" {
		t.Errorf("jti = %q, want fixed-jti", claims.ID)
	}
	if got := claims.ExpiresAtTime().Sub(clock.Now()); got != 10*time.Second {
		t.Errorf("lifetime = %v, want 10s", got)
	}
}

func TestTokenProvider_ExpiryBoundary(t *testing.T) {
	clock := NewTestClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	p := NewTestTokenProvider(clock.Now)

	tok, err := p.Issue("user-1", PurposeAccess, "", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Advance(time.Minute - time.Second)
	if _, err := p.Verify(tok); err != nil {
		t.Fatalf("Verify one second before exp: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := p.Verify(tok); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Verify at exp: want ErrTokenExpired, got %v", err)
	}

	clock.Advance(time.Hour)
	if _, err := p.Verify(tok); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Verify after exp: want ErrTokenExpired, got %v", err)
	}
}

func TestTokenProvider_Invalid(t *testing.T) {
	clock := NewTestClock(time.Now())
	p := NewTestTokenProvider(clock.Now)

	other, err := NewTokenProvider(TokenConfig{Secret: []byte("another-secret"), Now: clock.Now})
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	wrongSecret, _ := other.Issue("user-1", PurposeAccess, "", 0)

	hs512, err := NewTokenProvider(TokenConfig{Secret: []byte(testSecret), Algorithm: "HS512", Now: clock.Now})
	if err != nil {
		t.Fatalf("NewTokenProvider HS512: %v", err)
	}
	wrongAlg, _ := hs512.Issue("user-1", PurposeAccess, "", 0)

	now := clock.Now()
	noJTI, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1", "type": "access",
		"iat": now.Unix(), "exp": now.Add(time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	unknownType, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1", "jti": "j", "type": "admin",
		"iat": now.Unix(), "exp": now.Add(time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1", "jti": "j", "type": "access", "iat": now.Unix(),
	}).SignedString([]byte(testSecret))
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-1", "jti": "j", "type": "access",
		"iat": now.Unix(), "exp": now.Add(time.Minute).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"malformed", "invalid-token"},
		{"empty", ""},
		{"wrong secret", wrongSecret},
		{"wrong algorithm", wrongAlg},
		{"missing jti", noJTI},
		{"unknown type", unknownType},
		{"missing exp", noExp},
		{"none algorithm", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify: want ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestTokenProvider_ExpiredWithBadSignatureIsInvalid(t *testing.T) {
	clock := NewTestClock(time.Now())
	p := NewTestTokenProvider(clock.Now)
	other, _ := NewTokenProvider(TokenConfig{Secret: []byte("another-secret"), Now: clock.Now})

	tok, err := other.Issue("user-1", PurposeRefresh, "", time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := p.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify: want ErrInvalidToken, got %v", err)
	}
}

func TestNewTokenProvider_Validation(t *testing.T) {
	if _, err := NewTokenProvider(TokenConfig{}); err == nil {
		t.Error("empty secret: expected error")
	}
	if _, err := NewTokenProvider(TokenConfig{Secret: []byte("s"), Algorithm: "RS256"}); err == nil {
		t.Error("RS256: expected error")
	}
	p, err := NewTokenProvider(TokenConfig{Secret: []byte("s"), AccessTTL: 5 * time.Minute})
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	if p.TTL(PurposeAccess) != 5*time.Minute {
		t.Errorf("TTL(access) = %v, want 5m", p.TTL(PurposeAccess))
	}
	if p.TTL(PurposeRefresh) != DefaultRefreshTTL {
		t.Errorf("TTL(refresh) = %v, want default", p.TTL(PurposeRefresh))
	}
}

func TestTokenProvider_IssueUnknownPurpose(t *testing.T) {
	p := NewTestTokenProvider(nil)
	if _, err := p.Issue("user-1", Purpose("admin"), "", 0); err == nil {
		t.Fatal("Issue with unknown purpose: expected error")
	}
}
