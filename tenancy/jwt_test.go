package tenancy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testKey = []byte("test-signing-key")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(testKey)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func TestJWTExtractor_FromToken(t *testing.T) {
	e := NewJWTExtractor(JWTConfig{}, NewStaticKeyProvider(testKey))

	tests := []struct {
		name          string
		claims        jwt.MapClaims
		wantTenant    string
		wantPrincipal string
	}{
		{
			name:          "user token",
			claims:        jwt.MapClaims{"zid": "t1", "user_name": "alice", "client_id": "app"},
			wantTenant:    "t1",
			wantPrincipal: "alice",
		},
		{
			name:          "client credentials token",
			claims:        jwt.MapClaims{"zid": "t2", "client_id": "app"},
			wantTenant:    "t2",
			wantPrincipal: "app",
		},
		{
			name:          "subject only",
			claims:        jwt.MapClaims{"sub": "svc"},
			wantTenant:    "",
			wantPrincipal: "svc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := e.FromToken(context.Background(), signToken(t, tt.claims))
			if err != nil {
				t.Fatalf("FromToken() error = %v", err)
			}
			if got := TenantID(ctx); got != tt.wantTenant {
				t.Errorf("tenant = %q, want %q", got, tt.wantTenant)
			}
			if got := PrincipalID(ctx); got != tt.wantPrincipal {
				t.Errorf("principal = %q, want %q", got, tt.wantPrincipal)
			}
		})
	}
}

func TestJWTExtractor_CustomClaims(t *testing.T) {
	e := NewJWTExtractor(JWTConfig{
		TenantClaim:    "tenant",
		SubdomainClaim: "subdomain",
		PrincipalClaim: "email",
	}, NewStaticKeyProvider(testKey))

	ctx, err := e.FromToken(context.Background(), signToken(t, jwt.MapClaims{
		"tenant":    "t9",
		"subdomain": "acme",
		"email":     "a@example.com",
		"user_name": "ignored",
	}))
	if err != nil {
		t.Fatalf("FromToken() error = %v", err)
	}
	tenant, _ := TenantFromContext(ctx)
	if tenant.ID != "t9" || tenant.Subdomain != "acme" {
		t.Errorf("tenant = %+v, want t9/acme", tenant)
	}
	if got := PrincipalID(ctx); got != "a@example.com" {
		t.Errorf("principal = %q, want a@example.com", got)
	}
}

func TestJWTExtractor_Errors(t *testing.T) {
	e := NewJWTExtractor(JWTConfig{Issuer: "https://issuer"}, NewStaticKeyProvider(testKey))

	expired := signToken(t, jwt.MapClaims{
		"iss": "https://issuer",
		"exp": float64(time.Now().Add(-time.Hour).Unix()),
	})
	wrongIssuer := signToken(t, jwt.MapClaims{"iss": "https://other", "zid": "t1"})

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not-a-jwt", ErrTokenMalformed},
		{"expired", expired, ErrTokenExpired},
		{"wrong issuer", wrongIssuer, ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := e.FromToken(context.Background(), tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("FromToken() error = %v, want %v", err, tt.want)
			}
			if TenantID(ctx) != "" {
				t.Error("failed extraction must not attach a tenant")
			}
		})
	}
}

func TestJWTExtractor_FromHeaders(t *testing.T) {
	e := NewJWTExtractor(JWTConfig{}, NewStaticKeyProvider(testKey))
	token := signToken(t, jwt.MapClaims{"zid": "t1", "user_name": "alice"})

	ctx, err := e.FromHeaders(context.Background(), map[string][]string{
		"Authorization": {"Bearer " + token},
	})
	if err != nil {
		t.Fatalf("FromHeaders() error = %v", err)
	}
	if TenantID(ctx) != "t1" {
		t.Errorf("tenant = %q, want t1", TenantID(ctx))
	}

	_, err = e.FromHeaders(context.Background(), map[string][]string{
		"Authorization": {"Basic abc"},
	})
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("FromHeaders(basic) error = %v, want ErrMissingToken", err)
	}
}
