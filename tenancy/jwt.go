package tenancy

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures how tenant and principal are read from a token.
type JWTConfig struct {
	// Issuer is the expected token issuer (iss claim). Empty disables the check.
	Issuer string

	// HeaderName is the header containing the token.
	// Default: "Authorization"
	HeaderName string

	// TokenPrefix is the prefix before the token in the header.
	// Default: "Bearer "
	TokenPrefix string

	// TenantClaim is the claim containing the tenant ID.
	// Default: "zid"
	TenantClaim string

	// SubdomainClaim is the claim containing the tenant subdomain.
	// Only top-level claims are read. Empty leaves Subdomain unset.
	SubdomainClaim string

	// PrincipalClaim is the claim containing the principal ID.
	// Default: "user_name", falling back to "client_id" and then "sub".
	PrincipalClaim string
}

// KeyProvider retrieves signing keys for JWT validation.
type KeyProvider interface {
	// GetKey returns the key for the given key ID.
	GetKey(ctx context.Context, keyID string) (any, error)
}

// StaticKeyProvider provides a static signing key.
type StaticKeyProvider struct {
	key []byte
}

// NewStaticKeyProvider creates a static key provider.
func NewStaticKeyProvider(key []byte) *StaticKeyProvider {
	return &StaticKeyProvider{key: key}
}

// GetKey returns the static key.
func (p *StaticKeyProvider) GetKey(_ context.Context, _ string) (any, error) {
	return p.key, nil
}

// JWTExtractor validates a bearer token and derives the tenant and principal
// it was issued for.
type JWTExtractor struct {
	config      JWTConfig
	keyProvider KeyProvider
}

// NewJWTExtractor creates a new extractor.
func NewJWTExtractor(config JWTConfig, keyProvider KeyProvider) *JWTExtractor {
	if config.HeaderName == "" {
		config.HeaderName = "Authorization"
	}
	if config.TokenPrefix == "" {
		config.TokenPrefix = "Bearer "
	}
	if config.TenantClaim == "" {
		config.TenantClaim = "zid"
	}

	return &JWTExtractor{
		config:      config,
		keyProvider: keyProvider,
	}
}

// FromHeaders reads the token from the configured header and returns a
// context carrying the token's tenant and principal.
func (e *JWTExtractor) FromHeaders(ctx context.Context, headers map[string][]string) (context.Context, error) {
	values := headers[e.config.HeaderName]
	if len(values) == 0 {
		return ctx, ErrMissingToken
	}
	header := values[0]
	token := strings.TrimPrefix(header, e.config.TokenPrefix)
	if token == header {
		return ctx, ErrMissingToken
	}
	return e.FromToken(ctx, strings.TrimSpace(token))
}

// FromToken validates tokenString and returns a context carrying its tenant
// and principal. Claims that are absent leave the corresponding value unset.
func (e *JWTExtractor) FromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return e.keyProvider.GetKey(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ctx, ErrTokenExpired
		}
		return ctx, ErrTokenMalformed
	}
	if !token.Valid {
		return ctx, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ctx, ErrTokenMalformed
	}

	if e.config.Issuer != "" {
		if iss, _ := claims["iss"].(string); iss != e.config.Issuer {
			return ctx, ErrTokenInvalid
		}
	}

	if tenant := e.tenant(claims); tenant.ID != "" {
		ctx = WithTenant(ctx, tenant)
	}
	if principal := e.principal(claims); principal.ID != "" {
		ctx = WithPrincipal(ctx, principal)
	}
	return ctx, nil
}

func (e *JWTExtractor) tenant(claims jwt.MapClaims) Tenant {
	t := Tenant{}
	t.ID, _ = claims[e.config.TenantClaim].(string)
	if e.config.SubdomainClaim != "" {
		t.Subdomain, _ = claims[e.config.SubdomainClaim].(string)
	}
	return t
}

func (e *JWTExtractor) principal(claims jwt.MapClaims) Principal {
	p := Principal{Claims: make(map[string]any, len(claims))}
	for k, v := range claims {
		p.Claims[k] = v
	}

	candidates := []string{"user_name", "client_id", "sub"}
	if e.config.PrincipalClaim != "" {
		candidates = []string{e.config.PrincipalClaim}
	}
	for _, name := range candidates {
		if id, ok := claims[name].(string); ok && id != "" {
			p.ID = id
			break
		}
	}

	if exp, ok := claims["exp"].(float64); ok {
		p.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return p
}

// Ensure StaticKeyProvider implements KeyProvider
var _ KeyProvider = (*StaticKeyProvider)(nil)
