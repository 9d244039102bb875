package tokens

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by a tenant access token. Group names the tenant the
// auth proxy scopes requests to, Role the quota tier it enforces.
type Claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Group string `json:"group"`
}

// DefaultRole is the quota tier tenants are bound to unless overridden.
const DefaultRole = "CSIBronze"

// Registered claim values the auth proxy validates.
const (
	issuer   = "com.dell.karavi"
	audience = "karavi"
	subject  = "karavi-tenant"
)

// Fixed expiry used by the provisioning flow, September 2030.
var expiresAt = time.Unix(1914886001, 0)

// Generate mints count HS256 access tokens signed with secret, each
// for a freshly named tenant group.
func Generate(count int, secret, role string) ([]string, error) {
	tokens := make([]string, 0, count)
	for i := 0; i < count; i++ {
		token, err := GenerateForTenant(uuid.New().String(), secret, role)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// GenerateForTenant mints one access token for the named tenant group.
func GenerateForTenant(tenant, secret, role string) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:  role,
		Group: tenant,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token for tenant %s: %w", tenant, err)
	}
	return signed, nil
}
