// Package admintoken validates the long-lived AEM_ADMIN_API_AUTH_TOKEN for
// issuer, roles, and expiry before it is handed to adminsched, which sends it
// in the x-auth-token header.
package admintoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wisbric/pdpsync/internal/apperr"
)

// Claims are the subset of the admin token's JWT claims the scheduler cares
// about.
type Claims struct {
	Issuer    string
	Roles     []string
	ExpiresAt time.Time
}

// RequiredRole is the role the admin token must carry to authorize bulk
// publish/unpublish jobs.
const RequiredRole = "aem-admin"

// Validate parses token without verifying its signature — pdpsync is not
// the token's issuer and has no verification key, only the contract it was
// issued one by Adobe IMS — and checks issuer, role, and expiry.
//
// An empty token is accepted as "no long-lived token configured"; adminsched
// then sends its requests without any auth header.
func Validate(token, expectIssuer string, now time.Time) (Claims, error) {
	if token == "" {
		return Claims{}, nil
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, &apperr.CredentialsMissing{Field: "aem_admin_api_auth_token", Cause: fmt.Errorf("parsing token: %w", err)}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, &apperr.CredentialsMissing{Field: "aem_admin_api_auth_token", Cause: fmt.Errorf("unexpected claims type")}
	}

	c := Claims{}
	if iss, _ := claims.GetIssuer(); iss != "" {
		c.Issuer = iss
	}
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		c.ExpiresAt = exp.Time
	}
	if roles, ok := claims["roles"].([]any); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				c.Roles = append(c.Roles, s)
			}
		}
	}

	if expectIssuer != "" && c.Issuer != expectIssuer {
		return c, &apperr.CredentialsMissing{Field: "aem_admin_api_auth_token", Cause: fmt.Errorf("unexpected issuer %q", c.Issuer)}
	}
	if !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now) {
		return c, &apperr.CredentialsMissing{Field: "aem_admin_api_auth_token", Cause: fmt.Errorf("token expired at %s", c.ExpiresAt)}
	}
	if !hasRole(c.Roles, RequiredRole) {
		return c, &apperr.CredentialsMissing{Field: "aem_admin_api_auth_token", Cause: fmt.Errorf("missing required role %q", RequiredRole)}
	}

	return c, nil
}

func hasRole(roles []string, want string) bool {
	if len(roles) == 0 {
		return true // tokens without a roles claim are accepted — not every IMS token carries one
	}
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
