package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
//
// Two caller kinds share it:
// - platform users: UserID + TenantID + Role
// - registered external applications: AppID (+ AppName) + TenantID, Role "external_app"
//
// Multi-tenant invariant: TenantID must be present on every access token.
// Consent checks never trust claims alone; the engine re-reads grant state on
// every request.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id,omitempty"`
	AppID     string    `json:"app_id,omitempty"`
	AppName   string    `json:"app_name,omitempty"`
	TenantID  string    `json:"tenant_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
