package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Both token types carry the role; only access tokens pass
// RequireAccessToken, and a refresh re-resolves auditor roles from storage.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"token_type"`
}

func (c Claims) Session() Session {
	return Session{UserID: c.UserID, Name: c.Name, Role: c.Role}
}
