package auth

import "github.com/golang-jwt/jwt/v5"

// ScopeCallsCreate allows placing outbound calls.
const ScopeCallsCreate = "calls:create"

// Claims are the only supported JWT claims shape for this service.
// Operator names the client placing calls; it is recorded in logs only.
type Claims struct {
	jwt.RegisteredClaims

	Operator string `json:"operator"`
	Scope    string `json:"scope"`
}
