package auth

import "github.com/golang-jwt/jwt/v5"

type Scope string

const (
	// ScopeOps grants access to the polling controls and report downloads.
	ScopeOps Scope = "ops"
)

// Claims are the only supported JWT claims shape for this service.
// Subject names the operator and is carried into audit entries; tokens
// without a subject are rejected.
type Claims struct {
	jwt.RegisteredClaims

	Scope Scope `json:"scope"`
}
