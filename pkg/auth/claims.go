package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/oyunkod/oyunkod-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     enums.ActorRole
	JTI      string
}

// AccessTokenClaims is the typed JWT issued to panel users and service
// accounts. Every token is tenant-bound; there is no cross-tenant token.
type AccessTokenClaims struct {
	UserID   uuid.UUID       `json:"user_id"`
	TenantID uuid.UUID       `json:"tenant_id"`
	Role     enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
