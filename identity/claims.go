package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-fleet-portal/internal/utils"
)

// ownerIDClaims lists the claim names a provider may use for the owner id,
// in order of preference.
var ownerIDClaims = []string{"ownerId", "custom:ownerId", "https://schemas.fleet.com/ownerId"}

// Claims is the subset of access-token claims the portal reads.
type Claims struct {
	Subject   string
	Email     string
	Name      string
	OwnerID   string
	Roles     []string
	ExpiresAt time.Time
}

// ParseClaims reads claims from a JWT access token without verifying its
// signature. The backend verifies tokens; the client only reads them.
func ParseClaims(accessToken string) (Claims, error) {
	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, mapClaims); err != nil {
		return Claims{}, fmt.Errorf("failed to parse token claims: %w", err)
	}

	claims := Claims{}
	claims.Subject, _ = mapClaims.GetSubject()
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	claims.Email, _ = mapClaims["email"].(string)
	claims.Name, _ = mapClaims["name"].(string)

	for _, name := range ownerIDClaims {
		if v, ok := mapClaims[name].(string); ok && v != "" {
			claims.OwnerID = v
			break
		}
	}

	claims.Roles = utils.ToStringSlice(mapClaims["roles"])
	if len(claims.Roles) == 0 {
		claims.Roles = utils.ToStringSlice(mapClaims["groups"])
	}
	return claims, nil
}
