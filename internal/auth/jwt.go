package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"meter_gateway/internal/config"
	"meter_gateway/internal/utils"
)

// Admin auth types recorded in the JWT so the audit trail can tell a human
// login from a service-token exchange.
const (
	AdminAuthTypeUser  = "user"
	AdminAuthTypeToken = "token"
)

// adminJWTLifetime is deliberately short; admin JWTs are re-minted via the
// login endpoints, never refreshed.
const adminJWTLifetime = 15 * time.Minute

// AdminClaims is the decoded payload of an admin JWT.
type AdminClaims struct {
	AdminID     string
	AuthType    string
	Email       string
	ServiceName string
	Roles       []string
}

// GenerateAdminJWTWithPassword authenticates an operator by email and
// password and mints a short-lived HS256 admin JWT carrying the operator's
// roles. Returns the signed token and its expiry as a Unix timestamp.
func GenerateAdminJWTWithPassword(ctx context.Context, email, password string, store AdminStore, cfg *config.Config) (string, int64, error) {
	user, err := store.GetAdminUserByEmail(ctx, email)
	if err != nil {
		return "", 0, fmt.Errorf("invalid credentials")
	}

	if !user.IsValid() {
		return "", 0, fmt.Errorf("account disabled")
	}

	valid, err := utils.VerifyPasswordArgon2(password, user.PasswordHash)
	if err != nil || !valid {
		return "", 0, fmt.Errorf("invalid credentials")
	}

	// Best-effort; a failed timestamp update must not block the login.
	_ = store.UpdateAdminUserLastLogin(ctx, user.ID)

	expirationTime := time.Now().Add(adminJWTLifetime).Unix()
	claims := jwt.MapClaims{
		"sub":       user.ID.String(),
		"auth_type": AdminAuthTypeUser,
		"email":     user.Email,
		"roles":     []string(user.Roles),
		"exp":       expirationTime,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.JWTSecret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign admin JWT: %w", err)
	}

	return signed, expirationTime, nil
}

// GenerateAdminJWTWithToken authenticates an automation client by service
// name and static service token and mints an admin JWT with the token's
// roles. The stored hash is the SHA-256 digest of the plaintext token.
func GenerateAdminJWTWithToken(ctx context.Context, serviceName, rawToken string, store AdminStore, cfg *config.Config) (string, int64, error) {
	token, err := store.GetAdminTokenByServiceName(ctx, serviceName)
	if err != nil {
		return "", 0, fmt.Errorf("invalid credentials")
	}

	if !token.IsValid() {
		return "", 0, fmt.Errorf("token disabled or expired")
	}

	presented := utils.HashString(rawToken)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(token.TokenHash)) != 1 {
		return "", 0, fmt.Errorf("invalid credentials")
	}

	_ = store.UpdateAdminTokenLastUsed(ctx, token.ID)

	expirationTime := time.Now().Add(adminJWTLifetime).Unix()
	claims := jwt.MapClaims{
		"sub":          token.ID.String(),
		"auth_type":    AdminAuthTypeToken,
		"service_name": token.ServiceName,
		"roles":        []string(token.Roles),
		"exp":          expirationTime,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.JWTSecret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign admin JWT: %w", err)
	}

	return signed, expirationTime, nil
}

// ValidateAdminJWT verifies the signature and expiry of an admin JWT and
// decodes its claims.
func ValidateAdminJWT(tokenString string, cfg *config.Config) (*AdminClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	decoded := &AdminClaims{}
	decoded.AdminID, _ = claims["sub"].(string)
	decoded.AuthType, _ = claims["auth_type"].(string)
	decoded.Email, _ = claims["email"].(string)
	decoded.ServiceName, _ = claims["service_name"].(string)

	if rawRoles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range rawRoles {
			if role, ok := r.(string); ok {
				decoded.Roles = append(decoded.Roles, role)
			}
		}
	}

	if decoded.AdminID == "" || decoded.AuthType == "" {
		return nil, errors.New("invalid token claims")
	}

	return decoded, nil
}
