package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teranos/DMS/am"
	"github.com/teranos/DMS/errors"
)

// Claims represents the identity carried by an access token
type Claims struct {
	Email  string
	UserID int64
	Role   Role
}

// JWTClaims extends standard JWT claims with DMS-specific fields.
// Subject carries the user's email.
type JWTClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"uid"`
	Role   Role  `json:"role"`
}

// JWTManager handles JWT token creation and validation
type JWTManager struct {
	secret      []byte
	tokenExpiry time.Duration
	now         func() time.Time
}

// NewJWTManager creates a new JWT manager with the given configuration.
// An empty secret_key gets a random per-process secret, so tokens do not
// survive a restart.
func NewJWTManager(config *am.AuthConfig) (*JWTManager, error) {
	secret := config.SecretKey
	if secret == "" {
		generated, err := generateSecureSecret(32)
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate JWT secret")
		}
		secret = generated
	}

	tokenExpiry := config.AccessTokenExpiry
	if tokenExpiry <= 0 {
		tokenExpiry = 7 * 24 * time.Hour
	}

	return &JWTManager{
		secret:      []byte(secret),
		tokenExpiry: tokenExpiry,
		now:         time.Now,
	}, nil
}

// GenerateToken creates a new JWT access token for user
func (m *JWTManager) GenerateToken(user *User) (string, error) {
	now := m.now()
	jwtClaims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "dms",
		},
		UserID: user.ID,
		Role:   user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT token, returning the claims
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Newf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithIssuer("dms"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnauthorized, err.Error())
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.Wrap(errors.ErrUnauthorized, "invalid token claims")
	}

	return &Claims{
		Email:  claims.Subject,
		UserID: claims.UserID,
		Role:   claims.Role,
	}, nil
}

// TokenExpiry returns the configured token expiry duration
func (m *JWTManager) TokenExpiry() time.Duration {
	return m.tokenExpiry
}

// generateSecureSecret generates a cryptographically secure random hex string
func generateSecureSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "failed to generate random bytes")
	}
	return hex.EncodeToString(b), nil
}
