// Package auth provides operator JWT authentication and feeder
// bearer-token validation for the query API and feeder intake endpoint.
// Grounded on the teacher's internal/auth Service shape (bcrypt + JWT),
// generalized from user-session roles to this domain's operator/feeder
// split.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Operator roles for the query/admin API.
const (
	RoleAdmin    = "admin"    // manage webhooks, feeder tokens, operators
	RoleOperator = "operator" // query aircraft state, manage own webhooks
	RoleViewer   = "viewer"   // read-only access to aircraft queries
)

var (
	// ErrInvalidCredentials is returned when operator authentication fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned when JWT validation fails.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrUnauthorized is returned when an operator lacks the required role.
	ErrUnauthorized = errors.New("unauthorized access")
)

// Claims represents the JWT claims for an operator session.
type Claims struct {
	OperatorID int    `json:"operator_id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds operator authentication configuration.
type Config struct {
	JWTSecret     string        // secret key for signing operator JWTs
	TokenDuration time.Duration // how long operator tokens are valid
	BCryptCost    int           // bcrypt hashing cost (default: bcrypt.DefaultCost)
}

// Service provides operator authentication operations.
type Service struct {
	config Config
}

// NewService creates a new authentication service.
func NewService(cfg Config) *Service {
	if cfg.BCryptCost == 0 {
		cfg.BCryptCost = bcrypt.DefaultCost
	}
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = 24 * time.Hour
	}
	return &Service{config: cfg}
}

// HashPassword hashes a plaintext operator password using bcrypt.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BCryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword compares a plaintext password with a hashed password.
func (s *Service) ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// GenerateToken generates an operator session JWT.
func (s *Service) GenerateToken(operatorID int, username, role string) (string, error) {
	claims := &Claims{
		OperatorID: operatorID,
		Username:   username,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "aircraftdata",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// ValidateToken validates an operator session JWT and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// HasRole checks if an operator role meets or exceeds a required role.
// Role hierarchy: Admin > Operator > Viewer.
func HasRole(userRole, requiredRole string) bool {
	roleLevel := map[string]int{
		RoleAdmin:    2,
		RoleOperator: 1,
		RoleViewer:   0,
	}

	userLevel, ok1 := roleLevel[userRole]
	requiredLevel, ok2 := roleLevel[requiredRole]
	if !ok1 || !ok2 {
		return false
	}
	return userLevel >= requiredLevel
}

// CanManageWebhooks reports whether role may create/revoke subscriptions.
func CanManageWebhooks(role string) bool {
	return HasRole(role, RoleOperator)
}

// CanManageFeederTokens reports whether role may mint/revoke feeder tokens.
func CanManageFeederTokens(role string) bool {
	return role == RoleAdmin
}

// NewFeederToken mints a new opaque bearer token and its storage hash.
// The opaque value is returned once to the caller and never persisted;
// only HashFeederToken's output is stored, so a leaked database dump
// cannot be replayed as a credential.
func NewFeederToken() (token string, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate feeder token: %w", err)
	}
	token = "fdr_" + hex.EncodeToString(raw)
	return token, HashFeederToken(token), nil
}

// HashFeederToken derives the lookup key stored alongside a feeder token.
// A fast, unsalted SHA-256 digest is deliberate here: feeder auth happens
// on every ingested batch, so bcrypt's intentional slowness (used for
// operator passwords above) would throttle ingestion; the token itself
// carries 256 bits of entropy, which is what defends against guessing.
func HashFeederToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
