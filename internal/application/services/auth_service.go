package services

import (
	"time"

	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/security"
	"github.com/RevLensAI/revlens-go/pkg/config"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// AuthService authenticates the dashboard operator and issues the tokens
// that guard the admin surface (cache refresh, log levels, session reset).
type AuthService struct {
	logger *logging.ChanneledLogger
}

// NewAuthService creates a new authentication service.
func NewAuthService(logger *logging.ChanneledLogger) *AuthService {
	return &AuthService{logger: logger}
}

// AuthResult holds authentication result data.
type AuthResult struct {
	Token   string `json:"token"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AuthenticateOperator validates the operator password and generates a JWT.
func (a *AuthService) AuthenticateOperator(password string) *AuthResult {
	if config.OperatorPasswordHash == "" || config.JWTSecret == "" {
		return &AuthResult{Success: false, Error: "Operator auth not configured"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(config.OperatorPasswordHash), []byte(password)); err != nil {
		if a.logger != nil {
			a.logger.Auth().Warn("Operator authentication rejected")
		}
		return &AuthResult{Success: false, Error: "Invalid credentials"}
	}

	jti, err := security.GenerateSecureToken(16)
	if err != nil {
		return &AuthResult{Success: false, Error: "Token generation failed"}
	}

	claims := jwt.MapClaims{
		"role": "operator",
		"type": "operator_auth",
		"jti":  jti,
		"exp":  time.Now().UTC().Add(config.TokenLifetime).Unix(),
		"iat":  time.Now().UTC().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.JWTSecret))
	if err != nil {
		return &AuthResult{Success: false, Error: "Token generation failed"}
	}

	if a.logger != nil {
		a.logger.Auth().Info("Operator authenticated")
	}
	return &AuthResult{Token: signed, Success: true}
}

// ValidateOperatorToken checks that a token is a valid operator token.
func (a *AuthService) ValidateOperatorToken(tokenString string) bool {
	if tokenString == "" || config.JWTSecret == "" {
		return false
	}

	claims, err := security.ValidateJWT(tokenString, config.JWTSecret)
	if err != nil {
		return false
	}

	tokenType, ok := claims["type"].(string)
	if !ok || tokenType != "operator_auth" {
		return false
	}

	role, ok := claims["role"].(string)
	return ok && role == "operator"
}
