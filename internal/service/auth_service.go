package service

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/examforge/exam-engine/internal/config"
)

// TokenType distinguishes the principals the engine accepts.
type TokenType string

const (
	// TokenTypeStudent marks tokens issued to exam takers.
	TokenTypeStudent TokenType = "student"
	// TokenTypeService marks tokens issued to trusted backend callers
	// (reporting, dashboards).
	TokenTypeService TokenType = "service"
)

// Claims are the engine's JWT claims. Tokens are issued by the external
// identity service with the shared secret; this engine only validates them.
type Claims struct {
	StudentID int64     `json:"student_id"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// AuthService validates bearer tokens presented at the engine boundary.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// ValidateToken parses and verifies a JWT, returning its claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
