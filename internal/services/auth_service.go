package services

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prudhvinik1/retailpulse/internal/clock"
	"github.com/prudhvinik1/retailpulse/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid client id or secret")
	ErrInvalidToken       = errors.New("invalid token")
)

// AuthService issues and checks bearer tokens for tool callers. A single
// client id / secret pair is configured.
type AuthService struct {
	clientID         string
	clientSecretHash string
	jwtSecret        string
	jwtExpiry        time.Duration
	clock            clock.Clock
}

type TokenResponse struct {
	Token     string    `json:"access_token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

type TokenClaims struct {
	ClientID string
	TokenID  string
}

func NewAuthService(clientID, clientSecretHash, jwtSecret string, jwtExpiry time.Duration, clk clock.Clock) *AuthService {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &AuthService{
		clientID:         clientID,
		clientSecretHash: clientSecretHash,
		jwtSecret:        jwtSecret,
		jwtExpiry:        jwtExpiry,
		clock:            clk,
	}
}

func (s *AuthService) IssueToken(clientID, clientSecret string) (*TokenResponse, error) {
	if s.clientID == "" || s.clientSecretHash == "" {
		return nil, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(clientID), []byte(s.clientID)) != 1 {
		return nil, ErrInvalidCredentials
	}
	if !utils.CheckSecret(s.clientSecretHash, clientSecret) {
		return nil, ErrInvalidCredentials
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.jwtExpiry)
	token, err := s.generateToken(clientID, now, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
	}, nil
}

func (s *AuthService) generateToken(clientID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": clientID,
		"jti": uuid.New().String(),
		"exp": expiresAt.Unix(),
		"iat": issuedAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *AuthService) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.clock.Now), jwt.WithExpirationRequired())

	if err != nil {
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	clientID, ok := claims["sub"].(string)
	if !ok || clientID != s.clientID {
		return nil, ErrInvalidToken
	}

	tokenID, _ := claims["jti"].(string)

	return &TokenClaims{
		ClientID: clientID,
		TokenID:  tokenID,
	}, nil
}
