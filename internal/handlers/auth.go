package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/prudhvinik1/retailpulse/internal/services"
)

type ctxKey int

const (
	claimsKey ctxKey = iota + 1
	requestIDKey
)

type TokenService interface {
	IssueToken(clientID, clientSecret string) (*services.TokenResponse, error)
	VerifyToken(token string) (*services.TokenClaims, error)
}

func ClaimsFromContext(ctx context.Context) (*services.TokenClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*services.TokenClaims)
	return c, ok
}

type AuthHandler struct {
	tokens TokenService
}

func NewAuthHandler(tokens TokenService) *AuthHandler {
	return &AuthHandler{tokens: tokens}
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	tok, err := h.tokens.IssueToken(req.ClientID, req.ClientSecret)
	if errors.Is(err, services.ErrInvalidCredentials) {
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "failed to issue token")
		return
	}
	WriteJSON(w, http.StatusOK, tok)
}

// AuthMiddleware requires a valid bearer token.
func AuthMiddleware(tokens TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearerToken(r.Header.Get("Authorization"))
			if tok == "" {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			claims, err := tokens.VerifyToken(tok)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

func bearerToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
