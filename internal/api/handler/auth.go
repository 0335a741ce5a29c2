package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cercabus/cercabus/internal/api/models"
	"github.com/cercabus/cercabus/internal/api/response"
	"github.com/cercabus/cercabus/internal/auth"
)

// AuthHandler handles the token exchange endpoint.
type AuthHandler struct {
	tokens *auth.TokenService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(tokens *auth.TokenService) *AuthHandler {
	return &AuthHandler{tokens: tokens}
}

// Token handles POST /v1/auth/token - exchange an API key for a bearer token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var input models.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	token, expiresAt, err := h.tokens.Exchange(input.APIKey)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidAPIKey) {
			response.Unauthorized(w, r, "invalid API key")
			return
		}
		response.InternalError(w, r, "failed to issue token")
		return
	}

	response.JSON(w, r, http.StatusOK, models.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expiresAt).Seconds()),
	})
}
