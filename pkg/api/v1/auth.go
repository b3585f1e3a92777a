package v1

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/metamcp/metamcp/pkg/errors"
)

// Authenticator exchanges an API key for a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, plaintext string) (string, error)
	TokenTTLSeconds() int
}

type authRoutes struct {
	auth Authenticator
}

// AuthRoutes returns the /auth subrouter.
func AuthRoutes(auth Authenticator) chi.Router {
	routes := &authRoutes{auth: auth}
	r := chi.NewRouter()
	r.Post("/token", routes.issueToken)
	return r
}

type tokenRequest struct {
	APIKey string `json:"api_key"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (a *authRoutes) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		errors.WriteHTTP(w, errors.New(errors.KindBadRequest, "api_key is required"))
		return
	}

	token, err := a.auth.Authenticate(r.Context(), req.APIKey)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   a.auth.TokenTTLSeconds(),
	})
}
