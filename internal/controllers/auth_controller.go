package controllers

import (
	"context"
	"net/http"

	"github.com/RealZimboGuy/chainflow/internal/util"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/core"
	"golang.org/x/crypto/bcrypt"
)

type AuthController struct {
	apiKeyHash []byte
}

// NewAuthController checks the X-API-Key header against a bcrypt hash. An empty hash disables auth.
func NewAuthController(apiKeyHash string) AuthController {
	return AuthController{apiKeyHash: []byte(apiKeyHash)}
}

func (ac *AuthController) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(ac.apiKeyHash) == 0 {
			next(w, r)
			return
		}
		// Supported headers: X-API-Key: <key>
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" || bcrypt.CompareHashAndPassword(ac.apiKeyHash, []byte(apiKey)) != nil {
			util.WriteJSONResponse(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
			return
		}
		ctx := context.WithValue(r.Context(), core.CtxKeyCaller, "api-key")
		next(w, r.WithContext(ctx))
	}
}
