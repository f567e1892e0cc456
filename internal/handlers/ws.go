package handlers

import (
	"net/http"

	"github.com/dvvvvv411/meta-backend-sub001/internal/auth"
	"github.com/dvvvvv411/meta-backend-sub001/internal/websocket"
)

// WSBalances upgrades to a websocket scoped to the token's user. Browsers
// cannot set an Authorization header on websocket upgrades, so the token
// rides in the query string.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusUnauthorized, "token is required")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}
