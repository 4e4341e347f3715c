package httpapi

import (
	"net/http"
	"time"

	"github.com/zipbob/edge"
	"github.com/zipbob/edge/middleware"
)

// Reissue exchanges the caller's refresh token for a new pair. The new tokens
// go out in the Authorization and refresh headers and the refresh cookie.
func (h *Handlers) Reissue(w http.ResponseWriter, r *http.Request) {
	pair, err := h.sessions.Reissue(r.Context(), h.refreshToken(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.setTokens(w, pair)
	writeJSON(w, http.StatusOK, message{Message: "Token reissue completed."})
}

// Logout revokes the session and blacklists the presented access token.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	access, _ := middleware.BearerToken(r.Header.Get("Authorization"))

	if err := h.sessions.Logout(r.Context(), h.refreshToken(r), access); err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.auth.RefreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, message{Message: "Logout completed."})
}

// refreshToken reads the refresh header, falling back to the refresh cookie.
func (h *Handlers) refreshToken(r *http.Request) string {
	if v := r.Header.Get(h.auth.RefreshHeader); v != "" {
		if tok, ok := middleware.BearerToken(v); ok {
			return tok
		}
		return v
	}
	if h.auth.RefreshCookie == "" {
		return ""
	}
	if c, err := r.Cookie(h.auth.RefreshCookie); err == nil {
		return c.Value
	}
	return ""
}

func (h *Handlers) setTokens(w http.ResponseWriter, pair edge.TokenPair) {
	w.Header().Set("Authorization", "Bearer "+pair.AccessToken)
	w.Header().Set(h.auth.RefreshHeader, pair.RefreshToken)
	if h.auth.RefreshCookie == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.auth.RefreshCookie,
		Value:    pair.RefreshToken,
		Path:     "/",
		MaxAge:   int(h.jwt.RefreshTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
