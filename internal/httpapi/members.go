package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zipbob/edge"
)

type updateRequest struct {
	NewNickname string `json:"newNickname"`
}

type nicknameRequest struct {
	Nickname string `json:"nickname"`
}

type testJoinRequest struct {
	Email string `json:"email"`
}

type testJoinResponse struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Nickname     string `json:"nickname"`
	Role         string `json:"role"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func invalidBody(err error) error {
	return fmt.Errorf("%w: %v", edge.ErrInvalidRequest, err)
}

func (h *Handlers) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var in updateRequest
	if err := decodeStrict(r, &in); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}

	out, err := h.members.Update(r.Context(), callerEmail(r), in.NewNickname)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) OAuth2Join(w http.ResponseWriter, r *http.Request) {
	var in nicknameRequest
	if err := decodeStrict(r, &in); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}

	out, err := h.members.OAuth2Join(r.Context(), callerEmail(r), in.Nickname)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	var in nicknameRequest
	if err := decodeStrict(r, &in); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}

	out, err := h.members.Withdraw(r.Context(), callerEmail(r), in.Nickname)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) MyInfo(w http.ResponseWriter, r *http.Request) {
	out, err := h.members.GetMyInfo(r.Context(), callerEmail(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) CheckNickname(w http.ResponseWriter, r *http.Request) {
	exists, err := h.members.CheckNickname(r.Context(), chi.URLParam(r, "nickname"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exists)
}

// TestJoin creates a member and immediately opens a session for it.
func (h *Handlers) TestJoin(w http.ResponseWriter, r *http.Request) {
	var in testJoinRequest
	if err := decodeStrict(r, &in); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}

	m, err := h.members.TestJoin(r.Context(), in.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pair, err := h.sessions.IssueSession(r.Context(), m.Identity())
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.setTokens(w, pair)
	writeJSON(w, http.StatusOK, testJoinResponse{
		ID:           m.ID,
		Email:        m.Email,
		Nickname:     m.Nickname,
		Role:         m.Role,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}
