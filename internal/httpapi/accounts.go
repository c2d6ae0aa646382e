package httpapi

import (
	"net/http"

	"github.com/Glen-Yegon/niapay-carwash1/internal/auth"
	"github.com/Glen-Yegon/niapay-carwash1/internal/models"

	"github.com/gorilla/mux"
)

type signUpRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}
	input := auth.SignUpInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Role:            req.Role,
	}
	if token := sessionTokenFromRequest(r); token != "" {
		actor, err := h.accounts.CurrentUser(r.Context(), token)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		input.Creator = &actor
	}
	session, err := h.accounts.SignUp(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}
	session, err := h.accounts.Login(r.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	writeJSON(w, http.StatusOK, actor)
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"services": h.catalog.Entries()})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	users, err := h.accounts.ListUsers(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (h *Handler) handleRemoveUser(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	if err := h.accounts.RemoveUser(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
