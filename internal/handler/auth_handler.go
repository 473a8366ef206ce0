package handler

import (
	"net/http"
	"strings"

	"datasethub/internal/domain"
	"datasethub/internal/service"
)

type AuthHandler struct {
	authenticator
}

func NewAuthHandler(userService *service.UserService) *AuthHandler {
	return &AuthHandler{authenticator: authenticator{userService: userService}}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.UserRegistration
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	user, err := h.userService.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login принимает JSON или форму с полями username и password
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "Invalid request body")
			return
		}
	} else {
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	if req.Username == "" || req.Password == "" {
		badRequest(w, "username and password are required")
		return
	}

	token, err := h.userService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var patch domain.ProfilePatch
	if err := decodeJSON(r, &patch); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	updated, err := h.userService.UpdateProfile(r.Context(), user.ID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
