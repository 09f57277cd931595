package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/lumanagi/lumanagi-auth/internal/service"
)

// UsersHandler serves the admin-only account listing.
type UsersHandler struct {
	authService *service.AuthService
}

func NewUsersHandler(authService *service.AuthService) *UsersHandler {
	return &UsersHandler{authService: authService}
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	users, err := h.authService.ListUsers(r.Context(), limit, offset)
	if err != nil {
		log.Printf("ERROR [handlers.UsersList] %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := make([]UserResponse, 0, len(users))
	for _, user := range users {
		resp = append(resp, toUserResponse(user))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"users": resp})
}
