package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/lumanagi/lumanagi-auth/internal/api/middleware"
	"github.com/lumanagi/lumanagi-auth/internal/domain"
	"github.com/lumanagi/lumanagi-auth/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type GoogleLoginRequest struct {
	IDToken string `json:"idToken"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type AuthResponse struct {
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func toUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID.String(),
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      user.Role.String(),
		CreatedAt: user.CreatedAt,
	}
}

func toAuthResponse(result *service.AuthResult) AuthResponse {
	return AuthResponse{
		User:         toUserResponse(result.User),
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var missing []string
	if req.Email == "" {
		missing = append(missing, "email")
	}
	if req.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		respondMissingFields(w, missing...)
		return
	}

	result, err := h.authService.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmailExists) {
			respondError(w, http.StatusConflict, "User already exists")
			return
		}
		log.Printf("ERROR [handlers.Register] %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusCreated, toAuthResponse(result))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var missing []string
	if req.Email == "" {
		missing = append(missing, "email")
	}
	if req.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		respondMissingFields(w, missing...)
		return
	}

	result, err := h.authService.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		log.Printf("ERROR [handlers.Login] %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, toAuthResponse(result))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	result, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRefreshToken) {
			respondError(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		log.Printf("ERROR [handlers.Refresh] %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

// Logout always answers 200: revocation is best-effort and the client
// clears its session regardless.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RefreshToken != "" {
		if err := h.authService.Logout(r.Context(), req.RefreshToken); err != nil {
			log.Printf("ERROR [handlers.Logout] revoke failed: %v", err)
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	if err := h.authService.LogoutAll(r.Context(), userID); err != nil {
		log.Printf("ERROR [handlers.LogoutAll] %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "All sessions revoked"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			respondError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		log.Printf("ERROR [handlers.Me] %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req GoogleLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.IDToken == "" {
		respondMissingFields(w, "idToken")
		return
	}

	result, err := h.authService.GoogleLogin(r.Context(), req.IDToken)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidIDToken) {
			respondError(w, http.StatusUnauthorized, "Invalid identity token")
			return
		}
		log.Printf("ERROR [handlers.GoogleLogin] %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, toAuthResponse(result))
}

const oauthStateCookie = "oauth_state"

func newStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GoogleAuthURL starts the browser code flow: it hands out the consent
// URL and pins the state token in a short-lived cookie for the
// callback to check.
func (h *AuthHandler) GoogleAuthURL(w http.ResponseWriter, r *http.Request) {
	state, err := newStateToken()
	if err != nil {
		log.Printf("ERROR [handlers.GoogleAuthURL] state generation: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	url, err := h.authService.GoogleAuthURL(state)
	if err != nil {
		if errors.Is(err, domain.ErrFederatedLoginOff) {
			respondError(w, http.StatusNotFound, "Google login not configured")
			return
		}
		log.Printf("ERROR [handlers.GoogleAuthURL] %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// GoogleCallback finishes the code flow. Google redirects here with
// code and state; the state must match the cookie set by GoogleAuthURL.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || cookie.Value != state {
		respondError(w, http.StatusBadRequest, "State mismatch")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		respondMissingFields(w, "code")
		return
	}

	result, err := h.authService.GoogleCodeLogin(r.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrFederatedLoginOff):
			respondError(w, http.StatusNotFound, "Google login not configured")
		case errors.Is(err, domain.ErrInvalidIDToken):
			respondError(w, http.StatusUnauthorized, "Invalid identity token")
		default:
			log.Printf("ERROR [handlers.GoogleCallback] %v", err)
			respondError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	respondJSON(w, http.StatusOK, toAuthResponse(result))
}
