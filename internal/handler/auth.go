package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/entrega-local/api/internal/auth"
	"github.com/entrega-local/api/internal/enum"
	"github.com/entrega-local/api/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// adminSubject is the refresh-token subject for the single admin account.
const adminSubject = "admin"

// DriverStore defines the store methods needed by auth handlers.
// Satisfied by store.Store; narrow interface for testability.
type DriverStore interface {
	GetDriver(ctx context.Context, id string) (store.Driver, error)
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	store             DriverStore
	jwtSecret         string
	adminPasswordHash []byte
}

// NewAuthHandler creates a new AuthHandler. adminPasswordHash is a bcrypt
// hash of the admin password.
func NewAuthHandler(st DriverStore, jwtSecret string, adminPasswordHash []byte) *AuthHandler {
	return &AuthHandler{store: st, jwtSecret: jwtSecret, adminPasswordHash: adminPasswordHash}
}

// RegisterRoutes registers auth endpoints on the given Chi router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/admin-login", h.AdminLogin)
	r.Post("/auth/driver-login", h.DriverLogin)
	r.Post("/auth/refresh", h.Refresh)
}

// --- Request / Response types ---

type adminLoginRequest struct {
	Password string `json:"password"`
}

type driverLoginRequest struct {
	DriverID string `json:"driver_id"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// --- Handlers ---

// AdminLogin handles the restaurant admin password login.
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password is required"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(h.adminPasswordHash, []byte(req.Password)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	h.respondWithTokens(w, adminSubject, "Administrador", enum.RoleAdmin)
}

// DriverLogin handles driver id + password authentication.
func (h *AuthHandler) DriverLogin(w http.ResponseWriter, r *http.Request) {
	var req driverLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.DriverID == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "driver_id and password are required"})
		return
	}

	driver, err := h.store.GetDriver(r.Context(), req.DriverID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		log.Printf("ERROR: get driver for login: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if !driver.Active {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(driver.HashedPassword), []byte(req.Password)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	h.respondWithTokens(w, driver.ID, driver.Name, enum.RoleDriver)
}

// Refresh exchanges a valid refresh token for a new access + refresh pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "refresh_token is required"})
		return
	}

	// Refresh tokens use RegisteredClaims with Subject = account id.
	token, err := jwt.ParseWithClaims(req.RefreshToken, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(h.jwtSecret), nil
	})
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		return
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		return
	}

	if claims.Subject == adminSubject {
		h.respondWithTokens(w, adminSubject, "Administrador", enum.RoleAdmin)
		return
	}

	driver, err := h.store.GetDriver(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
			return
		}
		log.Printf("ERROR: get driver for refresh: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if !driver.Active {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		return
	}

	h.respondWithTokens(w, driver.ID, driver.Name, enum.RoleDriver)
}

// --- Helpers ---

func (h *AuthHandler) respondWithTokens(w http.ResponseWriter, id, name, role string) {
	accessToken, err := auth.GenerateToken(h.jwtSecret, id, name, role)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	refreshToken, err := auth.GenerateRefreshToken(h.jwtSecret, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User: userResponse{
			ID:   id,
			Name: name,
			Role: role,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}
