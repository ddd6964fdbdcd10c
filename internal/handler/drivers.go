package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/entrega-local/api/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DriverAdminStore defines the store methods needed by driver management
// handlers.
type DriverAdminStore interface {
	GetDriver(ctx context.Context, id string) (store.Driver, error)
	ListDrivers(ctx context.Context) ([]store.Driver, error)
	CreateDriver(ctx context.Context, d store.Driver) error
	UpdateDriver(ctx context.Context, d store.Driver) error
}

// DriverHandler handles driver-account management (admin only).
type DriverHandler struct {
	store DriverAdminStore
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(st DriverAdminStore) *DriverHandler {
	return &DriverHandler{store: st}
}

// RegisterAdminRoutes registers driver management endpoints. The caller is
// expected to wrap them with authentication + admin-role middleware.
func (h *DriverHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/drivers", h.List)
	r.Post("/drivers", h.Create)
	r.Put("/drivers/{id}", h.Update)
}

// --- Request / Response types ---

type createDriverRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type updateDriverRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"` // empty keeps the current password
	Active   *bool  `json:"active"`
}

// driverResponse never carries the password hash.
type driverResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// --- Handlers ---

// List handles GET /drivers.
func (h *DriverHandler) List(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.store.ListDrivers(r.Context())
	if err != nil {
		log.Printf("ERROR: list drivers: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	out := make([]driverResponse, len(drivers))
	for i, d := range drivers {
		out[i] = toDriverResponse(d)
	}
	writeJSON(w, http.StatusOK, out)
}

// Create handles POST /drivers.
func (h *DriverHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDriverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and password are required"})
		return
	}
	if len(req.Password) < 6 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password must be at least 6 characters"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("ERROR: hash driver password: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	driver := store.Driver{
		ID:             uuid.New().String(),
		Name:           req.Name,
		HashedPassword: string(hashed),
		Active:         true,
	}

	if err := h.store.CreateDriver(r.Context(), driver); err != nil {
		log.Printf("ERROR: create driver: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toDriverResponse(driver))
}

// Update handles PUT /drivers/{id}. Omitted fields keep their current value.
func (h *DriverHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateDriverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	driver, err := h.store.GetDriver(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "driver not found"})
			return
		}
		log.Printf("ERROR: get driver: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if req.Name != "" {
		driver.Name = req.Name
	}
	if req.Active != nil {
		driver.Active = *req.Active
	}
	if req.Password != "" {
		if len(req.Password) < 6 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password must be at least 6 characters"})
			return
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("ERROR: hash driver password: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		driver.HashedPassword = string(hashed)
	}

	if err := h.store.UpdateDriver(r.Context(), driver); err != nil {
		log.Printf("ERROR: update driver: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toDriverResponse(driver))
}

// --- Helpers ---

func toDriverResponse(d store.Driver) driverResponse {
	return driverResponse{ID: d.ID, Name: d.Name, Active: d.Active}
}
