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
	"github.com/shopspring/decimal"
)

// MenuStore defines the store methods needed by menu handlers.
type MenuStore interface {
	ListMenu(ctx context.Context) ([]store.MenuItem, error)
	GetMenuItem(ctx context.Context, id string) (store.MenuItem, error)
	CreateMenuItem(ctx context.Context, m store.MenuItem) error
	UpdateMenuItem(ctx context.Context, m store.MenuItem) error
	DeleteMenuItem(ctx context.Context, id string) error
}

// MenuHandler handles menu catalog endpoints.
type MenuHandler struct {
	store MenuStore
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(st MenuStore) *MenuHandler {
	return &MenuHandler{store: st}
}

// RegisterPublicRoutes registers the customer-facing catalog read.
func (h *MenuHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/menu", h.List)
}

// RegisterAdminRoutes registers catalog management endpoints. The caller is
// expected to wrap them with authentication + admin-role middleware.
func (h *MenuHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/menu", h.Create)
	r.Put("/menu/{id}", h.Update)
	r.Delete("/menu/{id}", h.Delete)
}

// --- Request / Response types ---

type menuItemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url"`
	Price       string `json:"price"`
}

type menuItemResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Price       string `json:"price"`
}

// --- Handlers ---

// List handles GET /menu.
func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListMenu(r.Context())
	if err != nil {
		log.Printf("ERROR: list menu: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	out := make([]menuItemResponse, len(items))
	for i, m := range items {
		out[i] = toMenuItemResponse(m)
	}
	writeJSON(w, http.StatusOK, out)
}

// Create handles POST /menu (admin).
func (h *MenuHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req menuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	price, errMsg := validateMenuItemRequest(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	item := store.MenuItem{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		Price:       price,
	}

	if err := h.store.CreateMenuItem(r.Context(), item); err != nil {
		log.Printf("ERROR: create menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toMenuItemResponse(item))
}

// Update handles PUT /menu/{id} (admin).
func (h *MenuHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req menuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	price, errMsg := validateMenuItemRequest(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	item := store.MenuItem{
		ID:          chi.URLParam(r, "id"),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		Price:       price,
	}

	if err := h.store.UpdateMenuItem(r.Context(), item); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		log.Printf("ERROR: update menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toMenuItemResponse(item))
}

// Delete handles DELETE /menu/{id} (admin).
func (h *MenuHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteMenuItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		log.Printf("ERROR: delete menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func validateMenuItemRequest(req menuItemRequest) (decimal.Decimal, string) {
	if req.Name == "" {
		return decimal.Zero, "name is required"
	}
	if req.Price == "" {
		return decimal.Zero, "price is required"
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return decimal.Zero, "invalid price format"
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, "price must be greater than zero"
	}
	return price, ""
}

func toMenuItemResponse(m store.MenuItem) menuItemResponse {
	return menuItemResponse{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Category:    m.Category,
		ImageURL:    m.ImageURL,
		Price:       m.Price.StringFixed(2),
	}
}
