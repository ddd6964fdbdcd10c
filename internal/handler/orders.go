package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/entrega-local/api/internal/enum"
	"github.com/entrega-local/api/internal/middleware"
	"github.com/entrega-local/api/internal/service"
	"github.com/entrega-local/api/internal/store"
	"github.com/entrega-local/api/internal/ws"
	"github.com/go-chi/chi/v5"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (*service.PlaceOrderResult, error)
	Get(ctx context.Context, id string) (store.Order, error)
	List(ctx context.Context, statuses ...enum.OrderStatus) ([]store.Order, error)
	Transition(ctx context.Context, id string, next enum.OrderStatus) (store.Order, error)
}

// Broadcaster pushes order events to connected staff clients. The hub owns
// the role fanout policy. Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastOrder(eventType string, status enum.OrderStatus, payload json.RawMessage)
}

// PixInfo is the static receiver data returned alongside a Pix payload so
// the client can render the payment modal.
type PixInfo struct {
	Key        string
	HolderName string
	BankName   string
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc            OrderServicer
	hub            Broadcaster
	pixInfo        PixInfo
	whatsAppNumber string
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, hub Broadcaster, pixInfo PixInfo, whatsAppNumber string) *OrderHandler {
	return &OrderHandler{svc: svc, hub: hub, pixInfo: pixInfo, whatsAppNumber: whatsAppNumber}
}

// RegisterPublicRoutes registers the customer-facing endpoints.
func (h *OrderHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/orders", h.Create)
	r.Get("/orders/{id}", h.Get)
}

// RegisterStaffRoutes registers the admin/driver endpoints. The caller is
// expected to wrap them with authentication middleware.
func (h *OrderHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Patch("/orders/{id}/status", h.UpdateStatus)
	r.Delete("/orders/{id}", h.Cancel)
	r.Get("/driver/orders", h.DriverList)
}

// --- Request / Response types ---

type createOrderRequest struct {
	CustomerName   string                   `json:"customer_name"`
	Address        string                   `json:"address"`
	AddressNumber  string                   `json:"address_number"`
	CEP            string                   `json:"cep"`
	ReferencePoint string                   `json:"reference_point"`
	PaymentMethod  string                   `json:"payment_method"`
	ChangeFor      string                   `json:"change_for"`
	Items          []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int32  `json:"quantity"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	CustomerName   string              `json:"customer_name"`
	Address        string              `json:"address"`
	AddressNumber  string              `json:"address_number"`
	CEP            string              `json:"cep,omitempty"`
	ReferencePoint string              `json:"reference_point,omitempty"`
	PaymentMethod  string              `json:"payment_method"`
	ChangeFor      *string             `json:"change_for,omitempty"`
	Total          string              `json:"total"`
	Status         string              `json:"status"`
	Items          []orderItemResponse `json:"items"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type orderItemResponse struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int32  `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
}

type pixResponse struct {
	Payload    string `json:"payload"`
	Key        string `json:"key"`
	HolderName string `json:"holder_name"`
	BankName   string `json:"bank_name"`
}

// checkoutResponse is the full checkout result: the admitted order plus the
// derived payment/handoff payloads the client renders.
type checkoutResponse struct {
	Order           orderResponse `json:"order"`
	Pix             *pixResponse  `json:"pix,omitempty"`
	WhatsAppMessage string        `json:"whatsapp_message"`
	WhatsAppURL     string        `json:"whatsapp_url"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// --- Handlers ---

// Create handles POST /orders (customer checkout).
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	items := make([]service.PlaceOrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = service.PlaceOrderItem{MenuItemID: it.MenuItemID, Quantity: it.Quantity}
	}

	result, err := h.svc.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		CustomerName:   req.CustomerName,
		Address:        req.Address,
		AddressNumber:  req.AddressNumber,
		CEP:            req.CEP,
		ReferencePoint: req.ReferencePoint,
		PaymentMethod:  req.PaymentMethod,
		ChangeFor:      req.ChangeFor,
		Items:          items,
	})
	if err != nil {
		if isCheckoutValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: place order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.broadcastOrder(ws.EventOrderCreated, result.Order)

	message := service.ConfirmationMessage(result.Order)
	resp := checkoutResponse{
		Order:           toOrderResponse(result.Order),
		WhatsAppMessage: message,
		WhatsAppURL:     service.WhatsAppLink(h.whatsAppNumber, message),
	}
	if result.PixPayload != "" {
		resp.Pix = &pixResponse{
			Payload:    result.PixPayload,
			Key:        h.pixInfo.Key,
			HolderName: h.pixInfo.HolderName,
			BankName:   h.pixInfo.BankName,
		}
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Get handles GET /orders/{id} (customer status poll).
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// List handles GET /orders (admin dashboard), optionally ?status= filtered.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil || claims.Role != enum.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient permissions"})
		return
	}

	var statuses []enum.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status := enum.OrderStatus(s)
		if !isKnownStatus(status) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
		statuses = append(statuses, status)
	}

	orders, err := h.svc.List(r.Context(), statuses...)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

// DriverList handles GET /driver/orders: only orders a driver acts on.
func (h *OrderHandler) DriverList(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil || claims.Role != enum.RoleDriver {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient permissions"})
		return
	}

	orders, err := h.svc.List(r.Context(), enum.OrderStatusReady, enum.OrderStatusDelivering)
	if err != nil {
		log.Printf("ERROR: list driver orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	next := enum.OrderStatus(req.Status)
	if !roleMayTarget(claims.Role, next) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "role cannot set this status"})
		return
	}

	updated, err := h.svc.Transition(r.Context(), chi.URLParam(r, "id"), next)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	h.broadcastOrder(ws.EventOrderStatusChanged, updated)
	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

// Cancel handles DELETE /orders/{id} (admin only).
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil || claims.Role != enum.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient permissions"})
		return
	}

	cancelled, err := h.svc.Transition(r.Context(), chi.URLParam(r, "id"), enum.OrderStatusCancelled)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	h.broadcastOrder(ws.EventOrderStatusChanged, cancelled)
	writeJSON(w, http.StatusOK, toOrderResponse(cancelled))
}

// --- Helpers ---

func (h *OrderHandler) writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, service.ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
	case errors.Is(err, service.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrStatusConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order status changed, please retry"})
	default:
		log.Printf("ERROR: transition order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func (h *OrderHandler) broadcastOrder(eventType string, o store.Order) {
	payload, err := json.Marshal(toOrderResponse(o))
	if err != nil {
		log.Printf("ERROR: marshal order event: %v", err)
		return
	}
	h.hub.BroadcastOrder(eventType, o.Status, payload)
}

// roleMayTarget applies the view policy for status writes: the kitchen
// drives the front half of the chain, drivers the delivery half.
func roleMayTarget(role string, next enum.OrderStatus) bool {
	switch role {
	case enum.RoleAdmin:
		return true
	case enum.RoleDriver:
		return next == enum.OrderStatusDelivering || next == enum.OrderStatusDelivered
	}
	return false
}

func isKnownStatus(s enum.OrderStatus) bool {
	switch s {
	case enum.OrderStatusPending, enum.OrderStatusPreparing, enum.OrderStatusReady,
		enum.OrderStatusDelivering, enum.OrderStatusDelivered, enum.OrderStatusCancelled:
		return true
	}
	return false
}

// isCheckoutValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isCheckoutValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrMenuItemNotFound) ||
		errors.Is(err, service.ErrCustomerNameRequired) ||
		errors.Is(err, service.ErrAddressRequired) ||
		errors.Is(err, service.ErrInvalidPaymentMethod) ||
		errors.Is(err, service.ErrInvalidChange) ||
		errors.Is(err, service.ErrChangeTooSmall)
}

func toOrderResponse(o store.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		CustomerName:   o.CustomerName,
		Address:        o.Address,
		AddressNumber:  o.AddressNumber,
		CEP:            o.CEP,
		ReferencePoint: o.ReferencePoint,
		PaymentMethod:  string(o.PaymentMethod),
		Total:          o.Total.StringFixed(2),
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}

	if o.ChangeFor.Valid {
		s := o.ChangeFor.Decimal.StringFixed(2)
		resp.ChangeFor = &s
	}

	resp.Items = make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		resp.Items[i] = orderItemResponse{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.StringFixed(2),
		}
	}

	return resp
}

func toOrderResponses(orders []store.Order) []orderResponse {
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = toOrderResponse(o)
	}
	return out
}
