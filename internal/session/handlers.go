package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-pos/internal/backoffice"
	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/resilience"
	"github.com/noah-isme/backend-pos/internal/settlement"
	"github.com/noah-isme/backend-pos/internal/shift"
)

// HeaderCashierID identifies the cashier a request acts for.
const HeaderCashierID = "X-Cashier-ID"

// Handler wires per-cashier sessions to HTTP.
type Handler struct {
	Registry  *Registry
	Validator *validator.Validate
}

type openShiftRequest struct {
	StartingBalance pricing.Money `json:"startingBalance" validate:"gte=0"`
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
}

type setQuantityRequest struct {
	Qty int `json:"qty" validate:"required,gt=0"`
}

type setDiscountRequest struct {
	Kind  pricing.DiscountKind `json:"kind" validate:"required,oneof=nominal percentage"`
	Value pricing.Money        `json:"value" validate:"gte=0"`
}

type checkoutRequest struct {
	Method        settlement.Method `json:"method" validate:"required,oneof=cash transfer credit"`
	CashTendered  pricing.Money     `json:"cashTendered" validate:"gte=0"`
	BankReference string            `json:"bankReference"`
	BankAccountID string            `json:"bankAccountId"`
	CustomerID    string            `json:"customerId"`
}

type closeShiftRequest struct {
	ActualCashAtEnd pricing.Money `json:"actualCashAtEnd" validate:"gte=0"`
}

// Routes mounts the session surface on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/shifts", func(s chi.Router) {
		s.Post("/", h.OpenShift)
		s.Get("/current", h.CurrentShift)
		s.Post("/resume", h.ResumeShift)
		s.Post("/close", h.CloseShift)
	})
	r.Route("/cart", func(c chi.Router) {
		c.Get("/", h.GetCart)
		c.Delete("/", h.ClearCart)
		c.Post("/items", h.AddItem)
		c.Route("/items/{productID}", func(it chi.Router) {
			it.Patch("/", h.SetQuantity)
			it.Delete("/", h.RemoveItem)
			it.Put("/discount", h.SetDiscount)
			it.Delete("/discount", h.ClearDiscount)
		})
	})
	r.Post("/checkout", h.Checkout)
	r.Post("/checkout/cancel", h.CancelCheckout)
	return r
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	cashier := strings.TrimSpace(r.Header.Get(HeaderCashierID))
	if cashier == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "missing "+HeaderCashierID+" header", nil)
		return nil, false
	}
	return h.Registry.Get(cashier), true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return false
	}
	if h.Validator != nil {
		if err := h.Validator.Struct(dst); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "invalid request payload", err.Error())
			return false
		}
	}
	return true
}

// OpenShift starts a cash-drawer session.
func (h *Handler) OpenShift(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req openShiftRequest
	if !h.decode(w, r, &req) {
		return
	}
	snap, err := s.OpenShift(r.Context(), req.StartingBalance)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, snap)
}

// CurrentShift returns the active shift snapshot with a closing preview.
func (h *Handler) CurrentShift(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, calcs, err := s.ShiftStatus()
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, map[string]any{
		"shift":        snap,
		"calculations": calcs,
	})
}

// ResumeShift reloads the active shift from the back office after a restart.
func (h *Handler) ResumeShift(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := s.Resume(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, snap)
}

// CloseShift reconciles the drawer and ends the shift.
func (h *Handler) CloseShift(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req closeShiftRequest
	if !h.decode(w, r, &req) {
		return
	}
	report, err := s.CloseShift(r.Context(), req.ActualCashAtEnd)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, report)
}

// GetCart returns the cart lines and derived totals.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	common.JSONData(w, http.StatusOK, s.Cart())
}

// ClearCart abandons the sale in progress.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.ClearCart()
	common.JSONData(w, http.StatusOK, s.Cart())
}

// AddItem resolves a catalog product and adds it to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := s.AddProduct(r.Context(), req.ProductID, req.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

// SetQuantity replaces a line quantity.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req setQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := s.SetQuantity(chi.URLParam(r, "productID"), req.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

// RemoveItem deletes a cart line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := s.RemoveItem(chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

// SetDiscount applies a per-line discount, replacing any existing one.
func (h *Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req setDiscountRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := s.SetDiscount(chi.URLParam(r, "productID"), pricing.Discount{Kind: req.Kind, Value: req.Value})
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

// ClearDiscount resets a line to its catalog price.
func (h *Handler) ClearDiscount(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := s.ClearDiscount(chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

// Checkout finalizes the cart against the supplied payment and persists the
// sale. A retry after a persistence failure with the same payload reuses the
// original sale reference.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	receipt, err := s.Checkout(r.Context(), settlement.PendingPayment{
		Method:        req.Method,
		CashTendered:  req.CashTendered,
		BankReference: req.BankReference,
		BankAccountID: req.BankAccountID,
		CustomerID:    req.CustomerID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, receipt)
}

// CancelCheckout discards a pending finalized sale, keeping the cart.
func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.CancelCheckout()
	common.JSONData(w, http.StatusOK, s.Cart())
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	switch {
	case errors.Is(err, catalog.ErrProductNotFound), errors.Is(err, cart.ErrLineNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, pricing.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrInvalidDiscount),
		errors.Is(err, settlement.ErrInsufficientCash),
		errors.Is(err, settlement.ErrMissingBankReference),
		errors.Is(err, settlement.ErrMissingCustomer),
		errors.Is(err, settlement.ErrUnknownMethod),
		errors.Is(err, shift.ErrNegativeAmount):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
	case errors.Is(err, shift.ErrAlreadyActive),
		errors.Is(err, shift.ErrShiftNotActive),
		errors.Is(err, shift.ErrAlreadyEnded),
		errors.Is(err, settlement.ErrEmptyCart),
		errors.Is(err, backoffice.ErrNoActiveShift),
		errors.Is(err, ErrPendingCheckout):
		common.JSONError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "back office temporarily unavailable", nil)
	default:
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM", "operation failed; safe to retry", nil)
	}
}
