package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/virevamind/internal/catalog"
	"github.com/wolfman30/virevamind/internal/ledger"
	"github.com/wolfman30/virevamind/pkg/logging"
)

// BookingService is the reservation workflow behind the hold and booking routes.
type BookingService interface {
	Reserve(ctx context.Context, slotID, seekerID string) (ledger.Hold, error)
	Confirm(ctx context.Context, holdToken string) (ledger.Booking, error)
	Cancel(ctx context.Context, confirmationToken string) (ledger.Booking, error)
	Release(ctx context.Context, holdToken string) error
	Booking(ctx context.Context, confirmationToken string) (ledger.Booking, error)
	HoldStatus(holdToken string) (ledger.Hold, error)
}

type BookingConfig struct {
	Service BookingService
	Logger  *logging.Logger
	// Now is the clock hold expiries are measured against. Pass the
	// ledger's clock; defaults to time.Now.
	Now func() time.Time
}

// BookingHandler serves holds and bookings.
type BookingHandler struct {
	service BookingService
	logger  *logging.Logger
	now     func() time.Time
}

func NewBookingHandler(cfg BookingConfig) *BookingHandler {
	if cfg.Service == nil {
		panic("handlers: booking service cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &BookingHandler{service: cfg.Service, logger: cfg.Logger, now: cfg.Now}
}

type ReserveRequest struct {
	SlotID   string `json:"slot_id"`
	SeekerID string `json:"seeker_id"`
}

// HoldResponse adds the remaining lifetime to a hold.
type HoldResponse struct {
	ledger.Hold
	ExpiresInSeconds int `json:"expires_in_seconds"`
}

func (h *BookingHandler) holdResponse(hold ledger.Hold) HoldResponse {
	secs := int(hold.ExpiresAt.Sub(h.now()).Round(time.Second) / time.Second)
	return HoldResponse{Hold: hold, ExpiresInSeconds: max(secs, 0)}
}

// Reserve places a hold on an open slot.
// Route: POST /holds
func (h *BookingHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	req.SlotID = strings.TrimSpace(req.SlotID)
	req.SeekerID = strings.TrimSpace(req.SeekerID)
	if req.SlotID == "" {
		writeError(w, h.logger, &catalog.ValidationError{Field: "slot_id", Reason: "is required"})
		return
	}
	if req.SeekerID == "" {
		writeError(w, h.logger, &catalog.ValidationError{Field: "seeker_id", Reason: "is required"})
		return
	}

	hold, err := h.service.Reserve(r.Context(), req.SlotID, req.SeekerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.holdResponse(hold))
}

// GetHold reports whether a hold is still live.
// Route: GET /holds/{token}
func (h *BookingHandler) GetHold(w http.ResponseWriter, r *http.Request) {
	hold, err := h.service.HoldStatus(strings.TrimSpace(chi.URLParam(r, "token")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.holdResponse(hold))
}

// Release abandons a hold. Unknown or settled holds also answer 204.
// Route: DELETE /holds/{token}
func (h *BookingHandler) Release(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Release(r.Context(), strings.TrimSpace(chi.URLParam(r, "token"))); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Confirm turns a live hold into a booking.
// Route: POST /holds/{token}/confirm
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	booking, err := h.service.Confirm(r.Context(), strings.TrimSpace(chi.URLParam(r, "token")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// GetBooking looks a booking up by confirmation token.
// Route: GET /bookings/{token}
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.service.Booking(r.Context(), strings.TrimSpace(chi.URLParam(r, "token")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// Cancel cancels a booking. Repeating the call returns the same booking.
// Route: DELETE /bookings/{token}
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	booking, err := h.service.Cancel(r.Context(), strings.TrimSpace(chi.URLParam(r, "token")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}
