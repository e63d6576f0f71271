// Package handlers implements the HTTP surface of the directory and the
// booking ledger.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wolfman30/virevamind/internal/catalog"
	"github.com/wolfman30/virevamind/internal/ledger"
	"github.com/wolfman30/virevamind/pkg/logging"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case catalog.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, ledger.ErrHoldNotFound),
		errors.Is(err, ledger.ErrBookingNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrSlotUnavailable),
		errors.Is(err, catalog.ErrSlotOverlap),
		errors.Is(err, catalog.ErrStatusConflict):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrHoldExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": msg}. Internal errors are logged and
// their detail is not echoed to the client.
func writeError(w http.ResponseWriter, logger *logging.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a single JSON object from r into dst. Malformed bodies
// surface as validation errors.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &catalog.ValidationError{Field: "body", Reason: "is required"}
		}
		return &catalog.ValidationError{Field: "body", Reason: fmt.Sprintf("is not valid JSON: %v", err)}
	}
	return nil
}
