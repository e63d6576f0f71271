package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/virevamind/internal/catalog"
	"github.com/wolfman30/virevamind/internal/verification"
	"github.com/wolfman30/virevamind/pkg/logging"
)

// VerificationSubmitter starts an asynchronous credential check.
type VerificationSubmitter interface {
	Submit(ctx context.Context, therapistID string, docs verification.Documents) (*verification.Task, error)
}

type VerificationConfig struct {
	Service VerificationSubmitter
	Logger  *logging.Logger
}

type VerificationHandler struct {
	service VerificationSubmitter
	logger  *logging.Logger
}

func NewVerificationHandler(cfg VerificationConfig) *VerificationHandler {
	if cfg.Service == nil {
		panic("handlers: verification service cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &VerificationHandler{service: cfg.Service, logger: cfg.Logger}
}

type VerificationAccepted struct {
	TaskID       string                     `json:"task_id"`
	TherapistID  string                     `json:"therapist_id"`
	Verification catalog.VerificationStatus `json:"verification"`
}

// Submit accepts credential documents and answers before the check runs.
// File contents are base64 in JSON.
// Route: POST /admin/therapists/{id}/verification
func (h *VerificationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var docs verification.Documents
	if err := decodeJSON(r, &docs); err != nil {
		writeError(w, h.logger, err)
		return
	}
	task, err := h.service.Submit(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")), docs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, VerificationAccepted{
		TaskID:       task.ID,
		TherapistID:  task.TherapistID,
		Verification: catalog.VerificationPending,
	})
}
