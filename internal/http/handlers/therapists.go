package handlers

import (
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/virevamind/internal/catalog"
	"github.com/wolfman30/virevamind/internal/search"
	"github.com/wolfman30/virevamind/pkg/logging"
)

// Catalog is the directory as seen by the HTTP layer.
type Catalog interface {
	Get(id string) (catalog.TherapistProfile, error)
	Query(pred catalog.Predicate, opts ...catalog.QueryOption) iter.Seq[catalog.TherapistProfile]
	Upsert(profile catalog.TherapistProfile) (catalog.TherapistProfile, error)
	Slots(therapistID, date string) ([]catalog.AvailabilitySlot, error)
	AddSlot(slot catalog.AvailabilitySlot) (catalog.AvailabilitySlot, error)
}

type TherapistConfig struct {
	Catalog Catalog
	Logger  *logging.Logger
}

// TherapistHandler serves directory search and profile administration.
type TherapistHandler struct {
	catalog Catalog
	logger  *logging.Logger
}

func NewTherapistHandler(cfg TherapistConfig) *TherapistHandler {
	if cfg.Catalog == nil {
		panic("handlers: therapist catalog cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &TherapistHandler{catalog: cfg.Catalog, logger: cfg.Logger}
}

type SearchResponse struct {
	Therapists []catalog.TherapistProfile `json:"therapists"`
	Count      int                        `json:"count"`
}

// Search filters the directory by query parameters.
// Route: GET /therapists?q=&certification=&focus=&language=&insured=&verified=&sort=
func (h *TherapistHandler) Search(w http.ResponseWriter, r *http.Request) {
	criteria, err := search.ParseCriteria(r.URL.Query())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	results := search.Collect(h.catalog, criteria)
	writeJSON(w, http.StatusOK, SearchResponse{Therapists: results, Count: len(results)})
}

// Get returns one profile.
// Route: GET /therapists/{id}
func (h *TherapistHandler) Get(w http.ResponseWriter, r *http.Request) {
	profile, err := h.catalog.Get(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type SlotsResponse struct {
	TherapistID string                     `json:"therapist_id"`
	Date        string                     `json:"date,omitempty"`
	Slots       []catalog.AvailabilitySlot `json:"slots"`
}

// ListSlots returns a therapist's calendar, optionally for one date.
// Route: GET /therapists/{id}/slots?date=YYYY-MM-DD
func (h *TherapistHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date != "" {
		if _, err := time.Parse(catalog.DateLayout, date); err != nil {
			writeError(w, h.logger, &catalog.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"})
			return
		}
	}
	slots, err := h.catalog.Slots(id, date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SlotsResponse{TherapistID: id, Date: date, Slots: slots})
}

// Upsert creates or updates a profile. The path id wins over the body.
// Route: PUT /admin/therapists/{id}
func (h *TherapistHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	var profile catalog.TherapistProfile
	if err := decodeJSON(r, &profile); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if body := strings.TrimSpace(profile.ID); body != "" && body != id {
		writeError(w, h.logger, &catalog.ValidationError{Field: "id", Reason: "does not match the path"})
		return
	}
	profile.ID = id

	saved, err := h.catalog.Upsert(profile)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("therapist upserted", "therapist_id", saved.ID, "verification", saved.Verification)
	writeJSON(w, http.StatusOK, saved)
}

type AddSlotRequest struct {
	Date     string                  `json:"date"`
	Start    string                  `json:"start"`
	Duration catalog.SessionDuration `json:"duration_minutes"`
}

// AddSlot opens a new slot on a therapist's calendar.
// Route: POST /admin/therapists/{id}/slots
func (h *TherapistHandler) AddSlot(w http.ResponseWriter, r *http.Request) {
	var req AddSlotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	slot, err := h.catalog.AddSlot(catalog.AvailabilitySlot{
		TherapistID: strings.TrimSpace(chi.URLParam(r, "id")),
		Date:        strings.TrimSpace(req.Date),
		Start:       strings.TrimSpace(req.Start),
		Duration:    req.Duration,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}
