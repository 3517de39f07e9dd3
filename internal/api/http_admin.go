package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"metal-catalog-service/internal/domain"
	"metal-catalog-service/internal/recount"
	"metal-catalog-service/internal/store"
)

// --- Lead Handlers ---

// LeadCreateInput defines the expected input of the contact and quote forms.
type LeadCreateInput struct {
	Name      string  `json:"name" validate:"required,max=255"`
	Phone     string  `json:"phone" validate:"required,min=5,max=32"`
	Email     *string `json:"email" validate:"omitempty,email,max=255"`
	Message   *string `json:"message" validate:"omitempty,max=4000"`
	ProductID *int64  `json:"product_id" validate:"omitempty,gt=0"`
	Locale    string  `json:"locale" validate:"omitempty,oneof=ru kk"`
	Source    string  `json:"source" validate:"omitempty,oneof=contact quote callback"`
}

func (h *HTTPHandler) CreateLead(w http.ResponseWriter, r *http.Request) {
	if h.leadStore == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "Lead capture is not available")
		return
	}

	var input LeadCreateInput
	if !h.decodeAndValidate(w, r, &input) {
		return
	}
	if input.Locale == "" {
		input.Locale = domain.LocaleRU
	}
	if input.Source == "" {
		input.Source = "contact"
	}

	lead, err := h.leadStore.CreateLead(r.Context(), &domain.Lead{
		Name:      strings.TrimSpace(input.Name),
		Phone:     strings.TrimSpace(input.Phone),
		Email:     input.Email,
		Message:   input.Message,
		ProductID: input.ProductID,
		Locale:    input.Locale,
		Source:    input.Source,
	})
	if err != nil {
		h.log.Errorw("CreateLead store operation failed", "source", input.Source, "error", err)
		if errors.Is(err, store.ErrProductNotFound) {
			h.respondWithError(w, http.StatusBadRequest, "Product for lead not found")
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, "Failed to submit request")
		return
	}

	h.log.Infow("lead received", "lead_id", lead.ID, "source", lead.Source, "locale", lead.Locale)
	h.respondWithJSON(w, http.StatusCreated, lead)
}

// --- Admin Handlers ---

// requireAdmin guards admin routes with a static bearer token.
// Without a configured token the routes do not exist.
func (h *HTTPHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken == "" {
			h.respondWithError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			h.respondWithError(w, http.StatusUnauthorized, "Invalid or missing admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecountResponse reports the outcome of a category recount.
type RecountResponse struct {
	Examined   int                 `json:"examined"`
	Planned    int                 `json:"planned"`
	Updated    int                 `json:"updated"`
	Failed     int                 `json:"failed"`
	Unchanged  int                 `json:"unchanged"`
	DurationMS int64               `json:"duration_ms"`
	Updates    []recount.Update    `json:"updates"`
	Errors     []recount.ItemError `json:"errors,omitempty"`
}

func newRecountResponse(s *recount.Summary) RecountResponse {
	updates := s.Updates
	if updates == nil {
		updates = []recount.Update{}
	}
	return RecountResponse{
		Examined:   s.Examined,
		Planned:    s.Planned,
		Updated:    s.Updated,
		Failed:     s.Failed,
		Unchanged:  s.Unchanged,
		DurationMS: s.Duration.Milliseconds(),
		Updates:    updates,
		Errors:     s.Errors,
	}
}

// RecountCategories recomputes stored category product totals.
func (h *HTTPHandler) RecountCategories(w http.ResponseWriter, r *http.Request) {
	if h.recounter == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "Recount is not available")
		return
	}

	summary, err := h.recounter.Run(r.Context())
	if err != nil {
		h.log.Errorw("category recount aborted", "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to recount categories")
		return
	}

	if summary.Updated > 0 {
		h.treeCache.Invalidate(r.Context())
	}
	h.respondWithJSON(w, http.StatusOK, newRecountResponse(summary))
}
