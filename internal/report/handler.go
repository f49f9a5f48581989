package report

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-engine/internal/store"
)

// Handler exposes the report projections over HTTP. All endpoints are
// read-only; ingestion stays on the CLI.
type Handler struct {
	svc *Service
	log *zap.Logger
}

// NewHandler creates the HTTP handler over a report service.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, log: zap.L().Named("api")}
}

// Router builds the API router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/attribution", h.handleAttribution)
		r.Get("/attribution/{contactID}", h.handleContactAttribution)
		r.Get("/contacts", h.handleContacts)
		r.Get("/confidence", h.handleConfidence)
		r.Get("/coverage", h.handleCoverage)
		r.Get("/consistency", h.handleConsistency)
		r.Get("/sync/status", h.handleSyncStatus)
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleAttribution(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.Attribution(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) handleContactAttribution(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "contactID"), 10, 64)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "contactID must be an integer"})
		return
	}
	rec, err := h.svc.ContactAttribution(r.Context(), id)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no attribution for contact"})
			return
		}
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.svc.Contacts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, contacts)
}

func (h *Handler) handleConfidence(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Confidence(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleCoverage(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Coverage(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleConsistency(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Consistency(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	cps, err := h.svc.SyncStatus(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cps)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.log.Error("request failed", zap.Error(err))
	h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
