// internal/circulation/handler.go
package circulation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"librecords/internal/apperr"
	"librecords/internal/httpx"
)

type Handler struct {
	service   Service
	projector *Projector
}

func NewHandler(service Service, projector *Projector) *Handler {
	return &Handler{service: service, projector: projector}
}

// LoanRoutes serves /loans.
func (h *Handler) LoanRoutes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.handleListLoans)
	r.Post("/", h.handleBorrow)
	r.Get("/overdue", h.handleOverdue)
	r.Get("/stats/summary", h.handleStats)
	r.Get("/reader/{id}/active", h.handleActiveOfReader)
	r.Post("/return/{id}", h.handleReturn)
	r.Get("/{id}", h.handleGetLoan)
	r.Get("/{id}/history", h.handleHistory)
	r.Delete("/{id}", h.handleDeleteLoan)
	return r
}

func (h *Handler) writeLoans(w http.ResponseWriter, r *http.Request, loans []Loan) {
	views, err := h.projector.Views(r.Context(), loans)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) writeLoan(w http.ResponseWriter, r *http.Request, status int, loan *Loan) {
	view, err := h.projector.View(r.Context(), *loan)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, status, view)
}

func (h *Handler) handleListLoans(w http.ResponseWriter, r *http.Request) {
	page, err := httpx.PageParams(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	var filter LoanFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := LoanStatus(raw)
		if !status.Valid() {
			httpx.Error(w, r, apperr.FieldErrors{"status": "must be active or returned"})
			return
		}
		filter.Status = &status
	}

	loans, err := h.service.ListLoans(r.Context(), filter, page)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.writeLoans(w, r, loans)
}

func (h *Handler) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.writeLoan(w, r, http.StatusOK, loan)
}

func (h *Handler) handleActiveOfReader(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	loans, err := h.service.ActiveLoansOf(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.writeLoans(w, r, loans)
}

func (h *Handler) handleOverdue(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.OverdueLoans(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.writeLoans(w, r, loans)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req BorrowRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	loan, err := h.service.Borrow(r.Context(), req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.writeLoan(w, r, http.StatusCreated, loan)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	loan, err := h.service.Return(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.writeLoan(w, r, http.StatusOK, loan)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	events, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, events)
}

func (h *Handler) handleDeleteLoan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.service.DeleteLoan(r.Context(), id); err != nil {
		httpx.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
