// internal/membership/handler.go
package membership

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"librecords/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// ReaderRoutes serves /readers.
func (h *Handler) ReaderRoutes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.handleListReaders)
	r.Post("/", h.handleCreateReader)
	r.Get("/card/{card}", h.handleGetReaderByCard)
	r.Get("/{id}", h.handleGetReader)
	r.Put("/{id}", h.handleUpdateReader)
	r.Patch("/{id}/block", h.handleSetReaderStatus(ReaderBlocked))
	r.Patch("/{id}/activate", h.handleSetReaderStatus(ReaderActive))
	r.Delete("/{id}", h.handleDeleteReader)
	return r
}

// LibrarianRoutes serves /librarians.
func (h *Handler) LibrarianRoutes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.handleListLibrarians)
	r.Post("/", h.handleCreateLibrarian)
	r.Get("/{id}", h.handleGetLibrarian)
	r.Put("/{id}/password", h.handleChangePassword)
	r.Delete("/{id}", h.handleDeleteLibrarian)
	return r
}

func (h *Handler) handleListReaders(w http.ResponseWriter, r *http.Request) {
	page, err := httpx.PageParams(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	readers, err := h.service.ListReaders(r.Context(), page)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, readers)
}

func (h *Handler) handleGetReader(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	reader, err := h.service.GetReader(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reader)
}

func (h *Handler) handleGetReaderByCard(w http.ResponseWriter, r *http.Request) {
	reader, err := h.service.GetReaderByCard(r.Context(), chi.URLParam(r, "card"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reader)
}

func (h *Handler) handleCreateReader(w http.ResponseWriter, r *http.Request) {
	var req NewReader
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	reader, err := h.service.CreateReader(r.Context(), req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reader)
}

func (h *Handler) handleUpdateReader(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req ReaderPatch
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	reader, err := h.service.UpdateReader(r.Context(), id, req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reader)
}

func (h *Handler) handleSetReaderStatus(status ReaderStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		reader, err := h.service.SetReaderStatus(r.Context(), id, status)
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, reader)
	}
}

func (h *Handler) handleDeleteReader(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.service.DeleteReader(r.Context(), id); err != nil {
		httpx.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListLibrarians(w http.ResponseWriter, r *http.Request) {
	page, err := httpx.PageParams(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	librarians, err := h.service.ListLibrarians(r.Context(), page)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, librarians)
}

func (h *Handler) handleGetLibrarian(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	l, err := h.service.GetLibrarian(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) handleCreateLibrarian(w http.ResponseWriter, r *http.Request) {
	var req NewLibrarian
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	l, err := h.service.CreateLibrarian(r.Context(), req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, l)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req PasswordChange
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.service.ChangeLibrarianPassword(r.Context(), id, req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteLibrarian(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.service.DeleteLibrarian(r.Context(), id); err != nil {
		httpx.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
