// internal/catalog/handler.go
package catalog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"librecords/internal/apperr"
	"librecords/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// BookRoutes serves /books.
func (h *Handler) BookRoutes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.handleListBooks)
	r.Post("/", h.handleCreateBook)
	r.Get("/search", h.handleSearchBooks)
	r.Get("/{id}", h.handleGetBook)
	r.Put("/{id}", h.handleUpdateBook)
	r.Delete("/{id}", h.handleDeleteBook)
	return r
}

// CopyRoutes serves /copies.
func (h *Handler) CopyRoutes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.handleListCopies)
	r.Post("/", h.handleCreateCopy)
	r.Get("/inventory/{code}", h.handleGetCopyByInventory)
	r.Get("/book/{bookID}/available", h.handleListAvailableCopies)
	r.Get("/{id}", h.handleGetCopy)
	r.Put("/{id}", h.handleUpdateCopy)
	r.Patch("/{id}/mark-borrowed", h.handleMarkCopy(CopyBorrowed))
	r.Patch("/{id}/mark-available", h.handleMarkCopy(CopyAvailable))
	r.Delete("/{id}", h.handleDeleteCopy)
	return r
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	page, err := httpx.PageParams(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	books, err := h.service.ListBooks(r.Context(), page)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, books)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, book)
}

func (h *Handler) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req NewBook
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	book, err := h.service.CreateBook(r.Context(), req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, book)
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req BookPatch
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	book, err := h.service.UpdateBook(r.Context(), id, req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, book)
}

func (h *Handler) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		httpx.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSearchBooks answers 404 when no book matches q.
func (h *Handler) handleSearchBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	books, err := h.service.SearchBooks(r.Context(), q)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if len(books) == 0 {
		httpx.Error(w, r, apperr.NotFound("books matching", strconv.Quote(q)))
		return
	}
	httpx.JSON(w, http.StatusOK, books)
}

// views attaches book titles to copies.
func (h *Handler) views(ctx context.Context, copies ...Copy) ([]CopyView, error) {
	ids := make([]int64, 0, len(copies))
	for _, c := range copies {
		ids = append(ids, c.BookID)
	}
	titles, err := h.service.BookTitles(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]CopyView, 0, len(copies))
	for _, c := range copies {
		v := CopyView{Copy: c}
		if t, ok := titles[c.BookID]; ok {
			v.BookTitle = &t
		}
		out = append(out, v)
	}
	return out, nil
}

func (h *Handler) writeCopies(w http.ResponseWriter, r *http.Request, copies []Copy) {
	views, err := h.views(r.Context(), copies...)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) writeCopy(w http.ResponseWriter, r *http.Request, status int, c *Copy) {
	views, err := h.views(r.Context(), *c)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, status, views[0])
}

func (h *Handler) handleListCopies(w http.ResponseWriter, r *http.Request) {
	page, err := httpx.PageParams(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	var filter CopyFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := CopyStatus(raw)
		if !status.Valid() {
			httpx.Error(w, r, apperr.FieldErrors{"status": "must be one of available, borrowed, under_repair, written_off"})
			return
		}
		filter.Status = &status
	}

	copies, err := h.service.ListCopies(r.Context(), filter, page)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.writeCopies(w, r, copies)
}

func (h *Handler) handleGetCopy(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	c, err := h.service.GetCopy(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.writeCopy(w, r, http.StatusOK, c)
}

func (h *Handler) handleGetCopyByInventory(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCopyByInventory(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.writeCopy(w, r, http.StatusOK, c)
}

func (h *Handler) handleListAvailableCopies(w http.ResponseWriter, r *http.Request) {
	bookID, err := httpx.IDParam(r, "bookID")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	copies, err := h.service.ListAvailableCopies(r.Context(), bookID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.writeCopies(w, r, copies)
}

func (h *Handler) handleCreateCopy(w http.ResponseWriter, r *http.Request) {
	var req NewCopy
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	c, err := h.service.CreateCopy(r.Context(), req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.writeCopy(w, r, http.StatusCreated, c)
}

func (h *Handler) handleUpdateCopy(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req CopyPatch
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	c, err := h.service.UpdateCopy(r.Context(), id, req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.writeCopy(w, r, http.StatusOK, c)
}

func (h *Handler) handleMarkCopy(status CopyStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		c, err := h.service.SetCopyStatus(r.Context(), id, status)
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		h.writeCopy(w, r, http.StatusOK, c)
	}
}

func (h *Handler) handleDeleteCopy(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.service.DeleteCopy(r.Context(), id); err != nil {
		httpx.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
