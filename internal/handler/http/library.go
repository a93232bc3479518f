package http

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windfall/shadowing/internal/view"
	"github.com/windfall/shadowing/pkg/response"
)

// LibraryHandler serves the material library.
type LibraryHandler struct {
	log  zerolog.Logger
	list *view.MaterialList
}

// NewLibraryHandler creates a new library handler.
func NewLibraryHandler(log zerolog.Logger, list *view.MaterialList) *LibraryHandler {
	return &LibraryHandler{log: log, list: list}
}

// List handles GET /api/v1/library
func (h *LibraryHandler) List(w http.ResponseWriter, r *http.Request) {
	lib, err := h.list.Load(r.Context())
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, lib)
}

// Delete handles DELETE /api/v1/library/{materialID}
func (h *LibraryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "materialID")
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	if err := h.list.Delete(r.Context(), id); err != nil {
		handleError(w, h.log, err)
		return
	}
	response.NoContent(w)
}
