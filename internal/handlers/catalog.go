package handlers

import (
	"net/http"

	"sandy-backend/internal/models"
)

type CatalogHandler struct{}

func NewCatalogHandler() *CatalogHandler {
	return &CatalogHandler{}
}

// List returns the selectable model catalog. Public; the picker renders
// before sign-in completes.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models":  models.Models,
		"default": models.DefaultModelID,
	})
}
