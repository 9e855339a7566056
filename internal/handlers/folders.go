package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sandy-backend/internal/models"
	"sandy-backend/internal/session"
)

type FolderHandler struct {
	manager *session.Manager
}

func NewFolderHandler(manager *session.Manager) *FolderHandler {
	return &FolderHandler{manager: manager}
}

func (h *FolderHandler) Create(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Folder name is required", map[string]string{"name": "required"}, r))
		return
	}

	folder, err := store.AddFolder(r.Context(), req.Name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create folder", r))
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

func (h *FolderHandler) List(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	folders := store.Folders()
	if folders == nil {
		folders = []*models.Folder{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"folders": folders})
}

func (h *FolderHandler) Update(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid folder ID", r))
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Folder name is required", map[string]string{"name": "required"}, r))
		return
	}

	if err := store.UpdateFolder(r.Context(), id, req.Name); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to rename folder", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Folder renamed"})
}

// Delete removes the folder; member chats survive with their folder
// reference cleared.
func (h *FolderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid folder ID", r))
		return
	}

	if err := store.DeleteFolder(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete folder", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Folder deleted"})
}
