package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sandy-backend/internal/middleware"
	"sandy-backend/internal/upload"
)

type UploadHandler struct {
	coordinator *upload.Coordinator
}

func NewUploadHandler(coordinator *upload.Coordinator) *UploadHandler {
	return &UploadHandler{coordinator: coordinator}
}

// Create accepts one multipart file and starts its upload immediately. The
// response carries the pending task snapshot; progress is observable through
// List.
func (h *UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := r.ParseMultipartForm(upload.MaxFileSize); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid multipart form", r))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Missing file field", r))
		return
	}
	defer file.Close()

	task, err := h.coordinator.Add(userID, header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		var ve *upload.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", ve.Message, r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to accept upload", r))
		return
	}

	writeJSON(w, http.StatusAccepted, task)
}

func (h *UploadHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	tasks := h.coordinator.Tasks(userID)
	if tasks == nil {
		tasks = []upload.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"uploads": tasks})
}

// Cancel aborts an in-flight upload. Idempotent; unknown ids are fine.
func (h *UploadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid upload ID", r))
		return
	}

	h.coordinator.Cancel(id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Upload cancelled"})
}

// Remove disposes of an already-uploaded file by its public URL.
func (h *UploadHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "File URL is required", r))
		return
	}

	h.coordinator.RemoveUploaded(r.Context(), userID, req.URL)
	writeJSON(w, http.StatusOK, map[string]string{"message": "File removed"})
}
