package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sandy-backend/internal/exchange"
	"sandy-backend/internal/middleware"
	"sandy-backend/internal/models"
	"sandy-backend/internal/session"
	"sandy-backend/internal/upload"
)

// exchanger is the slice of the inference client the chat flow needs.
type exchanger interface {
	Exchange(ctx context.Context, modelID string, history []models.Message, credential string) (*models.Message, error)
}

type uploadDrainer interface {
	ReadyImages(userID uuid.UUID) []string
	Tasks(userID uuid.UUID) []upload.Task
	DrainForSubmit(userID uuid.UUID) ([]string, []upload.PDFAttachment)
}

type ChatHandler struct {
	manager  *session.Manager
	exchange exchanger
	uploads  uploadDrainer
	notifier session.Notifier

	// One generation at a time per chat; Stop cancels through this registry.
	mu       sync.Mutex
	inflight map[uuid.UUID]context.CancelFunc
}

func NewChatHandler(manager *session.Manager, ex exchanger, uploads uploadDrainer, notifier session.Notifier) *ChatHandler {
	if notifier == nil {
		notifier = session.NoopNotifier{}
	}
	return &ChatHandler{
		manager:  manager,
		exchange: ex,
		uploads:  uploads,
		notifier: notifier,
		inflight: make(map[uuid.UUID]context.CancelFunc),
	}
}

func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	var req struct {
		Model string `json:"model"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	chat, err := store.CreateChat(r.Context(), req.Model)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create chat", r))
		return
	}

	writeJSON(w, http.StatusCreated, chat)
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	chats := store.Chats()
	if chats == nil {
		chats = []*models.Chat{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chats":           chats,
		"current_chat_id": store.CurrentChatID(),
	})
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid chat ID", r))
		return
	}

	chat, found := store.Chat(id)
	if !found {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Chat not found", r))
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// SetCurrent repoints the current-chat pointer. A pure local change.
func (h *ChatHandler) SetCurrent(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	var req struct {
		ChatID uuid.UUID `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChatID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	store.SetCurrentChat(req.ChatID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"current_chat_id": req.ChatID})
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid chat ID", r))
		return
	}

	if err := store.DeleteChat(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete chat", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":         "Chat deleted",
		"current_chat_id": store.CurrentChatID(),
	})
}

func (h *ChatHandler) UpdateTitle(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid chat ID", r))
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Title is required", map[string]string{"title": "required"}, r))
		return
	}

	if err := store.UpdateChatTitle(r.Context(), id, req.Title); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update title", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Title updated"})
}

func (h *ChatHandler) UpdateModel(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid chat ID", r))
		return
	}

	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || models.FindModel(req.Model) == nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Unknown model", r))
		return
	}

	if err := store.UpdateChatModel(r.Context(), id, req.Model); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to switch model", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Model updated"})
}

func (h *ChatHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid chat ID", r))
		return
	}

	if err := store.ToggleFavorite(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update favorite", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"is_favorite": store.IsFavorite(id)})
}

// AssignFolder moves a chat into a folder; a null folder_id removes it from
// any folder.
func (h *ChatHandler) AssignFolder(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid chat ID", r))
		return
	}

	var req struct {
		FolderID *uuid.UUID `json:"folder_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := store.AssignChatToFolder(r.Context(), id, req.FolderID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to move chat", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat moved"})
}

// Submit runs one full turn against the current chat: the text plus any
// finished uploads become the user message, the in-flight registry takes the
// chat, the inference endpoint produces the assistant reply, both turns land
// in the conversation. A chat is created on the fly when none is current.
func (h *ChatHandler) Submit(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())

	var req struct {
		Text  string `json:"text"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	// An empty submit must not consume pending uploads, so check before
	// draining anything.
	text := strings.TrimSpace(req.Text)
	readyImages := h.uploads.ReadyImages(userID)
	if text == "" && len(readyImages) == 0 && !hasReadyPDF(h.uploads.Tasks(userID)) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message is empty", r))
		return
	}

	// Images only attach to image-capable models; also checked before draining.
	if len(readyImages) > 0 {
		modelID := req.Model
		if id := store.CurrentChatID(); id != nil {
			if current, found := store.Chat(*id); found {
				modelID = current.Model
			}
		}
		if modelID == "" {
			modelID = models.DefaultModelID
		}
		if m := models.FindModel(modelID); m == nil || !m.SupportsImages {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "The selected model does not support images", r))
			return
		}
	}

	if store.CredentialMissing() {
		writeJSON(w, http.StatusBadRequest, errorResp("CREDENTIAL_ERROR", exchange.ErrMissingCredential.Error(), r))
		return
	}

	chatID := store.CurrentChatID()
	if chatID == nil {
		chat, err := store.CreateChat(r.Context(), req.Model)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create chat", r))
			return
		}
		id := chat.ID
		chatID = &id
	}

	images, pdfs := h.uploads.DrainForSubmit(userID)
	userMsg := models.Message{
		Role:    models.RoleUser,
		Content: composeContent(req.Text, images, pdfs),
	}

	genCtx, ok := h.claimChat(*chatID)
	if !ok {
		writeJSON(w, http.StatusConflict, errorResp("GENERATION_IN_PROGRESS", "A response is already being generated for this chat", r))
		return
	}
	defer h.releaseChat(*chatID)

	if err := store.AppendMessage(r.Context(), *chatID, userMsg); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to send message", r))
		return
	}

	chat, _ := store.Chat(*chatID)
	if chat == nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Chat not found", r))
		return
	}

	h.generate(w, r, store, chat.ID, chat.Model, chat.Messages, genCtx)
}

// Edit truncates the conversation at the given index, replaces that turn with
// the new text and regenerates the assistant reply from the shortened history.
// Everything after the edited turn is gone for good.
func (h *ChatHandler) Edit(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid chat ID", r))
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid message index", r))
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message text is required", r))
		return
	}

	if store.CredentialMissing() {
		writeJSON(w, http.StatusBadRequest, errorResp("CREDENTIAL_ERROR", exchange.ErrMissingCredential.Error(), r))
		return
	}

	genCtx, ok := h.claimChat(id)
	if !ok {
		writeJSON(w, http.StatusConflict, errorResp("GENERATION_IN_PROGRESS", "A response is already being generated for this chat", r))
		return
	}
	defer h.releaseChat(id)

	userMsg := models.Message{Role: models.RoleUser, Content: models.TextContent(req.Text)}
	history, err := store.ReplaceFromIndex(r.Context(), id, index, userMsg)
	if err != nil {
		if errors.Is(err, session.ErrNotSignedIn) {
			writeJSON(w, http.StatusConflict, errorResp("NO_SESSION", "No active session; attach first", r))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
		return
	}

	chat, _ := store.Chat(id)
	if chat == nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Chat not found", r))
		return
	}

	h.generate(w, r, store, id, chat.Model, history, genCtx)
}

// Stop cancels the chat's in-flight generation. Idempotent; stopping a chat
// with nothing running is a no-op.
func (h *ChatHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireStore(w, r, h.manager); !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid chat ID", r))
		return
	}

	h.mu.Lock()
	cancel, running := h.inflight[id]
	h.mu.Unlock()
	if running {
		cancel()
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Generation stopped"})
}

// generate runs the inference call and appends the assistant turn. The
// registry entry for chatID is held by the caller; genCtx dies with it.
func (h *ChatHandler) generate(w http.ResponseWriter, r *http.Request, store *session.Store, chatID uuid.UUID, modelID string, history []models.Message, genCtx context.Context) {
	userID := middleware.GetUserID(r.Context())

	credential, err := resolveCredential(store.User())
	if err != nil {
		store.SetCredentialMissing(true)
		writeJSON(w, http.StatusBadRequest, errorResp("CREDENTIAL_ERROR", err.Error(), r))
		return
	}

	assistant, err := h.exchange.Exchange(genCtx, modelID, history, credential)
	if err != nil {
		switch {
		case errors.Is(err, exchange.ErrCancelled):
			chat, _ := store.Chat(chatID)
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"message": "Generation stopped",
				"chat":    chat,
			})
		case errors.Is(err, exchange.ErrMissingCredential):
			store.SetCredentialMissing(true)
			writeJSON(w, http.StatusBadRequest, errorResp("CREDENTIAL_ERROR", err.Error(), r))
		default:
			h.notifier.Notify(r.Context(), userID, "error", "Failed to get AI response")
			writeJSON(w, http.StatusBadGateway, errorResp("EXCHANGE_FAILED", err.Error(), r))
		}
		return
	}

	if err := store.AppendMessage(r.Context(), chatID, *assistant); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to save response", r))
		return
	}

	chat, _ := store.Chat(chatID)
	writeJSON(w, http.StatusOK, chat)
}

// claimChat registers a generation for the chat, returning a context that
// Stop can cancel from another request. Fails when one is already running.
func (h *ChatHandler) claimChat(chatID uuid.UUID) (context.Context, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.inflight[chatID]; busy {
		return nil, false
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.inflight[chatID] = cancel
	return ctx, true
}

func (h *ChatHandler) releaseChat(chatID uuid.UUID) {
	h.mu.Lock()
	cancel, ok := h.inflight[chatID]
	delete(h.inflight, chatID)
	h.mu.Unlock()
	if ok {
		cancel()
	}
}

// resolveCredential picks the key for the exchange: the user's own key when
// custom-API mode is on (required in that mode), otherwise empty so the
// server-wide default applies.
func resolveCredential(user *models.User) (string, error) {
	if user == nil {
		return "", session.ErrNotSignedIn
	}
	if !user.Preferences.UseCustomAPI {
		return "", nil
	}
	if user.APIKey == nil || *user.APIKey == "" {
		return "", exchange.ErrMissingCredential
	}
	return *user.APIKey, nil
}

// composeContent builds the composite user-message body: the typed text
// first, then one image part per uploaded file, with analyzed PDF text folded
// into the text part.
func composeContent(text string, images []string, pdfs []upload.PDFAttachment) models.MessageContent {
	var parts []models.ContentPart

	trimmed := strings.TrimSpace(text)
	if trimmed != "" {
		parts = append(parts, models.ContentPart{Type: "text", Text: text})
	}
	for _, url := range images {
		parts = append(parts, models.ContentPart{Type: "image_url", ImageURL: &models.ImageRef{URL: url}})
	}

	if len(pdfs) > 0 {
		pdfTexts := make([]string, len(pdfs))
		for i, pdf := range pdfs {
			pdfTexts[i] = "[PDF: " + pdf.Filename + "]\n" + pdf.Text
		}
		joined := strings.Join(pdfTexts, "\n\n")
		if trimmed != "" {
			parts[0].Text += "\n\n" + joined
		} else {
			parts = append(parts, models.ContentPart{Type: "text", Text: joined})
		}
	}

	return models.PartsContent(parts)
}

func hasReadyPDF(tasks []upload.Task) bool {
	for _, t := range tasks {
		if t.Kind == upload.KindPDF && t.State == upload.StateSuccess && t.PDFText != "" {
			return true
		}
	}
	return false
}
