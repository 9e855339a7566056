// Package upload owns the per-file upload lifecycle: validate, spool, push
// to blob storage, optionally extract PDF text, publish the resulting URL.
// Each accepted file runs in its own goroutine with its own cancellation
// handle — deliberately no global concurrency cap, every selected file
// starts immediately.
package upload

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"sandy-backend/internal/storage"
)

type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
)

type State string

const (
	StatePending   State = "pending"
	StateUploading State = "uploading"
	StateSuccess   State = "success"
	StateError     State = "error"
)

// MaxFileSize is the validation ceiling; larger files never enter the state
// machine.
const MaxFileSize = 50 * 1024 * 1024

var allowedMIMETypes = map[string]Kind{
	"image/jpeg":      KindImage,
	"image/png":       KindImage,
	"image/gif":       KindImage,
	"image/webp":      KindImage,
	"application/pdf": KindPDF,
}

// ValidationError rejects a file before any task exists.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Task is the externally visible snapshot of one upload.
type Task struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	Kind      Kind      `json:"kind"`
	State     State     `json:"state"`
	Progress  int       `json:"progress"`
	PDFText   string    `json:"pdf_text,omitempty"`
	PublicURL string    `json:"public_url,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// PDFAttachment is a successfully analyzed PDF handed to the submission flow.
type PDFAttachment struct {
	Filename string
	Text     string
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, level, message string)
}

// task is the internal record: the snapshot plus the cancellation handle,
// the spooled preview file and the blob path for later removal.
type task struct {
	Task
	cancel   context.CancelFunc
	spool    *os.File
	blobPath string
}

type Coordinator struct {
	blobs     storage.BlobStore
	extractor *PDFExtractor
	notifier  Notifier

	mu          sync.Mutex
	tasks       map[uuid.UUID]*task
	order       []uuid.UUID
	readyImages map[uuid.UUID][]string
}

func NewCoordinator(blobs storage.BlobStore, extractor *PDFExtractor, notifier Notifier) *Coordinator {
	return &Coordinator{
		blobs:       blobs,
		extractor:   extractor,
		notifier:    notifier,
		tasks:       make(map[uuid.UUID]*task),
		readyImages: make(map[uuid.UUID][]string),
	}
}

// Validate applies the pre-admission checks. Files failing them are rejected
// outright; no task object is ever created for them.
func Validate(filename, mimeType string, size int64) (Kind, error) {
	if size > MaxFileSize {
		return "", &ValidationError{Message: fmt.Sprintf("File %s is too large. Maximum size is 50MB", filename)}
	}
	kind, ok := allowedMIMETypes[mimeType]
	if !ok {
		return "", &ValidationError{Message: fmt.Sprintf("File type %s is not supported", mimeType)}
	}
	return kind, nil
}

// Add validates the file, spools it to a local preview file and starts its
// upload goroutine immediately. The returned snapshot is in state pending;
// the transition to uploading happens asynchronously.
func (c *Coordinator) Add(userID uuid.UUID, filename, mimeType string, size int64, r io.Reader) (Task, error) {
	kind, err := Validate(filename, mimeType, size)
	if err != nil {
		return Task{}, err
	}

	spool, err := os.CreateTemp("", "sandy-upload-*")
	if err != nil {
		return Task{}, fmt.Errorf("failed to spool upload: %w", err)
	}
	written, err := io.Copy(spool, io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		releaseSpool(spool)
		return Task{}, fmt.Errorf("failed to spool upload: %w", err)
	}
	if written > MaxFileSize {
		releaseSpool(spool)
		return Task{}, &ValidationError{Message: fmt.Sprintf("File %s is too large. Maximum size is 50MB", filename)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		Task: Task{
			ID:       uuid.New(),
			UserID:   userID,
			Filename: filename,
			Size:     written,
			Kind:     kind,
			State:    StatePending,
		},
		cancel: cancel,
		spool:  spool,
	}

	c.mu.Lock()
	c.tasks[t.ID] = t
	c.order = append(c.order, t.ID)
	c.mu.Unlock()

	go c.run(ctx, t.ID)
	return t.Task, nil
}

func (c *Coordinator) run(ctx context.Context, id uuid.UUID) {
	c.mu.Lock()
	t, ok := c.tasks[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	t.State = StateUploading
	userID := t.UserID
	filename := t.Filename
	kind := t.Kind
	size := t.Size
	spool := t.spool
	c.mu.Unlock()

	// Best-effort PDF analysis; a failed extraction never aborts the upload.
	if kind == KindPDF && c.extractor != nil {
		if text, err := extractFromSpool(c.extractor, spool); err != nil {
			log.Printf("PDF analysis failed for %s: %v", filename, err)
		} else {
			c.mu.Lock()
			if t, ok := c.tasks[id]; ok {
				t.PDFText = text
			}
			c.mu.Unlock()
		}
	}

	blobPath := fmt.Sprintf("%s/%s%s", userID, uuid.New(), filepath.Ext(filename))
	c.mu.Lock()
	if t, ok := c.tasks[id]; ok {
		t.blobPath = blobPath
	}
	c.mu.Unlock()

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		c.fail(ctx, id, fmt.Sprintf("failed to read spooled file: %v", err))
		return
	}

	err := c.blobs.Put(ctx, blobPath, spool, size, storage.PutOptions{
		CacheControl: "3600",
		OnProgress: func(pct int) {
			c.mu.Lock()
			if t, ok := c.tasks[id]; ok {
				t.Progress = pct
			}
			c.mu.Unlock()
		},
	})
	if err != nil {
		// A cancelled task was already removed; nothing left to report.
		if ctx.Err() != nil {
			return
		}
		c.fail(ctx, id, err.Error())
		return
	}

	publicURL := c.blobs.PublicURL(blobPath)

	c.mu.Lock()
	t, ok = c.tasks[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	t.State = StateSuccess
	t.Progress = 100
	t.PublicURL = publicURL
	if t.Kind == KindImage {
		c.readyImages[userID] = append(c.readyImages[userID], publicURL)
	}
	c.mu.Unlock()

	c.notifier.Notify(ctx, userID, "success", fmt.Sprintf("%s uploaded successfully", filename))
}

func (c *Coordinator) fail(ctx context.Context, id uuid.UUID, msg string) {
	c.mu.Lock()
	t, ok := c.tasks[id]
	var userID uuid.UUID
	var filename string
	if ok {
		t.State = StateError
		t.Error = msg
		userID = t.UserID
		filename = t.Filename
	}
	c.mu.Unlock()

	if ok {
		c.notifier.Notify(ctx, userID, "error", fmt.Sprintf("Failed to upload %s", filename))
	}
}

func extractFromSpool(extractor *PDFExtractor, spool *os.File) (string, error) {
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	data, err := io.ReadAll(spool)
	if err != nil {
		return "", err
	}
	return extractor.ExtractText(data)
}

// Cancel aborts the task's in-flight transfer, releases its preview spool and
// removes it. Idempotent: cancelling an unknown or already-removed id is a
// no-op. Cancelling one task never affects another. A task that already
// succeeded owns a remote blob and stays put; disposal of finished uploads
// goes through RemoveUploaded so the blob is deleted too.
func (c *Coordinator) Cancel(id uuid.UUID) {
	c.mu.Lock()
	t, ok := c.tasks[id]
	if ok && t.State == StateSuccess {
		ok = false
	}
	if ok {
		c.removeLocked(t)
	}
	c.mu.Unlock()

	if ok {
		t.cancel()
		releaseSpool(t.spool)
	}
}

// RemoveUploaded disposes of a succeeded upload by its public URL: the blob
// is deleted remotely best-effort, and the local task and ready-list entry go
// away regardless — local state wins when the remote delete fails.
func (c *Coordinator) RemoveUploaded(ctx context.Context, userID uuid.UUID, url string) {
	c.mu.Lock()
	var found *task
	for _, id := range c.order {
		t := c.tasks[id]
		if t != nil && t.UserID == userID && t.PublicURL == url {
			found = t
			break
		}
	}
	if found != nil {
		c.removeLocked(found)
	}
	ready := c.readyImages[userID]
	kept := ready[:0]
	for _, u := range ready {
		if u != url {
			kept = append(kept, u)
		}
	}
	c.readyImages[userID] = kept
	c.mu.Unlock()

	if found != nil {
		releaseSpool(found.spool)
	}

	blobPath, err := c.blobs.PathFromURL(url)
	if err == nil {
		err = c.blobs.Remove(ctx, []string{blobPath})
	}
	if err != nil {
		log.Printf("Failed to remove uploaded file %s: %v", url, err)
		c.notifier.Notify(ctx, userID, "error", "Failed to remove file")
		return
	}
	c.notifier.Notify(ctx, userID, "success", "File removed successfully")
}

// Tasks returns snapshots of the user's tasks in creation order.
func (c *Coordinator) Tasks(userID uuid.UUID) []Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Task
	for _, id := range c.order {
		if t, ok := c.tasks[id]; ok && t.UserID == userID {
			out = append(out, t.Task)
		}
	}
	return out
}

// ReadyImages returns the image URLs currently attachable at submit time.
func (c *Coordinator) ReadyImages(userID uuid.UUID) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.readyImages[userID]...)
}

// DrainForSubmit consumes the user's upload state for one submitted turn:
// ready image URLs and analyzed PDF texts come back, every task is destroyed.
// Tasks still pending or uploading are silently excluded from the turn and
// cancelled.
func (c *Coordinator) DrainForSubmit(userID uuid.UUID) ([]string, []PDFAttachment) {
	c.mu.Lock()
	images := c.readyImages[userID]
	delete(c.readyImages, userID)

	var pdfs []PDFAttachment
	var removed []*task
	keptOrder := c.order[:0]
	for _, id := range c.order {
		t := c.tasks[id]
		if t == nil {
			continue
		}
		if t.UserID != userID {
			keptOrder = append(keptOrder, id)
			continue
		}
		if t.Kind == KindPDF && t.State == StateSuccess && t.PDFText != "" {
			pdfs = append(pdfs, PDFAttachment{Filename: t.Filename, Text: t.PDFText})
		}
		delete(c.tasks, id)
		removed = append(removed, t)
	}
	c.order = keptOrder
	c.mu.Unlock()

	for _, t := range removed {
		t.cancel()
		releaseSpool(t.spool)
	}
	return images, pdfs
}

// removeLocked drops the task from the maps. Callers hold c.mu and release
// the spool themselves.
func (c *Coordinator) removeLocked(t *task) {
	delete(c.tasks, t.ID)
	for i, id := range c.order {
		if id == t.ID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// releaseSpool closes and deletes the preview file. Both cancellation and
// normal disposal must land here or the temp file leaks.
func releaseSpool(spool *os.File) {
	if spool == nil {
		return
	}
	name := spool.Name()
	spool.Close()
	os.Remove(name)
}
