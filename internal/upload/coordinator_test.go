package upload

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"sandy-backend/internal/storage"
)

// fakeBlobStore records puts and removes; block makes Put hang until the
// channel closes or the context dies, for cancellation tests.
type fakeBlobStore struct {
	mu      sync.Mutex
	puts    []string
	removed []string

	putErr    error
	removeErr error
	block     chan struct{}
}

func (f *fakeBlobStore) Put(ctx context.Context, blobPath string, r io.Reader, size int64, opts storage.PutOptions) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.putErr != nil {
		return f.putErr
	}
	io.Copy(io.Discard, r)
	if opts.OnProgress != nil {
		opts.OnProgress(100)
	}
	f.mu.Lock()
	f.puts = append(f.puts, blobPath)
	f.mu.Unlock()
	return nil
}

func (f *fakeBlobStore) PublicURL(blobPath string) string {
	return "http://files.test/" + blobPath
}

func (f *fakeBlobStore) Remove(ctx context.Context, blobPaths []string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.mu.Lock()
	f.removed = append(f.removed, blobPaths...)
	f.mu.Unlock()
	return nil
}

func (f *fakeBlobStore) PathFromURL(url string) (string, error) {
	const prefix = "http://files.test/"
	if !strings.HasPrefix(url, prefix) {
		return "", errors.New("foreign url")
	}
	return strings.TrimPrefix(url, prefix), nil
}

type captureNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *captureNotifier) Notify(ctx context.Context, userID uuid.UUID, level, message string) {
	n.mu.Lock()
	n.notices = append(n.notices, level+": "+message)
	n.mu.Unlock()
}

func (n *captureNotifier) has(s string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.notices {
		if m == s {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func taskByID(c *Coordinator, userID, id uuid.UUID) (Task, bool) {
	for _, task := range c.Tasks(userID) {
		if task.ID == id {
			return task, true
		}
	}
	return Task{}, false
}

func TestValidate(t *testing.T) {
	if _, err := Validate("big.png", "image/png", MaxFileSize+1); err == nil {
		t.Fatal("oversize file must be rejected")
	}
	if _, err := Validate("notes.txt", "text/plain", 10); err == nil {
		t.Fatal("unsupported type must be rejected")
	}
	kind, err := Validate("photo.webp", "image/webp", 10)
	if err != nil || kind != KindImage {
		t.Fatalf("webp: kind=%s err=%v", kind, err)
	}
	kind, err = Validate("doc.pdf", "application/pdf", 10)
	if err != nil || kind != KindPDF {
		t.Fatalf("pdf: kind=%s err=%v", kind, err)
	}

	var ve *ValidationError
	_, err = Validate("x.bin", "application/octet-stream", 1)
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestCoordinator_ImageUploadSuccess(t *testing.T) {
	blobs := &fakeBlobStore{}
	notices := &captureNotifier{}
	c := NewCoordinator(blobs, nil, notices)
	userID := uuid.New()

	task, err := c.Add(userID, "photo.png", "image/png", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if task.State != StatePending {
		t.Fatalf("initial state = %s, want pending", task.State)
	}

	waitFor(t, func() bool {
		got, ok := taskByID(c, userID, task.ID)
		return ok && got.State == StateSuccess
	})

	got, _ := taskByID(c, userID, task.ID)
	if got.Progress != 100 || got.PublicURL == "" {
		t.Fatalf("completed task: progress=%d url=%q", got.Progress, got.PublicURL)
	}
	if !strings.HasPrefix(got.PublicURL, "http://files.test/"+userID.String()+"/") {
		t.Fatalf("blob path must be user-scoped: %q", got.PublicURL)
	}

	ready := c.ReadyImages(userID)
	if len(ready) != 1 || ready[0] != got.PublicURL {
		t.Fatalf("ready images = %v", ready)
	}
	waitFor(t, func() bool { return notices.has("success: photo.png uploaded successfully") })
}

func TestCoordinator_UploadFailure(t *testing.T) {
	blobs := &fakeBlobStore{putErr: errors.New("disk full")}
	notices := &captureNotifier{}
	c := NewCoordinator(blobs, nil, notices)
	userID := uuid.New()

	task, err := c.Add(userID, "photo.png", "image/png", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	waitFor(t, func() bool {
		got, ok := taskByID(c, userID, task.ID)
		return ok && got.State == StateError
	})

	got, _ := taskByID(c, userID, task.ID)
	if got.Error == "" {
		t.Fatal("failed task must carry its error")
	}
	if len(c.ReadyImages(userID)) != 0 {
		t.Fatal("failed upload must not become attachable")
	}
	waitFor(t, func() bool { return notices.has("error: Failed to upload photo.png") })
}

func TestCoordinator_CancelIsIdempotentAndIsolated(t *testing.T) {
	blobs := &fakeBlobStore{block: make(chan struct{})}
	notices := &captureNotifier{}
	c := NewCoordinator(blobs, nil, notices)
	userID := uuid.New()

	first, err := c.Add(userID, "a.png", "image/png", 1, strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	second, err := c.Add(userID, "b.png", "image/png", 1, strings.NewReader("y"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	waitFor(t, func() bool {
		got, ok := taskByID(c, userID, first.ID)
		return ok && got.State == StateUploading
	})

	c.Cancel(first.ID)
	if _, ok := taskByID(c, userID, first.ID); ok {
		t.Fatal("cancelled task must disappear")
	}
	if _, ok := taskByID(c, userID, second.ID); !ok {
		t.Fatal("cancelling one task must not touch another")
	}

	// Double-cancel and unknown ids are no-ops.
	c.Cancel(first.ID)
	c.Cancel(uuid.New())

	// Let the second finish; the first must never produce a failure notice.
	close(blobs.block)
	waitFor(t, func() bool {
		got, ok := taskByID(c, userID, second.ID)
		return ok && got.State == StateSuccess
	})
	if notices.has("error: Failed to upload a.png") {
		t.Fatal("a cancelled upload is not a failed one")
	}
}

func TestCoordinator_CancelLeavesFinishedUploadsAlone(t *testing.T) {
	blobs := &fakeBlobStore{}
	c := NewCoordinator(blobs, nil, &captureNotifier{})
	userID := uuid.New()

	added, err := c.Add(userID, "pic.png", "image/png", 1, strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	waitFor(t, func() bool {
		got, ok := taskByID(c, userID, added.ID)
		return ok && got.State == StateSuccess
	})

	// A finished upload owns a remote blob; Cancel must not orphan it.
	c.Cancel(added.ID)
	got, ok := taskByID(c, userID, added.ID)
	if !ok || got.State != StateSuccess {
		t.Fatal("cancel must leave a succeeded task in place")
	}
	if len(c.ReadyImages(userID)) != 1 {
		t.Fatal("the uploaded image must stay attachable")
	}
	if len(blobs.removed) != 0 {
		t.Fatal("cancel never deletes blobs")
	}

	// RemoveUploaded is the disposal path for finished uploads.
	c.RemoveUploaded(context.Background(), userID, got.PublicURL)
	if _, ok := taskByID(c, userID, added.ID); ok {
		t.Fatal("removed upload must be gone")
	}
	if len(blobs.removed) != 1 {
		t.Fatal("the blob must be deleted remotely")
	}
}

func TestCoordinator_DrainForSubmit(t *testing.T) {
	blobs := &fakeBlobStore{}
	c := NewCoordinator(blobs, nil, &captureNotifier{})
	userID := uuid.New()
	otherID := uuid.New()

	img, err := c.Add(userID, "pic.png", "image/png", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Add image: %v", err)
	}
	pdf, err := c.Add(userID, "notes.pdf", "application/pdf", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Add pdf: %v", err)
	}
	foreign, err := c.Add(otherID, "keep.png", "image/png", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Add foreign: %v", err)
	}

	waitFor(t, func() bool {
		a, okA := taskByID(c, userID, img.ID)
		b, okB := taskByID(c, userID, pdf.ID)
		f, okF := taskByID(c, otherID, foreign.ID)
		return okA && a.State == StateSuccess && okB && b.State == StateSuccess && okF && f.State == StateSuccess
	})

	// The analyzed text normally comes from extraction; set it directly here.
	c.mu.Lock()
	c.tasks[pdf.ID].PDFText = "chapter one"
	c.mu.Unlock()

	images, pdfs := c.DrainForSubmit(userID)
	if len(images) != 1 {
		t.Fatalf("images = %v", images)
	}
	if len(pdfs) != 1 || pdfs[0].Filename != "notes.pdf" || pdfs[0].Text != "chapter one" {
		t.Fatalf("pdfs = %+v", pdfs)
	}

	if len(c.Tasks(userID)) != 0 {
		t.Fatal("drain must destroy the user's tasks")
	}
	if len(c.ReadyImages(userID)) != 0 {
		t.Fatal("drain must consume the ready list")
	}
	if len(c.Tasks(otherID)) != 1 {
		t.Fatal("another user's tasks must survive the drain")
	}

	// A second drain yields nothing.
	images, pdfs = c.DrainForSubmit(userID)
	if len(images) != 0 || len(pdfs) != 0 {
		t.Fatal("drain must be consuming")
	}
}

func TestCoordinator_DrainExcludesUnfinished(t *testing.T) {
	blobs := &fakeBlobStore{block: make(chan struct{})}
	defer close(blobs.block)
	c := NewCoordinator(blobs, nil, &captureNotifier{})
	userID := uuid.New()

	task, err := c.Add(userID, "slow.png", "image/png", 1, strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	waitFor(t, func() bool {
		got, ok := taskByID(c, userID, task.ID)
		return ok && got.State == StateUploading
	})

	images, pdfs := c.DrainForSubmit(userID)
	if len(images) != 0 || len(pdfs) != 0 {
		t.Fatal("an unfinished upload must not join the turn")
	}
	if len(c.Tasks(userID)) != 0 {
		t.Fatal("unfinished uploads are cancelled and destroyed by the drain")
	}
}

func TestCoordinator_RemoveUploaded(t *testing.T) {
	blobs := &fakeBlobStore{}
	notices := &captureNotifier{}
	c := NewCoordinator(blobs, nil, notices)
	userID := uuid.New()

	task, err := c.Add(userID, "pic.png", "image/png", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	waitFor(t, func() bool {
		got, ok := taskByID(c, userID, task.ID)
		return ok && got.State == StateSuccess
	})
	got, _ := taskByID(c, userID, task.ID)

	c.RemoveUploaded(context.Background(), userID, got.PublicURL)

	if len(c.Tasks(userID)) != 0 || len(c.ReadyImages(userID)) != 0 {
		t.Fatal("removed upload must leave local state")
	}
	blobs.mu.Lock()
	removed := len(blobs.removed)
	blobs.mu.Unlock()
	if removed != 1 {
		t.Fatalf("remote removes = %d, want 1", removed)
	}
	if !notices.has("success: File removed successfully") {
		t.Fatalf("notices = %v", notices.notices)
	}
}

func TestCoordinator_RemoveUploaded_LocalWinsOnRemoteFailure(t *testing.T) {
	blobs := &fakeBlobStore{removeErr: errors.New("remote down")}
	notices := &captureNotifier{}
	c := NewCoordinator(blobs, nil, notices)
	userID := uuid.New()

	task, err := c.Add(userID, "pic.png", "image/png", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	waitFor(t, func() bool {
		got, ok := taskByID(c, userID, task.ID)
		return ok && got.State == StateSuccess
	})
	got, _ := taskByID(c, userID, task.ID)

	c.RemoveUploaded(context.Background(), userID, got.PublicURL)

	if len(c.Tasks(userID)) != 0 || len(c.ReadyImages(userID)) != 0 {
		t.Fatal("local removal stands even when the remote delete fails")
	}
	if !notices.has("error: Failed to remove file") {
		t.Fatalf("notices = %v", notices.notices)
	}
}

// endlessReader yields 'a' bytes forever.
type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'a'
	}
	return len(p), nil
}

func TestCoordinator_SpoolOversizeRejectedOnCopy(t *testing.T) {
	// Declared size passes validation but the stream is larger.
	c := NewCoordinator(&fakeBlobStore{}, nil, &captureNotifier{})

	_, err := c.Add(uuid.New(), "liar.png", "image/png", 4, endlessReader{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
