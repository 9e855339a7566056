// Package storage abstracts the object store uploaded files land in. The
// backend only needs put/public-url/remove, so that is all the interface
// carries; the local-disk implementation mirrors the users/{id}/uploads
// layout the deployment serves statically.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// PutOptions mirrors the consumed object-storage contract.
type PutOptions struct {
	CacheControl string
	Upsert       bool
	// OnProgress receives the transfer percentage in [0,100]. Optional.
	OnProgress func(pct int)
}

type BlobStore interface {
	// Put streams r (size bytes) to the given path. Cancelling ctx aborts
	// the transfer mid-copy.
	Put(ctx context.Context, blobPath string, r io.Reader, size int64, opts PutOptions) error
	PublicURL(blobPath string) string
	// Remove deletes the given paths, best effort.
	Remove(ctx context.Context, blobPaths []string) error
	// PathFromURL maps a public URL back to the blob path it serves.
	PathFromURL(url string) (string, error)
}

// LocalStore keeps blobs on local disk under root and serves them under
// baseURL.
type LocalStore struct {
	root    string
	baseURL string
}

func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

const copyChunkSize = 32 * 1024

func (s *LocalStore) Put(ctx context.Context, blobPath string, r io.Reader, size int64, opts PutOptions) error {
	full := filepath.Join(s.root, filepath.FromSlash(blobPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	if !opts.Upsert {
		if _, err := os.Stat(full); err == nil {
			return fmt.Errorf("blob already exists: %s", blobPath)
		}
	}

	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("failed to create blob: %w", err)
	}

	var written int64
	buf := make([]byte, copyChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			f.Close()
			os.Remove(full)
			return err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				f.Close()
				os.Remove(full)
				return fmt.Errorf("failed to write blob: %w", writeErr)
			}
			written += int64(n)
			if opts.OnProgress != nil && size > 0 {
				pct := int(written * 100 / size)
				if pct > 100 {
					pct = 100
				}
				opts.OnProgress(pct)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			os.Remove(full)
			return fmt.Errorf("failed to read upload: %w", readErr)
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(full)
		return fmt.Errorf("failed to finalize blob: %w", err)
	}
	if opts.OnProgress != nil {
		opts.OnProgress(100)
	}
	return nil
}

func (s *LocalStore) PublicURL(blobPath string) string {
	return s.baseURL + "/" + path.Clean(blobPath)
}

func (s *LocalStore) Remove(ctx context.Context, blobPaths []string) error {
	var firstErr error
	for _, p := range blobPaths {
		full := filepath.Join(s.root, filepath.FromSlash(p))
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *LocalStore) PathFromURL(url string) (string, error) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", fmt.Errorf("url %q is not served by this store", url)
	}
	return strings.TrimPrefix(url, prefix), nil
}

// Root returns the on-disk root, for static file serving.
func (s *LocalStore) Root() string {
	return s.root
}
