package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

// FileStore writes uploads under a local directory with random names,
// keeping only the original extension. Files are served from urlPrefix.
type FileStore struct {
	basePath  string
	urlPrefix string
	maxBytes  int64
}

func NewFileStore(basePath, urlPrefix string, maxBytes int64) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &FileStore{
		basePath:  basePath,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		maxBytes:  maxBytes,
	}, nil
}

var _ ports.MediaStore = (*FileStore)(nil)

// Save stores data and returns the attachment describing it. Uploads larger
// than maxBytes are removed and reported as domain.ErrAttachmentTooLarge.
func (fs *FileStore) Save(ctx context.Context, name string, data io.Reader) (*domain.Attachment, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 10 {
		ext = ""
	}
	stored := uuid.NewString() + ext
	filePath := filepath.Join(fs.basePath, stored)

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create media file: %w", err)
	}

	src := data
	if fs.maxBytes > 0 {
		src = io.LimitReader(data, fs.maxBytes+1)
	}
	n, err := io.Copy(file, src)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && fs.maxBytes > 0 && n > fs.maxBytes {
		err = domain.ErrAttachmentTooLarge
	}
	if err != nil {
		os.Remove(filePath)
		if errors.Is(err, domain.ErrAttachmentTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to write media data: %w", err)
	}

	return &domain.Attachment{
		Name: filepath.Base(name),
		URL:  path.Join(fs.urlPrefix, stored),
		Size: n,
	}, nil
}

func (fs *FileStore) Delete(ctx context.Context, attachment *domain.Attachment) error {
	if attachment == nil {
		return nil
	}
	stored, ok := fs.storedName(path.Base(attachment.URL))
	if !ok {
		return fmt.Errorf("invalid media name %q", attachment.URL)
	}
	if err := os.Remove(filepath.Join(fs.basePath, stored)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove media file: %w", err)
	}
	return nil
}

// storedName accepts only bare file names as produced by Save.
func (fs *FileStore) storedName(name string) (string, bool) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	return name, true
}
