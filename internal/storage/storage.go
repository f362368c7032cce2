// Package storage keeps uploaded menu images in named buckets (directories
// under the uploads root) and serves them by public URL. When the bucket is
// unusable the image is embedded as an inline data URI instead, so a failed
// upload never blocks saving the menu item.
package storage

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	MenuImagesBucket = "menu-images"
	maxUploadBytes   = 5 << 20
)

var (
	ErrTooLarge        = errors.New("storage: file exceeds upload size limit")
	ErrUnsupportedType = errors.New("storage: unsupported content type")
)

type Store struct {
	root    string
	baseURL string
	log     *slog.Logger
}

func New(root, baseURL string, log *slog.Logger) *Store {
	return &Store{root: root, baseURL: strings.TrimRight(baseURL, "/"), log: log}
}

// Root is the directory echo serves statically.
func (s *Store) Root() string { return s.root }

func (s *Store) BucketExists(bucket string) bool {
	info, err := os.Stat(filepath.Join(s.root, bucket))
	return err == nil && info.IsDir()
}

func (s *Store) EnsureBucket(bucket string) error {
	return os.MkdirAll(filepath.Join(s.root, bucket), 0o755)
}

// Upload writes the file and returns its public URL.
func (s *Store) Upload(bucket, name string, data []byte, contentType string) (string, error) {
	if len(data) > maxUploadBytes {
		return "", ErrTooLarge
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrUnsupportedType
	}
	if !s.BucketExists(bucket) {
		return "", fmt.Errorf("storage: bucket %q does not exist", bucket)
	}

	// Unique name keeps concurrent cashier/admin uploads from clobbering
	// each other.
	fileName := fmt.Sprintf("%d_%s", time.Now().UnixNano(), sanitize(name))
	if err := os.WriteFile(filepath.Join(s.root, bucket, fileName), data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}

	return s.PublicURL(bucket, fileName), nil
}

func (s *Store) PublicURL(bucket, fileName string) string {
	return s.baseURL + "/" + path.Join(bucket, fileName)
}

// UploadOrInline tries the bucket first, degrading to a data URI.
func (s *Store) UploadOrInline(bucket, name string, data []byte, contentType string) string {
	url, err := s.Upload(bucket, name, data, contentType)
	if err != nil {
		s.log.Warn("image upload failed, embedding inline", "bucket", bucket, "error", err)
		return DataURI(data, contentType)
	}
	return url
}

// DataURI embeds a file inline.
func DataURI(data []byte, contentType string) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func sanitize(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
