// Package templates resolves a driver identifier to their personal
// waybill template. Lookup strategy is the backend's concern; callers see
// only Resolve.
package templates

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrTemplateMissing reports that no template is registered for the
// driver. Recoverable: the caller should point the driver at an
// administrator instead of failing the request hard.
var ErrTemplateMissing = errors.New("no waybill template registered for this driver")

// ErrTemplateTooLarge reports a template over the configured size limit.
// Oversized files are refused before any parsing happens.
var ErrTemplateTooLarge = errors.New("waybill template exceeds the size limit")

// Resolver maps a stable user identifier to a template file on disk.
// cleanup releases any request-scoped copy of the template and is always
// non-nil.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (path string, cleanup func(), err error)
}

// ValidateUserID guards against identifiers that could escape the
// template directory or object keyspace.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user identifier is empty")
	}
	for _, r := range userID {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r == '_' || r == '-':
		default:
			return fmt.Errorf("user identifier contains unsupported character %q", r)
		}
	}
	return nil
}

// templateFileName is the per-driver naming convention shared by all
// backends.
func templateFileName(userID string) string {
	return fmt.Sprintf("driver_%s.pdf", userID)
}

// DirResolver looks templates up in a local directory using the
// driver_<id>.pdf convention.
type DirResolver struct {
	dir     string
	maxSize int64
}

// NewDirResolver creates a directory-backed resolver.
func NewDirResolver(dir string) *DirResolver {
	return &DirResolver{dir: dir}
}

// SetMaxSize caps the accepted template file size in bytes. Zero means
// unlimited.
func (r *DirResolver) SetMaxSize(maxSize int64) {
	r.maxSize = maxSize
}

// Resolve returns the template path for the driver, or ErrTemplateMissing
// when the file does not exist.
func (r *DirResolver) Resolve(_ context.Context, userID string) (string, func(), error) {
	noop := func() {}
	if err := ValidateUserID(userID); err != nil {
		return "", noop, fmt.Errorf("%w: %v", ErrTemplateMissing, err)
	}

	path := filepath.Join(r.dir, templateFileName(userID))
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", noop, ErrTemplateMissing
		}
		return "", noop, fmt.Errorf("failed to stat template: %w", err)
	}
	if info.IsDir() {
		return "", noop, ErrTemplateMissing
	}
	if r.maxSize > 0 && info.Size() > r.maxSize {
		return "", noop, fmt.Errorf("%w: %d bytes (limit %d)", ErrTemplateTooLarge, info.Size(), r.maxSize)
	}
	return path, noop, nil
}
