// Package objectstore holds uploaded study material, either on the local
// filesystem or in a Google Cloud Storage bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Open for a missing key.
	ErrNotFound = errors.New("object not found")
	// ErrExists is returned by Put when the key is already taken.
	ErrExists = errors.New("object already exists")
)

// Store puts and removes objects by key. Put never replaces an existing
// object.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
	Close() error
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SanitizeFileName replaces every character outside [a-zA-Z0-9.-] with an underscore.
func SanitizeFileName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// Key is the storage key of an upload:
// {userId}/{unixMillis}_{random}_{sanitizedName}. The random part keeps
// same-name files stored in the same millisecond apart.
func Key(userID string, at time.Time, fileName string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return userID + "/" + strconv.FormatInt(at.UnixMilli(), 10) + "_" + suffix + "_" + SanitizeFileName(fileName)
}

// Options selects and configures a driver.
type Options struct {
	Driver    string
	LocalDir  string
	GCSBucket string
}

// New opens the configured driver.
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "local":
		return NewLocal(opts.LocalDir)
	case "gcs":
		return NewGCS(ctx, opts.GCSBucket)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
