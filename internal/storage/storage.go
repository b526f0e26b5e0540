// Package storage holds image bytes: originals at <filename> and
// thumbnails at mini/<filename>.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("blob not found")

const thumbnailDir = "mini"

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string) error
}

func OriginalKey(filename string) string {
	return filename
}

func ThumbnailKey(filename string) string {
	return thumbnailDir + "/" + filename
}
