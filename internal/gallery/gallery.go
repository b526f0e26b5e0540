// Package gallery stores uploaded images: the row in the database plus the
// original and thumbnail blobs.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tagbox/internal/db"
	"tagbox/internal/models"
	"tagbox/internal/storage"
)

type Gallery struct {
	db    *db.DB
	blobs storage.Store
	log   *slog.Logger

	// Now is replaceable in tests.
	Now func() time.Time
}

func New(database *db.DB, blobs storage.Store, logger *slog.Logger) *Gallery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gallery{db: database, blobs: blobs, log: logger, Now: time.Now}
}

// SaveNewImage stores data as a new image. Nothing is written when the
// mime type is not allowed or the bytes do not decode.
func (g *Gallery) SaveNewImage(ctx context.Context, data []byte, mimeType, summary string, tags []string) (*models.Image, error) {
	img, err := models.NewImage(mimeType, g.Now(), tags...)
	if err != nil {
		return nil, err
	}
	img.Summary = summary

	thumb, err := Thumbnail(data, mimeType, ThumbnailSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnsupportedMediaType, err)
	}

	filename := img.Filename()
	if err := g.blobs.Put(ctx, storage.OriginalKey(filename), data, mimeType); err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}
	if err := g.blobs.Put(ctx, storage.ThumbnailKey(filename), thumb, mimeType); err != nil {
		g.removeBlobs(ctx, filename)
		return nil, fmt.Errorf("store thumbnail: %w", err)
	}
	if err := g.db.SaveImage(ctx, img); err != nil {
		g.removeBlobs(ctx, filename)
		return nil, fmt.Errorf("save image: %w", err)
	}

	g.log.Info("image saved", "id", img.ID, "mime_type", mimeType, "bytes", len(data), "tags", img.TagList())
	return img, nil
}

func (g *Gallery) Save(ctx context.Context, img *models.Image) error {
	return g.db.SaveImage(ctx, img)
}

// Get returns nil, nil for an unknown id.
func (g *Gallery) Get(ctx context.Context, id string) (*models.Image, error) {
	return g.db.GetImage(ctx, id)
}

func (g *Gallery) Find(ctx context.Context, include, exclude []string, limit, offset int) ([]*models.Image, int, error) {
	return g.db.FindImages(ctx, include, exclude, limit, offset)
}

func (g *Gallery) List(ctx context.Context, limit, offset int) ([]*models.Image, error) {
	return g.db.ListImages(ctx, limit, offset)
}

// Delete removes the image row and its blobs. It reports whether the image
// existed.
func (g *Gallery) Delete(ctx context.Context, id string) (bool, error) {
	img, err := g.db.GetImage(ctx, id)
	if err != nil {
		return false, err
	}
	if img == nil {
		return false, nil
	}
	if err := g.db.DeleteImage(ctx, id); err != nil {
		return false, fmt.Errorf("delete image row: %w", err)
	}
	filename := img.Filename()
	if err := g.blobs.Delete(ctx, storage.OriginalKey(filename)); err != nil {
		return true, fmt.Errorf("delete original: %w", err)
	}
	if err := g.blobs.Delete(ctx, storage.ThumbnailKey(filename)); err != nil {
		return true, fmt.Errorf("delete thumbnail: %w", err)
	}
	g.log.Info("image deleted", "id", id)
	return true, nil
}

// Open returns the original or thumbnail bytes of img.
func (g *Gallery) Open(ctx context.Context, img *models.Image, thumbnail bool) ([]byte, error) {
	key := storage.OriginalKey(img.Filename())
	if thumbnail {
		key = storage.ThumbnailKey(img.Filename())
	}
	data, err := g.blobs.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		g.log.Warn("image blob missing", "id", img.ID, "key", key)
	}
	return data, err
}

func (g *Gallery) removeBlobs(ctx context.Context, filename string) {
	for _, key := range []string{storage.OriginalKey(filename), storage.ThumbnailKey(filename)} {
		if err := g.blobs.Delete(ctx, key); err != nil {
			g.log.Warn("cleanup failed", "key", key, "error", err)
		}
	}
}
