// Package backfill recomputes metadata-derived tags for every stored image.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"tagbox/internal/gallery"
	"tagbox/internal/models"
)

const DefaultPageSize = 50

type Stats struct {
	Scanned int
	Updated int
	Failed  int
}

type Job struct {
	gallery  *gallery.Gallery
	log      *slog.Logger
	PageSize int
}

func New(g *gallery.Gallery, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{gallery: g, log: logger, PageSize: DefaultPageSize}
}

// Run scans images from offset to the end. Only images whose tags or
// timestamp change are written. There is no checkpoint: rerunning from
// any offset is safe.
func (j *Job) Run(ctx context.Context, offset int) (Stats, error) {
	var stats Stats
	pageSize := j.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		images, err := j.gallery.List(ctx, pageSize, offset)
		if err != nil {
			return stats, fmt.Errorf("list images at offset %d: %w", offset, err)
		}
		if len(images) == 0 {
			break
		}
		for _, img := range images {
			stats.Scanned++
			updated, err := j.refresh(ctx, img)
			if err != nil {
				stats.Failed++
				j.log.Error("backfill failed", "id", img.ID, "error", err)
				continue
			}
			if updated {
				stats.Updated++
			}
		}
		offset += len(images)
		j.log.Info("backfill progress", "offset", offset, "scanned", stats.Scanned, "updated", stats.Updated, "failed", stats.Failed)
	}
	return stats, nil
}

func (j *Job) refresh(ctx context.Context, img *models.Image) (bool, error) {
	data, err := j.gallery.Open(ctx, img, false)
	if err != nil {
		return false, err
	}
	md := ReadMetadata(data)

	before := img.TagList()
	after := DeriveTags(before, md)
	timestamp := img.Timestamp
	if md.State == MetadataOK {
		timestamp = md.Captured
	}
	if slices.Equal(before, after) && timestamp.Equal(img.Timestamp) {
		return false, nil
	}

	img.SetTags(after...)
	img.Timestamp = timestamp
	if err := j.gallery.Save(ctx, img); err != nil {
		return false, err
	}
	j.log.Debug("image tags updated", "id", img.ID, "tags", after)
	return true, nil
}
