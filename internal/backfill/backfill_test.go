package backfill

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagbox/internal/db"
	"tagbox/internal/gallery"
	"tagbox/internal/models"
	"tagbox/internal/storage"
)

func TestDeriveTags(t *testing.T) {
	captured := time.Date(2016, time.August, 23, 9, 30, 0, 0, time.UTC)

	tags := DeriveTags([]string{"cats", "year:1999", "meta:missing", "user:jen"}, Metadata{State: MetadataOK, Captured: captured})
	assert.Equal(t, []string{"cats", "month:08", "user:jen", "year:2016"}, tags)

	tags = DeriveTags([]string{"cats", "year:2016", "month:08"}, Metadata{State: MetadataMissing})
	assert.Equal(t, []string{"cats", "meta:missing"}, tags)

	tags = DeriveTags(nil, Metadata{State: MetadataMalformed})
	assert.Equal(t, []string{"meta:malformed"}, tags)
}

func TestReadMetadataWithoutExif(t *testing.T) {
	assert.Equal(t, MetadataMissing, ReadMetadata([]byte("plainly not an image")).State)

	_, err := DumpMetadata([]byte("plainly not an image"))
	assert.Error(t, err)
}

func TestRunTagsImagesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	database, err := db.Init("sqlite3", filepath.Join(dir, "backfill.sqlite3"))
	require.NoError(t, err)
	defer database.Close()
	blobs, err := storage.NewFSStore(filepath.Join(dir, "images"))
	require.NoError(t, err)
	g := gallery.New(database, blobs, nil)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	for i := 0; i < 3; i++ {
		_, err := g.SaveNewImage(ctx, buf.Bytes(), "image/png", "", []string{"holiday"})
		require.NoError(t, err)
	}

	job := New(g, nil)
	job.PageSize = 2

	stats, err := job.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, Stats{Scanned: 3, Updated: 3}, stats)

	images, total, err := g.Find(ctx, []string{models.MetaMissingTag, "holiday"}, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, images, 3)

	stats, err = job.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, Stats{Scanned: 3}, stats)

	stats, err = job.Run(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Scanned)
}

func TestRunCountsMissingBlobs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	database, err := db.Init("sqlite3", filepath.Join(dir, "missing.sqlite3"))
	require.NoError(t, err)
	defer database.Close()
	blobs, err := storage.NewFSStore(filepath.Join(dir, "images"))
	require.NoError(t, err)

	img, err := models.NewImage("image/png", time.Now(), "orphan")
	require.NoError(t, err)
	require.NoError(t, database.SaveImage(ctx, img))

	stats, err := New(gallery.New(database, blobs, nil), nil).Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, Stats{Scanned: 1, Failed: 1}, stats)
}
