package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tagbox/internal/models"
)

const imageColumns = "i.id, i.mime_type, i.summary, i.taken_at, i.created_at"

// SaveImage inserts or replaces the image row. Tags and attributes are
// replaced wholesale.
func (db *DB) SaveImage(ctx context.Context, img *models.Image) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, db.rebind(
			`INSERT INTO images (id, mime_type, summary, taken_at, created_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				mime_type = excluded.mime_type,
				summary = excluded.summary,
				taken_at = excluded.taken_at,
				created_at = excluded.created_at`),
			img.ID, img.MimeType, img.Summary, img.Timestamp.UnixNano(), img.CreateTimestamp.UnixNano())
		if err != nil {
			return fmt.Errorf("upsert image %q: %w", img.ID, err)
		}
		if err := deleteImageChildren(ctx, db, tx, img.ID); err != nil {
			return err
		}
		for _, tag := range img.TagList() {
			if _, err := tx.ExecContext(ctx, db.rebind("INSERT INTO image_tags (image_id, tag) VALUES (?, ?)"), img.ID, tag); err != nil {
				return err
			}
		}
		for _, attr := range img.AttributeList() {
			if _, err := tx.ExecContext(ctx, db.rebind("INSERT INTO image_attributes (image_id, attribute) VALUES (?, ?)"), img.ID, attr); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetImage returns nil, nil when no such image exists.
func (db *DB) GetImage(ctx context.Context, id string) (*models.Image, error) {
	images, err := db.queryImages(ctx, "SELECT "+imageColumns+" FROM images i WHERE i.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, nil
	}
	return images[0], nil
}

// DeleteImage removes the image row with its tags and attributes. Deleting
// an unknown id is not an error.
func (db *DB) DeleteImage(ctx context.Context, id string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteImageChildren(ctx, db, tx, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, db.rebind("DELETE FROM images WHERE id = ?"), id)
		return err
	})
}

// FindImages returns images carrying every include tag and none of the
// exclude tags, newest first, with the total match count ignoring
// pagination. Tag matching is case-insensitive: stored tags are
// normalized on write and the filters are normalized here.
func (db *DB) FindImages(ctx context.Context, include, exclude []string, limit, offset int) ([]*models.Image, int, error) {
	where, args := tagPredicate(include, exclude)

	var total int
	err := db.QueryRowContext(ctx, db.rebind("SELECT COUNT(*) FROM images i WHERE "+where), args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count images: %w", err)
	}

	page, pageArgs := db.limitClause(limit, offset)
	query := "SELECT " + imageColumns + " FROM images i WHERE " + where + " ORDER BY i.taken_at DESC, i.id" + page
	images, err := db.queryImages(ctx, query, append(args, pageArgs...)...)
	if err != nil {
		return nil, 0, fmt.Errorf("find images: %w", err)
	}
	return images, total, nil
}

// ListImages pages through every image in id order.
func (db *DB) ListImages(ctx context.Context, limit, offset int) ([]*models.Image, error) {
	page, args := db.limitClause(limit, offset)
	return db.queryImages(ctx, "SELECT "+imageColumns+" FROM images i ORDER BY i.id"+page, args...)
}

func tagPredicate(include, exclude []string) (string, []any) {
	include = models.NormalizeTags(include)
	exclude = models.NormalizeTags(exclude)

	var clauses []string
	var args []any
	if len(include) == 0 {
		clauses = append(clauses, "1 = 1")
	}
	for _, tag := range include {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM image_tags t WHERE t.image_id = i.id AND t.tag = ?)")
		args = append(args, tag)
	}
	if len(exclude) == 0 {
		clauses = append(clauses, "1 = 1")
	} else {
		clauses = append(clauses, "NOT EXISTS (SELECT 1 FROM image_tags t WHERE t.image_id = i.id AND t.tag IN ("+placeholders(len(exclude))+"))")
		args = append(args, stringArgs(exclude)...)
	}
	return strings.Join(clauses, " AND "), args
}

func (db *DB) queryImages(ctx context.Context, query string, args ...any) ([]*models.Image, error) {
	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*models.Image
	for rows.Next() {
		var takenAt, createdAt int64
		img := &models.Image{
			Tags:       make(map[string]struct{}),
			Attributes: make(map[string]struct{}),
		}
		if err := rows.Scan(&img.ID, &img.MimeType, &img.Summary, &takenAt, &createdAt); err != nil {
			return nil, err
		}
		img.Timestamp = time.Unix(0, takenAt)
		img.CreateTimestamp = time.Unix(0, createdAt)
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := db.loadImageChildren(ctx, images); err != nil {
		return nil, err
	}
	return images, nil
}

// childBatchSize bounds the IN list of a single child query.
var childBatchSize = 500

func (db *DB) loadImageChildren(ctx context.Context, images []*models.Image) error {
	for start := 0; start < len(images); start += childBatchSize {
		end := min(start+childBatchSize, len(images))
		if err := db.loadImageChildBatch(ctx, images[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) loadImageChildBatch(ctx context.Context, images []*models.Image) error {
	byID := make(map[string]*models.Image, len(images))
	ids := make([]string, 0, len(images))
	for _, img := range images {
		byID[img.ID] = img
		ids = append(ids, img.ID)
	}
	in := placeholders(len(ids))
	args := stringArgs(ids)

	err := db.scanPairs(ctx, "SELECT image_id, tag FROM image_tags WHERE image_id IN ("+in+")", args, func(id, tag string) error {
		if img, ok := byID[id]; ok {
			img.Tags[tag] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return db.scanPairs(ctx, "SELECT image_id, attribute FROM image_attributes WHERE image_id IN ("+in+")", args, func(id, attr string) error {
		if img, ok := byID[id]; ok {
			img.Attributes[attr] = struct{}{}
		}
		return nil
	})
}

func deleteImageChildren(ctx context.Context, db *DB, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, db.rebind("DELETE FROM image_tags WHERE image_id = ?"), id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, db.rebind("DELETE FROM image_attributes WHERE image_id = ?"), id)
	return err
}
