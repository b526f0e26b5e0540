package backfill

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"tagbox/internal/models"
)

type MetadataState int

const (
	MetadataOK MetadataState = iota
	// MetadataMissing means no EXIF block or no capture date in it.
	MetadataMissing
	// MetadataMalformed means a capture date is present but unreadable.
	MetadataMalformed
)

type Metadata struct {
	State    MetadataState
	Captured time.Time
}

// ReadMetadata extracts the capture time from the EXIF block of data.
func ReadMetadata(data []byte) Metadata {
	x, err := exif.Decode(bytes.NewReader(data))
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return Metadata{State: MetadataMissing}
	}
	captured, err := x.DateTime()
	switch {
	case err == nil:
		return Metadata{State: MetadataOK, Captured: captured}
	case exif.IsTagNotPresentError(err):
		return Metadata{State: MetadataMissing}
	default:
		return Metadata{State: MetadataMalformed}
	}
}

// DeriveTags returns the tags img should carry given md: user tags are
// kept, derived tags are recomputed.
func DeriveTags(tags []string, md Metadata) []string {
	out := make([]string, 0, len(tags)+2)
	for _, tag := range tags {
		if !models.IsDerivedTag(tag) {
			out = append(out, tag)
		}
	}
	switch md.State {
	case MetadataOK:
		out = append(out,
			fmt.Sprintf("%s%04d", models.YearTagPrefix, md.Captured.Year()),
			fmt.Sprintf("%s%02d", models.MonthTagPrefix, int(md.Captured.Month())))
	case MetadataMissing:
		out = append(out, models.MetaMissingTag)
	case MetadataMalformed:
		out = append(out, models.MetaMalformedTag)
	}
	return models.NormalizeTags(out)
}

type fieldCollector map[string]string

func (f fieldCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	f[string(name)] = strings.Trim(tag.String(), "\"")
	return nil
}

// DumpMetadata returns every EXIF field of data as strings.
func DumpMetadata(data []byte) (map[string]string, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return nil, fmt.Errorf("read exif: %w", err)
	}
	fields := fieldCollector{}
	if err := x.Walk(fields); err != nil {
		return nil, err
	}
	return fields, nil
}
