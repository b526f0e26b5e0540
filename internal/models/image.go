package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var ErrUnsupportedMediaType = errors.New("unsupported media type")

// mimeExtensions is the upload allow-list.
var mimeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// ExtensionFor returns the file extension for an allowed mime type.
func ExtensionFor(mimeType string) (string, error) {
	ext, ok := mimeExtensions[mimeType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mimeType)
	}
	return ext, nil
}

type Image struct {
	ID              string
	MimeType        string
	Summary         string
	Tags            map[string]struct{}
	Attributes      map[string]struct{}
	Timestamp       time.Time
	CreateTimestamp time.Time
}

// NewImage builds an image with a fresh id. It fails with
// ErrUnsupportedMediaType if mimeType is not allowed.
func NewImage(mimeType string, now time.Time, tags ...string) (*Image, error) {
	if _, err := ExtensionFor(mimeType); err != nil {
		return nil, err
	}
	img := &Image{
		ID:              uuid.NewString(),
		MimeType:        mimeType,
		Attributes:      make(map[string]struct{}),
		Timestamp:       now,
		CreateTimestamp: now,
	}
	img.SetTags(tags...)
	return img, nil
}

// Filename is <id><extension>.
func (img *Image) Filename() string {
	ext, err := ExtensionFor(img.MimeType)
	if err != nil {
		return img.ID
	}
	return img.ID + ext
}

// SetTags replaces the tag set with the normalized tags.
func (img *Image) SetTags(tags ...string) {
	img.Tags = make(map[string]struct{}, len(tags))
	for _, t := range NormalizeTags(tags) {
		img.Tags[t] = struct{}{}
	}
}

func (img *Image) AddTag(tag string) {
	if tag = NormalizeTag(tag); tag == "" {
		return
	}
	if img.Tags == nil {
		img.Tags = make(map[string]struct{})
	}
	img.Tags[tag] = struct{}{}
}

func (img *Image) HasTag(tag string) bool {
	_, ok := img.Tags[NormalizeTag(tag)]
	return ok
}

func (img *Image) TagList() []string {
	out := make([]string, 0, len(img.Tags))
	for t := range img.Tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (img *Image) AttributeList() []string {
	out := make([]string, 0, len(img.Attributes))
	for a := range img.Attributes {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (img *Image) IsPublic() bool {
	return img.HasTag(PublicTag)
}

// CanView reports whether user may see the image regardless of the
// public tag: admins and owners.
func (img *Image) CanView(user *User) bool {
	if user == nil {
		return false
	}
	return user.HasRight(RightAdmin) || img.HasTag(OwnerTag(user.Username))
}

// CanEdit reports whether user may change tags or summary.
func (img *Image) CanEdit(user *User) bool {
	if user == nil {
		return false
	}
	if user.HasRight(RightAdmin) {
		return true
	}
	return user.HasRight(RightUpload) && img.HasTag(OwnerTag(user.Username))
}

type ImageView struct {
	ID              string    `json:"id"`
	MimeType        string    `json:"mime_type"`
	Filename        string    `json:"filename"`
	Summary         string    `json:"summary,omitempty"`
	Tags            []string  `json:"tags"`
	Attributes      []string  `json:"attributes,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	CreateTimestamp time.Time `json:"create_timestamp"`
}

func (img *Image) View() ImageView {
	return ImageView{
		ID:              img.ID,
		MimeType:        img.MimeType,
		Filename:        img.Filename(),
		Summary:         img.Summary,
		Tags:            img.TagList(),
		Attributes:      img.AttributeList(),
		Timestamp:       img.Timestamp,
		CreateTimestamp: img.CreateTimestamp,
	}
}
