// Package search turns a tag query into a filtered, paginated image
// lookup and applies the guest visibility policy.
package search

import (
	"context"
	"sort"
	"strings"

	"tagbox/internal/models"
)

// Finder is the tag lookup. *gallery.Gallery and *db.DB implement it.
type Finder interface {
	Find(ctx context.Context, include, exclude []string, limit, offset int) ([]*models.Image, int, error)
}

type Query struct {
	Include []string
	Exclude []string
}

// ParseQuery splits q on whitespace. Terms starting with '-' are
// excluded, everything else must be present.
func ParseQuery(q string) Query {
	var query Query
	for _, term := range strings.Fields(q) {
		if strings.HasPrefix(term, "-") {
			if tag := models.NormalizeTag(term[1:]); tag != "" {
				query.Exclude = append(query.Exclude, tag)
			}
			continue
		}
		query.Include = append(query.Include, models.NormalizeTag(term))
	}
	return query
}

// ForUser applies the visibility policy: callers without the USER right
// only see public images and cannot exclude the public tag.
func (q Query) ForUser(user *models.User) Query {
	if user.HasRight(models.RightUser) {
		return q
	}
	out := Query{Include: append([]string(nil), q.Include...)}
	out.Include = append(out.Include, models.PublicTag)
	for _, tag := range q.Exclude {
		if tag != models.PublicTag {
			out.Exclude = append(out.Exclude, tag)
		}
	}
	return out
}

type Result struct {
	Images []*models.Image
	Total  int
	Page   int
	Pages  int
	// Tags is the sorted union of tags on the returned images.
	Tags []string
}

type Searcher struct {
	finder   Finder
	pageSize int
}

func NewSearcher(finder Finder, pageSize int) *Searcher {
	if pageSize <= 0 {
		pageSize = 12
	}
	return &Searcher{finder: finder, pageSize: pageSize}
}

// Search runs q for user. page is 1-based; values below 1 mean the first
// page.
func (s *Searcher) Search(ctx context.Context, user *models.User, q string, page int) (*Result, error) {
	if page < 1 {
		page = 1
	}
	query := ParseQuery(q).ForUser(user)

	images, total, err := s.finder.Find(ctx, query.Include, query.Exclude, s.pageSize, s.pageSize*(page-1))
	if err != nil {
		return nil, err
	}

	return &Result{
		Images: images,
		Total:  total,
		Page:   page,
		Pages:  pageCount(total, s.pageSize),
		Tags:   tagUnion(images),
	}, nil
}

func pageCount(total, size int) int {
	if total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

func tagUnion(images []*models.Image) []string {
	seen := make(map[string]struct{})
	for _, img := range images {
		for tag := range img.Tags {
			seen[tag] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
