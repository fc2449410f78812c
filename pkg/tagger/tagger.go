// Package tagger abstracts the on-device label/object engine used by the
// fallback analysis path. Implementations return free-text tags for an image;
// mapping tags to a damage estimate is the classifier's job.
package tagger

import (
	"context"
	"strings"
)

// Tagger produces label/object tags for an image.
type Tagger interface {
	Tags(ctx context.Context, imageData []byte) ([]string, error)
}

// Static returns a fixed tag set regardless of input. Useful in tests and as
// a stand-in when no local vision engine is available.
type Static struct {
	TagList []string
}

// Tags implements Tagger.
func (s *Static) Tags(_ context.Context, _ []byte) ([]string, error) {
	return append([]string(nil), s.TagList...), nil
}

// normalizeTags lower-cases, trims and de-duplicates tags, dropping empties.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		tag = strings.Trim(tag, `"'.,;`)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
