// Package render turns posts into message segments.
package render

import (
	"context"
	"errors"
	"strings"

	"bili_push/internal/domain"
)

// ErrEmptyPost is returned for posts with nothing to show.
var ErrEmptyPost = errors.New("post has no content")

// TextRenderer renders a post as a text block followed by its images. A
// forwarded post is appended below the forwarding text.
type TextRenderer struct {
	maxImages int
}

// NewTextRenderer returns a renderer that attaches at most maxImages images
// per post. Zero or less means no limit.
func NewTextRenderer(maxImages int) *TextRenderer {
	return &TextRenderer{maxImages: maxImages}
}

func (r *TextRenderer) Render(_ context.Context, post domain.Post) ([]domain.Segment, error) {
	if post.Title == "" && post.Body == "" && len(post.Images) == 0 && post.Repost == nil {
		return nil, ErrEmptyPost
	}

	var sb strings.Builder
	if post.Author.Name != "" {
		sb.WriteString(post.Author.Name)
		sb.WriteString(headerSuffix(post))
		sb.WriteString("\n")
	}
	writeContent(&sb, post)

	images := post.Images
	if post.Repost != nil {
		sb.WriteString("\n--------\n")
		if name := post.Repost.Author.Name; name != "" {
			sb.WriteString("@" + name + ":\n")
		}
		writeContent(&sb, *post.Repost)
		images = append(images[:len(images):len(images)], post.Repost.Images...)
	}

	if post.URL != "" {
		sb.WriteString("\n")
		sb.WriteString(post.URL)
	}

	segments := []domain.Segment{domain.TextSegment(strings.TrimSpace(sb.String()))}
	for i, img := range images {
		if r.maxImages > 0 && i >= r.maxImages {
			break
		}
		segments = append(segments, domain.ImageSegment(img))
	}
	return segments, nil
}

func headerSuffix(post domain.Post) string {
	switch {
	case post.Kind == domain.SourceStatus:
		return ""
	case post.Repost != nil:
		return " forwarded:"
	default:
		return " posted:"
	}
}

func writeContent(sb *strings.Builder, post domain.Post) {
	if post.Title != "" {
		sb.WriteString(post.Title)
		sb.WriteString("\n")
	}
	if post.Body != "" {
		sb.WriteString(post.Body)
		sb.WriteString("\n")
	}
}
