// Package dispatch fans posts out to the subscribers of a target. Each
// (subscriber, post) pair is filtered, rendered and delivered on its own so
// one failure never blocks the rest.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"bili_push/internal/domain"
)

type Renderer interface {
	Render(ctx context.Context, post domain.Post) ([]domain.Segment, error)
}

// Sender delivers rendered segments to a destination. platform names the
// source the post came from.
type Sender interface {
	Send(ctx context.Context, platform, destination string, segments []domain.Segment) error
}

// SenderFunc adapts a plain callback to Sender.
type SenderFunc func(ctx context.Context, platform, destination string, segments []domain.Segment) error

func (f SenderFunc) Send(ctx context.Context, platform, destination string, segments []domain.Segment) error {
	return f(ctx, platform, destination, segments)
}

type Dispatcher struct {
	renderer Renderer
	sender   Sender
	logger   *slog.Logger
}

func New(renderer Renderer, sender Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		renderer: renderer,
		sender:   sender,
		logger:   logger.With("component", "dispatcher"),
	}
}

type rendered struct {
	segments []domain.Segment
	err      error
}

// Dispatch delivers every post to every subscriber that accepts it and
// returns the number of successful deliveries. Each post is rendered at
// most once.
func (d *Dispatcher) Dispatch(ctx context.Context, kind domain.SourceKind, posts []domain.Post, subscribers []domain.Subscriber) int {
	platform := kind.Platform()
	cache := make(map[int]rendered, len(posts))
	delivered := 0

	for _, sub := range subscribers {
		for i, post := range posts {
			if !Accepts(kind, post, sub) {
				continue
			}

			r, ok := cache[i]
			if !ok {
				r.segments, r.err = d.render(ctx, post)
				cache[i] = r
				if r.err != nil {
					d.logger.Error("failed to render post",
						"post_id", post.ID,
						"error", r.err,
					)
				}
			}
			if r.err != nil {
				continue
			}

			if err := d.send(ctx, platform, sub.ID, r.segments); err != nil {
				d.logger.Error("failed to deliver post",
					"post_id", post.ID,
					"destination", sub.ID,
					"error", err,
				)
				continue
			}

			d.logger.Debug("delivered post",
				"post_id", post.ID,
				"title", post.Title,
				"destination", sub.ID,
			)
			delivered++
		}
	}
	return delivered
}

// Accepts reports whether sub wants post. Categories always filter; tags
// filter feed posts for subscribers that set any.
func Accepts(kind domain.SourceKind, post domain.Post, sub domain.Subscriber) bool {
	if !sub.WantsCategory(post.Category) {
		return false
	}
	if kind != domain.SourceFeed || len(sub.Tags) == 0 {
		return true
	}
	for _, tag := range post.Tags {
		if slices.Contains(sub.Tags, tag) {
			return true
		}
	}
	return false
}

// Close releases the renderer when it holds resources.
func (d *Dispatcher) Close() error {
	if c, ok := d.renderer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (d *Dispatcher) render(ctx context.Context, post domain.Post) (segments []domain.Segment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panic: %v", r)
		}
	}()
	return d.renderer.Render(ctx, post)
}

func (d *Dispatcher) send(ctx context.Context, platform, destination string, segments []domain.Segment) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panic: %v", r)
		}
	}()
	return d.sender.Send(ctx, platform, destination, segments)
}
