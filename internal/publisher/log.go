package publisher

import (
	"context"
	"log/slog"

	"bili_push/internal/domain"
)

// Log is a delivery sink that only logs notifications. It is used when no
// broker is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("component", "log_sink")}
}

func (l *Log) Send(_ context.Context, platform, destination string, segments []domain.Segment) error {
	var text string
	images := 0
	for _, seg := range segments {
		switch seg.Kind {
		case domain.SegmentText:
			text += seg.Text
		case domain.SegmentImage:
			images++
		}
	}

	l.logger.Info("notification",
		"platform", platform,
		"destination", destination,
		"text", text,
		"images", images,
	)
	return nil
}
