// Package templating composites frame and watermark assets onto media
// before it is handed to an adapter. A failure never blocks a publish: the
// caller always gets usable bytes back.
package templating

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/events"
	"github.com/maheshrc27/postflow/internal/models"
)

type Options struct {
	Frame       []byte
	Watermark   []byte
	Position    string
	Opacity     float64
	AspectRatio string
}

func (o Options) empty() bool {
	return len(o.Frame) == 0 && len(o.Watermark) == 0
}

type Pipeline struct {
	video *VideoProcessor
	log   *slog.Logger
	sink  events.Sink
}

func NewPipeline(video *VideoProcessor, log *slog.Logger, sink events.Sink) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{video: video, log: log, sink: sink}
}

// Apply returns the templated bytes for item, or item.Data unchanged when
// there is nothing to apply or processing fails.
func (p *Pipeline) Apply(ctx context.Context, item models.MediaItem, opts Options) []byte {
	if !item.HasData() || opts.empty() {
		return item.Data
	}

	var (
		out  []byte
		err  error
		step string
	)
	switch item.Kind {
	case models.MediaVideo:
		if len(opts.Frame) == 0 || p.video == nil {
			return item.Data
		}
		step = "video_frame"
		out, err = p.video.Overlay(ctx, item.Data, opts.Frame)
	default:
		step = "image"
		out, err = ComposeImage(item.Data, opts)
	}

	if err != nil {
		p.log.WarnContext(ctx, "templating failed, using original media", "step", step, "error", err)
		events.Emit(ctx, p.sink, events.Event{Phase: events.PhaseTemplate, Step: step, OK: false, Detail: err.Error()})
		return item.Data
	}

	events.Emit(ctx, p.sink, events.Event{
		Phase: events.PhaseTemplate,
		Step:  step,
		OK:    true,
		Attrs: map[string]any{"in_bytes": len(item.Data), "out_bytes": len(out)},
	})
	return out
}
