// Package events carries publish progress out of the adapters and the
// publisher as structured events. Sinks never influence control flow.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseUpload   Phase = "upload"
	PhasePublish  Phase = "publish"
	PhaseStatus   Phase = "status"
	PhaseRefresh  Phase = "refresh"
	PhaseTemplate Phase = "template"
)

type Event struct {
	Platform string
	PostID   int64
	Phase    Phase
	Step     string
	OK       bool
	Detail   string
	Attrs    map[string]any
	At       time.Time
}

type Sink interface {
	Emit(ctx context.Context, e Event)
}

type postKey struct{}

type postScope struct {
	id       int64
	platform string
}

// WithPost tags every event emitted under ctx with the post and platform.
func WithPost(ctx context.Context, postID int64, platform string) context.Context {
	return context.WithValue(ctx, postKey{}, postScope{id: postID, platform: platform})
}

// Emit fills in the post scope and timestamp and hands e to sink. A nil sink
// drops the event.
func Emit(ctx context.Context, sink Sink, e Event) {
	if sink == nil {
		return
	}
	if scope, ok := ctx.Value(postKey{}).(postScope); ok {
		if e.PostID == 0 {
			e.PostID = scope.id
		}
		if e.Platform == "" {
			e.Platform = scope.platform
		}
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	sink.Emit(ctx, e)
}

type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Emit(ctx context.Context, e Event) {
	attrs := []any{
		"platform", e.Platform,
		"post_id", e.PostID,
		"phase", string(e.Phase),
		"ok", e.OK,
	}
	if e.Step != "" {
		attrs = append(attrs, "step", e.Step)
	}
	if e.Detail != "" {
		attrs = append(attrs, "detail", e.Detail)
	}
	for k, v := range e.Attrs {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	if !e.OK {
		level = slog.LevelWarn
	}
	s.log.Log(ctx, level, "publish event", attrs...)
}

type capturer interface {
	CaptureEvent(event *sentry.Event) *sentry.EventID
}

// SentrySink forwards failed phases to Sentry. Successful phases are not
// sent.
type SentrySink struct {
	hub capturer
}

func NewSentrySink(hub *sentry.Hub) *SentrySink {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentrySink{hub: hub}
}

func (s *SentrySink) Emit(_ context.Context, e Event) {
	if e.OK {
		return
	}

	event := sentry.NewEvent()
	event.Level = sentry.LevelError
	event.Message = fmt.Sprintf("%s %s failed: %s", e.Platform, e.Phase, e.Detail)
	event.Timestamp = e.At
	event.Tags = map[string]string{
		"platform": e.Platform,
		"phase":    string(e.Phase),
	}
	if e.Step != "" {
		event.Tags["step"] = e.Step
	}
	event.Extra = map[string]any{"post_id": e.PostID}
	for k, v := range e.Attrs {
		event.Extra[k] = v
	}

	s.hub.CaptureEvent(event)
}

type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, e)
		}
	}
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Phases() []Phase {
	var phases []Phase
	for _, e := range r.Events() {
		phases = append(phases, e.Phase)
	}
	return phases
}
