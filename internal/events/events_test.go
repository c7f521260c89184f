package events

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHub struct {
	captured []*sentry.Event
}

func (f *fakeHub) CaptureEvent(event *sentry.Event) *sentry.EventID {
	f.captured = append(f.captured, event)
	id := sentry.EventID("test")
	return &id
}

func TestEmit_FillsPostScope(t *testing.T) {
	rec := &Recorder{}
	ctx := WithPost(context.Background(), 42, "tiktok")

	Emit(ctx, rec, Event{Phase: PhaseInit, OK: true})

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, int64(42), events[0].PostID)
	assert.Equal(t, "tiktok", events[0].Platform)
	assert.False(t, events[0].At.IsZero())
}

func TestEmit_NilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), nil, Event{Phase: PhaseInit})
	})
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	sink.Emit(context.Background(), Event{Platform: "facebook", PostID: 3, Phase: PhasePublish, Step: "feed", OK: false, Detail: "boom"})

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"step":"feed"`)
	assert.Contains(t, out, `"post_id":3`)
}

func TestSentrySink_OnlyFailures(t *testing.T) {
	hub := &fakeHub{}
	sink := &SentrySink{hub: hub}

	sink.Emit(context.Background(), Event{Platform: "youtube", Phase: PhaseUpload, OK: true})
	sink.Emit(context.Background(), Event{Platform: "youtube", PostID: 9, Phase: PhaseUpload, Step: "upload_video", Detail: "quota"})

	require.Len(t, hub.captured, 1)
	ev := hub.captured[0]
	assert.Equal(t, "youtube", ev.Tags["platform"])
	assert.Equal(t, "upload_video", ev.Tags["step"])
	assert.Equal(t, int64(9), ev.Extra["post_id"])
	assert.Contains(t, ev.Message, "quota")
}

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Multi{a, nil, b}.Emit(context.Background(), Event{Phase: PhaseStatus})

	assert.Equal(t, []Phase{PhaseStatus}, a.Phases())
	assert.Equal(t, []Phase{PhaseStatus}, b.Phases())
}
