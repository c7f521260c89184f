package templating

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/maheshrc27/postflow/internal/events"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	return cfg.Width, cfg.Height
}

func TestApply_NoTemplatesIsNoop(t *testing.T) {
	p := NewPipeline(nil, nil, nil)
	data := solidPNG(t, 10, 10, color.White)

	out := p.Apply(context.Background(), models.MediaItem{Data: data, Kind: models.MediaImage}, Options{AspectRatio: "16:9"})
	assert.Equal(t, data, out)
}

func TestApply_DecodeFailureReturnsOriginal(t *testing.T) {
	rec := &events.Recorder{}
	p := NewPipeline(nil, nil, rec)
	data := []byte("not an image")

	out := p.Apply(context.Background(), models.MediaItem{Data: data, Kind: models.MediaImage}, Options{Frame: solidPNG(t, 4, 4, color.Black)})

	assert.Equal(t, data, out)
	require.Len(t, rec.Events(), 1)
	assert.False(t, rec.Events()[0].OK)
	assert.Equal(t, events.PhaseTemplate, rec.Events()[0].Phase)
}

func TestCropRect(t *testing.T) {
	cases := []struct {
		name  string
		w, h  int
		ratio string
		want  image.Rectangle
	}{
		{"landscape to square", 1920, 1080, "1:1", image.Rect(420, 0, 1500, 1080)},
		{"already square", 1080, 1080, "1:1", image.Rect(0, 0, 1080, 1080)},
		{"already portrait", 1080, 1920, "9:16", image.Rect(0, 0, 1080, 1920)},
		{"already 4:5", 800, 1000, "4:5", image.Rect(0, 0, 800, 1000)},
		{"square to 4:5", 1000, 1000, "4:5", image.Rect(100, 0, 900, 1000)},
		{"square to 16:9", 1600, 1600, "16:9", image.Rect(0, 350, 1600, 1250)},
		{"unknown ratio", 300, 200, "3:2", image.Rect(0, 0, 300, 200)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CropRect(image.Rect(0, 0, tc.w, tc.h), tc.ratio)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestComposeImage_FrameOnLandscapeSquare(t *testing.T) {
	content := solidPNG(t, 1920, 1080, color.RGBA{R: 255, A: 255})
	frame := solidPNG(t, 100, 100, color.RGBA{})

	out, err := ComposeImage(content, Options{Frame: frame, AspectRatio: "1:1"})
	require.NoError(t, err)

	w, h := decodeSize(t, out)
	assert.Equal(t, 1080, w)
	assert.Equal(t, 1080, h)
}

func TestComposeImage_OpaqueFrameCoversContent(t *testing.T) {
	content := solidPNG(t, 64, 64, color.RGBA{R: 255, A: 255})
	frame := solidPNG(t, 8, 8, color.RGBA{B: 255, A: 255})

	out, err := ComposeImage(content, Options{Frame: frame})
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	r, _, b, _ := img.At(32, 32).RGBA()
	assert.Less(t, r>>8, uint32(40))
	assert.Greater(t, b>>8, uint32(200))
}

func TestWatermarkRect(t *testing.T) {
	content := image.Rect(0, 0, 1000, 800)

	// 20% of 1000 caps a 400x100 watermark to 200x50.
	assert.Equal(t, image.Rect(780, 730, 980, 780), WatermarkRect(content, 400, 100, PositionBottomRight))
	assert.Equal(t, image.Rect(20, 20, 220, 70), WatermarkRect(content, 400, 100, PositionTopLeft))
	assert.Equal(t, image.Rect(780, 20, 980, 70), WatermarkRect(content, 400, 100, PositionTopRight))
	assert.Equal(t, image.Rect(20, 730, 220, 780), WatermarkRect(content, 400, 100, PositionBottomLeft))
	assert.Equal(t, image.Rect(400, 375, 600, 425), WatermarkRect(content, 400, 100, PositionCenter))

	// Smaller watermarks keep their size; unknown positions fall back to bottom-right.
	assert.Equal(t, image.Rect(930, 750, 980, 780), WatermarkRect(content, 50, 30, "somewhere"))
}

func TestComposeImage_Watermark(t *testing.T) {
	content := solidPNG(t, 500, 500, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	wm := solidPNG(t, 50, 50, color.RGBA{A: 255})

	out, err := ComposeImage(content, Options{Watermark: wm, Position: PositionTopLeft, Opacity: 1})
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 500, img.Bounds().Dx())

	inside, _, _, _ := img.At(40, 40).RGBA()
	outside, _, _, _ := img.At(400, 400).RGBA()
	assert.Less(t, inside>>8, uint32(40))
	assert.Greater(t, outside>>8, uint32(215))
}

type fakeRunner struct {
	probeOut  []byte
	probeErr  error
	ffmpegErr error
	seen      []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.seen = append(f.seen, args...)
	switch name {
	case "ffprobe":
		return f.probeOut, f.probeErr
	case "ffmpeg":
		if f.ffmpegErr != nil {
			return nil, f.ffmpegErr
		}
		out := args[len(args)-1]
		return nil, os.WriteFile(out, []byte("framed-video"), 0o600)
	}
	return nil, errors.New("unexpected tool")
}

func scratchLeft(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestVideoOverlay(t *testing.T) {
	dir := t.TempDir()
	run := &fakeRunner{probeOut: []byte("1280,720\n")}
	v := NewVideoProcessor("", "", dir, run)

	out, err := v.Overlay(context.Background(), []byte("raw-video"), solidPNG(t, 10, 10, color.Black))
	require.NoError(t, err)

	assert.Equal(t, []byte("framed-video"), out)
	assert.Contains(t, run.seen, "[0:v][1:v]overlay=0:0")
	assert.Contains(t, run.seen, "copy")
	assert.Zero(t, scratchLeft(t, dir))
}

func TestVideoOverlay_FailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	run := &fakeRunner{probeErr: errors.New("no ffprobe"), ffmpegErr: errors.New("ffmpeg exploded")}
	p := NewPipeline(NewVideoProcessor("", "", dir, run), nil, nil)

	src := []byte("raw-video")
	out := p.Apply(context.Background(), models.MediaItem{Data: src, Kind: models.MediaVideo}, Options{Frame: solidPNG(t, 10, 10, color.Black)})

	assert.Equal(t, src, out)
	assert.Zero(t, scratchLeft(t, dir))
}

func TestVideoWithoutFrameUnchanged(t *testing.T) {
	run := &fakeRunner{}
	p := NewPipeline(NewVideoProcessor("", "", t.TempDir(), run), nil, nil)

	src := []byte("raw-video")
	out := p.Apply(context.Background(), models.MediaItem{Data: src, Kind: models.MediaVideo}, Options{Watermark: solidPNG(t, 2, 2, color.Black)})

	assert.Equal(t, src, out)
	assert.Empty(t, run.seen)
}

func TestParseDimensions(t *testing.T) {
	w, h, ok := parseDimensions("1920,1080\n")
	assert.True(t, ok)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	_, _, ok = parseDimensions("N/A")
	assert.False(t, ok)
}

type memStore map[string][]byte

func (m memStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func TestAssetLoader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/frame.png" {
			_, _ = w.Write([]byte("remote"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := NewAssetLoader(memStore{"frames/a.png": []byte("stored")}, srv.Client())
	ctx := context.Background()

	data, err := l.Load(ctx, srv.URL+"/frame.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), data)

	data, err = l.Load(ctx, "frames/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("stored"), data)

	_, err = l.Load(ctx, srv.URL+"/missing.png")
	assert.Error(t, err)

	data, err = l.Load(ctx, "")
	assert.NoError(t, err)
	assert.Nil(t, data)
}
