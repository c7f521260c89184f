package templating

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/image/draw"
)

const (
	fallbackVideoWidth  = 1080
	fallbackVideoHeight = 1920
)

// Runner executes an external tool and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		return out, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, msg)
	}
	return out, nil
}

type VideoProcessor struct {
	ffmpeg  string
	ffprobe string
	dir     string
	run     Runner
}

// NewVideoProcessor uses ffmpeg and ffprobe from PATH when the paths are
// empty and writes scratch files to dir, or the system temp dir.
func NewVideoProcessor(ffmpeg, ffprobe, dir string, run Runner) *VideoProcessor {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	if dir == "" {
		dir = os.TempDir()
	}
	if run == nil {
		run = execRunner{}
	}
	return &VideoProcessor{ffmpeg: ffmpeg, ffprobe: ffprobe, dir: dir, run: run}
}

// Overlay draws frame over every video frame of src at (0,0). Audio is
// copied untouched.
func (v *VideoProcessor) Overlay(ctx context.Context, src, frame []byte) ([]byte, error) {
	frameImg, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	var scratch []string
	defer func() {
		for _, p := range scratch {
			_ = os.Remove(p)
		}
	}()

	newPath := func(ext string) (string, error) {
		id, err := gonanoid.New()
		if err != nil {
			return "", err
		}
		p := filepath.Join(v.dir, "postflow-"+id+ext)
		scratch = append(scratch, p)
		return p, nil
	}

	srcPath, err := newPath(".mp4")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(srcPath, src, 0o600); err != nil {
		return nil, fmt.Errorf("stage source: %w", err)
	}

	w, h := v.probe(ctx, srcPath)

	framePath, err := newPath(".png")
	if err != nil {
		return nil, err
	}
	if err := writeScaledPNG(framePath, frameImg, w, h); err != nil {
		return nil, err
	}

	outPath, err := newPath(".mp4")
	if err != nil {
		return nil, err
	}
	_, err = v.run.Run(ctx, v.ffmpeg,
		"-i", srcPath,
		"-i", framePath,
		"-filter_complex", "[0:v][1:v]overlay=0:0",
		"-c:a", "copy",
		"-y", outPath,
	)
	if err != nil {
		return nil, err
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("ffmpeg produced an empty file")
	}
	return out, nil
}

// probe returns the first video stream's size, or a portrait 1080x1920 when
// ffprobe cannot tell.
func (v *VideoProcessor) probe(ctx context.Context, path string) (int, int) {
	out, err := v.run.Run(ctx, v.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return fallbackVideoWidth, fallbackVideoHeight
	}

	w, h, ok := parseDimensions(string(out))
	if !ok {
		return fallbackVideoWidth, fallbackVideoHeight
	}
	return w, h
}

func parseDimensions(s string) (int, int, bool) {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	ws, hs, found := strings.Cut(strings.TrimSpace(line), ",")
	if !found {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(strings.TrimSpace(ws))
	h, err2 := strconv.Atoi(strings.TrimSpace(hs))
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

func writeScaledPNG(path string, src image.Image, w, h int) error {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create frame file: %w", err)
	}
	if err := png.Encode(f, dst); err != nil {
		f.Close()
		return fmt.Errorf("encode frame: %w", err)
	}
	return f.Close()
}
