package templating

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	watermarkMargin   = 20
	watermarkMaxShare = 0.2
	jpegQuality       = 95
)

const (
	PositionTopLeft     = "top-left"
	PositionTopRight    = "top-right"
	PositionBottomLeft  = "bottom-left"
	PositionBottomRight = "bottom-right"
	PositionCenter      = "center"
)

// aspectRatios maps the supported hints to width:height.
var aspectRatios = map[string][2]int{
	"1:1":  {1, 1},
	"9:16": {9, 16},
	"16:9": {16, 9},
	"4:5":  {4, 5},
}

// ComposeImage crops data to the aspect ratio, then draws the frame or, when
// there is no frame, the watermark. The result is a JPEG.
func ComposeImage(data []byte, opts Options) ([]byte, error) {
	if opts.empty() {
		return data, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}

	content := toRGBA(src, CropRect(src.Bounds(), opts.AspectRatio))

	switch {
	case len(opts.Frame) > 0:
		frame, _, err := image.Decode(bytes.NewReader(opts.Frame))
		if err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		draw.CatmullRom.Scale(content, content.Bounds(), frame, frame.Bounds(), draw.Over, nil)
	default:
		wm, _, err := image.Decode(bytes.NewReader(opts.Watermark))
		if err != nil {
			return nil, fmt.Errorf("decode watermark: %w", err)
		}
		if err := drawWatermark(content, wm, opts.Position, opts.Opacity); err != nil {
			return nil, err
		}
	}

	return encodeJPEG(content)
}

// CropRect returns the centered sub-rectangle of b matching ratio. Unknown
// ratios and bounds that already match yield b itself.
func CropRect(b image.Rectangle, ratio string) image.Rectangle {
	r, ok := aspectRatios[ratio]
	if !ok {
		return b
	}

	w, h := b.Dx(), b.Dy()
	nw, nh := w, h
	if w*r[1] > h*r[0] {
		nw = h * r[0] / r[1]
	} else {
		nh = w * r[1] / r[0]
	}
	if nw == w && nh == h {
		return b
	}

	x0 := b.Min.X + (w-nw)/2
	y0 := b.Min.Y + (h-nh)/2
	return image.Rect(x0, y0, x0+nw, y0+nh)
}

// WatermarkRect sizes a wmW x wmH watermark for content of the given bounds
// and places it at position.
func WatermarkRect(content image.Rectangle, wmW, wmH int, position string) image.Rectangle {
	cw, ch := content.Dx(), content.Dy()

	w := wmW
	if limit := int(watermarkMaxShare * float64(cw)); limit < w {
		w = limit
	}
	h := w * wmH / wmW

	var x, y int
	switch position {
	case PositionTopLeft:
		x, y = watermarkMargin, watermarkMargin
	case PositionTopRight:
		x, y = cw-w-watermarkMargin, watermarkMargin
	case PositionBottomLeft:
		x, y = watermarkMargin, ch-h-watermarkMargin
	case PositionCenter:
		x, y = (cw-w)/2, (ch-h)/2
	default:
		x, y = cw-w-watermarkMargin, ch-h-watermarkMargin
	}

	return image.Rect(x, y, x+w, y+h).Add(content.Min)
}

func drawWatermark(dst *image.RGBA, wm image.Image, position string, opacity float64) error {
	wb := wm.Bounds()
	if wb.Dx() == 0 || wb.Dy() == 0 {
		return errors.New("watermark has no pixels")
	}

	rect := WatermarkRect(dst.Bounds(), wb.Dx(), wb.Dy(), position)
	if rect.Dx() == 0 || rect.Dy() == 0 {
		return errors.New("content too small for watermark")
	}

	scaled := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), wm, wb, draw.Src, nil)

	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	draw.DrawMask(dst, rect, scaled, image.Point{}, mask, image.Point{}, draw.Over)
	return nil
}

// toRGBA copies the r part of src into a new image anchored at the origin.
func toRGBA(src image.Image, r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}

func encodeJPEG(img *image.RGBA) ([]byte, error) {
	flat := image.NewRGBA(img.Bounds())
	draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, img.Bounds().Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
