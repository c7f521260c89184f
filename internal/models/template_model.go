package models

type Template struct {
	ID                int64   `db:"id" json:"id"`
	Name              string  `db:"name" json:"name"`
	TemplateType      string  `db:"template_type" json:"template_type"`
	WatermarkPosition string  `db:"watermark_position" json:"watermark_position"`
	WatermarkOpacity  float64 `db:"watermark_opacity" json:"watermark_opacity"`
	WatermarkImageURL string  `db:"watermark_image_url" json:"watermark_image_url"`
	FrameImageURL     string  `db:"frame_image_url" json:"frame_image_url"`
	AspectRatio       string  `db:"aspect_ratio" json:"aspect_ratio"`
}

const (
	TemplateTypeCaption    = "caption"
	TemplateTypeHashtag    = "hashtag"
	TemplateTypeWatermark  = "watermark"
	TemplateTypeImageFrame = "image_frame"
	TemplateTypeVideoFrame = "video_frame"
)

const (
	DefaultWatermarkPosition = "bottom-right"
	DefaultWatermarkOpacity  = 0.8
)
