package models

import "time"

type MediaKind string

const (
	MediaNone  MediaKind = ""
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

type MediaAsset struct {
	ID          int64     `db:"id" json:"id"`
	FileName    string    `db:"file_name" json:"file_name"`
	FileType    string    `db:"file_type" json:"file_type"` // image, video
	FileURL     string    `db:"file_url" json:"file_url"`
	StoragePath string    `db:"storage_path" json:"storage_path"`
	MimeType    string    `db:"mime_type" json:"mime_type"`
	Width       int       `db:"width" json:"width"`
	Height      int       `db:"height" json:"height"`
	Position    int       `db:"position" json:"position"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// MediaItem is one piece of media handed to an adapter. Either Data or URL
// (or both) is set.
type MediaItem struct {
	Data []byte
	URL  string
	Kind MediaKind
}

func (m MediaItem) HasData() bool {
	return len(m.Data) > 0
}
