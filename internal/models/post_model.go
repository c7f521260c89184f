package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type Post struct {
	ID              int64      `db:"id" json:"id"`
	PageID          int64      `db:"page_id" json:"page_id"`
	Title           string     `db:"title" json:"title"`
	Content         string     `db:"content" json:"content"`
	PostType        string     `db:"post_type" json:"post_type"`
	Status          string     `db:"status" json:"status"`
	ScheduledAt     *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt     *time.Time `db:"published_at" json:"published_at,omitempty"`
	PlatformPostID  string     `db:"platform_post_id" json:"platform_post_id,omitempty"`
	PlatformPostURL string     `db:"platform_post_url" json:"platform_post_url,omitempty"`
	ErrorMessage    string     `db:"error_message" json:"error_message,omitempty"`
	RetryCount      int        `db:"retry_count" json:"retry_count"`
	Metadata        Metadata   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)

const (
	PostTypeText     = "text"
	PostTypeImage    = "image"
	PostTypeVideo    = "video"
	PostTypeCarousel = "carousel"
	PostTypeStory    = "story"
)

// Metadata keys written by the publisher.
const (
	MetaPublishID      = "publish_id"
	MetaPlatformStatus = "platform_status"
	MetaFailReason     = "fail_reason"
)

// Outcome is what the publisher persists after an attempt.
type Outcome struct {
	Status          string
	PublishedAt     *time.Time
	PlatformPostID  string
	PlatformPostURL string
	ErrorMessage    string
	IncrementRetry  bool
	Metadata        Metadata
}

// Metadata is the jsonb metadata column.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("metadata: unsupported column type")
	}

	out := Metadata{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
	}
	*m = out
	return nil
}

func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
