package models

import (
	"fmt"
	"strings"
	"time"
)

type PlatformKind string

const (
	PlatformFacebook  PlatformKind = "facebook"
	PlatformInstagram PlatformKind = "instagram"
	PlatformThreads   PlatformKind = "threads"
	PlatformTiktok    PlatformKind = "tiktok"
	PlatformYoutube   PlatformKind = "youtube"
)

// PlatformKinds lists every platform the publisher can route to.
var PlatformKinds = []PlatformKind{
	PlatformFacebook,
	PlatformInstagram,
	PlatformThreads,
	PlatformTiktok,
	PlatformYoutube,
}

func ParsePlatformKind(s string) (PlatformKind, error) {
	k := PlatformKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range PlatformKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unsupported platform %q", s)
}

// Page is a connected page, account or channel together with its stored
// credential. Tokens are kept sealed as they are in the database.
type Page struct {
	ID             int64      `db:"id" json:"id"`
	Platform       string     `db:"platform" json:"platform"`
	ExternalID     string     `db:"page_id" json:"page_id"`
	Name           string     `db:"page_name" json:"page_name"`
	AccessToken    string     `db:"access_token" json:"-"`
	RefreshToken   string     `db:"refresh_token" json:"-"`
	TokenExpiresAt *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	Status         string     `db:"status" json:"status"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	PageStatusConnected    = "connected"
	PageStatusDisconnected = "disconnected"
)

// TokenUpdate carries freshly issued tokens. Empty fields keep the stored
// value.
type TokenUpdate struct {
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
}
