package service

import (
	"time"
)

// expiresAt converts an expires_in value in seconds to an absolute time. A
// non-positive value means the platform did not say.
func expiresAt(expiresIn int) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	t := time.Now().Add(time.Duration(expiresIn) * time.Second)
	return &t
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
