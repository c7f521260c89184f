package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/service"
)

type TokenRefreshJob struct {
	cs     service.CredentialService
	window time.Duration
}

func NewTokenRefreshJob(cs service.CredentialService, window time.Duration) *TokenRefreshJob {
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &TokenRefreshJob{cs: cs, window: window}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	refreshed, err := c.cs.RefreshExpiring(ctx, c.window)
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if refreshed > 0 {
		slog.Info("tokens refreshed", "count", refreshed)
	}
}
