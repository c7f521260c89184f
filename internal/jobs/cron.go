package job

import (
	"fmt"
	"time"

	"github.com/robfig/cron"
)

// NewCron registers the scheduler tick and the token refresh job. The
// returned cron is not started.
func NewCron(s *Scheduler, schedulerInterval time.Duration, refresh *TokenRefreshJob, refreshInterval time.Duration) (*cron.Cron, error) {
	c := cron.New()

	if err := c.AddFunc(every(schedulerInterval), s.Run); err != nil {
		return nil, fmt.Errorf("schedule publisher tick: %w", err)
	}
	if refresh != nil {
		if err := c.AddFunc(every(refreshInterval), refresh.RefreshTokens); err != nil {
			return nil, fmt.Errorf("schedule token refresh: %w", err)
		}
	}

	return c, nil
}

func every(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	return "@every " + d.String()
}
