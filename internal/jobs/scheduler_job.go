package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
)

const (
	defaultBatchSize     = 50
	defaultUpcomingLimit = 10
	maxUpcomingLimit     = 100
)

// Dispatcher hands a claimed post over for publishing.
type Dispatcher interface {
	Dispatch(ctx context.Context, post *models.Post) error
}

// InlineDispatcher publishes in the caller's goroutine.
type InlineDispatcher struct {
	ps service.PublishService
}

func NewInlineDispatcher(ps service.PublishService) *InlineDispatcher {
	return &InlineDispatcher{ps: ps}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, post *models.Post) error {
	_, err := d.ps.PublishByID(ctx, post.ID)
	return err
}

type Scheduler struct {
	pr         repository.PostRepository
	dispatcher Dispatcher
	batchSize  int
	now        func() time.Time

	running sync.Mutex
}

func NewScheduler(pr repository.PostRepository, dispatcher Dispatcher, batchSize int) *Scheduler {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Scheduler{
		pr:         pr,
		dispatcher: dispatcher,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// Run is the cron entry point.
func (s *Scheduler) Run() {
	s.Tick(context.Background())
}

// Tick claims and dispatches every due post, a batch at a time, until none
// are left. It returns the number of posts dispatched; a tick that starts
// while another is running does nothing.
func (s *Scheduler) Tick(ctx context.Context) int {
	if !s.running.TryLock() {
		slog.Warn("previous scheduler tick still running, skipping")
		return 0
	}
	defer s.running.Unlock()

	dispatched := 0
	for ctx.Err() == nil {
		posts, err := s.pr.ListDue(ctx, s.now(), s.batchSize)
		if err != nil {
			slog.Error("unable to list due posts", "error", err)
			break
		}
		if len(posts) == 0 {
			break
		}
		slog.Info("due posts found", "count", len(posts))

		claimed := 0
		for _, post := range posts {
			if ctx.Err() != nil {
				break
			}
			ok, sent := s.claimAndDispatch(ctx, post)
			if ok {
				claimed++
			}
			if sent {
				dispatched++
			}
		}

		// a short batch means nothing else was due; a batch with no claims
		// would only be listed again
		if len(posts) < s.batchSize || claimed == 0 {
			break
		}
	}
	return dispatched
}

func (s *Scheduler) claimAndDispatch(ctx context.Context, post *models.Post) (claimed, dispatched bool) {
	claimed, err := s.pr.Claim(ctx, post.ID)
	if err != nil {
		slog.Error("unable to claim post", "post_id", post.ID, "error", err)
		return false, false
	}
	if !claimed {
		slog.Info("post already claimed", "post_id", post.ID)
		return false, false
	}

	post.Status = models.PostStatusPublishing
	if err := s.dispatcher.Dispatch(ctx, post); err != nil {
		s.failDispatch(ctx, post.ID, err)
		return true, false
	}
	return true, true
}

// failDispatch records a dispatch error on a claimed post so it does not sit
// in publishing with nothing working on it. A post the publish path already
// finished is left alone by SaveOutcome.
func (s *Scheduler) failDispatch(ctx context.Context, postID int64, err error) {
	slog.Error("unable to dispatch post", "post_id", postID, "error", err)

	outcome := &models.Outcome{
		Status:         models.PostStatusFailed,
		ErrorMessage:   fmt.Sprintf("unknown:dispatch:%s", err),
		IncrementRetry: true,
	}
	if err := s.pr.SaveOutcome(ctx, postID, outcome); err != nil {
		slog.Error("unable to record dispatch failure", "post_id", postID, "error", err)
	}
}

func (s *Scheduler) ListUpcoming(ctx context.Context, limit int) ([]*models.Post, error) {
	switch {
	case limit <= 0:
		limit = defaultUpcomingLimit
	case limit > maxUpcomingLimit:
		limit = maxUpcomingLimit
	}
	return s.pr.ListUpcoming(ctx, s.now(), limit)
}

// TriggerNow publishes a scheduled post immediately, ignoring scheduled_at.
// It shares the tick guard, so it fails with service.ErrBusy mid-tick.
func (s *Scheduler) TriggerNow(ctx context.Context, postID int64) error {
	if !s.running.TryLock() {
		return service.ErrBusy
	}
	defer s.running.Unlock()

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return service.ErrPostNotFound
	}
	if post.Status != models.PostStatusScheduled {
		return service.ErrNotScheduled
	}

	claimed, err := s.pr.Claim(ctx, postID)
	if err != nil {
		return err
	}
	if !claimed {
		return service.ErrNotScheduled
	}

	post.Status = models.PostStatusPublishing
	slog.Info("post triggered manually", "post_id", postID)
	if err := s.dispatcher.Dispatch(ctx, post); err != nil {
		s.failDispatch(ctx, postID, err)
		return err
	}
	return nil
}
