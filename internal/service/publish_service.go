package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/adapter"
	"github.com/maheshrc27/postflow/internal/events"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/templating"
)

var (
	ErrPostNotFound   = errors.New("post not found")
	ErrNotScheduled   = errors.New("post is not scheduled")
	ErrNotFailed      = errors.New("post is not failed")
	ErrNotPublishing  = errors.New("post is not publishing")
	ErrNoStatusCheck  = errors.New("post has no pending platform publish")
	ErrBusy           = errors.New("a scheduler tick is running")
	errUnknownAdapter = errors.New("no adapter for platform")
)

type PublishService interface {
	// Publish runs one attempt for a post that has already been claimed and
	// persists the outcome.
	Publish(ctx context.Context, post *models.Post, items []models.MediaItem, kind models.MediaKind) (*models.Outcome, error)
	PublishByID(ctx context.Context, postID int64) (*models.Outcome, error)
	CheckPublishStatus(ctx context.Context, postID int64) (*models.Outcome, error)
	Retry(ctx context.Context, postID int64) error
}

type publishService struct {
	posts    repository.PostRepository
	pages    repository.PageRepository
	creds    CredentialService
	media    MediaService
	pipeline *templating.Pipeline
	adapters *adapter.Registry
	now      func() time.Time
}

func NewPublishService(
	posts repository.PostRepository,
	pages repository.PageRepository,
	creds CredentialService,
	media MediaService,
	pipeline *templating.Pipeline,
	adapters *adapter.Registry) PublishService {
	return &publishService{
		posts:    posts,
		pages:    pages,
		creds:    creds,
		media:    media,
		pipeline: pipeline,
		adapters: adapters,
		now:      time.Now,
	}
}

func (s *publishService) PublishByID(ctx context.Context, postID int64) (*models.Outcome, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		// the claimed row may still be updatable even though the read failed
		return s.saveFailure(ctx, &models.Post{ID: postID}, "unknown", "load", err.Error())
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	if post.Status != models.PostStatusPublishing {
		return nil, ErrNotPublishing
	}

	items, kind, err := s.media.Resolve(ctx, post)
	if err != nil {
		platform := "unknown"
		if page, _ := s.pages.GetByID(ctx, post.PageID); page != nil {
			platform = page.Platform
		}
		return s.saveFailure(ctx, post, platform, "media", err.Error())
	}

	return s.Publish(ctx, post, items, kind)
}

func (s *publishService) Publish(ctx context.Context, post *models.Post, items []models.MediaItem, kind models.MediaKind) (*models.Outcome, error) {
	page, err := s.pages.GetByID(ctx, post.PageID)
	if err != nil {
		return s.saveFailure(ctx, post, "unknown", "credential", err.Error())
	}
	if page == nil {
		return s.saveFailure(ctx, post, "unknown", "credential", "page not found")
	}
	if page.AccessToken == "" {
		return s.saveFailure(ctx, post, page.Platform, "credential", ErrMissingCredential.Error())
	}

	platform, err := models.ParsePlatformKind(page.Platform)
	if err != nil {
		return s.saveFailure(ctx, post, page.Platform, "dispatch", err.Error())
	}
	a, ok := s.adapters.Get(platform)
	if !ok {
		return s.saveFailure(ctx, post, page.Platform, "dispatch", errUnknownAdapter.Error())
	}

	cred, err := s.creds.Resolve(ctx, page)
	if err != nil {
		return s.saveFailure(ctx, post, page.Platform, "credential", err.Error())
	}

	ctx = events.WithPost(ctx, post.ID, page.Platform)
	items = s.applyTemplates(ctx, post, platform, items, kind)

	res := a.Publish(ctx, cred, adapter.Request{
		Title: post.Title,
		Text:  post.Content,
		Items: items,
		Kind:  kind,
	})

	return s.saveResult(ctx, post, page.Platform, res)
}

// applyTemplates runs the templating pipeline over every item. Processed
// media for platforms that pull by URL is staged and its URL replaced.
func (s *publishService) applyTemplates(ctx context.Context, post *models.Post, platform models.PlatformKind,
	items []models.MediaItem, kind models.MediaKind) []models.MediaItem {

	if len(items) == 0 || s.pipeline == nil {
		return items
	}

	opts, err := s.media.TemplateOptions(ctx, post.ID, kind)
	if err != nil {
		slog.Warn("unable to load templates, publishing original media", "post_id", post.ID, "error", err)
		return items
	}
	if opts == nil {
		return items
	}

	out := make([]models.MediaItem, len(items))
	for i, item := range items {
		out[i] = item
		if item.Kind == models.MediaNone {
			out[i].Kind = kind
		}

		data, err := s.media.Fetch(ctx, item)
		if err != nil {
			slog.Warn("unable to fetch media for templating", "post_id", post.ID, "index", i, "error", err)
			continue
		}
		out[i].Data = data

		processed := s.pipeline.Apply(ctx, out[i], *opts)
		if bytes.Equal(processed, data) {
			continue
		}
		out[i].Data = processed

		if pullsByURL(platform) {
			url, err := s.media.Stage(ctx, processed)
			if err != nil {
				slog.Warn("unable to stage processed media, keeping original URL", "post_id", post.ID, "index", i, "error", err)
				continue
			}
			out[i].URL = url
		}
	}
	return out
}

func pullsByURL(platform models.PlatformKind) bool {
	return platform == models.PlatformInstagram || platform == models.PlatformThreads
}

func (s *publishService) saveResult(ctx context.Context, post *models.Post, platform string, res adapter.Result) (*models.Outcome, error) {
	switch res.Status {
	case adapter.StatusOK:
		now := s.now()
		outcome := &models.Outcome{
			Status:          models.PostStatusPublished,
			PublishedAt:     &now,
			PlatformPostID:  res.ExternalID,
			PlatformPostURL: res.ExternalURL,
		}
		slog.Info("post published", "post_id", post.ID, "platform", platform, "platform_post_id", res.ExternalID)
		return outcome, s.save(ctx, post.ID, outcome)

	case adapter.StatusProcessing:
		outcome := &models.Outcome{
			Status: models.PostStatusPublishing,
			Metadata: models.Metadata{
				models.MetaPublishID:      res.JobID,
				models.MetaPlatformStatus: "processing",
			},
		}
		slog.Info("post accepted, platform still processing", "post_id", post.ID, "platform", platform, "publish_id", res.JobID)
		return outcome, s.save(ctx, post.ID, outcome)

	default:
		msg := "unknown error"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		step := res.Step
		if step == "" {
			step = "publish"
		}
		return s.saveFailure(ctx, post, platform, step, msg)
	}
}

func (s *publishService) saveFailure(ctx context.Context, post *models.Post, platform, step, message string) (*models.Outcome, error) {
	outcome := &models.Outcome{
		Status:         models.PostStatusFailed,
		ErrorMessage:   fmt.Sprintf("%s:%s:%s", platform, step, message),
		IncrementRetry: true,
	}
	slog.Warn("post failed", "post_id", post.ID, "platform", platform, "step", step, "error", message)
	return outcome, s.save(ctx, post.ID, outcome)
}

func (s *publishService) save(ctx context.Context, postID int64, outcome *models.Outcome) error {
	if err := s.posts.SaveOutcome(ctx, postID, outcome); err != nil {
		slog.Error("unable to save publish outcome", "post_id", postID, "status", outcome.Status, "error", err)
		return err
	}
	return nil
}

// CheckPublishStatus asks the platform how a pending publish ended. Only
// posts still publishing with a recorded publish id qualify.
func (s *publishService) CheckPublishStatus(ctx context.Context, postID int64) (*models.Outcome, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	if post.Status != models.PostStatusPublishing {
		return nil, ErrNotPublishing
	}
	publishID := post.Metadata.String(models.MetaPublishID)
	if publishID == "" {
		return nil, ErrNoStatusCheck
	}

	page, err := s.pages.GetByID(ctx, post.PageID)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, ErrMissingCredential
	}
	platform, err := models.ParsePlatformKind(page.Platform)
	if err != nil {
		return nil, err
	}
	a, ok := s.adapters.Get(platform)
	if !ok {
		return nil, errUnknownAdapter
	}
	checker, ok := a.(adapter.StatusChecker)
	if !ok {
		return nil, ErrNoStatusCheck
	}

	cred, err := s.creds.Resolve(ctx, page)
	if err != nil {
		return nil, err
	}

	report, err := checker.CheckPublishStatus(events.WithPost(ctx, post.ID, page.Platform), cred, publishID)
	if err != nil {
		return nil, err
	}

	var outcome *models.Outcome
	switch report.State {
	case adapter.PublishStatePublished:
		now := s.now()
		outcome = &models.Outcome{
			Status:          models.PostStatusPublished,
			PublishedAt:     &now,
			PlatformPostID:  report.ExternalID,
			PlatformPostURL: report.ExternalURL,
			Metadata:        models.Metadata{models.MetaPlatformStatus: "published"},
		}
	case adapter.PublishStateFailed:
		outcome = &models.Outcome{
			Status:         models.PostStatusFailed,
			ErrorMessage:   fmt.Sprintf("%s:status:%s", page.Platform, report.FailReason),
			IncrementRetry: true,
			Metadata: models.Metadata{
				models.MetaPlatformStatus: "failed",
				models.MetaFailReason:     report.FailReason,
			},
		}
	default:
		outcome = &models.Outcome{
			Status:   models.PostStatusPublishing,
			Metadata: models.Metadata{models.MetaPlatformStatus: "processing"},
		}
	}

	return outcome, s.save(ctx, post.ID, outcome)
}

// Retry puts a failed post back on the schedule, due immediately.
func (s *publishService) Retry(ctx context.Context, postID int64) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return ErrPostNotFound
	}
	if post.Status != models.PostStatusFailed {
		return ErrNotFailed
	}

	ok, err := s.posts.Reschedule(ctx, postID, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFailed
	}
	slog.Info("post rescheduled for retry", "post_id", postID, "retry_count", post.RetryCount)
	return nil
}
