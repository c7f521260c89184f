package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/service"
)

type Worker struct {
	ps service.PublishService
}

func NewWorker(ps service.PublishService) *Worker {
	return &Worker{ps: ps}
}

func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypePublishPost, w.HandlePublishPostTask)
}

func (w *Worker) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.PostID <= 0 {
		return fmt.Errorf("payload has no post id: %w", asynq.SkipRetry)
	}

	outcome, err := w.ps.PublishByID(ctx, payload.PostID)
	switch {
	case errors.Is(err, service.ErrPostNotFound), errors.Is(err, service.ErrNotPublishing):
		slog.Warn("publish task dropped", "post_id", payload.PostID, "reason", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case err != nil:
		return err
	}

	slog.Info("publish task finished", "post_id", payload.PostID, "status", outcome.Status)
	return nil
}
