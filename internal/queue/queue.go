package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/models"
)

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	PostID int64 `json:"post_id"`
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher hands claimed posts to the asynq worker instead of publishing
// them in the scheduler's goroutine.
type Dispatcher struct {
	client enqueuer
}

func NewDispatcher(client *asynq.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

func (d *Dispatcher) Dispatch(ctx context.Context, post *models.Post) error {
	return EnqueuePost(ctx, d.client, PublishPostPayload{PostID: post.ID})
}

// EnqueuePost queues one publish attempt. The task is never retried by
// asynq; retries go through the operator surface.
func EnqueuePost(ctx context.Context, client enqueuer, payload PublishPostPayload) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, taskPayload, asynq.MaxRetry(0))

	info, err := client.EnqueueContext(ctx, task)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	slog.Info("publish task enqueued", "post_id", payload.PostID, "task_id", info.ID, "queue", info.Queue)
	return nil
}
