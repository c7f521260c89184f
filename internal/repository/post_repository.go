package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

var ErrStaleOutcome = errors.New("post is no longer publishing")

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error)
	ListUpcoming(ctx context.Context, now time.Time, limit int) ([]*models.Post, error)
	Claim(ctx context.Context, id int64) (bool, error)
	SaveOutcome(ctx context.Context, id int64, outcome *models.Outcome) error
	Reschedule(ctx context.Context, id int64, at time.Time) (bool, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, page_id, title, content, post_type, status, scheduled_at, published_at,
	platform_post_id, platform_post_url, error_message, retry_count, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		post                                 models.Post
		title, postID, postURL, errorMessage sql.NullString
		scheduledAt, publishedAt             sql.NullTime
	)

	err := row.Scan(&post.ID, &post.PageID, &title, &post.Content, &post.PostType, &post.Status,
		&scheduledAt, &publishedAt, &postID, &postURL, &errorMessage, &post.RetryCount,
		&post.Metadata, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}

	post.Title = title.String
	post.PlatformPostID = postID.String
	post.PlatformPostURL = postURL.String
	post.ErrorMessage = errorMessage.String
	if scheduledAt.Valid {
		post.ScheduledAt = &scheduledAt.Time
	}
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}
	return &post, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC, id ASC
		LIMIT $3`

	return r.list(ctx, query, models.PostStatusScheduled, now, limit)
}

func (r *postRepository) ListUpcoming(ctx context.Context, now time.Time, limit int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE status = $1 AND scheduled_at > $2
		ORDER BY scheduled_at ASC, id ASC
		LIMIT $3`

	return r.list(ctx, query, models.PostStatusScheduled, now, limit)
}

func (r *postRepository) list(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return posts, nil
}

// Claim flips a scheduled post to publishing. It reports false when another
// reader got there first or the post is not scheduled.
func (r *postRepository) Claim(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1,
			updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusPublishing, id, models.PostStatusScheduled)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	return affected == 1, nil
}

// SaveOutcome records the result of a publish attempt. Only posts that are
// still publishing are updated.
func (r *postRepository) SaveOutcome(ctx context.Context, id int64, o *models.Outcome) error {
	query := `
		UPDATE posts
		SET status = $1,
			published_at = COALESCE($2::timestamptz, published_at),
			platform_post_id = COALESCE(NULLIF($3, ''), platform_post_id),
			platform_post_url = COALESCE(NULLIF($4, ''), platform_post_url),
			error_message = NULLIF($5, ''),
			retry_count = retry_count + $6,
			metadata = COALESCE(metadata, '{}'::jsonb) || $7::jsonb,
			updated_at = NOW()
		WHERE id = $8 AND status = $9
	`

	var increment int
	if o.IncrementRetry {
		increment = 1
	}

	var publishedAt any
	if o.PublishedAt != nil {
		publishedAt = *o.PublishedAt
	}

	result, err := r.db.ExecContext(ctx, query,
		o.Status,
		publishedAt,
		o.PlatformPostID,
		o.PlatformPostURL,
		o.ErrorMessage,
		increment,
		o.Metadata,
		id,
		models.PostStatusPublishing,
	)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info(ErrStaleOutcome.Error(), "post_id", id)
		return ErrStaleOutcome
	}

	return nil
}

// Reschedule moves a failed post back to scheduled.
func (r *postRepository) Reschedule(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1,
			scheduled_at = $2,
			updated_at = NOW()
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusScheduled, at, id, models.PostStatusFailed)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	return affected == 1, nil
}
