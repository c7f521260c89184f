package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// ErrTokenConflict means the stored access token changed between read and
// write; another refresher won.
var ErrTokenConflict = errors.New("access token changed concurrently")

type PageRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Page, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*models.Page, error)
	SetToken(ctx context.Context, id int64, oldAccessToken string, update *models.TokenUpdate) error
}

type pageRepository struct {
	db *sql.DB
}

func NewPageRepository(db *sql.DB) PageRepository {
	return &pageRepository{db: db}
}

const pageColumns = `id, platform, page_id, page_name, access_token, refresh_token, token_expires_at, status, updated_at`

func scanPage(row rowScanner) (*models.Page, error) {
	var (
		p                         models.Page
		accessToken, refreshToken sql.NullString
		expiresAt                 sql.NullTime
	)

	err := row.Scan(&p.ID, &p.Platform, &p.ExternalID, &p.Name, &accessToken, &refreshToken,
		&expiresAt, &p.Status, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.AccessToken = accessToken.String
	p.RefreshToken = refreshToken.String
	if expiresAt.Valid {
		p.TokenExpiresAt = &expiresAt.Time
	}
	return &p, nil
}

func (r *pageRepository) GetByID(ctx context.Context, id int64) (*models.Page, error) {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE id = $1`

	page, err := scanPage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return page, nil
}

// ListExpiring returns connected pages with a refreshable token that expires
// before the given time, including already expired ones. Facebook page
// tokens never expire and are left out.
func (r *pageRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.Page, error) {
	query := `SELECT ` + pageColumns + ` FROM pages
		WHERE status = $1
		AND token_expires_at IS NOT NULL
		AND token_expires_at < $2
		AND platform <> $3`

	rows, err := r.db.QueryContext(ctx, query, models.PageStatusConnected, before, string(models.PlatformFacebook))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var pages []*models.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		pages = append(pages, page)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return pages, nil
}

// SetToken stores refreshed tokens only if the access token is still the one
// the caller refreshed from.
func (r *pageRepository) SetToken(ctx context.Context, id int64, oldAccessToken string, update *models.TokenUpdate) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	query := `
		UPDATE pages
		SET
			access_token = COALESCE(NULLIF($3, ''), access_token),
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			token_expires_at = COALESCE($5::timestamptz, token_expires_at),
			updated_at = NOW()
		WHERE id = $1 AND access_token = $2
	`

	var expiresAt any
	if update.TokenExpiresAt != nil {
		expiresAt = *update.TokenExpiresAt
	}

	result, err := tx.ExecContext(ctx, query, id, oldAccessToken, update.AccessToken, update.RefreshToken, expiresAt)
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
		slog.Info(ErrTokenConflict.Error(), "page_id", id)
		return ErrTokenConflict
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
