package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/models"
)

type MediaAssetRepository interface {
	ListByPostID(ctx context.Context, postID int64) ([]*models.MediaAsset, error)
}

type mediaAssetRepository struct {
	db *sql.DB
}

func NewMediaAssetRepository(db *sql.DB) MediaAssetRepository {
	return &mediaAssetRepository{db: db}
}

func (r *mediaAssetRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.MediaAsset, error) {
	query := `
		SELECT m.id, m.file_name, m.file_type, m.file_url, m.storage_path,
			m.mime_type, m.width, m.height, pm.position, m.created_at
		FROM post_media pm
		JOIN media_library m ON m.id = pm.media_id
		WHERE pm.post_id = $1
		ORDER BY pm.position ASC, pm.id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var assets []*models.MediaAsset
	for rows.Next() {
		var (
			ma                    models.MediaAsset
			storagePath, mimeType sql.NullString
			width, height         sql.NullInt64
		)
		err := rows.Scan(&ma.ID, &ma.FileName, &ma.FileType, &ma.FileURL, &storagePath,
			&mimeType, &width, &height, &ma.Position, &ma.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		ma.StoragePath = storagePath.String
		ma.MimeType = mimeType.String
		ma.Width = int(width.Int64)
		ma.Height = int(height.Int64)
		assets = append(assets, &ma)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return assets, nil
}
