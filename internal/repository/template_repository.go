package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/models"
)

type TemplateRepository interface {
	ListByPostID(ctx context.Context, postID int64) ([]*models.Template, error)
}

type templateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.Template, error) {
	query := `
		SELECT t.id, t.name, t.template_type, t.watermark_position, t.watermark_opacity,
			t.watermark_image_url, t.frame_image_url, t.aspect_ratio
		FROM post_templates pt
		JOIN templates t ON t.id = pt.template_id
		WHERE pt.post_id = $1
		ORDER BY t.id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var templates []*models.Template
	for rows.Next() {
		var (
			t                                       models.Template
			position, watermarkURL, frameURL, ratio sql.NullString
			opacity                                 sql.NullFloat64
		)
		err := rows.Scan(&t.ID, &t.Name, &t.TemplateType, &position, &opacity,
			&watermarkURL, &frameURL, &ratio)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}

		t.WatermarkPosition = position.String
		if t.WatermarkPosition == "" {
			t.WatermarkPosition = models.DefaultWatermarkPosition
		}
		t.WatermarkOpacity = models.DefaultWatermarkOpacity
		if opacity.Valid {
			t.WatermarkOpacity = opacity.Float64
		}
		t.WatermarkImageURL = watermarkURL.String
		t.FrameImageURL = frameURL.String
		t.AspectRatio = ratio.String
		templates = append(templates, &t)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return templates, nil
}
