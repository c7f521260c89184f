package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/templating"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const maxMediaSize = 512 << 20

type MediaService interface {
	// Resolve lists a post's media in display order without fetching bytes.
	Resolve(ctx context.Context, post *models.Post) ([]models.MediaItem, models.MediaKind, error)
	Fetch(ctx context.Context, item models.MediaItem) ([]byte, error)
	// TemplateOptions returns the templating options that apply to media of
	// the given kind, or nil when no template applies.
	TemplateOptions(ctx context.Context, postID int64, kind models.MediaKind) (*templating.Options, error)
	// Stage uploads processed media and returns its public URL.
	Stage(ctx context.Context, data []byte) (string, error)
}

type mediaService struct {
	assets    repository.MediaAssetRepository
	templates repository.TemplateRepository
	store     MediaStore
	loader    *templating.AssetLoader
	client    *http.Client
	maxSize   int64
}

func NewMediaService(
	assets repository.MediaAssetRepository,
	templates repository.TemplateRepository,
	store MediaStore,
	loader *templating.AssetLoader,
	client *http.Client) MediaService {
	if client == nil {
		client = &http.Client{Timeout: 300 * time.Second}
	}
	return &mediaService{
		assets:    assets,
		templates: templates,
		store:     store,
		loader:    loader,
		client:    client,
		maxSize:   maxMediaSize,
	}
}

func (s *mediaService) Resolve(ctx context.Context, post *models.Post) ([]models.MediaItem, models.MediaKind, error) {
	assets, err := s.assets.ListByPostID(ctx, post.ID)
	if err != nil {
		return nil, models.MediaNone, err
	}

	items := make([]models.MediaItem, 0, len(assets))
	for _, asset := range assets {
		items = append(items, models.MediaItem{URL: asset.FileURL, Kind: assetKind(asset)})
	}

	return items, postKind(post, items), nil
}

func assetKind(asset *models.MediaAsset) models.MediaKind {
	switch {
	case asset.FileType == string(models.MediaVideo), strings.HasPrefix(asset.MimeType, "video/"):
		return models.MediaVideo
	case asset.FileType == string(models.MediaImage), strings.HasPrefix(asset.MimeType, "image/"):
		return models.MediaImage
	}
	return models.MediaNone
}

// postKind settles the media kind of a whole post. A post with several items
// is treated as an image post even when some items are videos.
func postKind(post *models.Post, items []models.MediaItem) models.MediaKind {
	if len(items) == 0 {
		return models.MediaNone
	}
	if post.PostType == models.PostTypeVideo {
		return models.MediaVideo
	}
	if len(items) == 1 && items[0].Kind == models.MediaVideo {
		return models.MediaVideo
	}
	return models.MediaImage
}

func (s *mediaService) Fetch(ctx context.Context, item models.MediaItem) ([]byte, error) {
	if item.HasData() {
		return item.Data, nil
	}
	if item.URL == "" {
		return nil, errors.New("media item has no URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("media %s exceeds %d bytes", item.URL, s.maxSize)
	}
	return data, nil
}

func (s *mediaService) TemplateOptions(ctx context.Context, postID int64, kind models.MediaKind) (*templating.Options, error) {
	templates, err := s.templates.ListByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}

	var frame, watermark *models.Template
	for _, t := range templates {
		switch {
		case t.TemplateType == models.TemplateTypeImageFrame && kind == models.MediaImage && frame == nil:
			frame = t
		case t.TemplateType == models.TemplateTypeVideoFrame && kind == models.MediaVideo && frame == nil:
			frame = t
		case t.TemplateType == models.TemplateTypeWatermark && kind == models.MediaImage && watermark == nil:
			watermark = t
		}
	}

	opts := &templating.Options{
		Position: models.DefaultWatermarkPosition,
		Opacity:  models.DefaultWatermarkOpacity,
	}
	if frame != nil {
		opts.AspectRatio = frame.AspectRatio
		opts.Frame = s.loadAsset(ctx, frame.FrameImageURL)
	}
	if watermark != nil {
		opts.Position = watermark.WatermarkPosition
		opts.Opacity = watermark.WatermarkOpacity
		opts.Watermark = s.loadAsset(ctx, watermark.WatermarkImageURL)
	}

	if len(opts.Frame) == 0 && len(opts.Watermark) == 0 {
		return nil, nil
	}
	return opts, nil
}

// loadAsset returns nil when the asset cannot be loaded; a missing template
// asset only means that template is skipped.
func (s *mediaService) loadAsset(ctx context.Context, ref string) []byte {
	if ref == "" || s.loader == nil {
		return nil
	}
	data, err := s.loader.Load(ctx, ref)
	if err != nil {
		slog.Warn("unable to load template asset", "ref", ref, "error", err)
		return nil
	}
	return data
}

func (s *mediaService) Stage(ctx context.Context, data []byte) (string, error) {
	if s.store == nil {
		return "", errors.New("no media store configured")
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "", errors.New("unrecognised media type")
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	return s.store.Put(ctx, "processed/"+id+"."+kind.Extension, data, kind.MIME.Value)
}
