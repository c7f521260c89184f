package adapter

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/events"
	"github.com/maheshrc27/postflow/internal/models"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	DefaultYouTubeRefreshThreshold = 5 * time.Minute
	DefaultYouTubeChunkSize        = 8 << 20

	youtubeMaxTitle = 100
	youtubeMaxTags  = 10
	youtubeCategory = "22"
)

var hashtagPattern = regexp.MustCompile(`#(\w+)`)

// TokenSaver persists a token obtained by refreshing the page's credential.
type TokenSaver func(ctx context.Context, cred Credential, tok *oauth2.Token) error

type YouTubeConfig struct {
	OAuth            *oauth2.Config
	RefreshThreshold time.Duration
	ChunkSize        int
	SaveToken        TokenSaver
}

type YouTube struct {
	cfg     YouTubeConfig
	baseURL string
	t       *transport
}

func NewYouTube(opts Options, cfg YouTubeConfig) *YouTube {
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = DefaultYouTubeRefreshThreshold
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultYouTubeChunkSize
	}
	return &YouTube{
		cfg:     cfg,
		baseURL: opts.BaseURL,
		t:       newTransport(opts, nil),
	}
}

func (yt *YouTube) Platform() models.PlatformKind {
	return models.PlatformYoutube
}

// NeedsRefresh reports whether cred should be refreshed before an upload.
// An unknown expiry always counts as expiring.
func (yt *YouTube) NeedsRefresh(cred Credential, now time.Time) bool {
	if cred.ExpiresAt == nil {
		return true
	}
	return cred.ExpiresAt.Sub(now) < yt.cfg.RefreshThreshold
}

func (yt *YouTube) Publish(ctx context.Context, cred Credential, req Request) Result {
	if cred.AccessToken == "" && cred.RefreshToken == "" {
		return failed("credential", missingCredential("YouTube channel has no access token"))
	}
	if len(req.Items) == 0 || !(req.Kind == models.MediaVideo || isVideo(req.Items[0])) {
		return failed("validate", invalidMedia("YouTube only supports video posts"))
	}

	token, e := yt.token(ctx, cred)
	if e != nil {
		yt.t.emit(ctx, events.PhaseRefresh, "refresh", false, e.Error(), nil)
		return failed("refresh", e)
	}

	item := req.Items[0]
	data := item.Data
	if !item.HasData() {
		if item.URL == "" {
			return failed("validate", invalidMedia("video has neither data nor URL"))
		}
		if data, e = yt.t.download(ctx, item.URL); e != nil {
			yt.t.emit(ctx, events.PhaseUpload, "download", false, e.Error(), nil)
			return failed("download", e)
		}
	}

	id, e := yt.upload(ctx, token, req, data)
	if e != nil {
		yt.t.emit(ctx, events.PhaseUpload, "upload", false, e.Error(), nil)
		return failed("upload", e)
	}

	link := "https://www.youtube.com/watch?v=" + id
	yt.t.emit(ctx, events.PhasePublish, "", true, link, nil)
	return succeeded(id, link)
}

// token returns a usable access token, refreshing through oauth2 when the
// stored one is about to expire.
func (yt *YouTube) token(ctx context.Context, cred Credential) (*oauth2.Token, *Error) {
	current := &oauth2.Token{AccessToken: cred.AccessToken, RefreshToken: cred.RefreshToken}
	if cred.ExpiresAt != nil {
		current.Expiry = *cred.ExpiresAt
	}

	if !yt.NeedsRefresh(cred, time.Now()) {
		return current, nil
	}
	if cred.RefreshToken == "" || yt.cfg.OAuth == nil {
		if cred.AccessToken == "" || (cred.ExpiresAt != nil && time.Now().After(*cred.ExpiresAt)) {
			return nil, missingCredential("YouTube token expired and cannot be refreshed")
		}
		return current, nil
	}

	refreshCtx, cancel := context.WithTimeout(ctx, yt.t.metadataTimeout)
	defer cancel()
	refreshCtx = context.WithValue(refreshCtx, oauth2.HTTPClient, yt.t.client)

	tok, err := yt.cfg.OAuth.TokenSource(refreshCtx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, &Error{Kind: KindHTTP, HTTPStatus: re.Response.StatusCode, Message: snippet(re.Body)}
		}
		return nil, classify(err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = cred.RefreshToken
	}
	yt.t.emit(ctx, events.PhaseRefresh, "refresh", true, "", map[string]any{"expires_at": tok.Expiry})

	if yt.cfg.SaveToken != nil {
		if err := yt.cfg.SaveToken(ctx, cred, tok); err != nil {
			yt.t.emit(ctx, events.PhaseRefresh, "persist_token", false, err.Error(), nil)
		}
	}
	return tok, nil
}

func (yt *YouTube) upload(ctx context.Context, token *oauth2.Token, req Request, data []byte) (string, *Error) {
	ctx, cancel := context.WithTimeout(ctx, yt.t.uploadTimeout)
	defer cancel()

	httpCtx := context.WithValue(ctx, oauth2.HTTPClient, yt.t.client)
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(httpCtx, oauth2.StaticTokenSource(token)))}
	if yt.baseURL != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(yt.baseURL, "/")+"/"))
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return "", exception(err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       videoTitle(req),
			Description: req.Text,
			Tags:        hashtags(req.Text, youtubeMaxTags),
			CategoryId:  youtubeCategory,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: "public"},
	}

	yt.t.limiter.Take()
	call := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(bytes.NewReader(data), googleapi.ChunkSize(yt.cfg.ChunkSize), googleapi.ContentType("video/mp4")).
		ProgressUpdater(func(current, total int64) {
			yt.t.emit(ctx, events.PhaseUpload, "progress", true, "", map[string]any{"sent": current, "total": total})
		})

	resp, err := call.Context(ctx).Do()
	if err != nil {
		var ge *googleapi.Error
		if errors.As(err, &ge) {
			return "", &Error{Kind: KindHTTP, HTTPStatus: ge.Code, Message: ge.Message}
		}
		return "", classify(err)
	}
	if resp.Id == "" {
		return "", &Error{Kind: KindException, Message: "YouTube returned no video id"}
	}
	return resp.Id, nil
}

func videoTitle(req Request) string {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title, _, _ = strings.Cut(strings.TrimSpace(req.Text), "\n")
		title = strings.TrimSpace(title)
	}
	if title == "" {
		title = "Untitled"
	}
	return truncateRunes(title, youtubeMaxTitle)
}

// hashtags returns up to limit distinct tags found in text, without the '#'.
func hashtags(text string, limit int) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		tag := m[1]
		if seen[strings.ToLower(tag)] {
			continue
		}
		seen[strings.ToLower(tag)] = true
		tags = append(tags, tag)
		if len(tags) == limit {
			break
		}
	}
	return tags
}
