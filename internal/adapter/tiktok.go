package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/maheshrc27/postflow/internal/events"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	tiktokAPIURL         = "https://open.tiktokapis.com"
	tiktokMaxTitle       = 150
	DefaultTiktokPrivacy = "SELF_ONLY"
)

type TikTok struct {
	baseURL string
	privacy string
	t       *transport
}

// NewTikTok builds the TikTok publisher. An empty privacy level falls back
// to SELF_ONLY, which unaudited apps are restricted to.
func NewTikTok(opts Options, privacy string) *TikTok {
	if privacy == "" {
		privacy = DefaultTiktokPrivacy
	}
	return &TikTok{
		baseURL: baseURLOr(opts, tiktokAPIURL),
		privacy: privacy,
		t:       newTransport(opts, tiktokRejection),
	}
}

func (tt *TikTok) Platform() models.PlatformKind {
	return models.PlatformTiktok
}

// Publish uploads the first video item. TikTok finishes processing
// asynchronously, so success is reported as processing with the publish id.
func (tt *TikTok) Publish(ctx context.Context, cred Credential, req Request) Result {
	if cred.AccessToken == "" {
		return failed("credential", missingCredential("TikTok account has no access token"))
	}
	if len(req.Items) == 0 || !(req.Kind == models.MediaVideo || isVideo(req.Items[0])) {
		return failed("validate", invalidMedia("TikTok only supports video posts"))
	}

	item := req.Items[0]
	data := item.Data
	if !item.HasData() {
		if item.URL == "" {
			return failed("validate", invalidMedia("video has neither data nor URL"))
		}
		var e *Error
		if data, e = tt.t.download(ctx, item.URL); e != nil {
			tt.t.emit(ctx, events.PhaseUpload, "download", false, e.Error(), nil)
			return failed("download", e)
		}
	}

	started, e := tt.initUpload(ctx, cred, req.Title, int64(len(data)))
	if e != nil {
		tt.t.emit(ctx, events.PhaseInit, "init", false, e.Error(), nil)
		return failed("init", e)
	}
	tt.t.emit(ctx, events.PhaseInit, "init", true, "", map[string]any{"publish_id": started.Data.PublishID})

	if e := tt.uploadVideo(ctx, started.Data.UploadURL, data); e != nil {
		tt.t.emit(ctx, events.PhaseUpload, "upload", false, e.Error(), nil)
		return failed("upload", e)
	}
	tt.t.emit(ctx, events.PhaseUpload, "upload", true, "", map[string]any{"bytes": len(data)})

	return processing(started.Data.PublishID)
}

func (tt *TikTok) initUpload(ctx context.Context, cred Credential, title string, size int64) (*transfer.VideoInitResponse, *Error) {
	payload := transfer.VideoInitRequest{
		PostInfo: transfer.VideoPostInfo{
			Title:        truncateRunes(title, tiktokMaxTitle),
			PrivacyLevel: tt.privacy,
		},
		SourceInfo: transfer.VideoSourceInfo{
			Source:          "FILE_UPLOAD",
			VideoSize:       size,
			ChunkSize:       size,
			TotalChunkCount: 1,
		},
	}

	var out transfer.VideoInitResponse
	if e := tt.t.postJSON(ctx, tt.baseURL+"/v2/post/publish/video/init/", payload, &out, bearer(cred.AccessToken)); e != nil {
		return nil, e
	}
	if e := tiktokAPIError(out.Error); e != nil {
		return nil, e
	}
	if out.Data.PublishID == "" || out.Data.UploadURL == "" {
		return nil, &Error{Kind: KindException, Message: "TikTok init returned no upload URL"}
	}
	return &out, nil
}

func (tt *TikTok) uploadVideo(ctx context.Context, uploadURL string, data []byte) *Error {
	req, err := http.NewRequest(http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return exception(err)
	}
	n := len(data)
	req.ContentLength = int64(n)
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", n-1, n))

	return tt.t.call(ctx, tt.t.uploadTimeout, req, nil, http.StatusOK, http.StatusCreated)
}

func (tt *TikTok) CheckPublishStatus(ctx context.Context, cred Credential, publishID string) (*StatusReport, error) {
	if cred.AccessToken == "" {
		return nil, missingCredential("TikTok account has no access token")
	}
	if publishID == "" {
		return nil, invalidMedia("publish id is empty")
	}

	var out transfer.PublishStatusResponse
	payload := transfer.PublishStatusRequest{PublishID: publishID}
	if e := tt.t.postJSON(ctx, tt.baseURL+"/v2/post/publish/status/fetch/", payload, &out, bearer(cred.AccessToken)); e != nil {
		tt.t.emit(ctx, events.PhaseStatus, "status_fetch", false, e.Error(), nil)
		return nil, e
	}
	if e := tiktokAPIError(out.Error); e != nil {
		tt.t.emit(ctx, events.PhaseStatus, "status_fetch", false, e.Error(), nil)
		return nil, e
	}

	report := &StatusReport{
		ExternalID:  out.Data.VideoID,
		ExternalURL: out.Data.ShareURL,
		FailReason:  out.Data.FailReason,
	}
	switch out.Data.Status {
	case "PUBLISH_COMPLETE":
		report.State = PublishStatePublished
	case "FAILED":
		report.State = PublishStateFailed
	default:
		report.State = PublishStateProcessing
	}
	tt.t.emit(ctx, events.PhaseStatus, "status_fetch", true, out.Data.Status, nil)
	return report, nil
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

// tiktokAPIError treats any code other than "ok" as a rejection, even on a
// 200 response.
func tiktokAPIError(te transfer.TiktokError) *Error {
	if te.Code == "" || strings.EqualFold(te.Code, "ok") {
		return nil
	}
	return &Error{Kind: KindRejected, Code: te.Code, Message: te.Message}
}

func tiktokRejection(status int, body []byte) *Error {
	var env struct {
		Error transfer.TiktokError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		if e := tiktokAPIError(env.Error); e != nil {
			e.HTTPStatus = status
			return e
		}
	}
	return httpRejection(status, body)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
