package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/maheshrc27/postflow/internal/events"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const facebookGraphURL = "https://graph.facebook.com/v21.0"

type Facebook struct {
	baseURL string
	t       *transport
}

func NewFacebook(opts Options) *Facebook {
	return &Facebook{
		baseURL: baseURLOr(opts, facebookGraphURL),
		t:       newTransport(opts, graphRejection),
	}
}

func (f *Facebook) Platform() models.PlatformKind {
	return models.PlatformFacebook
}

func (f *Facebook) Publish(ctx context.Context, cred Credential, req Request) Result {
	if cred.AccessToken == "" {
		return failed("credential", missingCredential("Facebook page has no access token"))
	}

	var res Result
	switch {
	case len(req.Items) == 0:
		if strings.TrimSpace(req.Text) == "" {
			return failed("validate", invalidMedia("nothing to publish"))
		}
		res = f.postFeed(ctx, cred, req.Text)
	case req.Kind == models.MediaVideo && len(req.Items) > 1:
		return failed("validate", invalidMedia("Facebook publishes one video per post, got %d items", len(req.Items)))
	case req.Kind == models.MediaVideo:
		res = f.postVideo(ctx, cred, req.Text, req.Items[0])
	case len(req.Items) == 1:
		res = f.postPhoto(ctx, cred, req.Text, req.Items[0])
	default:
		for i, item := range req.Items {
			if isVideo(item) {
				return failed("validate", invalidMedia("Facebook multi-item posts take images only, media %d is a video", i+1))
			}
		}
		res = f.postAlbum(ctx, cred, req.Text, req.Items)
	}

	if res.OK() {
		res.ExternalURL = "https://www.facebook.com/" + res.ExternalID
		f.t.emit(ctx, events.PhasePublish, "", true, res.ExternalURL, nil)
	}
	return res
}

func (f *Facebook) postFeed(ctx context.Context, cred Credential, message string) Result {
	return f.feed(ctx, cred, transfer.FeedRequest{Message: message, AccessToken: cred.AccessToken}, "feed")
}

func (f *Facebook) feed(ctx context.Context, cred Credential, payload transfer.FeedRequest, step string) Result {
	var out transfer.GraphID
	if e := f.t.postJSON(ctx, fmt.Sprintf("%s/%s/feed", f.baseURL, cred.ExternalID), payload, &out, nil); e != nil {
		f.t.emit(ctx, events.PhasePublish, step, false, e.Error(), nil)
		return failed(step, e)
	}
	if out.ID == "" {
		return failed(step, &Error{Kind: KindException, Message: "Facebook returned no post id"})
	}
	return succeeded(out.ID, "")
}

func (f *Facebook) postPhoto(ctx context.Context, cred Credential, message string, item models.MediaItem) Result {
	fields := map[string]string{
		"message":      message,
		"access_token": cred.AccessToken,
		"published":    "true",
	}

	out, e := f.upload(ctx, cred, "photos", fields, item, "url", "image.jpg", "image/jpeg")
	if e != nil {
		f.t.emit(ctx, events.PhaseUpload, "upload_photo", false, e.Error(), nil)
		return failed("upload_photo", e)
	}

	id := out.PostID
	if id == "" {
		id = out.ID
	}
	return succeeded(id, "")
}

func (f *Facebook) postVideo(ctx context.Context, cred Credential, message string, item models.MediaItem) Result {
	fields := map[string]string{
		"description":  message,
		"access_token": cred.AccessToken,
		"published":    "true",
	}

	out, e := f.upload(ctx, cred, "videos", fields, item, "file_url", "video.mp4", "video/mp4")
	if e != nil {
		f.t.emit(ctx, events.PhaseUpload, "upload_video", false, e.Error(), nil)
		return failed("upload_video", e)
	}
	return succeeded(out.ID, "")
}

// postAlbum uploads every image unpublished, then creates one feed post
// referencing all of them.
func (f *Facebook) postAlbum(ctx context.Context, cred Credential, message string, items []models.MediaItem) Result {
	attached := make([]transfer.AttachedMedia, 0, len(items))

	for i, item := range items {
		fields := map[string]string{
			"access_token": cred.AccessToken,
			"published":    "false",
		}

		out, e := f.upload(ctx, cred, "photos", fields, item, "url", "image.jpg", "image/jpeg")
		if e != nil {
			e.Message = fmt.Sprintf("image %d: %s", i+1, e.Message)
			f.t.emit(ctx, events.PhaseUpload, "upload_album_item", false, e.Error(), map[string]any{"index": i})
			return failed("upload_album_item", e)
		}
		attached = append(attached, transfer.AttachedMedia{MediaFbid: out.ID})
		f.t.emit(ctx, events.PhaseUpload, "upload_album_item", true, "", map[string]any{"index": i})
	}

	return f.feed(ctx, cred, transfer.FeedRequest{
		Message:       message,
		AttachedMedia: attached,
		AccessToken:   cred.AccessToken,
	}, "album_feed")
}

// upload sends item as multipart when bytes are present, otherwise lets
// Facebook pull it from its URL.
func (f *Facebook) upload(ctx context.Context, cred Credential, edge string, fields map[string]string,
	item models.MediaItem, urlField, fileName, contentType string) (*transfer.GraphID, *Error) {

	endpoint := fmt.Sprintf("%s/%s/%s", f.baseURL, cred.ExternalID, edge)

	var (
		req *http.Request
		err error
	)
	switch {
	case item.HasData():
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		for k, v := range fields {
			if err := w.WriteField(k, v); err != nil {
				return nil, exception(err)
			}
		}
		part, err := createFilePart(w, "source", fileName, contentType)
		if err != nil {
			return nil, exception(err)
		}
		if _, err := part.Write(item.Data); err != nil {
			return nil, exception(err)
		}
		if err := w.Close(); err != nil {
			return nil, exception(err)
		}

		req, err = http.NewRequest(http.MethodPost, endpoint, &body)
		if err != nil {
			return nil, exception(err)
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
	case item.URL != "":
		form := url.Values{}
		for k, v := range fields {
			form.Set(k, v)
		}
		form.Set(urlField, item.URL)

		req, err = http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, exception(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		return nil, invalidMedia("media item has neither data nor URL")
	}

	var out transfer.GraphID
	if e := f.t.call(ctx, f.t.uploadTimeout, req, &out); e != nil {
		return nil, e
	}
	if out.ID == "" {
		return nil, &Error{Kind: KindException, Message: "Facebook returned no media id"}
	}
	return &out, nil
}

func createFilePart(w *multipart.Writer, field, fileName, contentType string) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, fileName))
	h.Set("Content-Type", contentType)
	return w.CreatePart(h)
}
