package adapter

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/maheshrc27/postflow/internal/events"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	minCarouselItems = 2
	maxCarouselItems = 10
)

// containerAPI is the two-phase create/publish protocol shared by Instagram
// and Threads: a container is created from public URLs, then published.
type containerAPI struct {
	name        string
	baseURL     string
	createEdge  string
	publishEdge string
	fallbackURL string
	// Threads names the post body "text", Instagram "caption".
	textField string
	t         *transport
}

func (c *containerAPI) create(ctx context.Context, cred Credential, payload transfer.ContainerRequest, step string) (string, *Error) {
	payload.AccessToken = cred.AccessToken

	var out transfer.GraphID
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, cred.ExternalID, c.createEdge)
	if e := c.t.postJSON(ctx, endpoint, payload, &out, nil); e != nil {
		c.t.emit(ctx, events.PhaseInit, step, false, e.Error(), nil)
		return "", e
	}
	if out.ID == "" {
		return "", &Error{Kind: KindException, Message: fmt.Sprintf("%s returned no container id", c.name)}
	}
	c.t.emit(ctx, events.PhaseInit, step, true, "", map[string]any{"container_id": out.ID})
	return out.ID, nil
}

func (c *containerAPI) publish(ctx context.Context, cred Credential, containerID, step string) Result {
	var out transfer.GraphID
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, cred.ExternalID, c.publishEdge)
	payload := transfer.PublishRequest{CreationID: containerID, AccessToken: cred.AccessToken}

	if e := c.t.postJSON(ctx, endpoint, payload, &out, nil); e != nil {
		c.t.emit(ctx, events.PhasePublish, step, false, e.Error(), nil)
		return failed(step, e)
	}
	if out.ID == "" {
		return failed(step, &Error{Kind: KindException, Message: fmt.Sprintf("%s returned no media id", c.name)})
	}

	link := c.permalink(ctx, cred, out.ID)
	c.t.emit(ctx, events.PhasePublish, step, true, link, nil)
	return succeeded(out.ID, link)
}

// permalink is best effort; any failure yields the platform's home URL.
func (c *containerAPI) permalink(ctx context.Context, cred Credential, mediaID string) string {
	q := url.Values{}
	q.Set("fields", "permalink")
	q.Set("access_token", cred.AccessToken)

	var out transfer.Permalink
	if e := c.t.getJSON(ctx, fmt.Sprintf("%s/%s?%s", c.baseURL, mediaID, q.Encode()), &out); e != nil || out.Permalink == "" {
		return c.fallbackURL
	}
	return out.Permalink
}

func (c *containerAPI) single(ctx context.Context, cred Credential, text string, item models.MediaItem) Result {
	payload := c.withText(transfer.ContainerRequest{}, text)
	if isVideo(item) {
		payload.MediaType = "VIDEO"
		payload.VideoURL = item.URL
	} else {
		payload.MediaType = c.imageType()
		payload.ImageURL = item.URL
	}

	id, e := c.create(ctx, cred, payload, "create_container")
	if e != nil {
		return failed("create_container", e)
	}
	return c.publish(ctx, cred, id, "publish_container")
}

func (c *containerAPI) carousel(ctx context.Context, cred Credential, text string, items []models.MediaItem) Result {
	if len(items) < minCarouselItems || len(items) > maxCarouselItems {
		return failed("validate", invalidMedia("%s carousel needs %d-%d items, got %d",
			c.name, minCarouselItems, maxCarouselItems, len(items)))
	}

	children := make([]string, 0, len(items))
	for i, item := range items {
		payload := transfer.ContainerRequest{IsCarouselItem: true}
		if isVideo(item) {
			payload.MediaType = "VIDEO"
			payload.VideoURL = item.URL
		} else {
			payload.MediaType = c.imageType()
			payload.ImageURL = item.URL
		}

		id, e := c.create(ctx, cred, payload, "create_item_container")
		if e != nil {
			e.Message = fmt.Sprintf("item %d: %s", i+1, e.Message)
			return failed("create_item_container", e)
		}
		children = append(children, id)
	}

	parent := c.withText(transfer.ContainerRequest{
		MediaType: "CAROUSEL",
		Children:  strings.Join(children, ","),
	}, text)

	id, e := c.create(ctx, cred, parent, "create_carousel_container")
	if e != nil {
		return failed("create_carousel_container", e)
	}
	return c.publish(ctx, cred, id, "publish_carousel")
}

func (c *containerAPI) withText(p transfer.ContainerRequest, text string) transfer.ContainerRequest {
	if c.textField == "text" {
		p.Text = text
	} else {
		p.Caption = text
	}
	return p
}

// imageType is empty for Instagram, which infers images from image_url.
func (c *containerAPI) imageType() string {
	if c.textField == "text" {
		return "IMAGE"
	}
	return ""
}

// publicURLs fails when any item lacks a public HTTPS URL; items carried
// only as bytes cannot be pulled by the platform.
func publicURLs(items []models.MediaItem, needsURL string) *Error {
	for i, item := range items {
		if item.URL == "" {
			return invalidMedia("%s (media %d has no URL)", needsURL, i+1)
		}
		u, err := url.Parse(item.URL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return invalidMedia("%s (media %d is not a public HTTPS URL)", needsURL, i+1)
		}
	}
	return nil
}

func isVideo(item models.MediaItem) bool {
	if item.Kind == models.MediaVideo {
		return true
	}
	u, err := url.Parse(item.URL)
	if err != nil {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".mp4", ".mov", ".avi":
		return true
	}
	return false
}
