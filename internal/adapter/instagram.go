package adapter

import (
	"context"

	"github.com/maheshrc27/postflow/internal/models"
)

const instagramGraphURL = "https://graph.facebook.com/v21.0"

const instagramNeedsURL = "Instagram requires public media URL (HTTPS). Please provide valid URLs."

type Instagram struct {
	api *containerAPI
}

func NewInstagram(opts Options) *Instagram {
	return &Instagram{api: &containerAPI{
		name:        "Instagram",
		baseURL:     baseURLOr(opts, instagramGraphURL),
		createEdge:  "media",
		publishEdge: "media_publish",
		fallbackURL: "https://www.instagram.com/",
		textField:   "caption",
		t:           newTransport(opts, graphRejection),
	}}
}

func (ig *Instagram) Platform() models.PlatformKind {
	return models.PlatformInstagram
}

func (ig *Instagram) Publish(ctx context.Context, cred Credential, req Request) Result {
	if cred.AccessToken == "" {
		return failed("credential", missingCredential("Instagram account has no access token"))
	}

	if len(req.Items) == 0 {
		return failed("validate", invalidMedia(instagramNeedsURL))
	}
	if e := publicURLs(req.Items, instagramNeedsURL); e != nil {
		return failed("validate", e)
	}

	if len(req.Items) == 1 {
		return ig.api.single(ctx, cred, req.Text, req.Items[0])
	}
	return ig.api.carousel(ctx, cred, req.Text, req.Items)
}
