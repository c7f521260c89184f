package adapter

import (
	"context"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const threadsGraphURL = "https://graph.threads.net/v1.0"

const threadsNeedsURL = "Threads requires public media URL (HTTPS). Please provide valid URLs."

type Threads struct {
	api *containerAPI
}

func NewThreads(opts Options) *Threads {
	return &Threads{api: &containerAPI{
		name:        "Threads",
		baseURL:     baseURLOr(opts, threadsGraphURL),
		createEdge:  "threads",
		publishEdge: "threads_publish",
		fallbackURL: "https://www.threads.net/",
		textField:   "text",
		t:           newTransport(opts, graphRejection),
	}}
}

func (th *Threads) Platform() models.PlatformKind {
	return models.PlatformThreads
}

func (th *Threads) Publish(ctx context.Context, cred Credential, req Request) Result {
	if cred.AccessToken == "" {
		return failed("credential", missingCredential("Threads account has no access token"))
	}

	if e := publicURLs(req.Items, threadsNeedsURL); e != nil {
		return failed("validate", e)
	}

	switch items := req.Items; len(items) {
	case 0:
		if strings.TrimSpace(req.Text) == "" {
			return failed("validate", invalidMedia("nothing to publish"))
		}
		id, e := th.api.create(ctx, cred, transfer.ContainerRequest{MediaType: "TEXT", Text: req.Text}, "create_container")
		if e != nil {
			return failed("create_container", e)
		}
		return th.api.publish(ctx, cred, id, "publish_container")
	case 1:
		return th.api.single(ctx, cred, req.Text, items[0])
	default:
		return th.api.carousel(ctx, cred, req.Text, items)
	}
}
