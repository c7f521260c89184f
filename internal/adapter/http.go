package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/maheshrc27/postflow/internal/events"
	"github.com/maheshrc27/postflow/internal/transfer"
	"go.uber.org/ratelimit"
)

const (
	defaultMetadataTimeout = 30 * time.Second
	defaultUploadTimeout   = 300 * time.Second
	maxDetailLen           = 300
)

type Options struct {
	// BaseURL replaces the platform's API root, mainly for tests.
	BaseURL    string
	HTTPClient *http.Client
	// RateLimit caps outbound calls per second; zero means unlimited.
	RateLimit       int
	MetadataTimeout time.Duration
	UploadTimeout   time.Duration
	Events          events.Sink
}

type rejectionFunc func(status int, body []byte) *Error

type transport struct {
	client          *http.Client
	limiter         ratelimit.Limiter
	metadataTimeout time.Duration
	uploadTimeout   time.Duration
	sink            events.Sink
	reject          rejectionFunc
}

func newTransport(opts Options, reject rejectionFunc) *transport {
	t := &transport{
		client:          opts.HTTPClient,
		metadataTimeout: opts.MetadataTimeout,
		uploadTimeout:   opts.UploadTimeout,
		sink:            opts.Events,
		reject:          reject,
	}
	if t.client == nil {
		t.client = &http.Client{}
	}
	if t.metadataTimeout <= 0 {
		t.metadataTimeout = defaultMetadataTimeout
	}
	if t.uploadTimeout <= 0 {
		t.uploadTimeout = defaultUploadTimeout
	}
	if opts.RateLimit > 0 {
		t.limiter = ratelimit.New(opts.RateLimit)
	} else {
		t.limiter = ratelimit.NewUnlimited()
	}
	if t.reject == nil {
		t.reject = httpRejection
	}
	return t
}

func baseURLOr(opts Options, def string) string {
	if opts.BaseURL != "" {
		return strings.TrimRight(opts.BaseURL, "/")
	}
	return def
}

// send performs req within timeout and returns the status and full body.
func (t *transport) send(ctx context.Context, timeout time.Duration, req *http.Request) (int, []byte, *Error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t.limiter.Take()

	resp, err := t.client.Do(req.WithContext(ctx))
	if err != nil {
		return 0, nil, classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, classify(err)
	}
	return resp.StatusCode, body, nil
}

// call sends req and decodes a JSON body into out. Statuses outside accept
// (2xx when empty) go through the platform's rejection parser.
func (t *transport) call(ctx context.Context, timeout time.Duration, req *http.Request, out any, accept ...int) *Error {
	status, body, e := t.send(ctx, timeout, req)
	if e != nil {
		return e
	}
	if !accepted(status, accept) {
		return t.reject(status, body)
	}
	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return &Error{Kind: KindException, Message: fmt.Sprintf("decode response: %v", err)}
		}
	}
	return nil
}

func (t *transport) postJSON(ctx context.Context, url string, payload, out any, header http.Header) *Error {
	body, err := json.Marshal(payload)
	if err != nil {
		return exception(err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return exception(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	return t.call(ctx, t.metadataTimeout, req, out)
}

func (t *transport) getJSON(ctx context.Context, url string, out any) *Error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return exception(err)
	}
	return t.call(ctx, t.metadataTimeout, req, out)
}

// download fetches a media item that was handed over by URL only.
func (t *transport) download(ctx context.Context, url string) ([]byte, *Error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, invalidMedia("invalid media URL %q", url)
	}

	status, body, e := t.send(ctx, t.uploadTimeout, req)
	if e != nil {
		return nil, e
	}
	if status != http.StatusOK {
		return nil, &Error{Kind: KindHTTP, HTTPStatus: status, Message: "media download failed"}
	}
	if len(body) == 0 {
		return nil, invalidMedia("media at %s is empty", url)
	}
	return body, nil
}

func (t *transport) emit(ctx context.Context, phase events.Phase, step string, ok bool, detail string, attrs map[string]any) {
	events.Emit(ctx, t.sink, events.Event{Phase: phase, Step: step, OK: ok, Detail: detail, Attrs: attrs})
}

func accepted(status int, accept []int) bool {
	if len(accept) == 0 {
		return status >= 200 && status < 300
	}
	for _, s := range accept {
		if s == status {
			return true
		}
	}
	return false
}

func classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "request timed out"}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timed out"}
	}
	return &Error{Kind: KindException, Message: fmt.Sprintf("request failed: %v", err)}
}

func httpRejection(status int, body []byte) *Error {
	return &Error{Kind: KindHTTP, HTTPStatus: status, Message: snippet(body)}
}

// graphRejection reads the Graph API error envelope used by Facebook,
// Instagram and Threads.
func graphRejection(status int, body []byte) *Error {
	var ge transfer.GraphError
	if err := json.Unmarshal(body, &ge); err == nil && ge.Error != nil && ge.Error.Message != "" {
		msg := ge.Error.Message
		if ge.Error.ErrorUserMsg != "" {
			msg = msg + ": " + ge.Error.ErrorUserMsg
		}
		return &Error{Kind: KindRejected, HTTPStatus: status, Code: strconv.Itoa(ge.Error.Code), Message: msg}
	}
	return httpRejection(status, body)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxDetailLen {
		cut := maxDetailLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}
