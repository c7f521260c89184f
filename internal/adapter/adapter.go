// Package adapter holds one publisher per social platform behind a common
// contract. Adapters never touch the database; they turn a credential and
// media into a Result.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type Credential struct {
	PageID       int64
	ExternalID   string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

type Request struct {
	Title string
	Text  string
	Items []models.MediaItem
	Kind  models.MediaKind
}

type Adapter interface {
	Platform() models.PlatformKind
	Publish(ctx context.Context, cred Credential, req Request) Result
}

// StatusChecker is implemented by adapters whose publish completes on the
// platform's side after Publish returns.
type StatusChecker interface {
	CheckPublishStatus(ctx context.Context, cred Credential, jobID string) (*StatusReport, error)
}

type Status string

const (
	StatusOK         Status = "ok"
	StatusProcessing Status = "processing"
	StatusFailed     Status = "failed"
)

type ErrorKind string

const (
	KindMissingCredential ErrorKind = "missing_credential"
	KindInvalidMedia      ErrorKind = "invalid_media"
	KindHTTP              ErrorKind = "http_error"
	KindRejected          ErrorKind = "platform_rejected"
	KindTimeout           ErrorKind = "timeout"
	KindException         ErrorKind = "exception"
)

type Error struct {
	Kind       ErrorKind
	HTTPStatus int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		if e.Message != "" {
			return fmt.Sprintf("HTTP %d: %s", e.HTTPStatus, e.Message)
		}
		return fmt.Sprintf("HTTP %d", e.HTTPStatus)
	case KindRejected:
		if e.Code != "" {
			return fmt.Sprintf("%s (code %s)", e.Message, e.Code)
		}
		return e.Message
	default:
		return e.Message
	}
}

func missingCredential(msg string) *Error {
	return &Error{Kind: KindMissingCredential, Message: msg}
}

func invalidMedia(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidMedia, Message: fmt.Sprintf(format, args...)}
}

func exception(err error) *Error {
	return &Error{Kind: KindException, Message: err.Error()}
}

// Result is the outcome of one Publish call. Step names the phase that
// failed and is empty on success.
type Result struct {
	Status      Status
	ExternalID  string
	ExternalURL string
	JobID       string
	Step        string
	Err         *Error
}

func (r Result) OK() bool {
	return r.Status == StatusOK
}

func succeeded(id, url string) Result {
	return Result{Status: StatusOK, ExternalID: id, ExternalURL: url}
}

func processing(jobID string) Result {
	return Result{Status: StatusProcessing, JobID: jobID}
}

func failed(step string, err *Error) Result {
	return Result{Status: StatusFailed, Step: step, Err: err}
}

const (
	PublishStateProcessing = "PROCESSING"
	PublishStatePublished  = "PUBLISHED"
	PublishStateFailed     = "FAILED"
)

type StatusReport struct {
	State       string
	ExternalID  string
	ExternalURL string
	FailReason  string
}
