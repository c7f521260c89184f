package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/adapter"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/templating"
	"golang.org/x/oauth2"
)

type fakePosts struct {
	mu          sync.Mutex
	posts       map[int64]*models.Post
	outcomes    map[int64]*models.Outcome
	rescheduled map[int64]time.Time
	getErr      error
}

func newFakePosts(posts ...*models.Post) *fakePosts {
	f := &fakePosts{
		posts:       map[int64]*models.Post{},
		outcomes:    map[int64]*models.Outcome{},
		rescheduled: map[int64]time.Time{},
	}
	for _, p := range posts {
		f.posts[p.ID] = p
	}
	return f
}

func (f *fakePosts) GetByID(_ context.Context, id int64) (*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.posts[id], nil
}

func (f *fakePosts) ListDue(context.Context, time.Time, int) ([]*models.Post, error) {
	return nil, nil
}

func (f *fakePosts) ListUpcoming(context.Context, time.Time, int) ([]*models.Post, error) {
	return nil, nil
}

func (f *fakePosts) Claim(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.posts[id]
	if p == nil || p.Status != models.PostStatusScheduled {
		return false, nil
	}
	p.Status = models.PostStatusPublishing
	return true, nil
}

func (f *fakePosts) SaveOutcome(_ context.Context, id int64, o *models.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.posts[id]
	if p == nil || p.Status != models.PostStatusPublishing {
		return repository.ErrStaleOutcome
	}
	f.outcomes[id] = o
	p.Status = o.Status
	return nil
}

func (f *fakePosts) Reschedule(_ context.Context, id int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.posts[id]
	if p == nil || p.Status != models.PostStatusFailed {
		return false, nil
	}
	p.Status = models.PostStatusScheduled
	p.ScheduledAt = &at
	f.rescheduled[id] = at
	return true, nil
}

type fakePages struct {
	mu       sync.Mutex
	pages    map[int64]*models.Page
	updates  map[int64]*models.TokenUpdate
	conflict *models.Page
	getErr   error
}

func newFakePages(pages ...*models.Page) *fakePages {
	f := &fakePages{pages: map[int64]*models.Page{}, updates: map[int64]*models.TokenUpdate{}}
	for _, p := range pages {
		f.pages[p.ID] = p
	}
	return f
}

func (f *fakePages) GetByID(_ context.Context, id int64) (*models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.pages[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePages) ListExpiring(_ context.Context, before time.Time) ([]*models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Page
	for _, p := range f.pages {
		if p.Platform == string(models.PlatformFacebook) {
			continue
		}
		if p.TokenExpiresAt != nil && p.TokenExpiresAt.Before(before) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// SetToken fails with ErrTokenConflict when conflict is set, after swapping
// the stored page for the conflicting one.
func (f *fakePages) SetToken(_ context.Context, id int64, old string, u *models.TokenUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflict != nil {
		f.pages[id] = f.conflict
		return repository.ErrTokenConflict
	}
	p := f.pages[id]
	if p == nil || p.AccessToken != old {
		return repository.ErrTokenConflict
	}
	f.updates[id] = u
	p.AccessToken = u.AccessToken
	if u.RefreshToken != "" {
		p.RefreshToken = u.RefreshToken
	}
	if u.TokenExpiresAt != nil {
		p.TokenExpiresAt = u.TokenExpiresAt
	}
	return nil
}

type fakeAdapter struct {
	kind    models.PlatformKind
	result  adapter.Result
	report  *adapter.StatusReport
	lastReq adapter.Request
	calls   int
}

func (a *fakeAdapter) Platform() models.PlatformKind { return a.kind }

func (a *fakeAdapter) Publish(_ context.Context, _ adapter.Credential, req adapter.Request) adapter.Result {
	a.calls++
	a.lastReq = req
	return a.result
}

type fakeCheckingAdapter struct {
	*fakeAdapter
}

func (a fakeCheckingAdapter) CheckPublishStatus(context.Context, adapter.Credential, string) (*adapter.StatusReport, error) {
	return a.report, nil
}

type fakeCreds struct {
	err error
}

func (c *fakeCreds) Resolve(_ context.Context, page *models.Page) (adapter.Credential, error) {
	if c.err != nil {
		return adapter.Credential{}, c.err
	}
	return adapter.Credential{PageID: page.ID, ExternalID: page.ExternalID, AccessToken: page.AccessToken}, nil
}

func (c *fakeCreds) Refresh(_ context.Context, page *models.Page) (*models.Page, error) {
	return page, nil
}

func (c *fakeCreds) RefreshExpiring(context.Context, time.Duration) (int, error) {
	return 0, nil
}

func (c *fakeCreds) SaveToken(context.Context, adapter.Credential, *oauth2.Token) error {
	return nil
}

type fakeMedia struct {
	items     []models.MediaItem
	kind      models.MediaKind
	err       error
	opts      *templating.Options
	data      []byte
	stagedURL string
	staged    [][]byte
}

func (m *fakeMedia) Resolve(context.Context, *models.Post) ([]models.MediaItem, models.MediaKind, error) {
	return m.items, m.kind, m.err
}

func (m *fakeMedia) Fetch(context.Context, models.MediaItem) ([]byte, error) {
	if m.data == nil {
		return nil, errors.New("no data")
	}
	return m.data, nil
}

func (m *fakeMedia) TemplateOptions(context.Context, int64, models.MediaKind) (*templating.Options, error) {
	return m.opts, nil
}

func (m *fakeMedia) Stage(_ context.Context, data []byte) (string, error) {
	m.staged = append(m.staged, data)
	if m.stagedURL == "" {
		return "", errors.New("no store")
	}
	return m.stagedURL, nil
}

// registryWith builds a registry where every platform not given is a fake
// that succeeds.
func registryWith(t interface{ Fatalf(string, ...any) }, adapters ...adapter.Adapter) *adapter.Registry {
	byKind := map[models.PlatformKind]adapter.Adapter{}
	for _, a := range adapters {
		byKind[a.Platform()] = a
	}
	all := make([]adapter.Adapter, 0, len(models.PlatformKinds))
	for _, kind := range models.PlatformKinds {
		if a, ok := byKind[kind]; ok {
			all = append(all, a)
			continue
		}
		all = append(all, &fakeAdapter{kind: kind, result: adapter.Result{Status: adapter.StatusOK}})
	}
	r, err := adapter.NewRegistry(all...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}
