package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maheshrc27/postflow/internal/adapter"
	"github.com/maheshrc27/postflow/internal/events"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/maheshrc27/postflow/pkg/utils"
	"golang.org/x/oauth2"
)

const (
	tiktokTokenURL         = "https://open.tiktokapis.com/v2/oauth/token/"
	instagramRefreshURL    = "https://graph.instagram.com/refresh_access_token"
	threadsRefreshURL      = "https://graph.threads.net/refresh_access_token"
	defaultRefreshLimit    = 10
	defaultRefreshAhead    = 5 * time.Minute
	refreshRequestDeadline = 30 * time.Second
)

var ErrMissingCredential = errors.New("page has no usable credential")

type CredentialConfig struct {
	Google             *oauth2.Config
	TiktokClientKey    string
	TiktokClientSecret string

	TiktokTokenURL      string
	InstagramRefreshURL string
	ThreadsRefreshURL   string

	// RefreshThreshold is the remaining lifetime below which Resolve
	// refreshes a token first.
	RefreshThreshold time.Duration
	Concurrency      int
	HTTPClient       *http.Client
}

type CredentialService interface {
	Resolve(ctx context.Context, page *models.Page) (adapter.Credential, error)
	Refresh(ctx context.Context, page *models.Page) (*models.Page, error)
	RefreshExpiring(ctx context.Context, window time.Duration) (int, error)
	SaveToken(ctx context.Context, cred adapter.Credential, tok *oauth2.Token) error
}

type credentialService struct {
	cfg    CredentialConfig
	pages  repository.PageRepository
	cipher *utils.TokenCipher
	client *http.Client
	sink   events.Sink
}

func NewCredentialService(cfg CredentialConfig, pages repository.PageRepository, cipher *utils.TokenCipher, sink events.Sink) CredentialService {
	if cfg.TiktokTokenURL == "" {
		cfg.TiktokTokenURL = tiktokTokenURL
	}
	if cfg.InstagramRefreshURL == "" {
		cfg.InstagramRefreshURL = instagramRefreshURL
	}
	if cfg.ThreadsRefreshURL == "" {
		cfg.ThreadsRefreshURL = threadsRefreshURL
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = defaultRefreshAhead
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultRefreshLimit
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: refreshRequestDeadline}
	}

	return &credentialService{
		cfg:    cfg,
		pages:  pages,
		cipher: cipher,
		client: client,
		sink:   sink,
	}
}

// Resolve turns a stored page into a usable credential. TikTok, Instagram
// and Threads tokens close to expiry are refreshed first; YouTube refreshes
// inside its adapter.
func (s *credentialService) Resolve(ctx context.Context, page *models.Page) (adapter.Credential, error) {
	if page == nil || page.AccessToken == "" {
		return adapter.Credential{}, ErrMissingCredential
	}

	kind := models.PlatformKind(page.Platform)
	if refreshedBeforeUse(kind) && expiresWithin(page, time.Now(), s.cfg.RefreshThreshold) {
		refreshed, err := s.Refresh(ctx, page)
		switch {
		case err == nil:
			page = refreshed
		case page.TokenExpiresAt.Before(time.Now()):
			return adapter.Credential{}, fmt.Errorf("token expired and refresh failed: %w", err)
		default:
			slog.Warn("token refresh failed, using current token", "page_id", page.ID, "platform", page.Platform, "error", err)
		}
	}

	access, err := s.cipher.Open(page.AccessToken)
	if err != nil {
		return adapter.Credential{}, fmt.Errorf("open access token: %w", err)
	}
	if access == "" {
		return adapter.Credential{}, ErrMissingCredential
	}
	refresh, err := s.cipher.Open(page.RefreshToken)
	if err != nil {
		return adapter.Credential{}, fmt.Errorf("open refresh token: %w", err)
	}

	return adapter.Credential{
		PageID:       page.ID,
		ExternalID:   page.ExternalID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    page.TokenExpiresAt,
	}, nil
}

func refreshedBeforeUse(kind models.PlatformKind) bool {
	switch kind {
	case models.PlatformTiktok, models.PlatformInstagram, models.PlatformThreads:
		return true
	}
	return false
}

func expiresWithin(page *models.Page, now time.Time, d time.Duration) bool {
	return page.TokenExpiresAt != nil && page.TokenExpiresAt.Sub(now) < d
}

// Refresh obtains new tokens for page and stores them. When another refresher
// already replaced the token, the stored winner is returned instead.
func (s *credentialService) Refresh(ctx context.Context, page *models.Page) (*models.Page, error) {
	kind := models.PlatformKind(page.Platform)
	if kind == models.PlatformFacebook {
		return page, nil
	}

	access, err := s.cipher.Open(page.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.cipher.Open(page.RefreshToken)
	if err != nil {
		return nil, err
	}

	var update *models.TokenUpdate
	switch kind {
	case models.PlatformYoutube:
		update, err = s.refreshGoogle(ctx, refresh)
	case models.PlatformTiktok:
		update, err = s.refreshTiktok(ctx, refresh)
	case models.PlatformInstagram:
		update, err = s.refreshGraph(ctx, s.cfg.InstagramRefreshURL, "ig_refresh_token", access)
	case models.PlatformThreads:
		update, err = s.refreshGraph(ctx, s.cfg.ThreadsRefreshURL, "th_refresh_token", access)
	default:
		err = fmt.Errorf("unsupported platform %q", page.Platform)
	}

	s.emit(ctx, page, err)
	if err != nil {
		return nil, err
	}

	return s.persist(ctx, page, update)
}

func (s *credentialService) emit(ctx context.Context, page *models.Page, err error) {
	e := events.Event{Platform: page.Platform, Phase: events.PhaseRefresh, Step: "refresh_token", OK: err == nil,
		Attrs: map[string]any{"page_id": page.ID}}
	if err != nil {
		e.Detail = err.Error()
	}
	events.Emit(ctx, s.sink, e)
}

// persist seals update and writes it only if the stored token is still the
// one that was refreshed.
func (s *credentialService) persist(ctx context.Context, page *models.Page, update *models.TokenUpdate) (*models.Page, error) {
	sealedAccess, err := s.cipher.Seal(update.AccessToken)
	if err != nil {
		return nil, err
	}
	sealedRefresh, err := s.cipher.Seal(update.RefreshToken)
	if err != nil {
		return nil, err
	}

	sealed := &models.TokenUpdate{
		AccessToken:    sealedAccess,
		RefreshToken:   sealedRefresh,
		TokenExpiresAt: update.TokenExpiresAt,
	}

	err = s.pages.SetToken(ctx, page.ID, page.AccessToken, sealed)
	if errors.Is(err, repository.ErrTokenConflict) {
		winner, err := s.pages.GetByID(ctx, page.ID)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return nil, ErrMissingCredential
		}
		slog.Info("token refreshed concurrently, using stored token", "page_id", page.ID)
		return winner, nil
	}
	if err != nil {
		return nil, err
	}

	updated := *page
	updated.AccessToken = sealedAccess
	if sealedRefresh != "" {
		updated.RefreshToken = sealedRefresh
	}
	if update.TokenExpiresAt != nil {
		updated.TokenExpiresAt = update.TokenExpiresAt
	}
	return &updated, nil
}

// SaveToken persists a token the YouTube adapter refreshed on its own.
func (s *credentialService) SaveToken(ctx context.Context, cred adapter.Credential, tok *oauth2.Token) error {
	page, err := s.pages.GetByID(ctx, cred.PageID)
	if err != nil {
		return err
	}
	if page == nil {
		return ErrMissingCredential
	}

	update := &models.TokenUpdate{AccessToken: tok.AccessToken}
	if tok.RefreshToken != "" && tok.RefreshToken != cred.RefreshToken {
		update.RefreshToken = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		update.TokenExpiresAt = &expiry
	}

	_, err = s.persist(ctx, page, update)
	return err
}

// RefreshExpiring refreshes every page whose token expires within window,
// a bounded number at a time, and reports how many succeeded.
func (s *credentialService) RefreshExpiring(ctx context.Context, window time.Duration) (int, error) {
	pages, err := s.pages.ListExpiring(ctx, time.Now().Add(window))
	if err != nil {
		return 0, err
	}

	var (
		wg        sync.WaitGroup
		refreshed atomic.Int64
		semaphore = make(chan struct{}, s.cfg.Concurrency)
	)

	for _, page := range pages {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(page *models.Page) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if _, err := s.Refresh(ctx, page); err != nil {
				slog.Warn("unable to refresh token", "page_id", page.ID, "platform", page.Platform, "error", err)
				return
			}
			refreshed.Add(1)
		}(page)
	}

	wg.Wait()
	return int(refreshed.Load()), nil
}

func (s *credentialService) refreshGoogle(ctx context.Context, refreshToken string) (*models.TokenUpdate, error) {
	if s.cfg.Google == nil {
		return nil, errors.New("google oauth is not configured")
	}
	if refreshToken == "" {
		return nil, ErrMissingCredential
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	token, err := s.cfg.Google.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, err
	}

	update := &models.TokenUpdate{AccessToken: token.AccessToken}
	if token.RefreshToken != refreshToken {
		update.RefreshToken = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		update.TokenExpiresAt = &token.Expiry
	}
	return update, nil
}

func (s *credentialService) refreshTiktok(ctx context.Context, refreshToken string) (*models.TokenUpdate, error) {
	if refreshToken == "" {
		return nil, ErrMissingCredential
	}

	data := url.Values{}
	data.Set("client_key", s.cfg.TiktokClientKey)
	data.Set("client_secret", s.cfg.TiktokClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TiktokTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tokenResponse transfer.TiktokTokenResponse
	if err := s.doJSON(req, &tokenResponse); err != nil {
		return nil, err
	}
	if tokenResponse.Error != "" {
		return nil, fmt.Errorf("tiktok refresh: %s: %s", tokenResponse.Error, tokenResponse.ErrorDescription)
	}
	if tokenResponse.AccessToken == "" {
		return nil, errors.New("tiktok refresh returned no access token")
	}

	return &models.TokenUpdate{
		AccessToken:    tokenResponse.AccessToken,
		RefreshToken:   tokenResponse.RefreshToken,
		TokenExpiresAt: expiresAt(tokenResponse.ExpiresIn),
	}, nil
}

// refreshGraph extends an Instagram or Threads long-lived token, which is
// refreshed with itself rather than a separate refresh token.
func (s *credentialService) refreshGraph(ctx context.Context, endpoint, grantType, accessToken string) (*models.TokenUpdate, error) {
	q := url.Values{}
	q.Set("grant_type", grantType)
	q.Set("access_token", accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var token transfer.RefreshedToken
	if err := s.doJSON(req, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.New("refresh returned no access token")
	}

	return &models.TokenUpdate{
		AccessToken:    token.AccessToken,
		TokenExpiresAt: expiresAt(token.ExpiresIn),
	}, nil
}

func (s *credentialService) doJSON(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return json.Unmarshal(body, out)
}
