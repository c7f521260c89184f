package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var igCred = Credential{PageID: 2, ExternalID: "ig1", AccessToken: "tok"}

func TestInstagram_NoPublicURL(t *testing.T) {
	var calls int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	ig := NewInstagram(Options{BaseURL: srv.URL})
	res := ig.Publish(context.Background(), igCred, Request{
		Text:  "no urls",
		Items: []models.MediaItem{{Data: []byte{1}}},
	})

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "validate", res.Step)
	assert.Equal(t, KindInvalidMedia, res.Err.Kind)
	assert.Contains(t, res.Err.Message, "Instagram requires public media URL (HTTPS)")
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestInstagram_BytesOnlyItemFailsWholePost(t *testing.T) {
	tenURLs := make([]models.MediaItem, 10)
	for i := range tenURLs {
		tenURLs[i] = models.MediaItem{URL: fmt.Sprintf("https://cdn.example.com/%d.jpg", i)}
	}

	tests := []struct {
		name  string
		items []models.MediaItem
		want  string
	}{
		{
			name:  "url then bytes",
			items: []models.MediaItem{{URL: "https://cdn.example.com/a.jpg"}, {Data: []byte{1, 2, 3}}},
			want:  "media 2 has no URL",
		},
		{
			name:  "ten urls and one bytes item",
			items: append(append([]models.MediaItem{}, tenURLs...), models.MediaItem{Data: []byte{1}}),
			want:  "media 11 has no URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
			})

			ig := NewInstagram(Options{BaseURL: srv.URL})
			res := ig.Publish(context.Background(), igCred, Request{Items: tt.items})

			assert.Equal(t, StatusFailed, res.Status)
			assert.Equal(t, "validate", res.Step)
			assert.Equal(t, KindInvalidMedia, res.Err.Kind)
			assert.Contains(t, res.Err.Message, "requires public media URL")
			assert.Contains(t, res.Err.Message, tt.want)
			assert.Zero(t, atomic.LoadInt32(&calls))
		})
	}
}

func TestInstagram_SingleImage(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/ig1/media":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "https://cdn.example.com/a.jpg", body["image_url"])
			assert.Equal(t, "hi", body["caption"])
			assert.NotContains(t, body, "media_type")
			writeJSON(w, http.StatusOK, map[string]string{"id": "c1"})
		case r.Method == http.MethodPost && r.URL.Path == "/ig1/media_publish":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "c1", body["creation_id"])
			writeJSON(w, http.StatusOK, map[string]string{"id": "m1"})
		case r.Method == http.MethodGet && r.URL.Path == "/m1":
			assert.Equal(t, "permalink", r.URL.Query().Get("fields"))
			writeJSON(w, http.StatusOK, map[string]string{"permalink": "https://www.instagram.com/p/abc/"})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	ig := NewInstagram(Options{BaseURL: srv.URL})
	res := ig.Publish(context.Background(), igCred, Request{
		Text:  "hi",
		Items: []models.MediaItem{{URL: "https://cdn.example.com/a.jpg"}},
	})

	require.True(t, res.OK(), "%+v", res.Err)
	assert.Equal(t, "m1", res.ExternalID)
	assert.Equal(t, "https://www.instagram.com/p/abc/", res.ExternalURL)
}

func TestInstagram_VideoByExtensionAndPermalinkFallback(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ig1/media":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "VIDEO", body["media_type"])
			assert.Equal(t, "https://cdn.example.com/clip.MOV", body["video_url"])
			writeJSON(w, http.StatusOK, map[string]string{"id": "c1"})
		case "/ig1/media_publish":
			writeJSON(w, http.StatusOK, map[string]string{"id": "m2"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	ig := NewInstagram(Options{BaseURL: srv.URL})
	res := ig.Publish(context.Background(), igCred, Request{
		Items: []models.MediaItem{{URL: "https://cdn.example.com/clip.MOV"}},
	})

	require.True(t, res.OK())
	assert.Equal(t, "https://www.instagram.com/", res.ExternalURL)
}

func TestInstagram_Carousel(t *testing.T) {
	var items int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ig1/media":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["media_type"] == "CAROUSEL" {
				assert.Equal(t, "item1,item2,item3", body["children"])
				assert.Equal(t, "three", body["caption"])
				writeJSON(w, http.StatusOK, map[string]string{"id": "parent"})
				return
			}
			assert.Equal(t, true, body["is_carousel_item"])
			n := atomic.AddInt32(&items, 1)
			writeJSON(w, http.StatusOK, map[string]string{"id": fmt.Sprintf("item%d", n)})
		case "/ig1/media_publish":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "parent", body["creation_id"])
			writeJSON(w, http.StatusOK, map[string]string{"id": "m3"})
		default:
			writeJSON(w, http.StatusOK, map[string]string{"permalink": "https://www.instagram.com/p/c/"})
		}
	})

	ig := NewInstagram(Options{BaseURL: srv.URL})
	res := ig.Publish(context.Background(), igCred, Request{
		Text: "three",
		Items: []models.MediaItem{
			{URL: "https://cdn.example.com/1.jpg"},
			{URL: "https://cdn.example.com/2.mp4"},
			{URL: "https://cdn.example.com/3.png"},
		},
	})

	require.True(t, res.OK(), "%+v", res.Err)
	assert.Equal(t, "m3", res.ExternalID)
	assert.EqualValues(t, 3, atomic.LoadInt32(&items))
}

func TestInstagram_CarouselBoundsCheckedBeforeCalls(t *testing.T) {
	var calls int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	items := make([]models.MediaItem, 11)
	for i := range items {
		items[i] = models.MediaItem{URL: fmt.Sprintf("https://cdn.example.com/%d.jpg", i)}
	}

	ig := NewInstagram(Options{BaseURL: srv.URL})
	res := ig.Publish(context.Background(), igCred, Request{Items: items})

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "validate", res.Step)
	assert.Equal(t, KindInvalidMedia, res.Err.Kind)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestInstagram_ContainerRejected(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"message": "Media download has failed", "code": 9004},
		})
	})

	ig := NewInstagram(Options{BaseURL: srv.URL})
	res := ig.Publish(context.Background(), igCred, Request{
		Items: []models.MediaItem{{URL: "https://cdn.example.com/a.jpg"}},
	})

	assert.Equal(t, "create_container", res.Step)
	assert.Equal(t, KindRejected, res.Err.Kind)
	assert.Equal(t, "9004", res.Err.Code)
}

func TestThreads_TextOnly(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/th1/threads":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "TEXT", body["media_type"])
			assert.Equal(t, "just words", body["text"])
			assert.NotContains(t, body, "caption")
			writeJSON(w, http.StatusOK, map[string]string{"id": "c1"})
		case "/th1/threads_publish":
			writeJSON(w, http.StatusOK, map[string]string{"id": "t1"})
		default:
			writeJSON(w, http.StatusOK, map[string]string{"permalink": "https://www.threads.net/@me/post/t1"})
		}
	})

	th := NewThreads(Options{BaseURL: srv.URL})
	res := th.Publish(context.Background(), Credential{ExternalID: "th1", AccessToken: "tok"}, Request{Text: "just words"})

	require.True(t, res.OK(), "%+v", res.Err)
	assert.Equal(t, "t1", res.ExternalID)
	assert.True(t, strings.HasPrefix(res.ExternalURL, "https://www.threads.net/"))
}

func TestThreads_ImageUsesImageType(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/th1/threads":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "IMAGE", body["media_type"])
			assert.Equal(t, "look", body["text"])
			writeJSON(w, http.StatusOK, map[string]string{"id": "c1"})
		case "/th1/threads_publish":
			writeJSON(w, http.StatusOK, map[string]string{"id": "t2"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	th := NewThreads(Options{BaseURL: srv.URL})
	res := th.Publish(context.Background(), Credential{ExternalID: "th1", AccessToken: "tok"}, Request{
		Text:  "look",
		Items: []models.MediaItem{{URL: "https://cdn.example.com/a.jpg", Kind: models.MediaImage}},
	})

	require.True(t, res.OK())
	assert.Equal(t, "https://www.threads.net/", res.ExternalURL)
}

func TestThreads_RejectsPlainHTTP(t *testing.T) {
	th := NewThreads(Options{BaseURL: "http://127.0.0.1:1"})
	res := th.Publish(context.Background(), Credential{ExternalID: "th1", AccessToken: "tok"}, Request{
		Items: []models.MediaItem{{URL: "http://cdn.example.com/a.jpg"}},
	})

	assert.Equal(t, "validate", res.Step)
	assert.Equal(t, KindInvalidMedia, res.Err.Kind)
}

func TestThreads_BytesOnlyItemFailsWholePost(t *testing.T) {
	var calls int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	th := NewThreads(Options{BaseURL: srv.URL})
	res := th.Publish(context.Background(), Credential{ExternalID: "th1", AccessToken: "tok"}, Request{
		Text:  "mixed",
		Items: []models.MediaItem{{URL: "https://cdn.example.com/a.jpg"}, {Data: []byte{9}}},
	})

	assert.Equal(t, "validate", res.Step)
	assert.Equal(t, KindInvalidMedia, res.Err.Kind)
	assert.Contains(t, res.Err.Message, "Threads requires public media URL")
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestIsVideo(t *testing.T) {
	assert.True(t, isVideo(models.MediaItem{Kind: models.MediaVideo}))
	assert.True(t, isVideo(models.MediaItem{URL: "https://x.io/a.avi?sig=1"}))
	assert.False(t, isVideo(models.MediaItem{URL: "https://x.io/a.jpg"}))
}
