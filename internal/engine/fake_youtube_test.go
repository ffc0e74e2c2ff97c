package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeYouTube answers the subset of the Data API v3 the engine uses.
type fakeYouTube struct {
	mu        sync.Mutex
	validKeys map[string]bool
	quotaKeys map[string]bool
	handles   map[string]string // "@handle" → channel id
	usernames map[string]string
	channels  map[string]fakeChannel
	upcoming  map[string][]string // channel id → video ids
	videos    map[string]fakeVideo
	failNext  int            // answer 503 this many times first
	calls     map[string]int // resource → request count

	// When hold is set, requests signal arrived and then wait until hold is closed.
	hold    chan struct{}
	arrived chan string
}

type fakeChannel struct {
	Title    string
	ThumbURL string
}

type fakeVideo struct {
	ActualStart string
	ActualEnd   string
	Scheduled   string
}

func newFakeYouTube() *fakeYouTube {
	return &fakeYouTube{
		validKeys: map[string]bool{"good-key": true},
		quotaKeys: map[string]bool{},
		handles:   map[string]string{},
		usernames: map[string]string{},
		channels:  map[string]fakeChannel{},
		upcoming:  map[string][]string{},
		videos:    map[string]fakeVideo{},
		calls:     map[string]int{},
	}
}

func (f *fakeYouTube) callCount(resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[resource]
}

// holdRequests makes every following request block until the returned
// release func is called. Arrivals are reported by resource name.
func (f *fakeYouTube) holdRequests(t *testing.T) (arrived <-chan string, release func()) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = make(chan struct{})
	f.arrived = make(chan string, 64)
	var once sync.Once
	hold := f.hold
	release = func() { once.Do(func() { close(hold) }) }
	t.Cleanup(release)
	return f.arrived, release
}

func (f *fakeYouTube) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	f.mu.Lock()
	f.calls[resource]++
	hold, arrived := f.hold, f.arrived
	f.mu.Unlock()

	if hold != nil {
		arrived <- resource
		<-hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	key := q.Get("key")
	if key == "" {
		key = r.Header.Get("X-Goog-Api-Key")
	}

	if f.failNext > 0 {
		f.failNext--
		writeAPIError(w, http.StatusServiceUnavailable, "backendError", "Backend Error")
		return
	}
	if f.quotaKeys[key] {
		writeAPIError(w, http.StatusForbidden, "quotaExceeded", "The request cannot be completed because you have exceeded your quota.")
		return
	}
	if !f.validKeys[key] {
		writeAPIError(w, http.StatusBadRequest, "badRequest", "API key not valid. Please pass a valid API key.")
		return
	}

	items := []any{}
	switch resource {
	case "channels":
		switch {
		case q.Get("forHandle") != "":
			if id, ok := f.handles[q.Get("forHandle")]; ok {
				items = append(items, map[string]any{"id": id})
			}
		case q.Get("forUsername") != "":
			if id, ok := f.usernames[q.Get("forUsername")]; ok {
				items = append(items, map[string]any{"id": id})
			}
		default:
			for _, id := range multiParam(q["id"]) {
				ch, ok := f.channels[id]
				if !ok {
					continue
				}
				snippet := map[string]any{"title": ch.Title}
				if ch.ThumbURL != "" {
					snippet["thumbnails"] = map[string]any{
						"medium": map[string]any{"url": ch.ThumbURL, "width": 240, "height": 240},
					}
				}
				items = append(items, map[string]any{"id": id, "snippet": snippet})
			}
		}
	case "search":
		if q.Get("eventType") != "upcoming" {
			http.Error(w, "unexpected eventType", http.StatusBadRequest)
			return
		}
		for _, vid := range f.upcoming[q.Get("channelId")] {
			items = append(items, map[string]any{"id": map[string]any{"kind": "youtube#video", "videoId": vid}})
		}
	case "videos":
		for _, id := range multiParam(q["id"]) {
			v, ok := f.videos[id]
			if !ok {
				continue
			}
			details := map[string]any{}
			if v.ActualStart != "" {
				details["actualStartTime"] = v.ActualStart
			}
			if v.ActualEnd != "" {
				details["actualEndTime"] = v.ActualEnd
			}
			if v.Scheduled != "" {
				details["scheduledStartTime"] = v.Scheduled
			}
			items = append(items, map[string]any{"id": id, "liveStreamingDetails": details})
		}
	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"items": items})
}

// multiParam flattens repeated and comma-separated query values.
func multiParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func writeAPIError(w http.ResponseWriter, code int, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"errors":  []any{map[string]any{"message": message, "domain": "youtube", "reason": reason}},
		},
	})
}

// newTestYouTube points a fresh engine and cache at f.
func newTestYouTube(t *testing.T, f *fakeYouTube, mutate ...func(*Config)) *YouTube {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c := Config{
		YouTubeAPIKey:   "good-key",
		YouTubeEndpoint: srv.URL + "/",
		YouTubeQPS:      1000,
		YouTubeBurst:    1000,
		Retry:           RetryConfig{MaxRetries: 2, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2},
	}
	for _, m := range mutate {
		m(&c)
	}
	Init(c)
	InitCache("", 100, time.Minute)

	yt, err := NewYouTube(context.Background())
	require.NoError(t, err)
	return yt
}
