package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeHorde struct {
	mu              sync.Mutex
	checksUntilDone int32
	checks          atomic.Int32
	submitStatus    int
	submitted       submitRequest
	apikey          string
	agent           string
	image           []byte
	mime            string
}

func (f *fakeHorde) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/generate/async", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("submit method = %s", r.Method)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.apikey = r.Header.Get("apikey")
		f.agent = r.Header.Get("Client-Agent")
		if f.submitStatus != 0 {
			w.WriteHeader(f.submitStatus)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&f.submitted)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"job-1"}`))
	})
	mux.HandleFunc("/api/v2/generate/check/job-1", func(w http.ResponseWriter, r *http.Request) {
		n := f.checks.Add(1)
		done := f.checksUntilDone > 0 && n >= f.checksUntilDone
		_ = json.NewEncoder(w).Encode(map[string]any{"done": done, "wait_time": 0})
	})
	mux.HandleFunc("/api/v2/generate/status/job-1", func(w http.ResponseWriter, r *http.Request) {
		gen := map[string]any{"img": base64.StdEncoding.EncodeToString(f.image)}
		if f.mime != "" {
			gen["mime"] = f.mime
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"generations": []any{gen}})
	})
	return mux
}

func newTestHorde(t *testing.T, f *fakeHorde, timeout time.Duration) (*HordeClient, ProgressStore) {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	store := NewMemoryProgressStore(time.Minute)
	c := NewHordeClient(HordeConfig{
		BaseURL:     srv.URL,
		Timeout:     timeout,
		MinInterval: time.Millisecond,
	}, store, zap.NewNop())
	return c, store
}

func TestHordeGenerateSuccess(t *testing.T) {
	f := &fakeHorde{checksUntilDone: 3, image: []byte("webp-bytes")}
	c, store := newTestHorde(t, f, time.Second)

	img, err := c.Generate(context.Background(), Request{Prompt: "a cute fox", Width: 500, Height: 2000}, "avatar-r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(img.Bytes) != "webp-bytes" || img.MIME != "image/webp" || img.ID != "job-1" {
		t.Fatalf("unexpected image: %+v", img)
	}
	if img.Polls != 3 {
		t.Fatalf("polls = %d, want 3", img.Polls)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.apikey != anonymousAPIKey {
		t.Fatalf("apikey = %q", f.apikey)
	}
	if !strings.Contains(f.agent, "StableHorde") {
		t.Fatalf("client agent = %q", f.agent)
	}
	p := f.submitted.Params
	if p.Width != 512 || p.Height != 1536 || p.Steps != 20 || p.CfgScale != 7 || p.SamplerName != "k_euler_a" || p.N != 1 {
		t.Fatalf("unexpected params: %+v", p)
	}
	if f.submitted.NSFW || !f.submitted.CensorNSFW {
		t.Fatalf("unexpected nsfw flags: %+v", f.submitted)
	}

	progress, ok, _ := store.Get(context.Background(), "avatar-r1")
	if !ok || progress.Status != StatusDone || progress.Polls != 3 || progress.ID != "job-1" {
		t.Fatalf("unexpected progress: %+v", progress)
	}
}

func TestHordeGenerateTimeout(t *testing.T) {
	f := &fakeHorde{checksUntilDone: 0}
	c, store := newTestHorde(t, f, 20*time.Millisecond)

	_, err := c.Generate(context.Background(), Request{Prompt: "x"}, "scene-r1")
	if !errors.Is(err, ErrJobTimeout) {
		t.Fatalf("err = %v, want ErrJobTimeout", err)
	}
	progress, ok, _ := store.Get(context.Background(), "scene-r1")
	if !ok || progress.Status != StatusError || progress.Message == "" {
		t.Fatalf("unexpected progress: %+v", progress)
	}
	if f.checks.Load() < 1 {
		t.Fatalf("expected at least one poll")
	}
}

func TestHordeSubmitFailure(t *testing.T) {
	f := &fakeHorde{submitStatus: http.StatusTooManyRequests}
	c, store := newTestHorde(t, f, time.Second)

	_, err := c.Generate(context.Background(), Request{Prompt: "x"}, "k")
	if err == nil || !strings.Contains(err.Error(), "status=429") {
		t.Fatalf("err = %v", err)
	}
	progress, _, _ := store.Get(context.Background(), "k")
	if progress.Status != StatusError {
		t.Fatalf("progress = %+v", progress)
	}
}

func TestHordeFetchKeepsMime(t *testing.T) {
	f := &fakeHorde{checksUntilDone: 1, image: []byte{1, 2, 3}, mime: "image/png"}
	c, _ := newTestHorde(t, f, time.Second)

	img, err := c.Fetch(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if img.MIME != "image/png" || len(img.Bytes) != 3 {
		t.Fatalf("unexpected image: %+v", img)
	}
}

func TestHordePollHonorsContext(t *testing.T) {
	f := &fakeHorde{}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()
	c := NewHordeClient(HordeConfig{BaseURL: srv.URL, Timeout: time.Minute, MinInterval: time.Minute}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Poll(ctx, "job-1", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestNormalizeSize(t *testing.T) {
	cases := map[int]int{0: 768, 10: 64, 95: 64, 96: 128, 768: 768, 800: 832, 5000: 1536, -3: 768}
	for in, want := range cases {
		if got := normalizeSize(in); got != want {
			t.Fatalf("normalizeSize(%d) = %d, want %d", in, got, want)
		}
	}
}
