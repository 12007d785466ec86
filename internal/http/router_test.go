package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mbti-story/internal/domain"
	"mbti-story/internal/imagegen"
	"mbti-story/internal/llm"
	"mbti-story/internal/metrics"
	"mbti-story/internal/repository"
	"mbti-story/internal/scoring"
	"mbti-story/internal/service"
)

type countingProvider struct {
	calls atomic.Int32
}

func (p *countingProvider) Generate(context.Context, imagegen.Request, string) (imagegen.Image, error) {
	p.calls.Add(1)
	return imagegen.Image{}, errors.New("provider should not be called")
}

type testServer struct {
	router   *gin.Engine
	results  *repository.MemoryResultRepository
	progress imagegen.ProgressStore
	provider *countingProvider
}

func setupRouter(t *testing.T, gen llm.Generator) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	m := metrics.New()

	sessRepo := repository.NewMemorySessionRepository()
	results := repository.NewMemoryResultRepository()
	progress := imagegen.NewMemoryProgressStore(time.Minute)
	provider := &countingProvider{}

	sessions := service.NewSessionService(sessRepo, logger)
	chat := service.NewChatService(sessions, gen, m, logger)
	resultSvc := service.NewResultService(sessions, results, gen, m, logger)
	detailSvc := service.NewDetailService(scoring.DefaultCatalog(), sessions, results, gen, m, logger)
	images := service.NewImageService(results, provider, progress, m, logger)

	r := NewRouter(RouterConfig{
		Logger:      logger,
		Metrics:     m,
		CORSOrigins: []string{"*"},
		Chat:        NewChatHandler(logger, sessions, chat),
		Result:      NewResultHandler(logger, resultSvc, detailSvc),
		Image:       NewImageHandler(logger, images, progress),
		Health: NewHealthHandler(logger, "memory", map[string]Pinger{
			"database": PingFunc(func(context.Context) error { return nil }),
		}),
	})
	return testServer{router: r, results: results, progress: progress, provider: provider}
}

func performRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func degraded() llm.Generator {
	return llm.StaticGenerator{Text: llm.GenericReply, Provider: llm.ProviderLastResort}
}

func TestCreateSession(t *testing.T) {
	srv := setupRouter(t, degraded())
	rec := performRequest(srv.router, http.MethodPost, "/session", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	var body struct {
		ID        string    `json:"id"`
		StartedAt time.Time `json:"startedAt"`
	}
	decode(t, rec, &body)
	if body.ID == "" || body.StartedAt.IsZero() {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestChatValidation(t *testing.T) {
	srv := setupRouter(t, degraded())

	rec := performRequest(srv.router, http.MethodPost, "/chat", map[string]string{"content": "hola"})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "sessionId is required") {
		t.Fatalf("expected sessionId error, got %d %s", rec.Code, rec.Body.String())
	}
	rec = performRequest(srv.router, http.MethodPost, "/chat?sessionId=s1", map[string]string{"content": "  "})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "content is required") {
		t.Fatalf("expected content error, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestChatThenResultFlow(t *testing.T) {
	srv := setupRouter(t, degraded())

	var last service.ChatReply
	for i := 0; i < 4; i++ {
		rec := performRequest(srv.router, http.MethodPost, "/chat?sessionId=s1", map[string]string{"content": "ひとりで静かに過ごしたい"})
		if rec.Code != http.StatusOK {
			t.Fatalf("turn %d: expected 200, got %d", i, rec.Code)
		}
		decode(t, rec, &last)
	}
	if !last.Done || !last.LLMFallback {
		t.Fatalf("expected done with fallback flag, got %+v", last)
	}

	rec := performRequest(srv.router, http.MethodGet, "/result?sessionId=s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var res struct {
		ResultID string            `json:"result_id"`
		Type     string            `json:"type"`
		Meta     map[string]string `json:"_meta"`
	}
	decode(t, rec, &res)
	if res.ResultID == "" || len(res.Type) != 4 || res.Meta["story"] == "" {
		t.Fatalf("unexpected result %s", rec.Body.String())
	}

	rec = performRequest(srv.router, http.MethodGet, "/result/"+res.ResultID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected lookup by result id, got %d", rec.Code)
	}
	rec = performRequest(srv.router, http.MethodGet, "/history/mbti", nil)
	var history struct {
		Items []domain.MBTIResult `json:"items"`
	}
	decode(t, rec, &history)
	if len(history.Items) != 1 || history.Items[0].ResultID != res.ResultID {
		t.Fatalf("unexpected history %s", rec.Body.String())
	}
}

func TestResultNotFound(t *testing.T) {
	srv := setupRouter(t, degraded())
	if rec := performRequest(srv.router, http.MethodGet, "/result?sessionId=nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}
	if rec := performRequest(srv.router, http.MethodGet, "/result/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown result, got %d", rec.Code)
	}
	if rec := performRequest(srv.router, http.MethodGet, "/result", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without sessionId, got %d", rec.Code)
	}
}

func TestDiagnoseDetailAndLookup(t *testing.T) {
	srv := setupRouter(t, degraded())
	five := 5
	rec := performRequest(srv.router, http.MethodPost, "/diagnose/detail", map[string]any{
		"answers": []domain.Answer{{QuestionID: "A1", Score: &five}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var body service.DetailResponse
	decode(t, rec, &body)
	if body.SessionID == "" || body.Result.MBTIType != "ESTJ" || body.Result.Supplements.Adaptability != 50 {
		t.Fatalf("unexpected detail %s", rec.Body.String())
	}

	rec = performRequest(srv.router, http.MethodGet, "/detail/"+body.Result.ResultID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected detail lookup 200, got %d", rec.Code)
	}
	rec = performRequest(srv.router, http.MethodGet, "/history/detail?limit=500", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), body.Result.ResultID) {
		t.Fatalf("unexpected history %d %s", rec.Code, rec.Body.String())
	}
}

func TestDiagnoseDetailMalformedBody(t *testing.T) {
	srv := setupRouter(t, degraded())
	req := httptest.NewRequest(http.MethodPost, "/diagnose/detail?sessionId=s9", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected malformed body to be treated as empty, got %d", rec.Code)
	}
}

func TestQuestionsDetail(t *testing.T) {
	srv := setupRouter(t, degraded())
	rec := performRequest(srv.router, http.MethodGet, "/questions/detail", nil)
	var body struct {
		Questions []domain.Question `json:"questions"`
	}
	decode(t, rec, &body)
	if len(body.Questions) != 31 || body.Questions[0].ID != "A1" {
		t.Fatalf("unexpected questions %d", len(body.Questions))
	}
}

func TestImageAvatarServesCachedDataURL(t *testing.T) {
	srv := setupRouter(t, degraded())
	_, _ = srv.results.SaveMBTI(context.Background(), domain.MBTIResult{
		SessionID: "s1",
		ResultID:  "r1",
		Type:      "INFP",
		AvatarURL: imagegen.EncodeDataURL("image/webp", []byte("webp-bytes")),
		CreatedAt: time.Now(),
	})

	rec := performRequest(srv.router, http.MethodGet, "/image/avatar?id=r1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "image/webp" || rec.Body.String() != "webp-bytes" {
		t.Fatalf("expected cached bytes, got %q %q", rec.Header().Get("Content-Type"), rec.Body.String())
	}
	if srv.provider.calls.Load() != 0 {
		t.Fatalf("provider must not be contacted for cached images")
	}
}

func TestImageSceneFallsBackToPlaceholder(t *testing.T) {
	srv := setupRouter(t, degraded())
	rec := performRequest(srv.router, http.MethodGet, "/image/scene?type=enfp&title=%E6%83%85%E7%86%B1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("provider failures must not surface, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != imagegen.SVGContentType || !strings.Contains(rec.Body.String(), "<svg") {
		t.Fatalf("expected svg placeholder, got %q", rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("X-Image-Source") != "placeholder" {
		t.Fatalf("unexpected source header %q", rec.Header().Get("X-Image-Source"))
	}
}

func TestImageProgress(t *testing.T) {
	srv := setupRouter(t, degraded())

	rec := performRequest(srv.router, http.MethodGet, "/image/progress", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key, got %d", rec.Code)
	}

	rec = performRequest(srv.router, http.MethodGet, "/image/progress?key=unknown", nil)
	var p imagegen.Progress
	decode(t, rec, &p)
	if p.Status != imagegen.StatusIdle || rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected idle no-store, got %+v %q", p, rec.Header().Get("Cache-Control"))
	}

	_ = srv.progress.Set(context.Background(), "k1", imagegen.Progress{Status: imagegen.StatusChecking, ID: "job", Polls: 2})
	rec = performRequest(srv.router, http.MethodGet, "/image/progress?key=k1", nil)
	decode(t, rec, &p)
	if p.Status != imagegen.StatusChecking || p.Polls != 2 {
		t.Fatalf("unexpected progress %+v", p)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	srv := setupRouter(t, degraded())
	rec := performRequest(srv.router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected healthz %d %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(srv.router, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "mbti_story_http_requests_total") {
		t.Fatalf("expected http metrics in exposition, got %d", rec.Code)
	}
}
