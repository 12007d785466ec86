package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"mbti-story/internal/domain"
	"mbti-story/internal/llm"
	"mbti-story/internal/repository"
	"mbti-story/internal/scoring"
)

func seedSession(t *testing.T, repo *repository.MemorySessionRepository, id string, userLines ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := repo.Ensure(ctx, id, time.Now()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for i, line := range userLines {
		msg := domain.Message{ID: id + "-" + string(rune('a'+i)), SessionID: id, Role: domain.RoleUser, Content: line, CreatedAt: time.Now()}
		if err := repo.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestResultServiceBuild_UsesProviderOutputs(t *testing.T) {
	sessions, sessRepo := newTestSessions()
	seedSession(t, sessRepo, "s1", "ひとりの時間が好き")
	client := &llm.MockClient{Responses: []string{
		"```json\n{\"E/I\":\"I\",\"S/N\":\"N\",\"T/F\":\"F\",\"J/P\":\"P\"}\n```",
		"- 想像力が豊か",
		"- 内省的な発言",
		"- 休息を大切に",
		"朝の光の中で、あなたは歩き出す。",
		`{"strengths":"共感力","cautions":"抱え込み","advice":"相談する"}`,
	}}
	results := repository.NewMemoryResultRepository()
	svc := NewResultService(sessions, results, chainWith(client), nil, zap.NewNop())

	res, err := svc.Build(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if res.Type != "INFP" || res.Title != "理想を追う詩人" || res.Summary != SummaryFor("INFP") {
		t.Fatalf("unexpected type/title: %s %s", res.Type, res.Title)
	}
	if res.Story != "朝の光の中で、あなたは歩き出す。" || res.Features != "- 想像力が豊か" {
		t.Fatalf("unexpected narrative: %+v", res.MBTIResult)
	}
	if res.Insights.Strengths != "共感力" || res.Insights.Advice != "相談する" {
		t.Fatalf("unexpected insights: %+v", res.Insights)
	}
	for _, field := range []string{"axes", "features", "reasons", "advice", "story", "insights"} {
		if res.Meta[field] != string(llm.ProviderGemini) {
			t.Fatalf("meta %s = %q, want gemini", field, res.Meta[field])
		}
	}
	if !client.Opts[0].JSON || client.Opts[0].MaxNewTokens != 120 {
		t.Fatalf("axes call should request json with 120 tokens, got %+v", client.Opts[0])
	}
	if !strings.Contains(res.AvatarURL, "id="+res.ResultID) || !strings.HasPrefix(res.SceneURL, "/image/scene?") {
		t.Fatalf("unexpected image urls %q %q", res.AvatarURL, res.SceneURL)
	}
}

func TestResultServiceBuild_DegradedFallsBackToHeuristicAndTemplates(t *testing.T) {
	sessions, sessRepo := newTestSessions()
	lines := []string{"ひとりで静かに過ごしたい", "具体的な手順が安心する", "論理で決めます", "計画どおりに進めたい"}
	seedSession(t, sessRepo, "s1", lines...)
	gen := llm.StaticGenerator{Text: llm.GenericReply, Provider: llm.ProviderLastResort}
	svc := NewResultService(sessions, repository.NewMemoryResultRepository(), gen, nil, zap.NewNop())

	res, err := svc.Build(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	session, _ := sessRepo.GetByID(context.Background(), "s1")
	wantType := scoring.EstimateAxes(Transcript(session.Messages)).Type()
	if res.Type != wantType {
		t.Fatalf("expected heuristic type %s, got %s", wantType, res.Type)
	}
	if res.Meta["axes"] != metaHeuristic || res.Meta["story"] != metaTemplate {
		t.Fatalf("unexpected meta %+v", res.Meta)
	}
	if res.Story != FallbackStory(wantType) {
		t.Fatalf("expected deterministic story, got %q", res.Story)
	}
	if strings.Contains(res.Features, llm.GenericReply) || res.Advice != adviceFallback {
		t.Fatalf("degraded text leaked into result: %+v", res.MBTIResult)
	}
}

func TestResultServiceBuild_StoryRetriedOnce(t *testing.T) {
	sessions, sessRepo := newTestSessions()
	seedSession(t, sessRepo, "s1", "こんにちは")
	client := &llm.MockClient{Responses: []string{
		`{"E/I":"E","S/N":"S","T/F":"T","J/P":"J"}`,
		"f", "r", "a",
		"物語です。" + llm.GenericReply,
		"二度目の物語。",
		`{"strengths":"s","cautions":"c","advice":"a"}`,
	}}
	svc := NewResultService(sessions, repository.NewMemoryResultRepository(), chainWith(client), nil, zap.NewNop())

	res, err := svc.Build(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if res.Story != "二度目の物語。" {
		t.Fatalf("expected retried story, got %q", res.Story)
	}
	if !strings.Contains(client.Prompts[5], "ESTJ") {
		t.Fatalf("retry prompt should mention the type: %q", client.Prompts[5])
	}
}

func TestResultServiceGet_KeepsResultIDAcrossRegenerate(t *testing.T) {
	sessions, sessRepo := newTestSessions()
	seedSession(t, sessRepo, "s1", "こんにちは")
	results := repository.NewMemoryResultRepository()
	gen := llm.StaticGenerator{Text: llm.GenericReply, Provider: llm.ProviderDisabled}
	svc := NewResultService(sessions, results, gen, nil, zap.NewNop())
	ctx := context.Background()

	first, err := svc.Get(ctx, "s1", false)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	cached, err := svc.Get(ctx, "s1", false)
	if err != nil || cached.ResultID != first.ResultID || cached.Meta != nil {
		t.Fatalf("expected stored result, got %+v err=%v", cached, err)
	}
	again, err := svc.Get(ctx, "s1", true)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if again.ResultID != first.ResultID {
		t.Fatalf("result id changed on regenerate: %s -> %s", first.ResultID, again.ResultID)
	}
	if again.Meta == nil {
		t.Fatalf("regenerate should return fresh meta")
	}

	byResult, err := svc.GetByAny(ctx, first.ResultID)
	if err != nil || byResult.SessionID != "s1" {
		t.Fatalf("lookup by result id failed: %+v %v", byResult, err)
	}
	bySession, err := svc.GetByAny(ctx, "s1")
	if err != nil || bySession.ResultID != first.ResultID {
		t.Fatalf("lookup by session id failed: %+v %v", bySession, err)
	}
}

func TestResultServiceErrors(t *testing.T) {
	sessions, _ := newTestSessions()
	svc := NewResultService(sessions, repository.NewMemoryResultRepository(), llm.StaticGenerator{}, nil, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.Get(ctx, "", false); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Get(ctx, "missing", false); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.GetByAny(ctx, "missing"); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound, got %v", err)
	}
}

func TestResultServiceGetByAny_FillsMissingAxes(t *testing.T) {
	sessions, _ := newTestSessions()
	results := repository.NewMemoryResultRepository()
	_, _ = results.SaveMBTI(context.Background(), domain.MBTIResult{SessionID: "s1", ResultID: "r1", Type: "IN", CreatedAt: time.Now()})
	svc := NewResultService(sessions, results, llm.StaticGenerator{}, nil, zap.NewNop())

	res, err := svc.GetByAny(context.Background(), "r1")
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if res.Type != "INTJ" {
		t.Fatalf("expected missing letters to default to T/J, got %s", res.Type)
	}
}

func TestImageURL(t *testing.T) {
	got := ImageURL(domain.ImageAvatar, "r1", "INFP", "理想を追う詩人")
	if !strings.HasPrefix(got, "/image/avatar?") || !strings.Contains(got, "id=r1") || !strings.Contains(got, "type=INFP") {
		t.Fatalf("unexpected url %q", got)
	}
}

// gatedGenerator bloquea la primera llamada hasta que se cierra release.
type gatedGenerator struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedGenerator) Generate(ctx context.Context, prompt string, opts llm.Options) llm.Generation {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return llm.Generation{Text: "静かな時間を大切にしているのですね。", Provider: llm.ProviderGemini}
}

func TestResultServiceBuild_WaitsForInFlightTurn(t *testing.T) {
	sessions, repo := newTestSessions()
	gate := &gatedGenerator{entered: make(chan struct{}), release: make(chan struct{})}
	chat := NewChatService(sessions, gate, nil, zap.NewNop())
	client := &llm.MockClient{Response: "{}"}
	svc := NewResultService(sessions, repository.NewMemoryResultRepository(), chainWith(client), nil, zap.NewNop())
	ctx := context.Background()

	turnDone := make(chan error, 1)
	go func() {
		_, err := chat.Post(ctx, "s1", "ひとりで本を読むのが好きです")
		turnDone <- err
	}()
	<-gate.entered

	built := make(chan error, 1)
	go func() {
		_, err := svc.Build(ctx, "s1")
		built <- err
	}()

	select {
	case err := <-built:
		t.Fatalf("build finished while the turn was in flight (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(gate.release)

	if err := <-turnDone; err != nil {
		t.Fatalf("turn error: %v", err)
	}
	if err := <-built; err != nil {
		t.Fatalf("build error: %v", err)
	}

	session, _ := repo.GetByID(ctx, "s1")
	if len(session.Messages) != 3 {
		t.Fatalf("expected user + reflection + question, got %d messages", len(session.Messages))
	}
	if client.Calls() == 0 || !strings.Contains(client.Prompts[0], questionPrefix) {
		t.Fatalf("axes prompt should include the completed turn, got %q", client.Prompts)
	}
}
