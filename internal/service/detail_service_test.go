package service

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"mbti-story/internal/domain"
	"mbti-story/internal/llm"
	"mbti-story/internal/repository"
	"mbti-story/internal/scoring"
)

func intPtr(v int) *int { return &v }

func newDetailService(gen llm.Generator) (*DetailService, *repository.MemoryResultRepository) {
	sessions, _ := newTestSessions()
	results := repository.NewMemoryResultRepository()
	return NewDetailService(scoring.DefaultCatalog(), sessions, results, gen, nil, zap.NewNop()), results
}

func TestDetailServiceDiagnose_DegradedUsesTemplates(t *testing.T) {
	svc, _ := newDetailService(llm.StaticGenerator{Text: llm.GenericReply, Provider: llm.ProviderLastResort})
	answers := []domain.Answer{
		{QuestionID: "A1", Score: intPtr(5)},
		{QuestionID: "B25", Score: intPtr(3)},
		{QuestionID: "C31", Text: "人前だと緊張します"},
	}

	resp, err := svc.Diagnose(context.Background(), "s1", answers)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	r := resp.Result
	if resp.SessionID != "s1" || r.MBTIType != "ESTJ" {
		t.Fatalf("unexpected session/type: %s %s", resp.SessionID, r.MBTIType)
	}
	if r.BigFive.Neuroticism != 60 {
		t.Fatalf("expected anxiety boost to 60, got %d", r.BigFive.Neuroticism)
	}
	wantSummary := "あなたはESTJ傾向。Big Fiveはopenness:0,conscientiousness:0,extraversion:0,agreeableness:0,neuroticism:60。"
	if r.SummaryText != wantSummary {
		t.Fatalf("unexpected summary %q", r.SummaryText)
	}
	if !strings.Contains(r.Story, "タイプESTJの傾向") || r.Advice != detailAdviceFallback {
		t.Fatalf("expected template story/advice, got %q / %q", r.Story, r.Advice)
	}
	if r.Supplements.StressTolerance != 50 || r.ResultID == "" {
		t.Fatalf("unexpected supplements or id: %+v", r)
	}
}

func TestDetailServiceDiagnose_TruncatesSummaryAndKeepsResultID(t *testing.T) {
	long := strings.Repeat("あ", 300)
	client := &llm.MockClient{Response: long}
	svc, results := newDetailService(chainWith(client))
	ctx := context.Background()

	first, err := svc.Diagnose(ctx, "s1", nil)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if n := utf8.RuneCountInString(first.Result.SummaryText); n != maxSummaryRunes {
		t.Fatalf("expected summary truncated to %d runes, got %d", maxSummaryRunes, n)
	}
	if first.Meta["summary"] != string(llm.ProviderGemini) {
		t.Fatalf("unexpected meta %+v", first.Meta)
	}
	if client.Opts[0].MaxNewTokens != 120 || client.Opts[1].MaxNewTokens != 1600 || client.Opts[2].MaxNewTokens != 400 {
		t.Fatalf("unexpected generation options %+v", client.Opts)
	}

	second, err := svc.Diagnose(ctx, "s1", nil)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if second.Result.ResultID != first.Result.ResultID {
		t.Fatalf("result id changed: %s -> %s", first.Result.ResultID, second.Result.ResultID)
	}
	stored, err := results.GetDetail(ctx, first.Result.ResultID)
	if err != nil || stored.SessionID != "s1" {
		t.Fatalf("expected stored detail result, got %+v %v", stored, err)
	}
	if !strings.Contains(stored.AvatarURL, "id="+first.Result.ResultID) {
		t.Fatalf("unexpected avatar url %q", stored.AvatarURL)
	}
}

func TestDetailServiceDiagnose_GeneratesSessionID(t *testing.T) {
	svc, _ := newDetailService(llm.StaticGenerator{Provider: llm.ProviderLastResort})
	resp, err := svc.Diagnose(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if resp.SessionID == "" || resp.Result.SessionID != resp.SessionID {
		t.Fatalf("expected generated session id, got %+v", resp)
	}
}

func TestDetailServiceListNewestFirst(t *testing.T) {
	svc, _ := newDetailService(llm.StaticGenerator{Provider: llm.ProviderLastResort})
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := svc.Diagnose(ctx, id, nil); err != nil {
			t.Fatalf("diagnose %s: %v", id, err)
		}
	}
	items, err := svc.List(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].CreatedAt.Before(items[1].CreatedAt) {
		t.Fatalf("expected newest first")
	}
}

func TestDetailServiceQuestions(t *testing.T) {
	svc, _ := newDetailService(llm.StaticGenerator{})
	if got := len(svc.Questions()); got != 31 {
		t.Fatalf("expected 31 questions, got %d", got)
	}
}
