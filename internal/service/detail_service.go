package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mbti-story/internal/domain"
	"mbti-story/internal/llm"
	"mbti-story/internal/metrics"
	"mbti-story/internal/repository"
	"mbti-story/internal/scoring"
	"mbti-story/internal/textutil"
)

const maxSummaryRunes = 200

// DetailResponse es lo que devuelve POST /diagnose/detail.
type DetailResponse struct {
	SessionID string              `json:"sessionId"`
	Result    domain.DetailResult `json:"result"`
	Meta      Meta                `json:"_meta,omitempty"`
}

// DetailService puntua el cuestionario de 30 preguntas y genera su narrativa.
type DetailService struct {
	catalog  scoring.Catalog
	sessions *SessionService
	results  repository.ResultRepository
	narrator narrator
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewDetailService(
	catalog scoring.Catalog,
	sessions *SessionService,
	results repository.ResultRepository,
	generator llm.Generator,
	m *metrics.Metrics,
	logger *zap.Logger,
) *DetailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailService{
		catalog:  catalog,
		sessions: sessions,
		results:  results,
		narrator: narrator{generator: generator, logger: logger},
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Questions devuelve el catalogo estatico.
func (s *DetailService) Questions() []domain.Question {
	return s.catalog.Questions()
}

// Diagnose calcula tipo, Big Five y suplementos y luego resumen, historia y consejo.
// Sin sessionID se genera uno nuevo.
func (s *DetailService) Diagnose(ctx context.Context, sessionID string, answers []domain.Answer) (DetailResponse, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = s.newID()
	}
	if _, err := s.sessions.Ensure(ctx, sessionID); err != nil {
		s.logger.Warn("ensure detail session failed", zap.String("session_id", sessionID), zap.Error(err))
	}

	out := scoring.Score(answers, s.catalog)
	bigFiveJSON, _ := json.Marshal(out.BigFive)
	supJSON, _ := json.Marshal(out.Supplements)
	args := []any{out.MBTIType, string(bigFiveJSON), string(supJSON), out.OpenText}

	meta := Meta{}
	summary := s.narrator.text(ctx, "summary",
		fmt.Sprintf(detailSummaryPromptTemplate, args...),
		llm.Options{MaxNewTokens: 120, Temperature: 0.3},
		summaryFallback(out.MBTIType, out.BigFive), meta)
	summary = textutil.TruncateRunes(summary, maxSummaryRunes)

	story := s.narrator.story(ctx,
		storyPrompts(fmt.Sprintf(detailStoryPromptTemplate, args...), out.MBTIType),
		llm.Options{MaxNewTokens: 1600, Temperature: 0.7},
		fmt.Sprintf(detailStoryFallbackTemplate, out.MBTIType), meta)

	advice := s.narrator.text(ctx, "advice",
		fmt.Sprintf(detailAdvicePromptTemplate, args...),
		llm.Options{MaxNewTokens: 400, Temperature: 0.6},
		detailAdviceFallback, meta)

	res := domain.DetailResult{
		SessionID:   sessionID,
		ResultID:    s.newID(),
		MBTIType:    out.MBTIType,
		BigFive:     out.BigFive,
		Supplements: out.Supplements,
		SummaryText: summary,
		Story:       story,
		Advice:      advice,
		CreatedAt:   s.now().UTC(),
	}
	if stored, err := s.results.GetDetail(ctx, sessionID); err == nil && stored.SessionID == sessionID {
		res.ResultID = stored.ResultID
		res.CreatedAt = stored.CreatedAt
	}
	title := TitleFor(res.MBTIType)
	res.AvatarURL = ImageURL(domain.ImageAvatar, res.ResultID, res.MBTIType, title)
	res.SceneURL = ImageURL(domain.ImageScene, res.ResultID, res.MBTIType, title)

	if storedID, err := s.results.SaveDetail(ctx, res); err != nil {
		s.logger.Error("save detail result failed", zap.String("session_id", sessionID), zap.Error(err))
	} else if storedID != "" {
		res.ResultID = storedID
	}

	s.metrics.IncResult("detail")
	s.logger.Info("detail diagnosed", zap.String("session_id", sessionID), zap.String("type", res.MBTIType))
	return DetailResponse{SessionID: sessionID, Result: res, Meta: meta}, nil
}

// GetByAny busca un resultado detallado por result_id o session_id.
func (s *DetailService) GetByAny(ctx context.Context, id string) (domain.DetailResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.DetailResult{}, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	res, err := s.results.GetDetail(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.DetailResult{}, ErrResultNotFound
	}
	if err != nil {
		return domain.DetailResult{}, fmt.Errorf("get detail result %s: %w", id, err)
	}
	return res, nil
}

func (s *DetailService) List(ctx context.Context, limit int) ([]domain.DetailResult, error) {
	items, err := s.results.ListDetail(ctx, repository.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list detail results: %w", err)
	}
	return items, nil
}

func summaryFallback(mbtiType string, bf domain.BigFive) string {
	pairs := []string{
		"openness:" + strconv.Itoa(bf.Openness),
		"conscientiousness:" + strconv.Itoa(bf.Conscientiousness),
		"extraversion:" + strconv.Itoa(bf.Extraversion),
		"agreeableness:" + strconv.Itoa(bf.Agreeableness),
		"neuroticism:" + strconv.Itoa(bf.Neuroticism),
	}
	return fmt.Sprintf("あなたは%s傾向。Big Fiveは%s。", mbtiType, strings.Join(pairs, ","))
}
