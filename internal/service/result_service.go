package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mbti-story/internal/domain"
	"mbti-story/internal/llm"
	"mbti-story/internal/metrics"
	"mbti-story/internal/repository"
	"mbti-story/internal/scoring"
)

// MBTIResponse es el resultado del flujo conversacional con el origen de cada campo.
type MBTIResponse struct {
	domain.MBTIResult
	Meta Meta `json:"_meta,omitempty"`
}

// ResultService arma, persiste y recupera los resultados del quiz conversacional.
type ResultService struct {
	sessions *SessionService
	results  repository.ResultRepository
	narrator narrator
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewResultService(
	sessions *SessionService,
	results repository.ResultRepository,
	generator llm.Generator,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ResultService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultService{
		sessions: sessions,
		results:  results,
		narrator: narrator{generator: generator, logger: logger},
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Get devuelve el resultado guardado de la sesion o lo calcula.
// Con regenerate siempre recalcula, conservando el result_id.
func (s *ResultService) Get(ctx context.Context, sessionID string, regenerate bool) (MBTIResponse, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return MBTIResponse{}, fmt.Errorf("%w: sessionId is required", ErrInvalidInput)
	}
	if !regenerate {
		if stored, ok := s.storedFor(ctx, sessionID); ok {
			return MBTIResponse{MBTIResult: stored}, nil
		}
	}
	return s.Build(ctx, sessionID)
}

// Build genera el resultado completo a partir de la transcripcion de la sesion.
func (s *ResultService) Build(ctx context.Context, sessionID string) (MBTIResponse, error) {
	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return MBTIResponse{}, err
	}

	meta := Meta{}
	transcript := Transcript(session.Messages)

	axes := s.inferAxes(ctx, transcript, meta)
	mbtiType := axes.Type()

	features := s.narrator.text(ctx, "features",
		fmt.Sprintf(featuresPromptTemplate, mbtiType),
		llm.Options{MaxNewTokens: 220, Temperature: 0.4},
		fmt.Sprintf(featuresFallbackTemplate, mbtiType), meta)
	reasons := s.narrator.text(ctx, "reasons",
		fmt.Sprintf(reasonsPromptTemplate, mbtiType, transcript),
		llm.Options{MaxNewTokens: 260, Temperature: 0.5},
		fmt.Sprintf(reasonsFallbackTemplate, mbtiType), meta)
	advice := s.narrator.text(ctx, "advice",
		fmt.Sprintf(advicePromptTemplate, mbtiType),
		llm.Options{MaxNewTokens: 280, Temperature: 0.6},
		adviceFallback, meta)
	story := s.narrator.story(ctx,
		storyPrompts(fmt.Sprintf(storyPromptTemplate, mbtiType), mbtiType),
		llm.Options{MaxNewTokens: 1100, Temperature: 0.7},
		FallbackStory(mbtiType), meta)
	insights := s.insights(ctx, mbtiType, transcript, features, advice, meta)

	res := domain.MBTIResult{
		SessionID: sessionID,
		Axes:      axes,
		Type:      mbtiType,
		Title:     TitleFor(mbtiType),
		Summary:   SummaryFor(mbtiType),
		Story:     story,
		Features:  features,
		Reasons:   reasons,
		Advice:    advice,
		Insights:  insights,
		CreatedAt: s.now().UTC(),
	}
	res.ResultID = s.newID()
	if stored, ok := s.storedFor(ctx, sessionID); ok {
		res.ResultID = stored.ResultID
		res.CreatedAt = stored.CreatedAt
	}
	res.AvatarURL = ImageURL(domain.ImageAvatar, res.ResultID, mbtiType, res.Title)
	res.SceneURL = ImageURL(domain.ImageScene, res.ResultID, mbtiType, res.Title)

	s.persist(ctx, &res)
	s.metrics.IncResult("mbti")
	return MBTIResponse{MBTIResult: res, Meta: meta}, nil
}

// GetByAny busca por result_id o por session_id.
func (s *ResultService) GetByAny(ctx context.Context, id string) (domain.MBTIResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.MBTIResult{}, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	res, err := s.results.GetMBTI(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.MBTIResult{}, ErrResultNotFound
	}
	if err != nil {
		return domain.MBTIResult{}, fmt.Errorf("get mbti result %s: %w", id, err)
	}
	if !res.Axes.Complete() {
		res.Axes = domain.AxesFromType(res.Type)
		res.Type = res.Axes.Type()
	}
	return res, nil
}

// List devuelve los ultimos resultados, los mas nuevos primero.
func (s *ResultService) List(ctx context.Context, limit int) ([]domain.MBTIResult, error) {
	items, err := s.results.ListMBTI(ctx, repository.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list mbti results: %w", err)
	}
	return items, nil
}

func (s *ResultService) inferAxes(ctx context.Context, transcript string, meta Meta) domain.Axes {
	gen := s.narrator.generator.Generate(ctx, fmt.Sprintf(axesPromptTemplate, transcript),
		llm.Options{MaxNewTokens: 120, Temperature: 0.2, JSON: true})
	if !gen.Degraded() {
		if axes, ok := scoring.ParseAxes(gen.Text); ok {
			meta["axes"] = string(gen.Provider)
			return axes
		}
	}
	s.logger.Info("axes fall back to heuristic", zap.String("provider", string(gen.Provider)))
	meta["axes"] = metaHeuristic
	return scoring.EstimateAxes(transcript)
}

func (s *ResultService) insights(ctx context.Context, mbtiType, transcript, features, advice string, meta Meta) domain.Insights {
	gen := s.narrator.generator.Generate(ctx, fmt.Sprintf(insightsPromptTemplate, mbtiType, transcript),
		llm.Options{MaxNewTokens: 400, Temperature: 0.5, JSON: true})
	if !gen.Degraded() {
		if in, src, ok := ParseInsights(gen.Text); ok {
			meta["insights"] = string(gen.Provider)
			if src != InsightsFromJSON {
				s.logger.Info("insights parsed without clean json", zap.String("source", string(src)))
			}
			return in
		}
	}
	meta["insights"] = metaTemplate
	return domain.Insights{Strengths: features, Advice: advice}
}

// storedFor devuelve el resultado ya guardado para esa sesion, si existe.
func (s *ResultService) storedFor(ctx context.Context, sessionID string) (domain.MBTIResult, bool) {
	stored, err := s.results.GetMBTI(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("load stored result failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return domain.MBTIResult{}, false
	}
	if stored.SessionID != sessionID {
		return domain.MBTIResult{}, false
	}
	return stored, true
}

// persist guarda el resultado; un error de base se registra y no corta la respuesta.
func (s *ResultService) persist(ctx context.Context, res *domain.MBTIResult) {
	storedID, err := s.results.SaveMBTI(ctx, *res)
	if err != nil {
		s.logger.Error("save mbti result failed", zap.String("session_id", res.SessionID), zap.Error(err))
		return
	}
	if storedID != "" && storedID != res.ResultID {
		res.ResultID = storedID
		res.AvatarURL = ImageURL(domain.ImageAvatar, storedID, res.Type, res.Title)
		res.SceneURL = ImageURL(domain.ImageScene, storedID, res.Type, res.Title)
		if _, err := s.results.SaveMBTI(ctx, *res); err != nil {
			s.logger.Error("save mbti result failed", zap.String("session_id", res.SessionID), zap.Error(err))
		}
	}
}

// ImageURL arma la URL diferida de una ilustracion del resultado.
func ImageURL(kind domain.ImageKind, resultID, mbtiType, title string) string {
	q := url.Values{}
	q.Set("id", resultID)
	q.Set("type", mbtiType)
	q.Set("title", title)
	return "/image/" + string(kind) + "?" + q.Encode()
}
