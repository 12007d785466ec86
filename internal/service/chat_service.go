package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"mbti-story/internal/domain"
	"mbti-story/internal/llm"
	"mbti-story/internal/metrics"
)

// minReflectionRunes descarta reflejos demasiado cortos para aportar algo.
const minReflectionRunes = 8

// ChatReply es la respuesta de un turno del quiz.
type ChatReply struct {
	Messages     []domain.Message `json:"messages"`
	Done         bool             `json:"done"`
	NextQuestion string           `json:"nextQuestion,omitempty"`
	LLMProvider  llm.ProviderName `json:"llmProvider,omitempty"`
	LLMFallback  bool             `json:"llmFallback"`
}

// ChatService conduce las cuatro rondas del quiz conversacional.
type ChatService struct {
	sessions  *SessionService
	generator llm.Generator
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewChatService(sessions *SessionService, generator llm.Generator, m *metrics.Metrics, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		sessions:  sessions,
		generator: generator,
		metrics:   m,
		logger:    logger,
	}
}

// Post registra el mensaje del usuario y devuelve el reflejo mas la pregunta del eje
// que toca. Los turnos de una misma sesion se ejecutan de a uno.
func (s *ChatService) Post(ctx context.Context, sessionID, content string) (ChatReply, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ChatReply{}, fmt.Errorf("%w: sessionId is required", ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return ChatReply{}, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}

	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	// Las fallas de guardado se registran y el turno sigue con lo que hay en memoria.
	session, err := s.sessions.Ensure(ctx, sessionID)
	if err != nil {
		s.logger.Warn("session load failed, continuing without history", zap.String("session_id", sessionID), zap.Error(err))
		session = domain.Session{ID: sessionID}
	}
	if _, err := s.sessions.Append(ctx, sessionID, domain.RoleUser, content); err != nil {
		s.logger.Warn("user message not persisted", zap.String("session_id", sessionID), zap.Error(err))
	}

	if session.Rounds >= len(domain.AxisOrder) {
		if err := s.sessions.MarkDone(ctx, sessionID); err != nil {
			s.logger.Warn("mark done failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return ChatReply{Messages: []domain.Message{}, Done: true}, nil
	}
	axis := domain.AxisOrder[session.Rounds]

	gen := s.generator.Generate(ctx, fmt.Sprintf(reflectPromptTemplate, content), llm.Options{MaxNewTokens: 64, Temperature: 0.4})
	reflection := strings.TrimSpace(gen.Text)

	var texts []string
	if utf8.RuneCountInString(reflection) >= minReflectionRunes {
		texts = append(texts, reflection)
	}
	question := questionPrefix + axisQuestions[axis]
	texts = append(texts, question)

	reply := ChatReply{
		Messages:     make([]domain.Message, 0, len(texts)),
		NextQuestion: question,
		LLMProvider:  gen.Provider,
		LLMFallback:  gen.Degraded(),
	}
	for _, text := range texts {
		msg, err := s.sessions.Append(ctx, sessionID, domain.RoleAssistant, text)
		if err != nil {
			s.logger.Warn("assistant message not persisted", zap.String("session_id", sessionID), zap.Error(err))
		}
		reply.Messages = append(reply.Messages, msg)
	}

	rounds, err := s.sessions.IncrementRound(ctx, sessionID)
	if err != nil {
		s.logger.Warn("round not persisted", zap.String("session_id", sessionID), zap.Error(err))
		rounds = session.Rounds + 1
	}
	reply.Done = rounds >= len(domain.AxisOrder)
	if reply.Done {
		if err := s.sessions.MarkDone(ctx, sessionID); err != nil {
			s.logger.Warn("mark done failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	s.metrics.IncChatTurn()
	s.logger.Info("chat turn",
		zap.String("session_id", sessionID),
		zap.Int("round", rounds),
		zap.String("axis", string(axis)),
		zap.String("provider", string(gen.Provider)),
	)
	return reply, nil
}
