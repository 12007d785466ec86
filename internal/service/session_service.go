package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mbti-story/internal/domain"
	"mbti-story/internal/repository"
)

// SessionService administra las sesiones del quiz y serializa los turnos por sesion.
type SessionService struct {
	repo   repository.SessionRepository
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewSessionService(repo repository.SessionRepository, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sessionLock),
	}
}

// Create abre una sesion nueva con id generado.
func (s *SessionService) Create(ctx context.Context) (domain.Session, error) {
	id := uuid.NewString()
	session, err := s.repo.Ensure(ctx, id, s.now().UTC())
	if err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("session created", zap.String("session_id", id))
	return session, nil
}

// Ensure devuelve la sesion, creandola si el cliente trae un id desconocido.
func (s *SessionService) Ensure(ctx context.Context, id string) (domain.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Session{}, fmt.Errorf("%w: sessionId is required", ErrInvalidInput)
	}
	session, err := s.repo.Ensure(ctx, id, s.now().UTC())
	if err != nil {
		return domain.Session{}, fmt.Errorf("ensure session %s: %w", id, err)
	}
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (domain.Session, error) {
	session, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return session, nil
}

// Append guarda un mensaje nuevo de la sesion. Si falla el guardado igual devuelve
// el mensaje armado junto con el error.
func (s *SessionService) Append(ctx context.Context, sessionID, role, content string) (domain.Message, error) {
	msg := domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return msg, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

func (s *SessionService) IncrementRound(ctx context.Context, id string) (int, error) {
	rounds, err := s.repo.IncrementRound(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("increment round: %w", err)
	}
	return rounds, nil
}

func (s *SessionService) MarkDone(ctx context.Context, id string) error {
	if err := s.repo.MarkDone(ctx, id, s.now().UTC()); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

// Lock toma el candado de la sesion y devuelve la funcion que lo libera.
// Las entradas se borran cuando nadie mas las espera.
func (s *SessionService) Lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

// Transcript arma el registro "ユーザー: …" / "AI: …" usado en los prompts.
func Transcript(messages []domain.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		speaker := "AI"
		if m.Role == domain.RoleUser {
			speaker = "ユーザー"
		}
		lines = append(lines, speaker+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
