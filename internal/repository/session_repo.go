package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mbti-story/internal/domain"
)

// SessionRepository es la unica fuente de verdad del estado conversacional.
type SessionRepository interface {
	// Ensure crea la sesion si no existe y la devuelve con sus mensajes.
	Ensure(ctx context.Context, id string, startedAt time.Time) (domain.Session, error)
	GetByID(ctx context.Context, id string) (domain.Session, error)
	AppendMessage(ctx context.Context, msg domain.Message) error
	// IncrementRound suma una ronda de forma atomica y devuelve el nuevo valor.
	IncrementRound(ctx context.Context, id string) (int, error)
	MarkDone(ctx context.Context, id string, endedAt time.Time) error
}

type PgSessionRepository struct {
	pool *pgxpool.Pool
}

func NewPgSessionRepository(pool *pgxpool.Pool) *PgSessionRepository {
	return &PgSessionRepository{pool: pool}
}

func (r *PgSessionRepository) Ensure(ctx context.Context, id string, startedAt time.Time) (domain.Session, error) {
	const query = `
		INSERT INTO user_session (id, start_time)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, id, startedAt.UTC()); err != nil {
		return domain.Session{}, err
	}
	return r.GetByID(ctx, id)
}

func (r *PgSessionRepository) GetByID(ctx context.Context, id string) (domain.Session, error) {
	const query = `
		SELECT id, start_time, end_time, rounds
		FROM user_session
		WHERE id = $1
	`
	var s domain.Session
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.Rounds)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, ErrNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	s.Done = s.EndedAt != nil

	msgs, err := r.listMessages(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	s.Messages = msgs
	return s, nil
}

func (r *PgSessionRepository) listMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	const query = `
		SELECT id, session_id, role, content, created_at
		FROM conversation_log
		WHERE session_id = $1
		ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *PgSessionRepository) AppendMessage(ctx context.Context, msg domain.Message) error {
	const query = `
		INSERT INTO conversation_log (id, session_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, msg.ID, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt.UTC())
	return err
}

func (r *PgSessionRepository) IncrementRound(ctx context.Context, id string) (int, error) {
	const query = `
		UPDATE user_session
		SET rounds = rounds + 1
		WHERE id = $1
		RETURNING rounds
	`
	var rounds int
	err := r.pool.QueryRow(ctx, query, id).Scan(&rounds)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return rounds, err
}

func (r *PgSessionRepository) MarkDone(ctx context.Context, id string, endedAt time.Time) error {
	const query = `
		UPDATE user_session
		SET end_time = COALESCE(end_time, $2)
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, endedAt.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
