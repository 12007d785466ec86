package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"mbti-story/internal/domain"
)

// Repositorios sobre SQLite (modernc.org/sqlite). Pensados para desarrollo local y
// despliegues de una sola instancia. Los tiempos se guardan en milisegundos unix.

type SQLiteSessionRepository struct {
	db *sql.DB
}

func NewSQLiteSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

func (r *SQLiteSessionRepository) Ensure(ctx context.Context, id string, startedAt time.Time) (domain.Session, error) {
	const query = `INSERT INTO user_session (id, start_time) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, id, startedAt.UnixMilli()); err != nil {
		return domain.Session{}, err
	}
	return r.GetByID(ctx, id)
}

func (r *SQLiteSessionRepository) GetByID(ctx context.Context, id string) (domain.Session, error) {
	const query = `SELECT id, start_time, end_time, rounds FROM user_session WHERE id = ?`
	var (
		s       domain.Session
		started int64
		ended   sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &started, &ended, &s.Rounds)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, ErrNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	s.StartedAt = fromMillis(started)
	if ended.Valid {
		t := fromMillis(ended.Int64)
		s.EndedAt = &t
		s.Done = true
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM conversation_log
		WHERE session_id = ?
		ORDER BY seq ASC`, id)
	if err != nil {
		return domain.Session{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var msg domain.Message
		var created int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &created); err != nil {
			return domain.Session{}, err
		}
		msg.CreatedAt = fromMillis(created)
		s.Messages = append(s.Messages, msg)
	}
	return s, rows.Err()
}

func (r *SQLiteSessionRepository) AppendMessage(ctx context.Context, msg domain.Message) error {
	const query = `INSERT INTO conversation_log (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, msg.ID, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt.UnixMilli())
	return err
}

func (r *SQLiteSessionRepository) IncrementRound(ctx context.Context, id string) (int, error) {
	const query = `UPDATE user_session SET rounds = rounds + 1 WHERE id = ? RETURNING rounds`
	var rounds int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&rounds)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return rounds, err
}

func (r *SQLiteSessionRepository) MarkDone(ctx context.Context, id string, endedAt time.Time) error {
	const query = `UPDATE user_session SET end_time = COALESCE(end_time, ?) WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, endedAt.UnixMilli(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type SQLiteResultRepository struct {
	db *sql.DB
}

func NewSQLiteResultRepository(db *sql.DB) *SQLiteResultRepository {
	return &SQLiteResultRepository{db: db}
}

func (r *SQLiteResultRepository) SaveMBTI(ctx context.Context, res domain.MBTIResult) (string, error) {
	const query = `
		INSERT INTO mbti_result (` + mbtiColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			ei = excluded.ei,
			sn = excluded.sn,
			tf = excluded.tf,
			jp = excluded.jp,
			type = excluded.type,
			title = excluded.title,
			summary = excluded.summary,
			story = excluded.story,
			features = excluded.features,
			reasons = excluded.reasons,
			advice = excluded.advice,
			insights = excluded.insights,
			avatar_url = excluded.avatar_url,
			scene_url = excluded.scene_url
		RETURNING result_id
	`
	insights, err := json.Marshal(res.Insights)
	if err != nil {
		return "", err
	}
	var resultID string
	err = r.db.QueryRowContext(ctx, query,
		res.SessionID, res.ResultID,
		res.Axes.EI, res.Axes.SN, res.Axes.TF, res.Axes.JP,
		res.Type, res.Title, res.Summary, res.Story, res.Features, res.Reasons, res.Advice,
		string(insights), res.AvatarURL, res.SceneURL, res.CreatedAt.UnixMilli(),
	).Scan(&resultID)
	return resultID, err
}

func (r *SQLiteResultRepository) GetMBTI(ctx context.Context, id string) (domain.MBTIResult, error) {
	const query = `SELECT ` + mbtiColumns + ` FROM mbti_result WHERE result_id = ? OR session_id = ? LIMIT 1`
	res, err := scanSQLiteMBTI(r.db.QueryRowContext(ctx, query, id, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MBTIResult{}, ErrNotFound
	}
	return res, err
}

func (r *SQLiteResultRepository) ListMBTI(ctx context.Context, limit int) ([]domain.MBTIResult, error) {
	const query = `SELECT ` + mbtiColumns + ` FROM mbti_result ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.MBTIResult{}
	for rows.Next() {
		res, err := scanSQLiteMBTI(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *SQLiteResultRepository) SaveDetail(ctx context.Context, res domain.DetailResult) (string, error) {
	const query = `
		INSERT INTO detail_result (` + detailColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			mbti_type = excluded.mbti_type,
			openness = excluded.openness,
			conscientiousness = excluded.conscientiousness,
			extraversion = excluded.extraversion,
			agreeableness = excluded.agreeableness,
			neuroticism = excluded.neuroticism,
			stress_tolerance = excluded.stress_tolerance,
			adaptability = excluded.adaptability,
			value_flexibility = excluded.value_flexibility,
			summary_text = excluded.summary_text,
			story = excluded.story,
			advice = excluded.advice,
			avatar_url = excluded.avatar_url,
			scene_url = excluded.scene_url
		RETURNING result_id
	`
	var resultID string
	err := r.db.QueryRowContext(ctx, query,
		res.SessionID, res.ResultID, res.MBTIType,
		res.BigFive.Openness, res.BigFive.Conscientiousness, res.BigFive.Extraversion,
		res.BigFive.Agreeableness, res.BigFive.Neuroticism,
		res.Supplements.StressTolerance, res.Supplements.Adaptability, res.Supplements.ValueFlexibility,
		res.SummaryText, res.Story, res.Advice, res.AvatarURL, res.SceneURL, res.CreatedAt.UnixMilli(),
	).Scan(&resultID)
	return resultID, err
}

func (r *SQLiteResultRepository) GetDetail(ctx context.Context, id string) (domain.DetailResult, error) {
	const query = `SELECT ` + detailColumns + ` FROM detail_result WHERE result_id = ? OR session_id = ? LIMIT 1`
	res, err := scanSQLiteDetail(r.db.QueryRowContext(ctx, query, id, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DetailResult{}, ErrNotFound
	}
	return res, err
}

func (r *SQLiteResultRepository) ListDetail(ctx context.Context, limit int) ([]domain.DetailResult, error) {
	const query = `SELECT ` + detailColumns + ` FROM detail_result ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.DetailResult{}
	for rows.Next() {
		res, err := scanSQLiteDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *SQLiteResultRepository) UpdateImage(ctx context.Context, id string, kind domain.ImageKind, url string) error {
	column, err := imageColumn(kind)
	if err != nil {
		return err
	}
	var affected int64
	for _, table := range []string{"mbti_result", "detail_result"} {
		query := `UPDATE ` + table + ` SET ` + column + ` = ? WHERE result_id = ? OR session_id = ?`
		res, err := r.db.ExecContext(ctx, query, url, id, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		affected += n
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSQLiteMBTI(row rowScanner) (domain.MBTIResult, error) {
	var res domain.MBTIResult
	var insights string
	var created int64
	err := row.Scan(
		&res.SessionID, &res.ResultID,
		&res.Axes.EI, &res.Axes.SN, &res.Axes.TF, &res.Axes.JP,
		&res.Type, &res.Title, &res.Summary, &res.Story, &res.Features, &res.Reasons, &res.Advice,
		&insights, &res.AvatarURL, &res.SceneURL, &created,
	)
	if err != nil {
		return domain.MBTIResult{}, err
	}
	res.CreatedAt = fromMillis(created)
	decodeInsights(insights, &res.Insights)
	return res, nil
}

func scanSQLiteDetail(row rowScanner) (domain.DetailResult, error) {
	var res domain.DetailResult
	var bf [5]float64
	var sup [3]float64
	var created int64
	err := row.Scan(
		&res.SessionID, &res.ResultID, &res.MBTIType,
		&bf[0], &bf[1], &bf[2], &bf[3], &bf[4],
		&sup[0], &sup[1], &sup[2],
		&res.SummaryText, &res.Story, &res.Advice, &res.AvatarURL, &res.SceneURL, &created,
	)
	if err != nil {
		return domain.DetailResult{}, err
	}
	res.CreatedAt = fromMillis(created)
	fillScores(&res, bf, sup)
	return res, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
