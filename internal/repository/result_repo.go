package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mbti-story/internal/domain"
)

// ResultRepository persiste los resultados. Save* es un upsert por session_id que
// conserva el result_id de la primera escritura y lo devuelve.
type ResultRepository interface {
	SaveMBTI(ctx context.Context, r domain.MBTIResult) (string, error)
	// GetMBTI acepta tanto el result_id como el session_id.
	GetMBTI(ctx context.Context, id string) (domain.MBTIResult, error)
	ListMBTI(ctx context.Context, limit int) ([]domain.MBTIResult, error)

	SaveDetail(ctx context.Context, r domain.DetailResult) (string, error)
	GetDetail(ctx context.Context, id string) (domain.DetailResult, error)
	ListDetail(ctx context.Context, limit int) ([]domain.DetailResult, error)

	// UpdateImage guarda la URL (normalmente un data URL) de una imagen ya generada.
	// Busca el resultado por result_id o session_id en ambas tablas.
	UpdateImage(ctx context.Context, id string, kind domain.ImageKind, url string) error
}

type PgResultRepository struct {
	pool *pgxpool.Pool
}

func NewPgResultRepository(pool *pgxpool.Pool) *PgResultRepository {
	return &PgResultRepository{pool: pool}
}

const mbtiColumns = `session_id, result_id, ei, sn, tf, jp, type, title, summary, story, features, reasons, advice, insights, avatar_url, scene_url, created_at`

func (r *PgResultRepository) SaveMBTI(ctx context.Context, res domain.MBTIResult) (string, error) {
	const query = `
		INSERT INTO mbti_result (` + mbtiColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (session_id) DO UPDATE SET
			ei = EXCLUDED.ei,
			sn = EXCLUDED.sn,
			tf = EXCLUDED.tf,
			jp = EXCLUDED.jp,
			type = EXCLUDED.type,
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			story = EXCLUDED.story,
			features = EXCLUDED.features,
			reasons = EXCLUDED.reasons,
			advice = EXCLUDED.advice,
			insights = EXCLUDED.insights,
			avatar_url = EXCLUDED.avatar_url,
			scene_url = EXCLUDED.scene_url
		RETURNING result_id
	`
	insights, err := json.Marshal(res.Insights)
	if err != nil {
		return "", err
	}
	var resultID string
	err = r.pool.QueryRow(ctx, query,
		res.SessionID, res.ResultID,
		res.Axes.EI, res.Axes.SN, res.Axes.TF, res.Axes.JP,
		res.Type, res.Title, res.Summary, res.Story, res.Features, res.Reasons, res.Advice,
		string(insights), res.AvatarURL, res.SceneURL, res.CreatedAt.UTC(),
	).Scan(&resultID)
	return resultID, err
}

func (r *PgResultRepository) GetMBTI(ctx context.Context, id string) (domain.MBTIResult, error) {
	const query = `
		SELECT ` + mbtiColumns + `
		FROM mbti_result
		WHERE result_id = $1 OR session_id = $1
		LIMIT 1
	`
	res, err := scanMBTI(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MBTIResult{}, ErrNotFound
	}
	return res, err
}

func (r *PgResultRepository) ListMBTI(ctx context.Context, limit int) ([]domain.MBTIResult, error) {
	const query = `
		SELECT ` + mbtiColumns + `
		FROM mbti_result
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.MBTIResult{}
	for rows.Next() {
		res, err := scanMBTI(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

const detailColumns = `session_id, result_id, mbti_type, openness, conscientiousness, extraversion, agreeableness, neuroticism, stress_tolerance, adaptability, value_flexibility, summary_text, story, advice, avatar_url, scene_url, created_at`

func (r *PgResultRepository) SaveDetail(ctx context.Context, res domain.DetailResult) (string, error) {
	const query = `
		INSERT INTO detail_result (` + detailColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (session_id) DO UPDATE SET
			mbti_type = EXCLUDED.mbti_type,
			openness = EXCLUDED.openness,
			conscientiousness = EXCLUDED.conscientiousness,
			extraversion = EXCLUDED.extraversion,
			agreeableness = EXCLUDED.agreeableness,
			neuroticism = EXCLUDED.neuroticism,
			stress_tolerance = EXCLUDED.stress_tolerance,
			adaptability = EXCLUDED.adaptability,
			value_flexibility = EXCLUDED.value_flexibility,
			summary_text = EXCLUDED.summary_text,
			story = EXCLUDED.story,
			advice = EXCLUDED.advice,
			avatar_url = EXCLUDED.avatar_url,
			scene_url = EXCLUDED.scene_url
		RETURNING result_id
	`
	var resultID string
	err := r.pool.QueryRow(ctx, query,
		res.SessionID, res.ResultID, res.MBTIType,
		res.BigFive.Openness, res.BigFive.Conscientiousness, res.BigFive.Extraversion,
		res.BigFive.Agreeableness, res.BigFive.Neuroticism,
		res.Supplements.StressTolerance, res.Supplements.Adaptability, res.Supplements.ValueFlexibility,
		res.SummaryText, res.Story, res.Advice, res.AvatarURL, res.SceneURL, res.CreatedAt.UTC(),
	).Scan(&resultID)
	return resultID, err
}

func (r *PgResultRepository) GetDetail(ctx context.Context, id string) (domain.DetailResult, error) {
	const query = `
		SELECT ` + detailColumns + `
		FROM detail_result
		WHERE result_id = $1 OR session_id = $1
		LIMIT 1
	`
	res, err := scanDetail(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DetailResult{}, ErrNotFound
	}
	return res, err
}

func (r *PgResultRepository) ListDetail(ctx context.Context, limit int) ([]domain.DetailResult, error) {
	const query = `
		SELECT ` + detailColumns + `
		FROM detail_result
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.DetailResult{}
	for rows.Next() {
		res, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *PgResultRepository) UpdateImage(ctx context.Context, id string, kind domain.ImageKind, url string) error {
	column, err := imageColumn(kind)
	if err != nil {
		return err
	}
	var affected int64
	for _, table := range []string{"mbti_result", "detail_result"} {
		query := `UPDATE ` + table + ` SET ` + column + ` = $2 WHERE result_id = $1 OR session_id = $1`
		tag, err := r.pool.Exec(ctx, query, id, url)
		if err != nil {
			return err
		}
		affected += tag.RowsAffected()
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner cubre pgx.Row, pgx.Rows y *sql.Row/*sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMBTI(row rowScanner) (domain.MBTIResult, error) {
	var res domain.MBTIResult
	var insights string
	err := row.Scan(
		&res.SessionID, &res.ResultID,
		&res.Axes.EI, &res.Axes.SN, &res.Axes.TF, &res.Axes.JP,
		&res.Type, &res.Title, &res.Summary, &res.Story, &res.Features, &res.Reasons, &res.Advice,
		&insights, &res.AvatarURL, &res.SceneURL, &res.CreatedAt,
	)
	if err != nil {
		return domain.MBTIResult{}, err
	}
	decodeInsights(insights, &res.Insights)
	return res, nil
}

func scanDetail(row rowScanner) (domain.DetailResult, error) {
	var res domain.DetailResult
	var bf [5]float64
	var sup [3]float64
	err := row.Scan(
		&res.SessionID, &res.ResultID, &res.MBTIType,
		&bf[0], &bf[1], &bf[2], &bf[3], &bf[4],
		&sup[0], &sup[1], &sup[2],
		&res.SummaryText, &res.Story, &res.Advice, &res.AvatarURL, &res.SceneURL, &res.CreatedAt,
	)
	if err != nil {
		return domain.DetailResult{}, err
	}
	fillScores(&res, bf, sup)
	return res, nil
}

func fillScores(res *domain.DetailResult, bf [5]float64, sup [3]float64) {
	res.BigFive = domain.BigFive{
		Openness:          int(bf[0]),
		Conscientiousness: int(bf[1]),
		Extraversion:      int(bf[2]),
		Agreeableness:     int(bf[3]),
		Neuroticism:       int(bf[4]),
	}
	res.Supplements = domain.Supplements{
		StressTolerance:  int(sup[0]),
		Adaptability:     int(sup[1]),
		ValueFlexibility: int(sup[2]),
	}
}

// decodeInsights tolera filas viejas o vacias.
func decodeInsights(raw string, dst *domain.Insights) {
	if raw == "" {
		return
	}
	_ = json.Unmarshal([]byte(raw), dst)
}

func imageColumn(kind domain.ImageKind) (string, error) {
	switch kind {
	case domain.ImageAvatar:
		return "avatar_url", nil
	case domain.ImageScene:
		return "scene_url", nil
	}
	return "", errors.New("unknown image kind")
}
