package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

// NewPool construye y devuelve un pool de conexiones configurado.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// Ping verifica conectividad con la base de datos.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.Ping(ctx)
}

// EnsurePgSchema crea las tablas si no existen.
func EnsurePgSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("ensure pg schema: %w", err)
	}
	return nil
}

// OpenSQLite abre (o crea) la base SQLite local y aplica el esquema.
// path ":memory:" sirve para tests.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)"
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// una sola conexion: evita locks y mantiene viva la base :memory:
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return conn, nil
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS user_session (
	id TEXT PRIMARY KEY,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ,
	rounds INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS conversation_log (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES user_session(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS conversation_log_session_idx ON conversation_log(session_id, seq);

CREATE TABLE IF NOT EXISTS mbti_result (
	session_id TEXT PRIMARY KEY,
	result_id TEXT NOT NULL UNIQUE,
	ei TEXT NOT NULL,
	sn TEXT NOT NULL,
	tf TEXT NOT NULL,
	jp TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	story TEXT NOT NULL DEFAULT '',
	features TEXT NOT NULL DEFAULT '',
	reasons TEXT NOT NULL DEFAULT '',
	advice TEXT NOT NULL DEFAULT '',
	insights TEXT NOT NULL DEFAULT '{}',
	avatar_url TEXT NOT NULL DEFAULT '',
	scene_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS detail_result (
	session_id TEXT PRIMARY KEY,
	result_id TEXT NOT NULL UNIQUE,
	mbti_type TEXT NOT NULL,
	openness REAL NOT NULL,
	conscientiousness REAL NOT NULL,
	extraversion REAL NOT NULL,
	agreeableness REAL NOT NULL,
	neuroticism REAL NOT NULL,
	stress_tolerance REAL NOT NULL,
	adaptability REAL NOT NULL,
	value_flexibility REAL NOT NULL,
	summary_text TEXT NOT NULL DEFAULT '',
	story TEXT NOT NULL DEFAULT '',
	advice TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	scene_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
`

// En SQLite los timestamps se guardan como milisegundos unix.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS user_session (
	id TEXT PRIMARY KEY,
	start_time INTEGER NOT NULL,
	end_time INTEGER,
	rounds INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS conversation_log (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL REFERENCES user_session(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS conversation_log_session_idx ON conversation_log(session_id, seq);

CREATE TABLE IF NOT EXISTS mbti_result (
	session_id TEXT PRIMARY KEY,
	result_id TEXT NOT NULL UNIQUE,
	ei TEXT NOT NULL,
	sn TEXT NOT NULL,
	tf TEXT NOT NULL,
	jp TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	story TEXT NOT NULL DEFAULT '',
	features TEXT NOT NULL DEFAULT '',
	reasons TEXT NOT NULL DEFAULT '',
	advice TEXT NOT NULL DEFAULT '',
	insights TEXT NOT NULL DEFAULT '{}',
	avatar_url TEXT NOT NULL DEFAULT '',
	scene_url TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS detail_result (
	session_id TEXT PRIMARY KEY,
	result_id TEXT NOT NULL UNIQUE,
	mbti_type TEXT NOT NULL,
	openness REAL NOT NULL,
	conscientiousness REAL NOT NULL,
	extraversion REAL NOT NULL,
	agreeableness REAL NOT NULL,
	neuroticism REAL NOT NULL,
	stress_tolerance REAL NOT NULL,
	adaptability REAL NOT NULL,
	value_flexibility REAL NOT NULL,
	summary_text TEXT NOT NULL DEFAULT '',
	story TEXT NOT NULL DEFAULT '',
	advice TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	scene_url TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
`
