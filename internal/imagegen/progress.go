package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status es el estado de un job de imagen visto desde el frontend.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSubmitted Status = "submitted"
	StatusChecking  Status = "checking"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

const defaultProgressTTL = 30 * time.Minute

// Progress es lo que devuelve /image/progress. UpdatedAt va en milisegundos unix.
type Progress struct {
	Status     Status `json:"status"`
	ID         string `json:"id,omitempty"`
	Polls      int    `json:"polls,omitempty"`
	WaitedSecs int    `json:"waitedSecs,omitempty"`
	Message    string `json:"message,omitempty"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// IdleProgress es la respuesta para claves desconocidas.
func IdleProgress(now time.Time) Progress {
	return Progress{Status: StatusIdle, UpdatedAt: now.UnixMilli()}
}

// ProgressStore guarda el ultimo estado por clave de progreso.
type ProgressStore interface {
	Set(ctx context.Context, key string, p Progress) error
	Get(ctx context.Context, key string) (Progress, bool, error)
}

type memoryProgressStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memoryProgressEntry
}

type memoryProgressEntry struct {
	progress Progress
	expires  time.Time
}

// NewMemoryProgressStore guarda el progreso en memoria del proceso.
func NewMemoryProgressStore(ttl time.Duration) ProgressStore {
	if ttl <= 0 {
		ttl = defaultProgressTTL
	}
	return &memoryProgressStore{ttl: ttl, items: make(map[string]memoryProgressEntry)}
}

func (s *memoryProgressStore) Set(_ context.Context, key string, p Progress) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.items[key] = memoryProgressEntry{progress: p, expires: now.Add(s.ttl)}
	// limpieza oportunista de entradas vencidas
	for k, e := range s.items {
		if now.After(e.expires) {
			delete(s.items, k)
		}
	}
	return nil
}

func (s *memoryProgressStore) Get(_ context.Context, key string) (Progress, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok {
		return Progress{}, false, nil
	}
	if time.Now().After(e.expires) {
		delete(s.items, key)
		return Progress{}, false, nil
	}
	return e.progress, true, nil
}

// redisKV es el subconjunto de go-redis que usa el store.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type redisProgressStore struct {
	client redisKV
	prefix string
	ttl    time.Duration
}

// NewRedisProgressStore comparte el progreso entre replicas.
func NewRedisProgressStore(client redisKV, ttl time.Duration) ProgressStore {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultProgressTTL
	}
	return &redisProgressStore{client: client, prefix: "image:progress:", ttl: ttl}
}

func (s *redisProgressStore) Set(ctx context.Context, key string, p Progress) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Set(ctx, s.prefix+key, raw, s.ttl).Err()
}

func (s *redisProgressStore) Get(ctx context.Context, key string) (Progress, bool, error) {
	if strings.TrimSpace(key) == "" {
		return Progress{}, false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Progress{}, false, nil
	}
	if err != nil {
		return Progress{}, false, err
	}
	var p Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return Progress{}, false, err
	}
	return p, true, nil
}
