package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"mbti-story/internal/domain"
)

// Implementaciones en memoria: se usan cuando no hay base configurada o alcanzable,
// y en tests. No sobreviven a un reinicio.

type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]*domain.Session)}
}

func (r *MemorySessionRepository) Ensure(_ context.Context, id string, startedAt time.Time) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		s = &domain.Session{ID: id, StartedAt: startedAt.UTC()}
		r.sessions[id] = s
	}
	return cloneSession(s), nil
}

func (r *MemorySessionRepository) GetByID(_ context.Context, id string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	return cloneSession(s), nil
}

func (r *MemorySessionRepository) AppendMessage(_ context.Context, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[msg.SessionID]
	if !ok {
		return ErrNotFound
	}
	s.Messages = append(s.Messages, msg)
	return nil
}

func (r *MemorySessionRepository) IncrementRound(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return 0, ErrNotFound
	}
	s.Rounds++
	return s.Rounds, nil
}

func (r *MemorySessionRepository) MarkDone(_ context.Context, id string, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.EndedAt == nil {
		t := endedAt.UTC()
		s.EndedAt = &t
	}
	s.Done = true
	return nil
}

func cloneSession(s *domain.Session) domain.Session {
	out := *s
	out.Messages = append([]domain.Message(nil), s.Messages...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	return out
}

type MemoryResultRepository struct {
	mu     sync.Mutex
	mbti   map[string]domain.MBTIResult
	detail map[string]domain.DetailResult
}

func NewMemoryResultRepository() *MemoryResultRepository {
	return &MemoryResultRepository{
		mbti:   make(map[string]domain.MBTIResult),
		detail: make(map[string]domain.DetailResult),
	}
}

func (r *MemoryResultRepository) SaveMBTI(_ context.Context, res domain.MBTIResult) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.mbti[res.SessionID]; ok {
		res.ResultID = prev.ResultID
		res.CreatedAt = prev.CreatedAt
	}
	r.mbti[res.SessionID] = res
	return res.ResultID, nil
}

func (r *MemoryResultRepository) GetMBTI(_ context.Context, id string) (domain.MBTIResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.mbti[id]; ok {
		return res, nil
	}
	for _, res := range r.mbti {
		if res.ResultID == id {
			return res, nil
		}
	}
	return domain.MBTIResult{}, ErrNotFound
}

func (r *MemoryResultRepository) ListMBTI(_ context.Context, limit int) ([]domain.MBTIResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.MBTIResult, 0, len(r.mbti))
	for _, res := range r.mbti {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n := ClampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (r *MemoryResultRepository) SaveDetail(_ context.Context, res domain.DetailResult) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.detail[res.SessionID]; ok {
		res.ResultID = prev.ResultID
		res.CreatedAt = prev.CreatedAt
	}
	r.detail[res.SessionID] = res
	return res.ResultID, nil
}

func (r *MemoryResultRepository) GetDetail(_ context.Context, id string) (domain.DetailResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.detail[id]; ok {
		return res, nil
	}
	for _, res := range r.detail {
		if res.ResultID == id {
			return res, nil
		}
	}
	return domain.DetailResult{}, ErrNotFound
}

func (r *MemoryResultRepository) ListDetail(_ context.Context, limit int) ([]domain.DetailResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.DetailResult, 0, len(r.detail))
	for _, res := range r.detail {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n := ClampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (r *MemoryResultRepository) UpdateImage(_ context.Context, id string, kind domain.ImageKind, url string) error {
	if _, err := imageColumn(kind); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for key, res := range r.mbti {
		if key == id || res.ResultID == id {
			setImage(&res.AvatarURL, &res.SceneURL, kind, url)
			r.mbti[key] = res
			found = true
		}
	}
	for key, res := range r.detail {
		if key == id || res.ResultID == id {
			setImage(&res.AvatarURL, &res.SceneURL, kind, url)
			r.detail[key] = res
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func setImage(avatar, scene *string, kind domain.ImageKind, url string) {
	if kind == domain.ImageAvatar {
		*avatar = url
		return
	}
	*scene = url
}
