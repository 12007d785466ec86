package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session es el estado conversacional de un usuario durante el quiz.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Messages  []Message  `json:"messages,omitempty"`
	Rounds    int        `json:"rounds"`
	Done      bool       `json:"done"`
}

type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"-"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
