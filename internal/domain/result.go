package domain

import "time"

// BigFive contiene los cinco rasgos en escala 0-100.
type BigFive struct {
	Openness          int `json:"openness"`
	Conscientiousness int `json:"conscientiousness"`
	Extraversion      int `json:"extraversion"`
	Agreeableness     int `json:"agreeableness"`
	Neuroticism       int `json:"neuroticism"`
}

// Supplements son los puntajes auxiliares del cuestionario detallado (0-100, 50 por defecto).
type Supplements struct {
	StressTolerance  int `json:"stressTolerance"`
	Adaptability     int `json:"adaptability"`
	ValueFlexibility int `json:"valueFlexibility"`
}

// Insights es la salida estructurada de fortalezas, precauciones y consejo.
type Insights struct {
	Strengths string `json:"strengths"`
	Cautions  string `json:"cautions"`
	Advice    string `json:"advice"`
}

// MBTIResult es el resultado persistido del flujo conversacional.
type MBTIResult struct {
	SessionID string    `json:"session_id"`
	ResultID  string    `json:"result_id"`
	Axes      Axes      `json:"axes"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Story     string    `json:"story"`
	Features  string    `json:"features"`
	Reasons   string    `json:"reasons"`
	Advice    string    `json:"advice"`
	Insights  Insights  `json:"insights"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	SceneURL  string    `json:"scene_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DetailResult es el resultado persistido del cuestionario de 30 preguntas.
type DetailResult struct {
	SessionID   string      `json:"session_id"`
	ResultID    string      `json:"result_id"`
	MBTIType    string      `json:"mbti_type"`
	BigFive     BigFive     `json:"bigFive"`
	Supplements Supplements `json:"supplements"`
	SummaryText string      `json:"summaryText"`
	Story       string      `json:"story"`
	Advice      string      `json:"advice"`
	AvatarURL   string      `json:"avatar_url,omitempty"`
	SceneURL    string      `json:"scene_url,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ImageKind distingue las dos ilustraciones de un resultado.
type ImageKind string

const (
	ImageAvatar ImageKind = "avatar"
	ImageScene  ImageKind = "scene"
)
