package domain

// Section agrupa las preguntas del cuestionario detallado.
type Section string

const (
	SectionMBTI       Section = "MBTI"
	SectionBigFive    Section = "BIGFIVE"
	SectionSupplement Section = "SUPPLEMENT"
	SectionOpen       Section = "OPEN"
)

// QuestionType distingue preguntas Likert de texto libre.
type QuestionType string

const (
	QuestionScale QuestionType = "scale"
	QuestionText  QuestionType = "text"
)

// Question es una entrada del catalogo estatico.
type Question struct {
	ID        string       `json:"id" yaml:"id"`
	Section   Section      `json:"section" yaml:"section"`
	Axis      string       `json:"axis,omitempty" yaml:"axis"`
	Text      string       `json:"text" yaml:"text"`
	Type      QuestionType `json:"type" yaml:"type"`
	Weight    float64      `json:"weight,omitempty" yaml:"weight"`
	Direction int          `json:"-" yaml:"direction"`
}

// Answer es la respuesta a una pregunta. Score es nil cuando no se respondio en escala.
type Answer struct {
	QuestionID string `json:"questionId"`
	Score      *int   `json:"score,omitempty"`
	Text       string `json:"text,omitempty"`
}

// LikertScore devuelve el puntaje si esta dentro de 1..5.
func (a Answer) LikertScore() (int, bool) {
	if a.Score == nil {
		return 0, false
	}
	s := *a.Score
	if s < 1 || s > 5 {
		return 0, false
	}
	return s, true
}
