package scoring

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"mbti-story/internal/domain"
)

//go:embed questions.yaml
var defaultCatalogYAML []byte

// Nombres de rasgo usados por el catalogo en la columna axis.
const (
	traitOpenness          = "openness"
	traitConscientiousness = "conscientiousness"
	traitExtraversion      = "extraversion"
	traitAgreeableness     = "agreeableness"
	traitNeuroticism       = "neuroticism"

	supplementAdaptability     = "adaptability"
	supplementValueFlexibility = "valueflexibility"
	supplementStressTolerance  = "stresstolerance"
)

// Catalog es el conjunto de preguntas indexado por id.
type Catalog struct {
	questions []domain.Question
	byID      map[string]domain.Question
}

// ParseCatalog construye un catalogo desde YAML.
func ParseCatalog(raw []byte) (Catalog, error) {
	var doc struct {
		Questions []domain.Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	c := Catalog{byID: make(map[string]domain.Question, len(doc.Questions))}
	for _, q := range doc.Questions {
		q.ID = strings.TrimSpace(q.ID)
		if q.ID == "" {
			return Catalog{}, fmt.Errorf("parse catalog: question without id")
		}
		if _, dup := c.byID[q.ID]; dup {
			return Catalog{}, fmt.Errorf("parse catalog: duplicated id %s", q.ID)
		}
		if q.Type == "" {
			q.Type = domain.QuestionScale
			if q.Section == domain.SectionOpen {
				q.Type = domain.QuestionText
			}
		}
		if (q.Section == domain.SectionMBTI || q.Section == domain.SectionBigFive) && q.Direction == 0 {
			q.Direction = 1
		}
		c.questions = append(c.questions, q)
		c.byID[q.ID] = q
	}
	return c, nil
}

// DefaultCatalog devuelve el catalogo embebido. Entra en panico si el YAML embebido es invalido.
func DefaultCatalog() Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Questions devuelve una copia de las preguntas en orden de catalogo.
func (c Catalog) Questions() []domain.Question {
	out := make([]domain.Question, len(c.questions))
	copy(out, c.questions)
	return out
}

func (c Catalog) Lookup(id string) (domain.Question, bool) {
	q, ok := c.byID[id]
	return q, ok
}

// mbtiAxis traduce "E-I" (formato del catalogo) a domain.AxisEI.
func mbtiAxis(label string) (domain.Axis, bool) {
	axis := domain.Axis(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(label)), "-", "/"))
	for _, a := range domain.AxisOrder {
		if a == axis {
			return a, true
		}
	}
	return "", false
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
