// Package scoring calcula tipo MBTI, Big Five y puntajes auxiliares a partir de respuestas Likert.
// Todas las funciones son puras: sin I/O y sin estado oculto.
package scoring

import (
	"encoding/json"
	"math"
	"regexp"

	"mbti-story/internal/domain"
	"mbti-story/internal/textutil"
)

const (
	// openTextLimit recorta el texto libre antes de buscar palabras clave.
	openTextLimit = 500
	// anxietyBonus se suma a neuroticism cuando el texto libre expresa ansiedad.
	anxietyBonus      = 10
	defaultSupplement = 50
	openTextQuestion  = "C31"
)

var anxietyPattern = regexp.MustCompile(`不安|心配|緊張`)

// AxisScore acumula la suma ponderada con signo y el peso total de un eje.
type AxisScore struct {
	Sum    float64 `json:"sum"`
	Weight float64 `json:"weight"`
}

// Value devuelve Sum/Weight, o 0 si el eje no recibio peso.
func (s AxisScore) Value() float64 {
	if s.Weight == 0 {
		return 0
	}
	return s.Sum / s.Weight
}

// Letter resuelve el polo del eje. Los empates (incluido peso cero) favorecen al polo positivo.
func (s AxisScore) Letter(axis domain.Axis) string {
	pos, neg := axis.Letters()
	if s.Value() >= 0 {
		return pos
	}
	return neg
}

// Outcome es el resultado completo del calculo.
type Outcome struct {
	AxisScores  map[domain.Axis]AxisScore `json:"axisScores"`
	Axes        domain.Axes               `json:"axes"`
	MBTIType    string                    `json:"mbti_type"`
	BigFive     domain.BigFive            `json:"bigFive"`
	Supplements domain.Supplements        `json:"supplements"`
	OpenText    string                    `json:"openText,omitempty"`
}

// DecodeAnswers interpreta el payload {"answers": [...]} o una lista directa.
// Un payload malformado produce una lista vacia, nunca un error.
func DecodeAnswers(raw []byte) []domain.Answer {
	var wrapped struct {
		Answers []domain.Answer `json:"answers"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Answers != nil {
		return wrapped.Answers
	}
	var list []domain.Answer
	if err := json.Unmarshal(raw, &list); err == nil && list != nil {
		return list
	}
	return []domain.Answer{}
}

// Score aplica el catalogo a las respuestas.
func Score(answers []domain.Answer, catalog Catalog) Outcome {
	axisScores := make(map[domain.Axis]AxisScore, len(domain.AxisOrder))
	for _, axis := range domain.AxisOrder {
		axisScores[axis] = AxisScore{}
	}
	traitSum := map[string]int{}
	traitCount := map[string]int{}
	supplements := domain.Supplements{
		StressTolerance:  defaultSupplement,
		Adaptability:     defaultSupplement,
		ValueFlexibility: defaultSupplement,
	}
	openText := ""

	for _, a := range answers {
		q, ok := catalog.Lookup(a.QuestionID)
		if !ok {
			continue
		}
		if q.Section == domain.SectionOpen {
			if q.ID == openTextQuestion && openText == "" {
				openText = textutil.TruncateRunes(a.Text, openTextLimit)
			}
			continue
		}
		score, ok := a.LikertScore()
		if !ok {
			continue
		}
		switch q.Section {
		case domain.SectionMBTI:
			axis, ok := mbtiAxis(q.Axis)
			if !ok {
				continue
			}
			weight := q.Weight
			if weight == 0 {
				weight = 1
			}
			v := (float64(score-3) / 2) * float64(q.Direction) * weight
			s := axisScores[axis]
			s.Sum += v
			s.Weight += weight
			axisScores[axis] = s
		case domain.SectionBigFive:
			trait := normalizeLabel(q.Axis)
			if q.Direction < 0 {
				score = 6 - score
			}
			traitSum[trait] += score
			traitCount[trait]++
		case domain.SectionSupplement:
			value := LinearPercent(score)
			switch normalizeLabel(q.Axis) {
			case supplementAdaptability:
				supplements.Adaptability = value
			case supplementValueFlexibility:
				supplements.ValueFlexibility = value
			case supplementStressTolerance:
				supplements.StressTolerance = value
			}
		}
	}

	var axes domain.Axes
	for _, axis := range domain.AxisOrder {
		axes.Set(axis, axisScores[axis].Letter(axis))
	}

	bigFive := domain.BigFive{
		Openness:          TraitPercent(traitSum[traitOpenness], traitCount[traitOpenness]),
		Conscientiousness: TraitPercent(traitSum[traitConscientiousness], traitCount[traitConscientiousness]),
		Extraversion:      TraitPercent(traitSum[traitExtraversion], traitCount[traitExtraversion]),
		Agreeableness:     TraitPercent(traitSum[traitAgreeableness], traitCount[traitAgreeableness]),
		Neuroticism:       TraitPercent(traitSum[traitNeuroticism], traitCount[traitNeuroticism]),
	}
	if anxietyPattern.MatchString(openText) {
		bigFive.Neuroticism = clampPercent(bigFive.Neuroticism + anxietyBonus)
	}

	return Outcome{
		AxisScores:  axisScores,
		Axes:        axes,
		MBTIType:    axes.Type(),
		BigFive:     bigFive,
		Supplements: supplements,
		OpenText:    openText,
	}
}

// TraitPercent convierte la suma de respuestas 1..5 en 0..100.
// Sin respuestas la media se toma como 0, que queda recortada a 0.
func TraitPercent(sum, count int) int {
	div := count
	if div == 0 {
		div = 1
	}
	mean := float64(sum) / float64(div)
	return clampPercent(int(math.Round(clamp01((mean-1)/4) * 100)))
}

// LinearPercent reescala una respuesta 1..5 a 0..100.
func LinearPercent(score int) int {
	return clampPercent(int(math.Round(float64(score-1) / 4 * 100)))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
