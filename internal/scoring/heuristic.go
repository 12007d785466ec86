package scoring

import (
	"encoding/json"
	"regexp"
	"strings"

	"mbti-story/internal/domain"
	"mbti-story/internal/textutil"
)

// axisCue agrupa las pistas lexicas de un eje. plus suma +1 y minus resta 1,
// una sola vez por patron sin importar cuantas veces aparezca.
type axisCue struct {
	axis  domain.Axis
	plus  *regexp.Regexp
	minus *regexp.Regexp
	// plusLetter/minusLetter: en S/N el puntaje positivo corresponde a N.
	plusLetter  string
	minusLetter string
}

var axisCues = []axisCue{
	{
		axis:        domain.AxisEI,
		plus:        regexp.MustCompile(`友|集まり|話す|人と|イベント|外出`),
		minus:       regexp.MustCompile(`一人|静か|内省|家で|読書|落ち着く`),
		plusLetter:  "E",
		minusLetter: "I",
	},
	{
		axis:        domain.AxisSN,
		plus:        regexp.MustCompile(`概念|可能性|想像|直観|アイデア`),
		minus:       regexp.MustCompile(`具体|現実|事実|実務|手順|体験`),
		plusLetter:  "N",
		minusLetter: "S",
	},
	{
		axis:        domain.AxisTF,
		plus:        regexp.MustCompile(`論理|効率|公平|ルール|分析`),
		minus:       regexp.MustCompile(`気持ち|共感|人間関係|優しさ|思いやり`),
		plusLetter:  "T",
		minusLetter: "F",
	},
	{
		axis:        domain.AxisJP,
		plus:        regexp.MustCompile(`計画|締め切り|整理|先回り|スケジュール`),
		minus:       regexp.MustCompile(`柔軟|臨機応変|流れ|即興|気分`),
		plusLetter:  "J",
		minusLetter: "P",
	},
}

// EstimateAxes estima los ejes MBTI a partir de la transcripcion sin llamar a un modelo.
// Un puntaje de 0 se resuelve hacia el polo "plus" (E, N, T, J).
func EstimateAxes(transcript string) domain.Axes {
	lower := strings.ToLower(transcript)
	var axes domain.Axes
	for _, cue := range axisCues {
		score := 0
		if cue.plus.MatchString(lower) {
			score++
		}
		if cue.minus.MatchString(lower) {
			score--
		}
		letter := cue.plusLetter
		if score < 0 {
			letter = cue.minusLetter
		}
		axes.Set(cue.axis, letter)
	}
	return axes
}

// ParseAxes extrae {"E/I": "E", ...} de la salida de un modelo. Devuelve false
// si falta algun eje o alguna letra no corresponde al eje.
func ParseAxes(text string) (domain.Axes, bool) {
	candidate := textutil.ExtractFirstJSONObject(text)
	if candidate == "" {
		return domain.Axes{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return domain.Axes{}, false
	}
	var axes domain.Axes
	for _, axis := range domain.AxisOrder {
		v, ok := raw[string(axis)].(string)
		if !ok {
			return domain.Axes{}, false
		}
		letter := strings.ToUpper(strings.TrimSpace(v))
		if !axis.Valid(letter) {
			return domain.Axes{}, false
		}
		axes.Set(axis, letter)
	}
	return axes, true
}
