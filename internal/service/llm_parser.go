package service

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"mbti-story/internal/domain"
	"mbti-story/internal/textutil"
)

// InsightsSource indica por que camino se obtuvieron los insights.
type InsightsSource string

const (
	InsightsFromJSON   InsightsSource = "json"
	InsightsFromFields InsightsSource = "json_fields"
	InsightsFromLabels InsightsSource = "labels"
	InsightsFromRaw    InsightsSource = "raw"
)

var (
	insightFieldRe = map[string]*regexp.Regexp{
		"strengths": regexp.MustCompile(`(?is)"strengths"\s*:\s*"((?:\\.|[^"\\])*)"`),
		"cautions":  regexp.MustCompile(`(?is)"cautions"\s*:\s*"((?:\\.|[^"\\])*)"`),
		"advice":    regexp.MustCompile(`(?is)"advice"\s*:\s*"((?:\\.|[^"\\])*)"`),
	}
	labelRe = regexp.MustCompile(`【(強み|注意点|アドバイス)】`)
)

// ParseInsights interpreta la salida del modelo para strengths/cautions/advice.
// Orden: JSON estricto, campos sueltos por regex, etiquetas 【…】 y por ultimo
// el texto crudo como advice. Devuelve false solo si raw esta vacio.
func ParseInsights(raw string) (domain.Insights, InsightsSource, bool) {
	if strings.TrimSpace(raw) == "" {
		return domain.Insights{}, "", false
	}

	if obj := textutil.ExtractFirstJSONObject(raw); obj != "" {
		var tmp domain.Insights
		if err := json.Unmarshal([]byte(obj), &tmp); err == nil && !insightsEmpty(tmp) {
			return trimInsights(tmp), InsightsFromJSON, true
		}
	}

	var byRegex domain.Insights
	byRegex.Strengths, _ = extractFieldByRegex(raw, "strengths")
	byRegex.Cautions, _ = extractFieldByRegex(raw, "cautions")
	byRegex.Advice, _ = extractFieldByRegex(raw, "advice")
	if !insightsEmpty(byRegex) {
		return byRegex, InsightsFromFields, true
	}

	if labeled, ok := extractLabeledSections(raw); ok {
		return labeled, InsightsFromLabels, true
	}

	return domain.Insights{Advice: strings.TrimSpace(textutil.CleanJSONResponse(raw))}, InsightsFromRaw, true
}

// extractFieldByRegex toma el valor de un campo aunque el JSON este cortado o sucio.
func extractFieldByRegex(s, field string) (string, bool) {
	re, ok := insightFieldRe[field]
	if !ok {
		return "", false
	}
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return "", false
	}
	unq, err := strconv.Unquote(`"` + m[1] + `"`)
	if err != nil {
		unq = unescapeMinimalEscapes(m[1])
	}
	unq = strings.TrimSpace(unq)
	return unq, unq != ""
}

// extractLabeledSections corta el texto en las secciones 【強み】【注意点】【アドバイス】.
func extractLabeledSections(s string) (domain.Insights, bool) {
	locs := labelRe.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return domain.Insights{}, false
	}
	var out domain.Insights
	for i, loc := range locs {
		label := s[loc[2]:loc[3]]
		end := len(s)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(s[loc[1]:end])
		switch label {
		case "強み":
			out.Strengths = body
		case "注意点":
			out.Cautions = body
		case "アドバイス":
			out.Advice = body
		}
	}
	return out, !insightsEmpty(out)
}

func insightsEmpty(in domain.Insights) bool {
	return strings.TrimSpace(in.Strengths) == "" &&
		strings.TrimSpace(in.Cautions) == "" &&
		strings.TrimSpace(in.Advice) == ""
}

func trimInsights(in domain.Insights) domain.Insights {
	return domain.Insights{
		Strengths: strings.TrimSpace(in.Strengths),
		Cautions:  strings.TrimSpace(in.Cautions),
		Advice:    strings.TrimSpace(in.Advice),
	}
}

func unescapeMinimalEscapes(s string) string {
	replacer := strings.NewReplacer(
		`\\`, `\`,
		`\"`, `"`,
		`\n`, "\n",
		`\r`, "\r",
		`\t`, "\t",
	)
	return replacer.Replace(s)
}
