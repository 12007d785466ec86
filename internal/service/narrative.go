package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mbti-story/internal/llm"
)

// Meta registra que tier produjo cada campo del resultado ("_meta" en la respuesta).
type Meta map[string]string

const (
	metaHeuristic = "heuristic"
	metaTemplate  = "template"
)

// narrator envuelve la cadena de proveedores con los fallbacks por campo.
type narrator struct {
	generator llm.Generator
	logger    *zap.Logger
}

// text genera un campo; si el texto viene vacio o de un tier degradado usa fallback.
func (n narrator) text(ctx context.Context, field, prompt string, opts llm.Options, fallback string, meta Meta) string {
	gen := n.generator.Generate(ctx, prompt, opts)
	out := strings.TrimSpace(gen.Text)
	if out == "" || gen.Degraded() {
		n.logger.Info("narrative field uses template", zap.String("field", field), zap.String("provider", string(gen.Provider)))
		meta[field] = metaTemplate
		return fallback
	}
	meta[field] = string(gen.Provider)
	return out
}

// story pide la historia y reintenta una vez con otra consigna si la salida es
// degradada. Si el segundo intento tambien falla devuelve fallback.
func (n narrator) story(ctx context.Context, prompts []string, opts llm.Options, fallback string, meta Meta) string {
	for i, prompt := range prompts {
		gen := n.generator.Generate(ctx, prompt, opts)
		out := strings.TrimSpace(gen.Text)
		if !storyDegraded(out, gen) {
			meta["story"] = string(gen.Provider)
			return out
		}
		n.logger.Info("story degraded", zap.Int("attempt", i+1), zap.String("provider", string(gen.Provider)))
	}
	meta["story"] = metaTemplate
	return fallback
}

func storyDegraded(text string, gen llm.Generation) bool {
	return text == "" || gen.Degraded() || strings.Contains(text, llm.GenericReply)
}

func storyPrompts(first, mbtiType string) []string {
	return []string{first, fmt.Sprintf(storyRetryPromptTemplate, mbtiType)}
}
