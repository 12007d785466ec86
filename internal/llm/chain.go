package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mbti-story/internal/metrics"
	"mbti-story/internal/observability"
)

// ProviderName identifica el tier que produjo un texto.
type ProviderName string

const (
	ProviderGemini     ProviderName = "gemini"
	ProviderGroq       ProviderName = "groq"
	ProviderLocal      ProviderName = "local"
	ProviderDisabled   ProviderName = "disabled"
	ProviderLastResort ProviderName = "last_resort"
)

// GenericReply es la respuesta fija de los tiers disabled y last_resort.
const GenericReply = "了解しました。もう少し詳しく教えてください。"

var ErrEmptyResponse = errors.New("llm empty response")

// Provider es un tier de la cadena.
type Provider struct {
	Name   ProviderName
	Client LLMClient
}

// Generation es el texto producido junto con el tier que lo sirvio.
type Generation struct {
	Text     string       `json:"text"`
	Provider ProviderName `json:"provider"`
}

// Degraded indica que el texto no vino de un modelo real.
func (g Generation) Degraded() bool {
	return g.Provider == ProviderDisabled || g.Provider == ProviderLastResort
}

// Generator es lo que consumen los servicios.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) Generation
}

// Chain prueba los providers en orden y devuelve el primer texto no vacio.
// El ultimo tier siempre es last_resort, por lo que Generate nunca falla.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewChain(providers []Provider, logger *zap.Logger, m *metrics.Metrics) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	ps := make([]Provider, 0, len(providers)+1)
	for _, p := range providers {
		if p.Client == nil || p.Name == ProviderLastResort {
			continue
		}
		ps = append(ps, p)
	}
	ps = append(ps, Provider{Name: ProviderLastResort, Client: lastResortClient{}})
	return &Chain{providers: ps, logger: logger, metrics: m}
}

// Names devuelve el orden efectivo de la cadena.
func (c *Chain) Names() []ProviderName {
	out := make([]ProviderName, len(c.providers))
	for i, p := range c.providers {
		out[i] = p.Name
	}
	return out
}

func (c *Chain) Generate(ctx context.Context, prompt string, opts Options) Generation {
	ctx, span := observability.Tracer().Start(ctx, "llm.generate")
	defer span.End()

	for _, p := range c.providers {
		start := time.Now()
		text, err := p.Client.Generate(ctx, prompt, opts)
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrEmptyResponse
		}
		elapsed := time.Since(start)
		c.metrics.ObserveLLM(string(p.Name), err == nil, elapsed)
		if err != nil {
			c.logger.Warn("llm provider failed",
				zap.String("provider", string(p.Name)),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
			span.AddEvent("provider_failed", trace.WithAttributes(attribute.String("llm.provider", string(p.Name))))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		c.logger.Debug("llm provider served",
			zap.String("provider", string(p.Name)),
			zap.Duration("elapsed", elapsed),
		)
		span.SetAttributes(attribute.String("llm.provider", string(p.Name)))
		return Generation{Text: text, Provider: p.Name}
	}

	// Solo se llega aca si el contexto se cancelo antes de last_resort.
	span.SetStatus(codes.Error, "context done")
	text, _ := lastResortClient{}.Generate(ctx, prompt, opts)
	return Generation{Text: text, Provider: ProviderLastResort}
}

// staticClient devuelve siempre el mismo texto. Es el tier disabled.
type staticClient struct {
	text string
}

func (s staticClient) Generate(context.Context, string, Options) (string, error) {
	return s.text, nil
}

// lastResortClient responde sin ningun modelo y nunca devuelve una cadena vacia.
type lastResortClient struct{}

func (lastResortClient) Generate(context.Context, string, Options) (string, error) {
	return GenericReply, nil
}
