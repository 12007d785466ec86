package llm

import (
	"strings"

	"go.uber.org/zap"
)

const (
	defaultGroqBaseURL  = "https://api.groq.com/openai/v1"
	defaultGroqModel    = "llama3-8b-instant"
	defaultLocalBaseURL = "http://localhost:11434/v1"
	defaultLocalModel   = "qwen2.5:0.5b-instruct"
)

// ChainConfig describe que tiers se arman. Ninguna combinacion es invalida:
// sin claves ni modelo local la cadena queda en last_resort.
type ChainConfig struct {
	PreferredProvider string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	GroqAPIKey  string
	GroqModel   string
	GroqBaseURL string

	LocalBaseURL string
	LocalModel   string
	DisableLocal bool
}

// BuildProviders arma los tiers en orden: hosted preferido, el otro hosted si tiene
// clave, y luego el modelo local o el stub disabled.
func BuildProviders(cfg ChainConfig, logger *zap.Logger) []Provider {
	hosted := map[ProviderName]Provider{}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		hosted[ProviderGemini] = Provider{
			Name:   ProviderGemini,
			Client: NewGeminiClient(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel, logger),
		}
	}
	if strings.TrimSpace(cfg.GroqAPIKey) != "" {
		base := cfg.GroqBaseURL
		if base == "" {
			base = defaultGroqBaseURL
		}
		model := cfg.GroqModel
		if model == "" {
			model = defaultGroqModel
		}
		hosted[ProviderGroq] = Provider{
			Name:   ProviderGroq,
			Client: NewHTTPClient(base, cfg.GroqAPIKey, model, logger),
		}
	}

	var out []Provider
	order := []ProviderName{ProviderGemini, ProviderGroq}
	switch ProviderName(strings.ToLower(strings.TrimSpace(cfg.PreferredProvider))) {
	case ProviderGroq:
		order = []ProviderName{ProviderGroq, ProviderGemini}
	case ProviderGemini:
	default:
		// Sin preferencia explicita no se usa ningun hosted.
		order = nil
	}
	for _, name := range order {
		if p, ok := hosted[name]; ok {
			out = append(out, p)
		}
	}

	if cfg.DisableLocal {
		return append(out, Provider{Name: ProviderDisabled, Client: staticClient{text: GenericReply}})
	}
	if strings.TrimSpace(cfg.LocalBaseURL) != "" {
		model := cfg.LocalModel
		if model == "" {
			model = defaultLocalModel
		}
		out = append(out, Provider{
			Name:   ProviderLocal,
			Client: NewHTTPClient(cfg.LocalBaseURL, "", model, logger),
		})
	}
	return out
}
