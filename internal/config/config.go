package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
// Ninguna clave es obligatoria: sin base de datos ni proveedores el servicio
// arranca en modo degradado (memoria + respuestas deterministas).
type Config struct {
	HTTPPort    string   `env:"HTTP_PORT" envDefault:"8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH"`

	WebLLMProvider  string `env:"WEB_LLM_PROVIDER"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	GeminiModel     string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash-latest"`
	GeminiBaseURL   string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GroqAPIKey      string `env:"GROQ_API_KEY"`
	GroqModel       string `env:"GROQ_MODEL" envDefault:"llama3-8b-instant"`
	GroqBaseURL     string `env:"GROQ_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	LocalLLMBaseURL string `env:"LOCAL_LLM_BASE_URL"`
	LLMModel        string `env:"LLM_MODEL" envDefault:"qwen2.5:0.5b-instruct"`
	DisableLocalLLM bool   `env:"DISABLE_LOCAL_LLM" envDefault:"false"`

	ImageProvider     string        `env:"IMAGE_PROVIDER" envDefault:"placeholder"`
	StableHordeAPIKey string        `env:"STABLE_HORDE_API_KEY"`
	StableHordeURL    string        `env:"STABLE_HORDE_BASE_URL" envDefault:"https://stablehorde.net"`
	StableHordeModels []string      `env:"STABLE_HORDE_MODELS" envSeparator:","`
	ImageTimeout      time.Duration `env:"IMAGE_TIMEOUT" envDefault:"60s"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	OTelEnabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"mbti-story"`
}

// HordeEnabled indica si las imagenes se piden a Stable Horde.
func (c *Config) HordeEnabled() bool {
	return c.ImageProvider == "horde" || c.ImageProvider == "stablehorde"
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
