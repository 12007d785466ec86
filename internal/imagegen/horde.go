// Package imagegen habla con la cola de Stable Horde y dibuja los placeholders
// que se sirven cuando la cola no responde.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"mbti-story/internal/observability"
)

const (
	defaultHordeBaseURL = "https://stablehorde.net"
	anonymousAPIKey     = "0000000000"
	clientAgent         = "mbti-story/1.0 (StableHorde)"

	defaultSize        = 768
	minSize            = 64
	maxSize            = 1536
	defaultSteps       = 20
	defaultCfgScale    = 7.0
	defaultSampler     = "k_euler_a"
	defaultMIME        = "image/webp"
	defaultTimeout     = 60 * time.Second
	defaultMinInterval = time.Second
	defaultWaitTime    = 2 * time.Second
)

var (
	ErrJobTimeout = errors.New("horde generation timed out")
	ErrNoImage    = errors.New("horde returned no image")
)

// Request describe un job de generacion. Los valores cero toman los defaults.
type Request struct {
	Prompt   string
	Width    int
	Height   int
	Steps    int
	CfgScale float64
	Models   []string
}

// Image es el resultado decodificado de un job.
type Image struct {
	Bytes      []byte
	MIME       string
	ID         string
	Polls      int
	WaitedSecs int
}

type HordeConfig struct {
	BaseURL     string
	APIKey      string
	Models      []string
	Timeout     time.Duration
	MinInterval time.Duration
}

// HordeClient ejecuta submit → poll → fetch contra la API async de Stable Horde.
type HordeClient struct {
	baseURL     string
	apiKey      string
	models      []string
	timeout     time.Duration
	minInterval time.Duration
	client      *http.Client
	progress    ProgressStore
	logger      *zap.Logger
	now         func() time.Time
}

func NewHordeClient(cfg HordeConfig, progress ProgressStore, logger *zap.Logger) *HordeClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultHordeBaseURL
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		cfg.APIKey = anonymousAPIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}
	if progress == nil {
		progress = NewMemoryProgressStore(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HordeClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		models:      cfg.Models,
		timeout:     cfg.Timeout,
		minInterval: cfg.MinInterval,
		client:      &http.Client{Timeout: 30 * time.Second},
		progress:    progress,
		logger:      logger,
		now:         time.Now,
	}
}

// Generate corre el job completo y registra cada transicion bajo progressKey.
// Cualquier error deja el progreso en "error" con el mensaje.
func (c *HordeClient) Generate(ctx context.Context, req Request, progressKey string) (Image, error) {
	ctx, span := observability.Tracer().Start(ctx, "horde.generate")
	defer span.End()

	img, err := c.generate(ctx, req, progressKey)
	if err != nil {
		span.RecordError(err)
		c.setProgress(ctx, progressKey, Progress{Status: StatusError, ID: img.ID, Message: err.Error()})
		c.logger.Warn("horde generation failed", zap.String("progressKey", progressKey), zap.Error(err))
		return Image{}, err
	}
	span.SetAttributes(attribute.String("horde.job_id", img.ID), attribute.Int("horde.polls", img.Polls))
	return img, nil
}

func (c *HordeClient) generate(ctx context.Context, req Request, progressKey string) (Image, error) {
	id, err := c.Submit(ctx, req)
	if err != nil {
		return Image{}, err
	}
	c.setProgress(ctx, progressKey, Progress{Status: StatusSubmitted, ID: id})

	start := c.now()
	polls, err := c.Poll(ctx, id, progressKey)
	if err != nil {
		return Image{ID: id}, err
	}
	img, err := c.Fetch(ctx, id)
	if err != nil {
		return Image{ID: id}, err
	}
	img.Polls = polls
	img.WaitedSecs = int(c.now().Sub(start).Round(time.Second) / time.Second)
	c.setProgress(ctx, progressKey, Progress{Status: StatusDone, ID: id, Polls: polls, WaitedSecs: img.WaitedSecs})
	c.logger.Info("horde done",
		zap.String("id", id),
		zap.String("progressKey", progressKey),
		zap.Int("polls", polls),
		zap.Int("waitedSecs", img.WaitedSecs),
		zap.String("mime", img.MIME),
	)
	return img, nil
}

// Submit encola el job y devuelve su id.
func (c *HordeClient) Submit(ctx context.Context, req Request) (string, error) {
	models := req.Models
	if len(models) == 0 {
		models = c.models
	}
	body := submitRequest{
		Prompt: req.Prompt,
		Params: submitParams{
			Width:       normalizeSize(req.Width),
			Height:      normalizeSize(req.Height),
			Steps:       req.Steps,
			CfgScale:    req.CfgScale,
			SamplerName: defaultSampler,
			N:           1,
		},
		Models:     models,
		NSFW:       false,
		CensorNSFW: true,
	}
	if body.Params.Steps <= 0 {
		body.Params.Steps = defaultSteps
	}
	if body.Params.CfgScale <= 0 {
		body.Params.CfgScale = defaultCfgScale
	}

	var out struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v2/generate/async", body, &out); err != nil {
		return "", fmt.Errorf("horde submit: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("horde submit missing id")
	}
	c.logger.Info("horde submitted",
		zap.String("id", out.ID),
		zap.String("size", fmt.Sprintf("%dx%d", body.Params.Width, body.Params.Height)),
		zap.Int("steps", body.Params.Steps),
	)
	return out.ID, nil
}

// Poll consulta check/{id} hasta que el job termina o vence el timeout.
// Devuelve la cantidad de consultas hechas.
func (c *HordeClient) Poll(ctx context.Context, id, progressKey string) (int, error) {
	start := c.now()
	polls := 0
	for {
		var ch struct {
			Done     bool     `json:"done"`
			Faulted  bool     `json:"faulted"`
			WaitTime *float64 `json:"wait_time"`
		}
		if err := c.do(ctx, http.MethodGet, "/api/v2/generate/check/"+id, nil, &ch); err != nil {
			return polls, fmt.Errorf("horde check: %w", err)
		}
		polls++
		c.setProgress(ctx, progressKey, Progress{Status: StatusChecking, ID: id, Polls: polls})
		c.logger.Debug("horde checking",
			zap.String("id", id),
			zap.Int("polls", polls),
			zap.Bool("done", ch.Done),
		)
		if ch.Done {
			return polls, nil
		}
		if ch.Faulted {
			return polls, errors.New("horde job faulted")
		}
		if c.now().Sub(start) > c.timeout {
			return polls, ErrJobTimeout
		}

		wait := defaultWaitTime
		if ch.WaitTime != nil {
			wait = time.Duration(*ch.WaitTime * float64(time.Second))
		}
		if wait < c.minInterval {
			wait = c.minInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return polls, ctx.Err()
		case <-timer.C:
		}
	}
}

// Fetch descarga la primera generacion del job ya terminado.
func (c *HordeClient) Fetch(ctx context.Context, id string) (Image, error) {
	var st struct {
		Generations []struct {
			Img  string `json:"img"`
			Mime string `json:"mime"`
		} `json:"generations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v2/generate/status/"+id, nil, &st); err != nil {
		return Image{}, fmt.Errorf("horde status: %w", err)
	}
	if len(st.Generations) == 0 || st.Generations[0].Img == "" {
		return Image{}, ErrNoImage
	}
	gen := st.Generations[0]
	raw, err := base64.StdEncoding.DecodeString(gen.Img)
	if err != nil {
		return Image{}, fmt.Errorf("horde decode image: %w", err)
	}
	mime := gen.Mime
	if mime == "" {
		mime = defaultMIME
	}
	return Image{Bytes: raw, MIME: mime, ID: id}, nil
}

func (c *HordeClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Client-Agent", clientAgent)
	req.Header.Set("Cache-Control", "no-store")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d", resp.StatusCode)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (c *HordeClient) setProgress(ctx context.Context, key string, p Progress) {
	if key == "" {
		return
	}
	p.UpdatedAt = c.now().UnixMilli()
	// el progreso no debe cortarse si el request original ya se cancelo
	if err := c.progress.Set(context.WithoutCancel(ctx), key, p); err != nil {
		c.logger.Warn("progress store set failed", zap.String("progressKey", key), zap.Error(err))
	}
}

// normalizeSize redondea al multiplo de 64 mas cercano dentro de [64,1536].
func normalizeSize(v int) int {
	if v <= 0 {
		v = defaultSize
	}
	rounded := int(float64(v)/64+0.5) * 64
	if rounded < minSize {
		return minSize
	}
	if rounded > maxSize {
		return maxSize
	}
	return rounded
}

type submitRequest struct {
	Prompt     string       `json:"prompt"`
	Params     submitParams `json:"params"`
	Models     []string     `json:"models,omitempty"`
	NSFW       bool         `json:"nsfw"`
	CensorNSFW bool         `json:"censor_nsfw"`
}

type submitParams struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Steps       int     `json:"steps"`
	CfgScale    float64 `json:"cfg_scale"`
	SamplerName string  `json:"sampler_name"`
	N           int     `json:"n"`
}
