package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mbti-story/internal/domain"
	"mbti-story/internal/imagegen"
	"mbti-story/internal/metrics"
	"mbti-story/internal/repository"
)

const defaultImageType = "MB"

// Formatos del placeholder.
const (
	FormatSVG = "svg"
	FormatPNG = "png"
)

// ImageGenerator es el proveedor externo (Stable Horde en produccion).
type ImageGenerator interface {
	Generate(ctx context.Context, req imagegen.Request, progressKey string) (imagegen.Image, error)
}

// ImageRequest son los parametros de /image/avatar y /image/scene.
type ImageRequest struct {
	Kind        domain.ImageKind
	ResultID    string
	Type        string
	Title       string
	ProgressKey string
	Force       bool
	Format      string
}

// ImageSource indica de donde salieron los bytes servidos.
type ImageSource string

const (
	ImageFromCache       ImageSource = "cache"
	ImageFromProvider    ImageSource = "provider"
	ImageFromPlaceholder ImageSource = "placeholder"
)

// ImageResponse son los bytes listos para escribir en la respuesta.
type ImageResponse struct {
	Bytes       []byte
	ContentType string
	Source      ImageSource
}

// ImageService sirve las ilustraciones de un resultado: cache, proveedor o placeholder.
type ImageService struct {
	results  repository.ResultRepository
	provider ImageGenerator
	progress imagegen.ProgressStore
	metrics  *metrics.Metrics
	logger   *zap.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewImageService recibe provider nil cuando la generacion externa esta deshabilitada.
// progress es el mismo store que usa el proveedor; puede ser nil.
func NewImageService(results repository.ResultRepository, provider ImageGenerator, progress imagegen.ProgressStore, m *metrics.Metrics, logger *zap.Logger) *ImageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageService{
		results:  results,
		provider: provider,
		progress: progress,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// flightResult es lo que comparte un job deduplicado con todos sus clientes.
type flightResult struct {
	image       imagegen.Image
	progressKey string
}

// imageTarget es el resultado al que pertenece la imagen, si se encontro.
type imageTarget struct {
	resultID string
	typ      string
	title    string
	features string
	bigFive  *domain.BigFive
	cached   string
}

// Serve nunca falla por culpa del proveedor: ante cualquier error devuelve el placeholder.
func (s *ImageService) Serve(ctx context.Context, req ImageRequest) (ImageResponse, error) {
	if req.Kind != domain.ImageAvatar && req.Kind != domain.ImageScene {
		return ImageResponse{}, fmt.Errorf("%w: unknown image kind %q", ErrInvalidInput, req.Kind)
	}
	target := s.lookup(ctx, req)
	kind := string(req.Kind)

	if !req.Force && imagegen.IsDataURL(target.cached) {
		mime, data, err := imagegen.DecodeDataURL(target.cached)
		if err == nil {
			s.metrics.ObserveImageCache(kind, true)
			return ImageResponse{Bytes: data, ContentType: mime, Source: ImageFromCache}, nil
		}
		s.logger.Warn("cached image is corrupt", zap.String("result_id", target.resultID), zap.Error(err))
	}
	s.metrics.ObserveImageCache(kind, false)

	if s.provider != nil {
		img, err := s.generate(ctx, req, target)
		if err == nil {
			s.metrics.ObserveImageJob(kind, "ok")
			return ImageResponse{Bytes: img.Bytes, ContentType: img.MIME, Source: ImageFromProvider}, nil
		}
		s.metrics.ObserveImageJob(kind, "error")
		s.logger.Warn("image provider failed, serving placeholder",
			zap.String("kind", kind),
			zap.String("result_id", target.resultID),
			zap.Error(err),
		)
	}

	return s.placeholder(req, target)
}

func (s *ImageService) generate(ctx context.Context, req ImageRequest, target imageTarget) (imagegen.Image, error) {
	genReq := imagegen.Request{Width: 768, Height: 768}
	if req.Kind == domain.ImageAvatar {
		mascot := imagegen.DeriveAnimal(target.typ, target.bigFive, target.features)
		genReq.Prompt = imagegen.AvatarPrompt(mascot, target.typ)
	} else {
		genReq.Prompt = imagegen.ScenePrompt(target.typ, target.title)
		genReq.Width, genReq.Height = 1024, 576
	}

	key := string(req.Kind) + ":" + target.resultID
	if target.resultID == "" {
		key = string(req.Kind) + ":" + target.typ + ":" + target.title
	}
	ch := s.group.DoChan(key, func() (any, error) {
		// El job sigue aunque el primer cliente se desconecte; el resto lo espera.
		jobCtx := context.WithoutCancel(ctx)
		img, err := s.provider.Generate(jobCtx, genReq, req.ProgressKey)
		if err != nil {
			return flightResult{progressKey: req.ProgressKey}, err
		}
		if target.resultID != "" {
			url := imagegen.EncodeDataURL(img.MIME, img.Bytes)
			if err := s.results.UpdateImage(jobCtx, target.resultID, req.Kind, url); err != nil {
				s.logger.Warn("image backfill failed", zap.String("result_id", target.resultID), zap.Error(err))
			}
		}
		return flightResult{image: img, progressKey: req.ProgressKey}, nil
	})

	select {
	case <-ctx.Done():
		return imagegen.Image{}, ctx.Err()
	case res := <-ch:
		fr, _ := res.Val.(flightResult)
		s.mirrorProgress(ctx, fr, req.ProgressKey, res.Err)
		if res.Err != nil {
			return imagegen.Image{}, res.Err
		}
		return fr.image, nil
	}
}

// mirrorProgress copia el estado final del job a la clave de un cliente que se sumo
// a un job ya en curso con otra clave.
func (s *ImageService) mirrorProgress(ctx context.Context, fr flightResult, key string, jobErr error) {
	if s.progress == nil || key == "" || key == fr.progressKey {
		return
	}
	ctx = context.WithoutCancel(ctx)

	var p imagegen.Progress
	if fr.progressKey != "" {
		if leader, ok, err := s.progress.Get(ctx, fr.progressKey); err == nil && ok &&
			(leader.Status == imagegen.StatusDone || leader.Status == imagegen.StatusError) {
			p = leader
		}
	}
	if p.Status == "" {
		if jobErr != nil {
			p = imagegen.Progress{Status: imagegen.StatusError, ID: fr.image.ID, Message: jobErr.Error()}
		} else {
			p = imagegen.Progress{Status: imagegen.StatusDone, ID: fr.image.ID, Polls: fr.image.Polls, WaitedSecs: fr.image.WaitedSecs}
		}
	}
	p.UpdatedAt = s.now().UnixMilli()
	if err := s.progress.Set(ctx, key, p); err != nil {
		s.logger.Warn("progress store set failed", zap.String("progressKey", key), zap.Error(err))
	}
}

func (s *ImageService) placeholder(req ImageRequest, target imageTarget) (ImageResponse, error) {
	if strings.EqualFold(req.Format, FormatPNG) {
		var (
			data []byte
			err  error
		)
		if req.Kind == domain.ImageAvatar {
			data, err = imagegen.AvatarPNG(target.typ, target.title)
		} else {
			data, err = imagegen.ScenePNG(target.typ, target.title)
		}
		if err == nil {
			return ImageResponse{Bytes: data, ContentType: imagegen.PNGContentType, Source: ImageFromPlaceholder}, nil
		}
		s.logger.Warn("png placeholder failed, using svg", zap.Error(err))
	}
	var svg []byte
	if req.Kind == domain.ImageAvatar {
		svg = imagegen.AvatarSVG(target.typ, target.title)
	} else {
		svg = imagegen.SceneSVG(target.typ, target.title)
	}
	return ImageResponse{Bytes: svg, ContentType: imagegen.SVGContentType, Source: ImageFromPlaceholder}, nil
}

// lookup resuelve el resultado (primero MBTI, luego detallado) y completa tipo y titulo.
func (s *ImageService) lookup(ctx context.Context, req ImageRequest) imageTarget {
	target := imageTarget{
		typ:   strings.ToUpper(strings.TrimSpace(req.Type)),
		title: strings.TrimSpace(req.Title),
	}
	id := strings.TrimSpace(req.ResultID)
	if id != "" {
		if res, err := s.results.GetMBTI(ctx, id); err == nil {
			target.resultID = res.ResultID
			target.features = res.Features
			target.cached = pickImage(req.Kind, res.AvatarURL, res.SceneURL)
			target.fill(res.Type, res.Title)
		} else if det, derr := s.results.GetDetail(ctx, id); derr == nil {
			bf := det.BigFive
			target.resultID = det.ResultID
			target.bigFive = &bf
			target.cached = pickImage(req.Kind, det.AvatarURL, det.SceneURL)
			target.fill(det.MBTIType, TitleFor(det.MBTIType))
		} else if !errors.Is(err, repository.ErrNotFound) || !errors.Is(derr, repository.ErrNotFound) {
			s.logger.Warn("image result lookup failed", zap.String("id", id), zap.Error(errors.Join(err, derr)))
		}
	}
	if target.typ == "" {
		target.typ = defaultImageType
	}
	return target
}

func (t *imageTarget) fill(typ, title string) {
	if t.typ == "" {
		t.typ = strings.ToUpper(typ)
	}
	if t.title == "" {
		t.title = title
	}
}

func pickImage(kind domain.ImageKind, avatar, scene string) string {
	if kind == domain.ImageAvatar {
		return avatar
	}
	return scene
}
