package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mbti-story/internal/domain"
	"mbti-story/internal/imagegen"
	"mbti-story/internal/service"
)

// ImageHandler sirve avatar, escena y el progreso de los jobs de imagen.
type ImageHandler struct {
	logger   *zap.Logger
	images   *service.ImageService
	progress imagegen.ProgressStore
	now      func() time.Time
}

func NewImageHandler(logger *zap.Logger, images *service.ImageService, progress imagegen.ProgressStore) *ImageHandler {
	return &ImageHandler{
		logger:   logger,
		images:   images,
		progress: progress,
		now:      time.Now,
	}
}

// Avatar maneja GET /image/avatar?id=&type=&title=&k=&force=&format=.
func (h *ImageHandler) Avatar(c *gin.Context) {
	h.serve(c, domain.ImageAvatar)
}

// Scene maneja GET /image/scene con los mismos parametros que Avatar.
func (h *ImageHandler) Scene(c *gin.Context) {
	h.serve(c, domain.ImageScene)
}

func (h *ImageHandler) serve(c *gin.Context, kind domain.ImageKind) {
	resp, err := h.images.Serve(c.Request.Context(), service.ImageRequest{
		Kind:        kind,
		ResultID:    c.Query("id"),
		Type:        c.Query("type"),
		Title:       c.Query("title"),
		ProgressKey: c.Query("k"),
		Force:       queryFlag(c, "force"),
		Format:      c.Query("format"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	cacheControl := "public, max-age=86400"
	if resp.Source == service.ImageFromPlaceholder {
		cacheControl = "public, max-age=600"
	}
	c.Header("Cache-Control", cacheControl)
	c.Header("X-Image-Source", string(resp.Source))
	c.Data(http.StatusOK, resp.ContentType, resp.Bytes)
}

// Progress maneja GET /image/progress?key=. Una clave desconocida devuelve idle.
func (h *ImageHandler) Progress(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}

	p, ok, err := h.progress.Get(c.Request.Context(), key)
	if err != nil {
		h.logger.Warn("progress lookup failed", zap.String("key", key), zap.Error(err))
	}
	if err != nil || !ok {
		p = imagegen.IdleProgress(h.now())
	}
	c.JSON(http.StatusOK, p)
}
