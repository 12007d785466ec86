package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mbti-story/internal/domain"
	"mbti-story/internal/scoring"
	"mbti-story/internal/service"
)

// ResultHandler expone los resultados de ambos flujos y el historial.
type ResultHandler struct {
	logger  *zap.Logger
	results *service.ResultService
	details *service.DetailService
}

func NewResultHandler(logger *zap.Logger, results *service.ResultService, details *service.DetailService) *ResultHandler {
	return &ResultHandler{
		logger:  logger,
		results: results,
		details: details,
	}
}

// GetResult maneja GET /result?sessionId=&regenerate=1.
func (h *ResultHandler) GetResult(c *gin.Context) {
	res, err := h.results.Get(c.Request.Context(), c.Query("sessionId"), queryFlag(c, "regenerate"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetResultByID maneja GET /result/:id (result_id o session_id).
func (h *ResultHandler) GetResultByID(c *gin.Context) {
	res, err := h.results.GetByAny(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Questions maneja GET /questions/detail.
func (h *ResultHandler) Questions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"questions": h.details.Questions()})
}

// DiagnoseDetail maneja POST /diagnose/detail?sessionId=. Un body invalido
// se trata como cuestionario vacio.
func (h *ResultHandler) DiagnoseDetail(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.logger.Warn("read detail body failed", zap.Error(err))
	}
	answers := scoring.DecodeAnswers(raw)

	resp, err := h.details.Diagnose(c.Request.Context(), c.Query("sessionId"), answers)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetDetailByID maneja GET /detail/:id.
func (h *ResultHandler) GetDetailByID(c *gin.Context) {
	res, err := h.details.GetByAny(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HistoryMBTI maneja GET /history/mbti?limit=. Un error de base devuelve lista vacia.
func (h *ResultHandler) HistoryMBTI(c *gin.Context) {
	items, err := h.results.List(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		h.logger.Warn("list mbti history failed", zap.Error(err))
		items = []domain.MBTIResult{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// HistoryDetail maneja GET /history/detail?limit=.
func (h *ResultHandler) HistoryDetail(c *gin.Context) {
	items, err := h.details.List(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		h.logger.Warn("list detail history failed", zap.Error(err))
		items = []domain.DetailResult{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
