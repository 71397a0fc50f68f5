package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/carter293/hasItPumped/internal/domain"
)

// RequestIDHeader carries the analysis request id on responses.
const RequestIDHeader = "X-Request-ID"

type handler struct {
	svc Service
	log logrus.FieldLogger
}

func (h *handler) healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "Solana token analysis API",
	})
}

func (h *handler) analyzeToken(c *gin.Context) {
	var req domain.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body: " + err.Error()})
		return
	}

	result, err := h.svc.Analyze(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header(RequestIDHeader, result.RequestID)
	c.JSON(http.StatusOK, result)
}

func (h *handler) getToken(c *gin.Context) {
	result, err := h.svc.Lookup(c.Request.Context(), c.Param("mint"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header(RequestIDHeader, result.RequestID)
	c.JSON(http.StatusOK, result)
}

func (h *handler) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": err.Error()})
}

// StatusFor maps an analysis error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
