package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"payrecovery/internal/payment"
	"payrecovery/internal/recovery"
	"payrecovery/internal/shared"
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type statsResponse struct {
	payment.Stats
	ROI      float64           `json:"roi"`
	Payments []payment.Payment `json:"payments"`
}

type retriesResponse struct {
	Pending int                      `json:"pending"`
	Records []recovery.AttemptRecord `json:"records"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "healthy", Timestamp: h.deps.Now()})
}

func (h *handlers) stats(c *gin.Context) {
	stats := h.deps.Ledger.Stats()
	c.JSON(http.StatusOK, statsResponse{
		Stats:    stats,
		ROI:      stats.ROI(),
		Payments: h.deps.Ledger.List(),
	})
}

func (h *handlers) retries(c *gin.Context) {
	c.JSON(http.StatusOK, retriesResponse{
		Pending: h.deps.Retries.Pending(),
		Records: h.deps.Retries.Snapshot(),
	})
}

func (h *handlers) analytics(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Retries.Analytics())
}

func (h *handlers) reportFailure(c *gin.Context) {
	var req payment.FailureReport
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			h.fail(c, shared.Validationf("request body is empty"))
			return
		}
		h.fail(c, shared.MarkKind(err, shared.KindValidation))
		return
	}

	p, err := h.deps.Reporter.ReportFailure(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch shared.KindOf(err) {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.logger.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}
