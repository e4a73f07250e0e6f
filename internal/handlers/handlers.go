package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fiscal-note-service/internal/api"
	"fiscal-note-service/internal/interfaces"
	"fiscal-note-service/internal/models"
)

type Handler struct {
	emissions interfaces.EmissionService
	logger    *zap.Logger
}

func New(emissions interfaces.EmissionService, logger *zap.Logger) *Handler {
	return &Handler{emissions: emissions, logger: logger.Named("handlers")}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	fiscal := router.Group("/api/fiscal")
	fiscal.POST("/emit", h.Emit)
	fiscal.POST("/cancel", h.Cancel)
	fiscal.GET("/status", h.Status)
	fiscal.POST("/reload", h.Reload)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Reload drops cached fiscal configuration and certificate material,
// so a rotated certificate takes effect without a restart.
func (h *Handler) Reload(c *gin.Context) {
	h.emissions.Reload()
	h.logger.Info("fiscal configuration reload requested")
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

func (h *Handler) Status(c *gin.Context) {
	online, err := h.emissions.ServiceOnline(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.StatusResponse{Online: online})
}

func (h *Handler) Emit(c *gin.Context) {
	var req api.EmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.APIError{Code: api.CodeInvalidRequest, Message: err.Error()})
		return
	}

	items := make([]models.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil || price.IsNegative() {
			c.JSON(http.StatusBadRequest, api.APIError{
				Code:    api.CodeInvalidRequest,
				Message: "invalid unit price for product " + item.ProductID,
			})
			return
		}
		items = append(items, models.LineItem{
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   price,
			NCM:         item.NCM,
			CFOP:        item.CFOP,
		})
	}

	result, err := h.emissions.Emit(c.Request.Context(), items, models.Recipient{
		TaxID: req.Recipient.TaxID,
		Name:  req.Recipient.Name,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.EmitResponse{
		AccessKey:   result.AccessKey,
		Number:      result.Number,
		Series:      result.Series,
		Protocol:    result.Protocol,
		QRCodeImage: result.QRCodeImage,
		QRCodeURL:   result.QRCodeURL,
	})
}

func (h *Handler) Cancel(c *gin.Context) {
	var req api.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.APIError{Code: api.CodeInvalidRequest, Message: err.Error()})
		return
	}

	result, err := h.emissions.Cancel(c.Request.Context(), req.AccessKey, req.Protocol, req.Justification)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.CancelResponse{Protocol: result.Protocol})
}

// writeError maps the emission failure taxonomy onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var rejected *models.DocumentRejectedError
	var authFailed *models.AuthorizationFailedError
	var persistErr *models.PersistenceAfterAuthorizationError

	switch {
	case errors.Is(err, models.ErrConfigurationMissing):
		c.JSON(http.StatusInternalServerError, api.APIError{Code: api.CodeConfigurationMissing, Message: err.Error()})
	case errors.Is(err, models.ErrCertificateUnreadable),
		errors.Is(err, models.ErrCertificateDecryptionFailed):
		c.JSON(http.StatusInternalServerError, api.APIError{Code: api.CodeCertificateError, Message: err.Error()})
	case errors.Is(err, models.ErrServiceUnavailable):
		c.JSON(http.StatusServiceUnavailable, api.APIError{Code: api.CodeServiceUnavailable, Message: err.Error()})
	case errors.As(err, &rejected):
		c.JSON(http.StatusUnprocessableEntity, api.APIError{
			Code:          api.CodeDocumentRejected,
			Message:       rejected.Reason,
			RejectionCode: rejected.Code,
		})
	case errors.As(err, &authFailed):
		c.JSON(http.StatusBadGateway, api.APIError{Code: api.CodeAuthorizationFailed, Message: authFailed.Reason})
	case errors.As(err, &persistErr):
		h.logger.Error("authorized note not persisted",
			zap.String("access_key", persistErr.AccessKey),
			zap.String("protocol", persistErr.Protocol),
			zap.Error(persistErr.Err))
		c.JSON(http.StatusInternalServerError, api.APIError{
			Code:      api.CodePersistenceFailed,
			Message:   err.Error(),
			AccessKey: persistErr.AccessKey,
			Protocol:  persistErr.Protocol,
		})
	default:
		h.logger.Error("emission request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, api.APIError{Code: api.CodeInternalError, Message: err.Error()})
	}
}
