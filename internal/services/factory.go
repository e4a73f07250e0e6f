package services

import (
	"crypto/tls"

	"go.uber.org/zap"

	"fiscal-note-service/internal/config"
	"fiscal-note-service/internal/interfaces"
	"fiscal-note-service/internal/models"
	"fiscal-note-service/internal/services/mock"
	"fiscal-note-service/internal/services/real"
)

// CreateAuthorizationService picks the authorization client for the
// configured mode: a mock in standalone mode, the real mutually
// authenticated client otherwise.
func CreateAuthorizationService(cfg *config.Config, fiscalCfg *models.FiscalConfig, clientCert tls.Certificate, logger *zap.Logger) interfaces.AuthorizationService {
	if cfg.StandaloneMode {
		return mock.NewMockAuthorization(logger)
	}

	client := real.NewSEFAZClient(fiscalCfg, clientCert, logger)
	if cfg.SEFAZ.BaseURL != "" {
		client.SetBaseURL(cfg.SEFAZ.BaseURL)
	}
	return client
}
