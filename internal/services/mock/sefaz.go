package mock

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fiscal-note-service/internal/accesskey"
	"fiscal-note-service/internal/models"
)

// MockAuthorization stands in for the government service in standalone
// mode: always in operation, authorizes every well-formed submission,
// fabricates protocol numbers.
type MockAuthorization struct {
	logger *zap.Logger

	// Unavailable makes CheckStatus report the service as down.
	Unavailable bool
}

func NewMockAuthorization(logger *zap.Logger) *MockAuthorization {
	return &MockAuthorization{logger: logger.Named("sefaz-mock")}
}

func (m *MockAuthorization) CheckStatus(ctx context.Context) bool {
	return !m.Unavailable
}

func (m *MockAuthorization) Submit(ctx context.Context, signedXML string) (*models.AuthorizationResult, error) {
	if signedXML == "" {
		return nil, fmt.Errorf("empty signed document")
	}

	protocol := fmt.Sprintf("9%014d", time.Now().UnixNano()%1e14)
	m.logger.Debug("authorized submission", zap.String("protocol", protocol))

	return &models.AuthorizationResult{
		Status:        models.AuthorizationAuthorized,
		Protocol:      protocol,
		AuthorizedXML: signedXML,
		ReasonCode:    "100",
		ReasonText:    "Autorizado o uso da NF-e",
	}, nil
}

func (m *MockAuthorization) Cancel(ctx context.Context, key, protocol, justification string) (*models.AuthorizationResult, error) {
	if err := accesskey.Verify(key); err != nil {
		return nil, err
	}

	eventProtocol := fmt.Sprintf("9%014d", time.Now().UnixNano()%1e14)
	m.logger.Debug("registered cancellation", zap.String("protocol", eventProtocol))

	return &models.AuthorizationResult{
		Status:     models.AuthorizationAuthorized,
		Protocol:   eventProtocol,
		ReasonCode: "135",
		ReasonText: "Evento registrado e vinculado a NF-e",
	}, nil
}
