package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fiscal-note-service/internal/api"
	"fiscal-note-service/internal/models"
)

type stubEmissions struct {
	emitResult   *models.EmissionResult
	emitErr      error
	cancelResult *models.CancellationResult
	cancelErr    error
	online       bool
	reloaded     bool
}

func (s *stubEmissions) Emit(ctx context.Context, items []models.LineItem, recipient models.Recipient) (*models.EmissionResult, error) {
	return s.emitResult, s.emitErr
}

func (s *stubEmissions) Cancel(ctx context.Context, accessKey, protocol, justification string) (*models.CancellationResult, error) {
	return s.cancelResult, s.cancelErr
}

func (s *stubEmissions) ServiceOnline(ctx context.Context) (bool, error) {
	return s.online, nil
}

func (s *stubEmissions) Reload() {
	s.reloaded = true
}

func setupRouter(stub *stubEmissions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	New(stub, zap.NewNop()).RegisterRoutes(router)
	return router
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validEmitRequest() api.EmitRequest {
	return api.EmitRequest{
		Items: []api.EmitItem{
			{ProductID: "SKU-1", Description: "Cafe torrado", Quantity: 2, UnitPrice: "10.00"},
		},
		Recipient: api.EmitRecipient{TaxID: "123.456.789-09", Name: "Cliente"},
	}
}

func TestEmitSuccess(t *testing.T) {
	stub := &stubEmissions{emitResult: &models.EmissionResult{
		AccessKey: "35240312345678000199650010000000421000000426",
		Number:    "000000042",
		Series:    "001",
		Protocol:  "135240000000001",
		QRCodeURL: "https://www.homologacao.nfce.fazenda.sp.gov.br/qrcode?chNFe=35240312345678000199650010000000421000000426&nVersao=100",
	}}
	router := setupRouter(stub)

	w := doJSON(router, http.MethodPost, "/api/fiscal/emit", validEmitRequest())
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.EmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "000000042", resp.Number)
	assert.Equal(t, "135240000000001", resp.Protocol)
}

func TestEmitMissingItems(t *testing.T) {
	router := setupRouter(&stubEmissions{})

	w := doJSON(router, http.MethodPost, "/api/fiscal/emit", api.EmitRequest{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp api.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, api.CodeInvalidRequest, resp.Code)
}

func TestEmitBadPrice(t *testing.T) {
	router := setupRouter(&stubEmissions{})

	req := validEmitRequest()
	req.Items[0].UnitPrice = "ten"
	w := doJSON(router, http.MethodPost, "/api/fiscal/emit", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = validEmitRequest()
	req.Items[0].UnitPrice = "-1.00"
	w = doJSON(router, http.MethodPost, "/api/fiscal/emit", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEmitErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"configuration missing", models.ErrConfigurationMissing, http.StatusInternalServerError, api.CodeConfigurationMissing},
		{"certificate unreadable", models.ErrCertificateUnreadable, http.StatusInternalServerError, api.CodeCertificateError},
		{"certificate password", models.ErrCertificateDecryptionFailed, http.StatusInternalServerError, api.CodeCertificateError},
		{"service unavailable", models.ErrServiceUnavailable, http.StatusServiceUnavailable, api.CodeServiceUnavailable},
		{"rejected", &models.DocumentRejectedError{Code: "539", Reason: "Duplicidade de NF-e"}, http.StatusUnprocessableEntity, api.CodeDocumentRejected},
		{"authorization failed", &models.AuthorizationFailedError{Reason: "transport failure"}, http.StatusBadGateway, api.CodeAuthorizationFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := setupRouter(&stubEmissions{emitErr: tc.err})
			w := doJSON(router, http.MethodPost, "/api/fiscal/emit", validEmitRequest())
			assert.Equal(t, tc.wantStatus, w.Code)

			var resp api.APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantCode, resp.Code)
		})
	}
}

func TestEmitPersistenceFailureCarriesReconcileData(t *testing.T) {
	stub := &stubEmissions{emitErr: &models.PersistenceAfterAuthorizationError{
		AccessKey: "35240312345678000199650010000000421000000426",
		Protocol:  "135240000000001",
		Err:       models.ErrPersistenceFailed,
	}}
	router := setupRouter(stub)

	w := doJSON(router, http.MethodPost, "/api/fiscal/emit", validEmitRequest())
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp api.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, api.CodePersistenceFailed, resp.Code)
	assert.Equal(t, "35240312345678000199650010000000421000000426", resp.AccessKey)
	assert.Equal(t, "135240000000001", resp.Protocol)
}

func TestCancelSuccess(t *testing.T) {
	stub := &stubEmissions{cancelResult: &models.CancellationResult{Protocol: "135240000000099"}}
	router := setupRouter(stub)

	w := doJSON(router, http.MethodPost, "/api/fiscal/cancel", api.CancelRequest{
		AccessKey:     "35240312345678000199650010000000421000000426",
		Protocol:      "135240000000001",
		Justification: "cancelamento a pedido do cliente",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.CancelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "135240000000099", resp.Protocol)
}

func TestCancelMissingFields(t *testing.T) {
	router := setupRouter(&stubEmissions{})

	w := doJSON(router, http.MethodPost, "/api/fiscal/cancel", api.CancelRequest{AccessKey: "key"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatus(t *testing.T) {
	router := setupRouter(&stubEmissions{online: true})

	w := doJSON(router, http.MethodGet, "/api/fiscal/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Online)
}

func TestReload(t *testing.T) {
	stub := &stubEmissions{}
	router := setupRouter(stub)

	w := doJSON(router, http.MethodPost, "/api/fiscal/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, stub.reloaded)
}

func TestHealth(t *testing.T) {
	router := setupRouter(&stubEmissions{})

	w := doJSON(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
