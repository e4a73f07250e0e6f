package real

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"fiscal-note-service/internal/accesskey"
	"fiscal-note-service/internal/models"
)

const (
	productionBaseURL   = "https://nfce.fazenda.sp.gov.br/ws"
	homologationBaseURL = "https://homologacao.nfce.fazenda.sp.gov.br/ws"

	statusPath    = "/NFeStatusServico4.asmx"
	authorizePath = "/NFeAutorizacao4.asmx"
	eventPath     = "/NFeRecepcaoEvento4.asmx"
)

// SEFAZClient is the real authorization client. The transport is
// mutually authenticated with the issuer certificate; there is no
// unauthenticated fallback.
type SEFAZClient struct {
	http        *resty.Client
	environment int
	ufCode      string
	cnpj        string
	logger      *zap.Logger
}

func NewSEFAZClient(fiscalCfg *models.FiscalConfig, clientCert tls.Certificate, logger *zap.Logger) *SEFAZClient {
	base := homologationBaseURL
	if fiscalCfg.Environment == models.EnvironmentProduction {
		base = productionBaseURL
	}

	http := resty.New().
		SetBaseURL(base).
		SetTimeout(30 * time.Second).
		SetTLSClientConfig(&tls.Config{
			Certificates: []tls.Certificate{clientCert},
			MinVersion:   tls.VersionTLS12,
		}).
		SetHeader("Content-Type", "text/xml;charset=utf-8").
		SetHeader("SOAPAction", "")

	return &SEFAZClient{
		http:        http,
		environment: fiscalCfg.Environment,
		ufCode:      fiscalCfg.UFCode,
		cnpj:        fiscalCfg.CNPJ,
		logger:      logger.Named("sefaz"),
	}
}

// SetBaseURL overrides the environment-derived endpoint base. Test
// harnesses point this at a local stand-in.
func (c *SEFAZClient) SetBaseURL(base string) {
	c.http.SetBaseURL(base)
}

// CheckStatus returns true only when the service answers with the
// in-operation sentinel. Everything else, including transport failure,
// means unavailable.
func (c *SEFAZClient) CheckStatus(ctx context.Context) bool {
	body, err := c.post(ctx, statusPath, statusPayload(c.environment, c.ufCode))
	if err != nil {
		c.logger.Warn("status check transport failure", zap.Error(err))
		return false
	}

	ret, err := parseStatusResponse(body)
	if err != nil {
		c.logger.Warn("status check parse failure", zap.Error(err))
		return false
	}

	c.logger.Debug("service status", zap.String("cStat", ret.CStat), zap.String("xMotivo", ret.XMotivo))
	return ret.CStat == codeServiceInOperation
}

// Submit sends the signed document in a fresh batch and interprets the
// batch-level and document-level codes.
func (c *SEFAZClient) Submit(ctx context.Context, signedXML string) (*models.AuthorizationResult, error) {
	batchID := time.Now().UnixMilli()
	c.logger.Debug("submitting batch", zap.Int64("batch_id", batchID))

	body, err := c.post(ctx, authorizePath, batchPayload(batchID, signedXML))
	if err != nil {
		return serviceError("", fmt.Sprintf("submission transport failure: %v", err)), nil
	}

	ret, err := parseSubmitResponse(body)
	if err != nil {
		return serviceError("", err.Error()), nil
	}

	if ret.CStat != codeBatchProcessed {
		c.logger.Warn("batch not processed", zap.String("cStat", ret.CStat), zap.String("xMotivo", ret.XMotivo))
		return serviceError(ret.CStat, ret.XMotivo), nil
	}

	inf := ret.ProtNFe.InfProt
	if inf.CStat != codeNoteAuthorized {
		c.logger.Info("document rejected", zap.String("cStat", inf.CStat), zap.String("xMotivo", inf.XMotivo))
		return &models.AuthorizationResult{
			Status:     models.AuthorizationRejected,
			ReasonCode: inf.CStat,
			ReasonText: inf.XMotivo,
		}, nil
	}

	c.logger.Info("document authorized", zap.String("protocol", inf.NProt), zap.String("access_key", inf.ChNFe))
	return &models.AuthorizationResult{
		Status:        models.AuthorizationAuthorized,
		Protocol:      inf.NProt,
		AuthorizedXML: string(body),
		ReasonCode:    inf.CStat,
		ReasonText:    inf.XMotivo,
	}, nil
}

// Cancel registers a cancellation event against an authorized note.
// Event sequence is fixed at 1; a repeat attempt surfaces the
// authority's own verdict.
func (c *SEFAZClient) Cancel(ctx context.Context, key, protocol, justification string) (*models.AuthorizationResult, error) {
	issuer, err := accesskey.Issuer(key)
	if err != nil {
		return nil, err
	}

	batchID := time.Now().UnixMilli()
	payload := cancelPayload(batchID, c.ufCode, c.environment, issuer, key, time.Now().Format(time.RFC3339), protocol, justification)

	body, err := c.post(ctx, eventPath, payload)
	if err != nil {
		return serviceError("", fmt.Sprintf("cancellation transport failure: %v", err)), nil
	}

	ret, err := parseEventResponse(body)
	if err != nil {
		return serviceError("", err.Error()), nil
	}

	if ret.CStat != codeEventBatchProcessed {
		return serviceError(ret.CStat, ret.XMotivo), nil
	}

	inf := ret.RetEvento.InfEvento
	if inf.CStat != codeEventRegistered {
		return &models.AuthorizationResult{
			Status:     models.AuthorizationRejected,
			ReasonCode: inf.CStat,
			ReasonText: inf.XMotivo,
		}, nil
	}

	c.logger.Info("cancellation registered", zap.String("protocol", inf.NProt), zap.String("access_key", key))
	return &models.AuthorizationResult{
		Status:        models.AuthorizationAuthorized,
		Protocol:      inf.NProt,
		AuthorizedXML: string(body),
		ReasonCode:    inf.CStat,
		ReasonText:    inf.XMotivo,
	}, nil
}

func (c *SEFAZClient) post(ctx context.Context, path, content string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(soapEnvelope(content)).
		Post(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

func serviceError(code, reason string) *models.AuthorizationResult {
	return &models.AuthorizationResult{
		Status:     models.AuthorizationServiceError,
		ReasonCode: code,
		ReasonText: reason,
	}
}
