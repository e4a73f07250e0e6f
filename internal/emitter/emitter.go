package emitter

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fiscal-note-service/internal/accesskey"
	"fiscal-note-service/internal/config"
	"fiscal-note-service/internal/document"
	"fiscal-note-service/internal/interfaces"
	"fiscal-note-service/internal/models"
	"fiscal-note-service/internal/services"
	"fiscal-note-service/internal/signer"
)

const (
	productionQRBase   = "https://www.nfce.fazenda.sp.gov.br/qrcode"
	homologationQRBase = "https://www.homologacao.nfce.fazenda.sp.gov.br/qrcode"

	// Normal emission over the authorization service. Contingency modes
	// are not supported.
	emissionTypeNormal = "1"
)

// SignerFactory builds the document signer for a loaded fiscal config.
type SignerFactory func(cfg *models.FiscalConfig) (*signer.Signer, error)

// AuthFactory builds the authorization client once the signer's
// certificate is available for the transport.
type AuthFactory func(fiscalCfg *models.FiscalConfig, clientCert tls.Certificate) interfaces.AuthorizationService

// Emitter runs the end-to-end emission flow: allocate, build, sign,
// submit, persist, render. Dependencies that need the fiscal config are
// created lazily on first use and reused afterwards.
type Emitter struct {
	appCfg    *config.Config
	configs   interfaces.ConfigRepository
	notes     interfaces.NoteRepository
	sequences interfaces.SequenceAllocator
	qr        interfaces.QRRenderer
	logger    *zap.Logger

	signerFactory SignerFactory
	authFactory   AuthFactory

	mu      sync.Mutex
	current *session
}

type Options struct {
	Config    *config.Config
	Configs   interfaces.ConfigRepository
	Notes     interfaces.NoteRepository
	Sequences interfaces.SequenceAllocator
	QR        interfaces.QRRenderer
	Logger    *zap.Logger

	// SignerFactory defaults to loading the configured PKCS#12
	// certificate, or an ephemeral self-signed one in standalone mode.
	SignerFactory SignerFactory

	// AuthFactory defaults to the mode-aware service factory.
	AuthFactory AuthFactory
}

func New(opts Options) *Emitter {
	e := &Emitter{
		appCfg:        opts.Config,
		configs:       opts.Configs,
		notes:         opts.Notes,
		sequences:     opts.Sequences,
		qr:            opts.QR,
		logger:        opts.Logger.Named("emitter"),
		signerFactory: opts.SignerFactory,
		authFactory:   opts.AuthFactory,
	}
	if e.signerFactory == nil {
		e.signerFactory = e.defaultSignerFactory
	}
	if e.authFactory == nil {
		e.authFactory = func(fiscalCfg *models.FiscalConfig, clientCert tls.Certificate) interfaces.AuthorizationService {
			return services.CreateAuthorizationService(e.appCfg, fiscalCfg, clientCert, e.logger)
		}
	}
	return e
}

func (e *Emitter) defaultSignerFactory(cfg *models.FiscalConfig) (*signer.Signer, error) {
	if e.appCfg.StandaloneMode {
		return signer.GenerateEphemeral()
	}
	return signer.LoadCertificate(cfg.CertificatePath, cfg.CertificatePassword)
}

// session is the snapshot of lazily built dependencies one operation
// runs against. Reload swaps the cached snapshot, never mutates it.
type session struct {
	fiscalCfg *models.FiscalConfig
	signer    *signer.Signer
	auth      interfaces.AuthorizationService
}

// ensureReady loads the fiscal config and builds the signer and
// authorization client on first use.
func (e *Emitter) ensureReady(ctx context.Context) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		return e.current, nil
	}

	fiscalCfg, err := e.configs.GetFiscalConfig(ctx)
	if err != nil {
		return nil, err
	}

	sgn, err := e.signerFactory(fiscalCfg)
	if err != nil {
		return nil, err
	}

	e.current = &session{
		fiscalCfg: fiscalCfg,
		signer:    sgn,
		auth:      e.authFactory(fiscalCfg, sgn.TLSCertificate()),
	}
	e.logger.Info("emitter initialized",
		zap.Int("environment", fiscalCfg.Environment),
		zap.String("cnpj", fiscalCfg.CNPJ))
	return e.current, nil
}

// Reload drops the cached fiscal config, signer and client so the next
// call rebuilds them from current state.
func (e *Emitter) Reload() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = nil
}

// ServiceOnline reports whether the authorization service answers as in
// operation.
func (e *Emitter) ServiceOnline(ctx context.Context) (bool, error) {
	sess, err := e.ensureReady(ctx)
	if err != nil {
		return false, err
	}
	return sess.auth.CheckStatus(ctx), nil
}

// Emit runs one full emission. A consumed note number is never reused:
// failure after allocation burns it.
func (e *Emitter) Emit(ctx context.Context, items []models.LineItem, recipient models.Recipient) (*models.EmissionResult, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}
	sess, err := e.ensureReady(ctx)
	if err != nil {
		return nil, err
	}

	alloc, err := e.sequences.AllocateNext(ctx)
	if err != nil {
		return nil, err
	}

	issuedAt := time.Now()
	key, err := accesskey.Generate(
		sess.fiscalCfg.UFCode, issuedAt, sess.fiscalCfg.CNPJ,
		models.DocumentModel, alloc.Series, alloc.Number,
		emissionTypeNormal, alloc.Number[1:])
	if err != nil {
		return nil, err
	}

	doc, err := document.Build(sess.fiscalCfg, items, recipient, alloc.Number, alloc.Series, key, issuedAt)
	if err != nil {
		return nil, err
	}

	signedXML, err := sess.signer.Sign(doc.XML, doc.ReferenceID)
	if err != nil {
		return nil, err
	}

	if !sess.auth.CheckStatus(ctx) {
		e.logger.Warn("service unavailable, note number consumed without submission",
			zap.String("number", alloc.Number),
			zap.String("access_key", key))
		return nil, models.ErrServiceUnavailable
	}

	result, err := sess.auth.Submit(ctx, signedXML)
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case models.AuthorizationRejected:
		return nil, &models.DocumentRejectedError{Code: result.ReasonCode, Reason: result.ReasonText}
	case models.AuthorizationServiceError:
		return nil, &models.AuthorizationFailedError{Reason: result.ReasonText}
	case models.AuthorizationAuthorized:
	default:
		return nil, fmt.Errorf("unexpected authorization status %q", result.Status)
	}

	note := &models.FiscalNote{
		ID:             uuid.New().String(),
		AccessKey:      key,
		Number:         alloc.Number,
		Series:         alloc.Series,
		IssuedAt:       issuedAt,
		TotalValue:     doc.Total,
		Status:         models.NoteStatusAuthorized,
		Protocol:       result.Protocol,
		AuthorizedXML:  result.AuthorizedXML,
		RecipientTaxID: recipient.NormalizedTaxID(),
		RecipientName:  recipient.Name,
	}
	for _, item := range items {
		note.Items = append(note.Items, models.FiscalNoteItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalValue: item.Total(),
			NCM:        item.NCM,
			CFOP:       item.CFOP,
		})
	}

	if err := e.notes.SaveAuthorizedNote(ctx, note); err != nil {
		return nil, &models.PersistenceAfterAuthorizationError{
			AccessKey: key,
			Protocol:  result.Protocol,
			Err:       err,
		}
	}

	qrURL := consultationURL(sess.fiscalCfg.Environment, key)
	qrImage, err := e.qr.Render(qrURL)
	if err != nil {
		// The note is authorized and persisted; a missing image is not
		// worth failing the emission over.
		e.logger.Warn("QR code rendering failed", zap.Error(err))
		qrImage = ""
	}

	e.logger.Info("emission completed",
		zap.String("access_key", key),
		zap.String("number", alloc.Number),
		zap.String("protocol", result.Protocol))

	return &models.EmissionResult{
		AccessKey:   key,
		Number:      alloc.Number,
		Series:      alloc.Series,
		Protocol:    result.Protocol,
		QRCodeImage: qrImage,
		QRCodeURL:   qrURL,
	}, nil
}

// Cancel registers a cancellation event for an authorized note.
func (e *Emitter) Cancel(ctx context.Context, key, protocol, justification string) (*models.CancellationResult, error) {
	if err := accesskey.Verify(key); err != nil {
		return nil, err
	}
	if protocol == "" {
		return nil, fmt.Errorf("authorization protocol is required")
	}
	if len(justification) < 15 {
		return nil, fmt.Errorf("justification must be at least 15 characters")
	}
	sess, err := e.ensureReady(ctx)
	if err != nil {
		return nil, err
	}

	result, err := sess.auth.Cancel(ctx, key, protocol, justification)
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case models.AuthorizationRejected:
		return nil, &models.DocumentRejectedError{Code: result.ReasonCode, Reason: result.ReasonText}
	case models.AuthorizationServiceError:
		return nil, &models.AuthorizationFailedError{Reason: result.ReasonText}
	case models.AuthorizationAuthorized:
	default:
		return nil, fmt.Errorf("unexpected authorization status %q", result.Status)
	}

	e.logger.Info("cancellation completed",
		zap.String("access_key", key),
		zap.String("protocol", result.Protocol))
	return &models.CancellationResult{Protocol: result.Protocol}, nil
}

func consultationURL(environment int, key string) string {
	base := homologationQRBase
	if environment == models.EnvironmentProduction {
		base = productionQRBase
	}
	return base + "?chNFe=" + key + "&nVersao=100"
}

func validateItems(items []models.LineItem) error {
	if len(items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	for i, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d: quantity must be positive", i+1)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("item %d: unit price must not be negative", i+1)
		}
	}
	return nil
}
