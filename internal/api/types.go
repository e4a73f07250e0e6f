package api

// Request and response shapes of the HTTP surface.

type EmitItem struct {
	ProductID   string `json:"product_id" binding:"required"`
	Description string `json:"description" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	UnitPrice   string `json:"unit_price" binding:"required"`
	NCM         string `json:"ncm"`
	CFOP        string `json:"cfop"`
}

type EmitRecipient struct {
	TaxID string `json:"tax_id"`
	Name  string `json:"name"`
}

type EmitRequest struct {
	Items     []EmitItem    `json:"items" binding:"required,min=1,dive"`
	Recipient EmitRecipient `json:"recipient"`
}

type EmitResponse struct {
	AccessKey   string `json:"access_key"`
	Number      string `json:"number"`
	Series      string `json:"series"`
	Protocol    string `json:"protocol"`
	QRCodeImage string `json:"qr_code_image,omitempty"`
	QRCodeURL   string `json:"qr_code_url"`
}

type CancelRequest struct {
	AccessKey     string `json:"access_key" binding:"required"`
	Protocol      string `json:"protocol" binding:"required"`
	Justification string `json:"justification" binding:"required"`
}

type CancelResponse struct {
	Protocol string `json:"protocol"`
}

type StatusResponse struct {
	Online bool `json:"online"`
}

// Error codes returned in APIError.Code.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeConfigurationMissing = "configuration_missing"
	CodeCertificateError     = "certificate_error"
	CodeServiceUnavailable   = "service_unavailable"
	CodeDocumentRejected     = "document_rejected"
	CodeAuthorizationFailed  = "authorization_failed"
	CodePersistenceFailed    = "persistence_failed"
	CodeInternalError        = "internal_error"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// RejectionCode carries the authority's own status code when the
	// document or event was rejected.
	RejectionCode string `json:"rejection_code,omitempty"`

	// AccessKey and Protocol are set when a note was authorized but
	// could not be recorded, so the caller can reconcile.
	AccessKey string `json:"access_key,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
}
