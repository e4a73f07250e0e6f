package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentModel is the NFC-e document model code.
const DocumentModel = "65"

// Environment flags carried in tpAmb.
const (
	EnvironmentProduction   = 1
	EnvironmentHomologation = 2
)

// FiscalConfig is the issuer-side configuration loaded once from the
// fiscal_config row. Invalid or missing config is a fatal precondition
// for every emission.
type FiscalConfig struct {
	Environment         int    // 1 = production, 2 = homologation
	UFCode              string // IBGE region code, e.g. "35" for SP
	CNPJ                string
	StateRegistration   string
	CorporateName       string
	TradeName           string
	TaxRegime           int // CRT
	CertificatePath     string
	CertificatePassword string
	Address             Address
}

type Address struct {
	Street     string
	Number     string
	District   string
	City       string
	CityCode   string // IBGE municipality code
	State      string // UF abbreviation, e.g. "SP"
	PostalCode string
}

// LineItem is one sold product on the note.
type LineItem struct {
	ProductID   string
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	NCM         string
	CFOP        string
}

// Total returns quantity x unit price rounded to two decimals (half up).
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity))).Round(2)
}

// Recipient identifies the buyer on the note.
type Recipient struct {
	TaxID string
	Name  string
}

// NormalizedTaxID strips every non-digit character, which is the form
// every document field and key segment expects.
func (r Recipient) NormalizedTaxID() string {
	var b strings.Builder
	for _, c := range r.TaxID {
		if c >= '0' && c <= '9' {
			b.WriteByte(byte(c))
		}
	}
	return b.String()
}

// SequenceAllocation is one consumed (number, series) pair. Numbers are
// never reused, even when the submission that consumed them fails.
type SequenceAllocation struct {
	Number string // 9 digits, zero padded
	Series string // 3 digits
}

// AuthorizationStatus tags the outcome of a submission or cancellation.
type AuthorizationStatus string

const (
	AuthorizationAuthorized   AuthorizationStatus = "authorized"
	AuthorizationRejected     AuthorizationStatus = "rejected"
	AuthorizationServiceError AuthorizationStatus = "service_error"
)

// AuthorizationResult is created only by the authorization client and
// never mutated afterwards.
type AuthorizationResult struct {
	Status        AuthorizationStatus
	Protocol      string // set when authorized / event registered
	AuthorizedXML string // service response echo, set when authorized
	ReasonCode    string
	ReasonText    string
}

// FiscalNote is the persisted record of an authorized note. Records are
// created only on an authorized outcome and never deleted here;
// cancellation is a separate event against the authority.
type FiscalNote struct {
	ID             string
	AccessKey      string
	Number         string
	Series         string
	IssuedAt       time.Time
	TotalValue     decimal.Decimal
	Status         string
	Protocol       string
	AuthorizedXML  string
	RecipientTaxID string
	RecipientName  string
	Items          []FiscalNoteItem
}

type FiscalNoteItem struct {
	ProductID  string
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalValue decimal.Decimal
	NCM        string
	CFOP       string
}

// Note statuses as persisted.
const (
	NoteStatusAuthorized = "authorized"
)

// EmissionResult is the success payload returned to callers of Emit.
type EmissionResult struct {
	AccessKey   string
	Number      string
	Series      string
	Protocol    string
	QRCodeImage string // base64 data URL, PNG
	QRCodeURL   string
}

// CancellationResult is the success payload returned to callers of Cancel.
type CancellationResult struct {
	Protocol string
}
