// Package document assembles the canonical NFC-e (layout 4.00) XML for
// a finalized sale. The serialized string is the canonical byte form:
// compact, no XML declaration, no whitespace between elements. The
// signer and the authority validate these bytes, not a re-parsed tree.
package document

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"fiscal-note-service/internal/accesskey"
	"fiscal-note-service/internal/models"
)

// Namespace is the fiscal portal namespace carried by the NFe element.
const Namespace = "http://www.portalfiscal.inf.br/nfe"

const (
	layoutVersion = "4.00"
	processVer    = "1.0.0"
	countryCode   = "1058"
	countryName   = "Brasil"
)

// Document is the buildable, signable representation of one note.
type Document struct {
	// ReferenceID is the unique id of the signed element ("NFe" + key).
	ReferenceID string
	// XML is the canonical serialized form.
	XML string
	// Total is the grand total, exact to the cent.
	Total decimal.Decimal
}

// Build produces the canonical document. It is a pure transformation:
// no I/O, no clock reads (the emission timestamp is an input).
func Build(cfg *models.FiscalConfig, items []models.LineItem, recipient models.Recipient, number, series, key string, issuedAt time.Time) (*Document, error) {
	if cfg == nil {
		return nil, models.ErrConfigurationMissing
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("document requires at least one line item")
	}
	if err := accesskey.Verify(key); err != nil {
		return nil, fmt.Errorf("invalid access key: %w", err)
	}

	referenceID := "NFe" + key

	total := decimal.Zero
	details := make([]det, 0, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("line %d: quantity must be positive, got %d", i+1, item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("line %d: unit price must not be negative", i+1)
		}

		lineTotal := item.Total()
		total = total.Add(lineTotal)

		details = append(details, det{
			NItem: strconv.Itoa(i + 1),
			Prod: prod{
				CProd:    item.ProductID,
				CEAN:     "SEM GTIN",
				XProd:    item.Description,
				NCM:      item.NCM,
				CFOP:     item.CFOP,
				UCom:     "UN",
				QCom:     strconv.Itoa(item.Quantity),
				VUnCom:   money(item.UnitPrice),
				VProd:    money(lineTotal),
				CEANTrib: "SEM GTIN",
				UTrib:    "UN",
				QTrib:    strconv.Itoa(item.Quantity),
				VUnTrib:  money(item.UnitPrice),
				IndTot:   "1",
			},
			Imposto: simplifiedRegimeTaxes(),
		})
	}

	doc := nfeDoc{
		Xmlns: Namespace,
		Inf: infNFe{
			ID:      referenceID,
			Version: layoutVersion,
			Ide: ide{
				CUF:      cfg.UFCode,
				CNF:      key[35:43],
				NatOp:    "VENDA",
				Mod:      models.DocumentModel,
				Serie:    series,
				NNF:      number,
				DhEmi:    issuedAt.Format(time.RFC3339),
				TpNF:     "1",
				IDDest:   "1",
				CMunFG:   cfg.Address.CityCode,
				TpImp:    "4",
				TpEmis:   "1",
				CDV:      key[43:],
				TpAmb:    strconv.Itoa(cfg.Environment),
				FinNFe:   "1",
				IndFinal: "1",
				IndPres:  "1",
				ProcEmi:  "0",
				VerProc:  processVer,
			},
			Emit: emit{
				CNPJ:  cfg.CNPJ,
				XNome: cfg.CorporateName,
				XFant: cfg.TradeName,
				Ender: enderEmit{
					XLgr:    cfg.Address.Street,
					Nro:     cfg.Address.Number,
					XBairro: cfg.Address.District,
					CMun:    cfg.Address.CityCode,
					XMun:    cfg.Address.City,
					UF:      cfg.Address.State,
					CEP:     cfg.Address.PostalCode,
					CPais:   countryCode,
					XPais:   countryName,
				},
				IE:  cfg.StateRegistration,
				CRT: strconv.Itoa(cfg.TaxRegime),
			},
			Dest: dest{
				CNPJ:  recipient.NormalizedTaxID(),
				XNome: recipient.Name,
			},
			Det: details,
			Total: totalBlock{
				ICMSTot: icmsTot{
					VBC: zero, VICMS: zero, VICMSDeson: zero, VFCP: zero,
					VBCST: zero, VST: zero, VFCPST: zero, VFCPSTRet: zero,
					VProd: money(total),
					VFrete: zero, VSeg: zero, VDesc: zero, VII: zero,
					VIPI: zero, VIPIDevol: zero, VPIS: zero, VCOFINS: zero,
					VOutro: zero,
					VNF:    money(total),
				},
			},
			Transp: transp{ModFrete: "9"},
			Pag: pag{
				DetPag: detPag{TPag: "01", VPag: money(total)},
			},
		},
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}

	return &Document{
		ReferenceID: referenceID,
		XML:         string(out),
		Total:       total,
	}, nil
}

const zero = "0.00"

// money serializes a monetary value with exactly two decimal digits.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// simplifiedRegimeTaxes is the fixed tax classification every line
// carries: ICMS Simples Nacional CSOSN 102, PIS/COFINS CST 99 zeroed.
func simplifiedRegimeTaxes() imposto {
	return imposto{
		ICMS: icms{SN102: icmsSN102{Orig: "0", CSOSN: "102"}},
		PIS: pis{Outr: pisOutr{
			CST: "99", VBC: zero, PPIS: zero, VPIS: zero,
		}},
		COFINS: cofins{Outr: cofinsOutr{
			CST: "99", VBC: zero, PCOFINS: zero, VCOFINS: zero,
		}},
	}
}
