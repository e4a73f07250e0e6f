package real

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Wire constants of the authorization protocol. Both nesting levels
// carry their own status code; both are always checked.
const (
	codeServiceInOperation  = "107"
	codeBatchProcessed      = "104"
	codeNoteAuthorized      = "100"
	codeEventBatchProcessed = "128"
	codeEventRegistered     = "135"

	cancelEventType     = "110111"
	cancelEventSequence = "1" // repeated cancellation attempts are not supported
	cancelEventVersion  = "1.00"
)

const (
	nfeNamespace  = "http://www.portalfiscal.inf.br/nfe"
	wsdlNamespace = "http://www.portalfiscal.inf.br/nfe/wsdl"
)

func soapEnvelope(content string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<soap12:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" ` +
		`xmlns:xsd="http://www.w3.org/2001/XMLSchema" ` +
		`xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">` +
		`<soap12:Body>` + content + `</soap12:Body>` +
		`</soap12:Envelope>`
}

func statusPayload(environment int, ufCode string) string {
	return fmt.Sprintf(
		`<nfeDadosMsg xmlns="%s/NFeStatusServico4">`+
			`<consStatServ xmlns="%s" versao="4.00">`+
			`<tpAmb>%d</tpAmb><cUF>%s</cUF><xServ>STATUS</xServ>`+
			`</consStatServ></nfeDadosMsg>`,
		wsdlNamespace, nfeNamespace, environment, ufCode)
}

// batchPayload wraps one signed document in a batch envelope. The batch
// id only correlates the synchronous round trip; it is time-derived and
// not globally unique.
func batchPayload(batchID int64, signedXML string) string {
	return fmt.Sprintf(
		`<nfeDadosMsg xmlns="%s/NFeAutorizacao4">`+
			`<enviNFe xmlns="%s" versao="4.00">`+
			`<idLote>%d</idLote><indSinc>1</indSinc>%s`+
			`</enviNFe></nfeDadosMsg>`,
		wsdlNamespace, nfeNamespace, batchID, signedXML)
}

func cancelPayload(batchID int64, ufCode string, environment int, cnpj, accessKey, eventTime, protocol, justification string) string {
	return fmt.Sprintf(
		`<nfeDadosMsg xmlns="%s/NFeRecepcaoEvento4">`+
			`<envEvento xmlns="%s" versao="1.00">`+
			`<idLote>%d</idLote>`+
			`<evento versao="%s">`+
			`<infEvento Id="ID%s01">`+
			`<cOrgao>%s</cOrgao><tpAmb>%d</tpAmb><CNPJ>%s</CNPJ>`+
			`<chNFe>%s</chNFe><dhEvento>%s</dhEvento>`+
			`<tpEvento>%s</tpEvento><nSeqEvento>%s</nSeqEvento><verEvento>%s</verEvento>`+
			`<detEvento versao="%s">`+
			`<descEvento>Cancelamento</descEvento><nProt>%s</nProt><xJust>%s</xJust>`+
			`</detEvento></infEvento></evento></envEvento></nfeDadosMsg>`,
		wsdlNamespace, nfeNamespace, batchID,
		cancelEventVersion, accessKey,
		ufCode, environment, cnpj,
		accessKey, eventTime,
		cancelEventType, cancelEventSequence, cancelEventVersion,
		cancelEventVersion, protocol, escapeXML(justification))
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	// xml.EscapeText only fails on a writer error; bytes.Buffer has none.
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// Response shapes. One typed struct per operation: an unexpected shape
// is a parse error, not a silent missing field.

type retConsStatServ struct {
	CStat   string `xml:"cStat"`
	XMotivo string `xml:"xMotivo"`
}

type statusEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Result struct {
			Ret retConsStatServ `xml:"retConsStatServ"`
		} `xml:"nfeResultMsg"`
	} `xml:"Body"`
}

type retEnviNFe struct {
	CStat   string `xml:"cStat"`
	XMotivo string `xml:"xMotivo"`
	ProtNFe struct {
		InfProt struct {
			ChNFe   string `xml:"chNFe"`
			NProt   string `xml:"nProt"`
			CStat   string `xml:"cStat"`
			XMotivo string `xml:"xMotivo"`
		} `xml:"infProt"`
	} `xml:"protNFe"`
}

type submitEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Result struct {
			Ret retEnviNFe `xml:"retEnviNFe"`
		} `xml:"nfeResultMsg"`
	} `xml:"Body"`
}

type retEnvEvento struct {
	CStat     string `xml:"cStat"`
	XMotivo   string `xml:"xMotivo"`
	RetEvento struct {
		InfEvento struct {
			NProt   string `xml:"nProt"`
			CStat   string `xml:"cStat"`
			XMotivo string `xml:"xMotivo"`
		} `xml:"infEvento"`
	} `xml:"retEvento"`
}

type eventEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Result struct {
			Ret retEnvEvento `xml:"retEnvEvento"`
		} `xml:"nfeResultMsg"`
	} `xml:"Body"`
}

func parseStatusResponse(body []byte) (*retConsStatServ, error) {
	var env statusEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed status response: %w", err)
	}
	if env.Body.Result.Ret.CStat == "" {
		return nil, fmt.Errorf("status response missing retConsStatServ")
	}
	return &env.Body.Result.Ret, nil
}

func parseSubmitResponse(body []byte) (*retEnviNFe, error) {
	var env submitEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed authorization response: %w", err)
	}
	if env.Body.Result.Ret.CStat == "" {
		return nil, fmt.Errorf("authorization response missing retEnviNFe")
	}
	return &env.Body.Result.Ret, nil
}

func parseEventResponse(body []byte) (*retEnvEvento, error) {
	var env eventEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed event response: %w", err)
	}
	if env.Body.Result.Ret.CStat == "" {
		return nil, fmt.Errorf("event response missing retEnvEvento")
	}
	return &env.Body.Result.Ret, nil
}
