package document

import "encoding/xml"

// Wire layout of the NFC-e, field order matching schema order. Every
// field is a string: the schema is validated byte-level downstream, so
// formatting happens once, at assembly.

type nfeDoc struct {
	XMLName xml.Name `xml:"NFe"`
	Xmlns   string   `xml:"xmlns,attr"`
	Inf     infNFe   `xml:"infNFe"`
}

type infNFe struct {
	ID      string     `xml:"Id,attr"`
	Version string     `xml:"versao,attr"`
	Ide     ide        `xml:"ide"`
	Emit    emit       `xml:"emit"`
	Dest    dest       `xml:"dest"`
	Det     []det      `xml:"det"`
	Total   totalBlock `xml:"total"`
	Transp  transp     `xml:"transp"`
	Pag     pag        `xml:"pag"`
}

type ide struct {
	CUF      string `xml:"cUF"`
	CNF      string `xml:"cNF"`
	NatOp    string `xml:"natOp"`
	Mod      string `xml:"mod"`
	Serie    string `xml:"serie"`
	NNF      string `xml:"nNF"`
	DhEmi    string `xml:"dhEmi"`
	TpNF     string `xml:"tpNF"`
	IDDest   string `xml:"idDest"`
	CMunFG   string `xml:"cMunFG"`
	TpImp    string `xml:"tpImp"`
	TpEmis   string `xml:"tpEmis"`
	CDV      string `xml:"cDV"`
	TpAmb    string `xml:"tpAmb"`
	FinNFe   string `xml:"finNFe"`
	IndFinal string `xml:"indFinal"`
	IndPres  string `xml:"indPres"`
	ProcEmi  string `xml:"procEmi"`
	VerProc  string `xml:"verProc"`
}

type emit struct {
	CNPJ  string    `xml:"CNPJ"`
	XNome string    `xml:"xNome"`
	XFant string    `xml:"xFant"`
	Ender enderEmit `xml:"enderEmit"`
	IE    string    `xml:"IE"`
	CRT   string    `xml:"CRT"`
}

type enderEmit struct {
	XLgr    string `xml:"xLgr"`
	Nro     string `xml:"nro"`
	XBairro string `xml:"xBairro"`
	CMun    string `xml:"cMun"`
	XMun    string `xml:"xMun"`
	UF      string `xml:"UF"`
	CEP     string `xml:"CEP"`
	CPais   string `xml:"cPais"`
	XPais   string `xml:"xPais"`
}

type dest struct {
	CNPJ  string `xml:"CNPJ"`
	XNome string `xml:"xNome"`
}

type det struct {
	NItem   string  `xml:"nItem,attr"`
	Prod    prod    `xml:"prod"`
	Imposto imposto `xml:"imposto"`
}

type prod struct {
	CProd    string `xml:"cProd"`
	CEAN     string `xml:"cEAN"`
	XProd    string `xml:"xProd"`
	NCM      string `xml:"NCM"`
	CFOP     string `xml:"CFOP"`
	UCom     string `xml:"uCom"`
	QCom     string `xml:"qCom"`
	VUnCom   string `xml:"vUnCom"`
	VProd    string `xml:"vProd"`
	CEANTrib string `xml:"cEANTrib"`
	UTrib    string `xml:"uTrib"`
	QTrib    string `xml:"qTrib"`
	VUnTrib  string `xml:"vUnTrib"`
	IndTot   string `xml:"indTot"`
}

type imposto struct {
	ICMS   icms   `xml:"ICMS"`
	PIS    pis    `xml:"PIS"`
	COFINS cofins `xml:"COFINS"`
}

type icms struct {
	SN102 icmsSN102 `xml:"ICMSSN102"`
}

type icmsSN102 struct {
	Orig  string `xml:"orig"`
	CSOSN string `xml:"CSOSN"`
}

type pis struct {
	Outr pisOutr `xml:"PISOutr"`
}

type pisOutr struct {
	CST  string `xml:"CST"`
	VBC  string `xml:"vBC"`
	PPIS string `xml:"pPIS"`
	VPIS string `xml:"vPIS"`
}

type cofins struct {
	Outr cofinsOutr `xml:"COFINSOutr"`
}

type cofinsOutr struct {
	CST     string `xml:"CST"`
	VBC     string `xml:"vBC"`
	PCOFINS string `xml:"pCOFINS"`
	VCOFINS string `xml:"vCOFINS"`
}

type totalBlock struct {
	ICMSTot icmsTot `xml:"ICMSTot"`
}

type icmsTot struct {
	VBC        string `xml:"vBC"`
	VICMS      string `xml:"vICMS"`
	VICMSDeson string `xml:"vICMSDeson"`
	VFCP       string `xml:"vFCP"`
	VBCST      string `xml:"vBCST"`
	VST        string `xml:"vST"`
	VFCPST     string `xml:"vFCPST"`
	VFCPSTRet  string `xml:"vFCPSTRet"`
	VProd      string `xml:"vProd"`
	VFrete     string `xml:"vFrete"`
	VSeg       string `xml:"vSeg"`
	VDesc      string `xml:"vDesc"`
	VII        string `xml:"vII"`
	VIPI       string `xml:"vIPI"`
	VIPIDevol  string `xml:"vIPIDevol"`
	VPIS       string `xml:"vPIS"`
	VCOFINS    string `xml:"vCOFINS"`
	VOutro     string `xml:"vOutro"`
	VNF        string `xml:"vNF"`
}

type transp struct {
	ModFrete string `xml:"modFrete"`
}

type pag struct {
	DetPag detPag `xml:"detPag"`
}

type detPag struct {
	TPag string `xml:"tPag"`
	VPag string `xml:"vPag"`
}
