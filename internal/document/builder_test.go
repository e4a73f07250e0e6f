package document

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscal-note-service/internal/accesskey"
	"fiscal-note-service/internal/models"
)

func testConfig() *models.FiscalConfig {
	return &models.FiscalConfig{
		Environment:       models.EnvironmentHomologation,
		UFCode:            "35",
		CNPJ:              "12345678000199",
		StateRegistration: "123456789012",
		CorporateName:     "Lanchonete Boa Mesa LTDA",
		TradeName:         "Boa Mesa",
		TaxRegime:         1,
		Address: models.Address{
			Street:     "Rua das Flores",
			Number:     "100",
			District:   "Centro",
			City:       "Sao Paulo",
			CityCode:   "3550308",
			State:      "SP",
			PostalCode: "01001000",
		},
	}
}

func testKey(t *testing.T, number string) string {
	t.Helper()
	issuedAt := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
	key, err := accesskey.Generate("35", issuedAt, "12345678000199", "65", "001", number, "1", number[1:])
	require.NoError(t, err)
	return key
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBuildTotalsScenario(t *testing.T) {
	items := []models.LineItem{
		{ProductID: "p1", Description: "Burger", Quantity: 2, UnitPrice: price("10.00"), NCM: "21069090", CFOP: "5102"},
		{ProductID: "p2", Description: "Fries", Quantity: 1, UnitPrice: price("5.50"), NCM: "21069090", CFOP: "5102"},
		{ProductID: "p3", Description: "Soda", Quantity: 3, UnitPrice: price("1.00"), NCM: "22021000", CFOP: "5102"},
	}
	recipient := models.Recipient{TaxID: "98.765.432/0001-10", Name: "Cliente Final"}
	key := testKey(t, "000000042")

	doc, err := Build(testConfig(), items, recipient, "000000042", "001", key, time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "28.50", doc.Total.StringFixed(2))
	assert.Equal(t, "NFe"+key, doc.ReferenceID)

	assert.Contains(t, doc.XML, "<vProd>20.00</vProd>")
	assert.Contains(t, doc.XML, "<vProd>5.50</vProd>")
	assert.Contains(t, doc.XML, "<vProd>3.00</vProd>")
	assert.Contains(t, doc.XML, "<vNF>28.50</vNF>")
	assert.Contains(t, doc.XML, `<detPag><tPag>01</tPag><vPag>28.50</vPag></detPag>`)

	// Recipient tax id is normalized to digits only.
	assert.Contains(t, doc.XML, "<CNPJ>98765432000110</CNPJ>")

	// Line indices start at 1.
	assert.Contains(t, doc.XML, `<det nItem="1">`)
	assert.Contains(t, doc.XML, `<det nItem="3">`)
	assert.NotContains(t, doc.XML, `<det nItem="0">`)
}

func TestBuildNoFloatDriftAcrossManyItems(t *testing.T) {
	// 1000 items of 0.10 would drift under float accumulation; the
	// grand total must be the exact cent sum.
	items := make([]models.LineItem, 1000)
	for i := range items {
		items[i] = models.LineItem{
			ProductID:   fmt.Sprintf("p%d", i),
			Description: "Item",
			Quantity:    1,
			UnitPrice:   price("0.10"),
			NCM:         "21069090",
			CFOP:        "5102",
		}
	}
	key := testKey(t, "000000043")

	doc, err := Build(testConfig(), items, models.Recipient{TaxID: "98765432000110", Name: "C"}, "000000043", "001", key, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "100.00", doc.Total.StringFixed(2))
	assert.Contains(t, doc.XML, "<vNF>100.00</vNF>")
	assert.Equal(t, 1000, strings.Count(doc.XML, "<det "))
}

func TestBuildCanonicalForm(t *testing.T) {
	items := []models.LineItem{
		{ProductID: "p1", Description: "Burger", Quantity: 2, UnitPrice: price("10.00"), NCM: "21069090", CFOP: "5102"},
	}
	key := testKey(t, "000000044")

	doc, err := Build(testConfig(), items, models.Recipient{TaxID: "98765432000110", Name: "C"}, "000000044", "001", key, time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// Canonical form: single line, no declaration, namespace on the root.
	assert.False(t, strings.ContainsAny(doc.XML, "\n\t"))
	assert.True(t, strings.HasPrefix(doc.XML, `<NFe xmlns="http://www.portalfiscal.inf.br/nfe">`))
	assert.Contains(t, doc.XML, fmt.Sprintf(`<infNFe Id="NFe%s" versao="4.00">`, key))

	// Access-key-derived fields embedded in ide.
	assert.Contains(t, doc.XML, fmt.Sprintf("<cNF>%s</cNF>", key[35:43]))
	assert.Contains(t, doc.XML, fmt.Sprintf("<cDV>%s</cDV>", key[43:]))

	// Quantities carry no decimal separator.
	assert.Contains(t, doc.XML, "<qCom>2</qCom>")

	// Fixed simplified-regime tax classification on every line.
	assert.Contains(t, doc.XML, "<ICMSSN102><orig>0</orig><CSOSN>102</CSOSN></ICMSSN102>")
}

func TestBuildFailsWithoutConfig(t *testing.T) {
	key := testKey(t, "000000045")
	items := []models.LineItem{
		{ProductID: "p1", Description: "x", Quantity: 1, UnitPrice: price("1.00"), NCM: "1", CFOP: "5102"},
	}

	_, err := Build(nil, items, models.Recipient{}, "000000045", "001", key, time.Now())
	assert.ErrorIs(t, err, models.ErrConfigurationMissing)
}

func TestBuildValidatesInput(t *testing.T) {
	cfg := testConfig()
	key := testKey(t, "000000046")

	_, err := Build(cfg, nil, models.Recipient{}, "000000046", "001", key, time.Now())
	assert.Error(t, err)

	bad := []models.LineItem{{ProductID: "p", Quantity: 0, UnitPrice: price("1.00")}}
	_, err = Build(cfg, bad, models.Recipient{}, "000000046", "001", key, time.Now())
	assert.Error(t, err)

	neg := []models.LineItem{{ProductID: "p", Quantity: 1, UnitPrice: price("-1.00")}}
	_, err = Build(cfg, neg, models.Recipient{}, "000000046", "001", key, time.Now())
	assert.Error(t, err)

	ok := []models.LineItem{{ProductID: "p", Quantity: 1, UnitPrice: price("1.00")}}
	_, err = Build(cfg, ok, models.Recipient{}, "000000046", "001", "not-a-key", time.Now())
	assert.Error(t, err)
}
