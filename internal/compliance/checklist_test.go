package compliance

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoicepli/invoice-pli-service/internal/models"
)

// stubIndex resolves only the codes it was seeded with.
type stubIndex map[string]string

func (s stubIndex) Description(code string) (string, bool) {
	desc, ok := s[code]
	return desc, ok
}

func testEngine() *Engine {
	return NewEngine(stubIndex{
		"84821010": "Rolamentos de esferas",
		"85044010": "Conversores estaticos",
	})
}

func compliantInvoice() *models.Invoice {
	return &models.Invoice{
		InvoiceNumber:        "INV-001",
		PackingListNumber:    "PL-001",
		Date:                 "2024-03-15",
		DueDate:              "2024-04-14",
		ExporterName:         "Acme Exports Ltd",
		ExporterAddress:      "1 Industrial Road, Shenzhen",
		ImporterName:         "Importadora Brasil SA",
		ImporterAddress:      "Av. Paulista 1000, Sao Paulo",
		Incoterm:             "FOB",
		Currency:             "USD",
		PaymentTerms:         "NET 30",
		CountryOfOrigin:      "CN",
		CountryOfAcquisition: "CN",
		CountryOfProvenance:  "CN",
		TotalNetWeight:       decimal.NewFromInt(100),
		TotalGrossWeight:     decimal.NewFromInt(120),
		TotalPackages:        4,
		VolumeType:           "CAIXA",
		WeightUnit:           "KG",
		LineItems: []models.LineItem{
			{
				Description:             "Rolamento de esferas",
				ProductCode:             "P-100",
				NCM:                     "84821010",
				TaxClassificationDetail: "01",
				Quantity:                decimal.NewFromInt(10),
				UnitPrice:               decimal.NewFromFloat(2.5),
				Total:                   decimal.NewFromInt(25),
				NetWeight:               decimal.NewFromInt(100),
				ManufacturerRef:         "12345",
			},
		},
	}
}

func itemByID(t *testing.T, r *Report, id string) ChecklistItem {
	t.Helper()
	for _, item := range r.Checklist {
		if item.ID == id {
			return item
		}
	}
	t.Fatalf("checklist item %q not found", id)
	return ChecklistItem{}
}

func TestEvaluateCompliantInvoice(t *testing.T) {
	report := testEngine().Evaluate(compliantInvoice())

	for _, item := range report.Checklist {
		assert.Equal(t, StatusOK, item.Status, "%s: %s", item.ID, item.Message)
	}
	assert.Equal(t, 100, report.CompliancePercentage)
	assert.Empty(t, report.FieldErrors)
}

func TestCompliancePercentage(t *testing.T) {
	inv := compliantInvoice()
	inv.Incoterm = ""

	report := testEngine().Evaluate(inv)

	// 7 of 8 groups ok.
	assert.Equal(t, 88, report.CompliancePercentage)
}

func TestDueDateBeforeIssueDate(t *testing.T) {
	inv := compliantInvoice()
	inv.DueDate = "2024-03-01"

	report := testEngine().Evaluate(inv)

	item := itemByID(t, report, "identifiers")
	assert.Equal(t, StatusInvalid, item.Status)
	assert.Equal(t, "Vencimento anterior a emissao", report.FieldErrors["dueDate"])
}

func TestIncotermCurrencyCrossConfusion(t *testing.T) {
	inv := compliantInvoice()
	inv.Incoterm = "USD"
	inv.Currency = "FOB"

	report := testEngine().Evaluate(inv)

	item := itemByID(t, report, "trade-terms")
	assert.Equal(t, StatusInvalid, item.Status)
	assert.Contains(t, report.FieldErrors["incoterm"], "parece uma moeda, nao um incoterm")
	assert.Contains(t, report.FieldErrors["currency"], "parece um incoterm, nao uma moeda")
}

func TestCountryLooksLikeCurrency(t *testing.T) {
	inv := compliantInvoice()
	inv.CountryOfOrigin = "EUR"

	report := testEngine().Evaluate(inv)

	item := itemByID(t, report, "countries")
	assert.Equal(t, StatusInvalid, item.Status)
	assert.Contains(t, report.FieldErrors["countryOfOrigin"], "parece uma moeda, nao um pais")
}

func TestUnknownPaymentTermIsWarningOnly(t *testing.T) {
	inv := compliantInvoice()
	inv.PaymentTerms = "WHENEVER"

	report := testEngine().Evaluate(inv)

	item := itemByID(t, report, "trade-terms")
	assert.Equal(t, StatusWarning, item.Status)
}

func TestMostSevereStatusWins(t *testing.T) {
	inv := compliantInvoice()
	inv.PaymentTerms = "WHENEVER" // warning
	inv.Incoterm = "XXX"          // invalid
	inv.Currency = ""             // missing

	report := testEngine().Evaluate(inv)

	item := itemByID(t, report, "trade-terms")
	assert.Equal(t, StatusMissing, item.Status)
	require.Len(t, item.Details, 3)
}

func TestDescriptionLengthCountsRunes(t *testing.T) {
	inv := compliantInvoice()
	inv.LineItems[0].Description = strings.Repeat("ã", 254)

	report := testEngine().Evaluate(inv)
	assert.Equal(t, StatusOK, itemByID(t, report, "items").Status)

	inv.LineItems[0].Description = strings.Repeat("ã", 255)
	report = testEngine().Evaluate(inv)
	assert.Equal(t, StatusInvalid, itemByID(t, report, "items").Status)
}

func TestNetWeightExceedsGrossWeight(t *testing.T) {
	inv := compliantInvoice()
	inv.TotalNetWeight = decimal.NewFromInt(200)

	report := testEngine().Evaluate(inv)

	item := itemByID(t, report, "weights")
	assert.Equal(t, StatusInvalid, item.Status)
}

func TestNCMValidation(t *testing.T) {
	tests := []struct {
		name     string
		ncm      string
		expected Status
		contains string
	}{
		{"known code", "84821010", StatusOK, ""},
		{"formatted code", "8482.10.10", StatusOK, ""},
		{"letters", "8482A010", StatusInvalid, "contem letras"},
		{"too short", "8482", StatusInvalid, "nao tem 8 digitos"},
		{"unknown code", "99991234", StatusInvalid, "desconhecido"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inv := compliantInvoice()
			inv.LineItems[0].NCM = tc.ncm

			report := testEngine().Evaluate(inv)
			item := itemByID(t, report, "ncm")
			assert.Equal(t, tc.expected, item.Status)
			if tc.contains != "" {
				assert.Contains(t, item.Message, tc.contains)
			}
		})
	}
}

func TestNCMSwappedWithPartNumber(t *testing.T) {
	inv := compliantInvoice()
	inv.LineItems[0].NCM = ""
	inv.LineItems[0].PartNumber = "85044010"

	report := testEngine().Evaluate(inv)

	item := itemByID(t, report, "ncm")
	assert.Equal(t, StatusWarning, item.Status)
	assert.Contains(t, item.Message, "campos trocados?")
}

func TestTechnicalDetailFoldsPLIValidation(t *testing.T) {
	inv := compliantInvoice()
	inv.LineItems[0].ManufacturerRef = ""

	report := testEngine().Evaluate(inv)

	item := itemByID(t, report, "technical")
	assert.Equal(t, StatusWarning, item.Status)
	assert.Contains(t, item.Message, "CODIGO_FABRICANTE")
}
