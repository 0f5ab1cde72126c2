package export

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoicepli/invoice-pli-service/internal/models"
)

func cleanItem() models.LineItem {
	return models.LineItem{
		Description:             "Rolamento de esferas",
		ProductCode:             "P-100",
		NCM:                     "84821010",
		TaxClassificationDetail: "01",
		Quantity:                decimal.NewFromInt(10),
		UnitMeasure:             "UN",
		UnitPrice:               decimal.NewFromFloat(2.5),
		Total:                   decimal.NewFromInt(25),
		NetWeight:               decimal.NewFromInt(4),
		ManufacturerRef:         "12345",
	}
}

func TestValidatePLICleanInvoice(t *testing.T) {
	inv := &models.Invoice{LineItems: []models.LineItem{cleanItem()}}

	assert.Nil(t, ValidatePLI(inv))
}

func TestValidatePLIRowNumbering(t *testing.T) {
	bad := cleanItem()
	bad.ManufacturerRef = ""

	inv := &models.Invoice{LineItems: []models.LineItem{cleanItem(), bad}}

	report := ValidatePLI(inv)
	require.NotNil(t, report)
	require.Len(t, report.Violations, 1)

	v := report.Violations[0]
	assert.Equal(t, 3, v.Row, "second item sits on spreadsheet row 3")
	assert.Equal(t, "CODIGO_FABRICANTE", v.Field)
	assert.Equal(t, "CODIGO_FABRICANTE obrigatorio", v.Message)
}

func TestValidatePLIDescriptionLengthCountsRunes(t *testing.T) {
	// 254 accented characters occupy more than 254 bytes but stay within
	// the limit.
	item := cleanItem()
	item.Description = strings.Repeat("ç", 254)
	inv := &models.Invoice{LineItems: []models.LineItem{item}}
	assert.Nil(t, ValidatePLI(inv))

	item.Description = strings.Repeat("ç", 255)
	inv = &models.Invoice{LineItems: []models.LineItem{item}}
	report := ValidatePLI(inv)
	require.NotNil(t, report)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, "DESCRICAO", report.Violations[0].Field)
}

func TestValidatePLICollectsAllViolations(t *testing.T) {
	item := models.LineItem{
		Description: strings.Repeat("x", 300),
	}
	inv := &models.Invoice{LineItems: []models.LineItem{item}}

	report := ValidatePLI(inv)
	require.NotNil(t, report)

	fields := map[string]bool{}
	for _, v := range report.Violations {
		assert.Equal(t, 2, v.Row)
		fields[v.Field] = true
	}
	for _, want := range []string{
		"CODIGO_PRODUTO", "NCM", "DETALHE_NCM", "DESCRICAO",
		"PESO_LIQUIDO", "PRECO_UNITARIO", "CODIGO_FABRICANTE",
	} {
		assert.True(t, fields[want], "missing violation for %s", want)
	}
	assert.Equal(t, "CODIGO_PRODUTO", report.FirstField())
}

func TestValidatePLIManufacturerRefNumeric(t *testing.T) {
	tests := []struct {
		ref   string
		valid bool
	}{
		{"12345", true},
		{"12,5", true},
		{"12.5", true},
		{"ABC-1", false},
		{"12 34", true}, // spaces are stripped before parsing
	}

	for _, tc := range tests {
		t.Run(tc.ref, func(t *testing.T) {
			item := cleanItem()
			item.ManufacturerRef = tc.ref
			report := ValidatePLI(&models.Invoice{LineItems: []models.LineItem{item}})
			if tc.valid {
				assert.Nil(t, report)
			} else {
				require.NotNil(t, report)
				assert.Equal(t, "CODIGO_FABRICANTE deve ser numerico", report.Violations[0].Message)
			}
		})
	}
}

func TestValidatePLIDetailLength(t *testing.T) {
	item := cleanItem()
	item.TaxClassificationDetail = "12345"

	report := ValidatePLI(&models.Invoice{LineItems: []models.LineItem{item}})
	require.NotNil(t, report)
	assert.Equal(t, "DETALHE_NCM excede 4 caracteres", report.Violations[0].Message)
}

func TestReportRender(t *testing.T) {
	report := &Report{Violations: []Violation{
		{Row: 2, Field: "NCM", Message: "NCM obrigatorio"},
		{Row: 2, Field: "CODIGO_FABRICANTE", Message: "CODIGO_FABRICANTE obrigatorio"},
		{Row: 5, Field: "PESO_LIQUIDO", Message: "PESO_LIQUIDO invalido ou nao informado"},
	}}

	text := string(report.Render())

	assert.True(t, strings.HasPrefix(text, "\uFEFF"), "report must start with a BOM")

	body := strings.TrimPrefix(text, "\uFEFF")
	expected := "Linha: 2\n" +
		"  - NCM obrigatorio\n" +
		"  - CODIGO_FABRICANTE obrigatorio\n" +
		"\n" +
		"Linha: 5\n" +
		"  - PESO_LIQUIDO invalido ou nao informado\n"
	assert.Equal(t, expected, body)
}

func TestBuildPLI(t *testing.T) {
	item := cleanItem()
	item.Description = "Rolamento; esferas"

	inv := &models.Invoice{LineItems: []models.LineItem{item}}
	out := string(BuildPLI(inv))

	assert.True(t, strings.HasPrefix(out, "\uFEFF"))

	lines := strings.Split(strings.TrimPrefix(out, "\uFEFF"), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, strings.Join(pliColumns, ";"), lines[0])

	row := strings.Split(lines[1], ";")
	require.Len(t, row, len(pliColumns))
	assert.Equal(t, "P-100", row[0])
	assert.Equal(t, "84821010", row[1])
	assert.Equal(t, "Rolamento, esferas", row[3], "separator inside a cell is replaced")
	assert.Equal(t, "10", row[4])
}

func TestBuildPLIProducedEvenWhenInvalid(t *testing.T) {
	// An invoice with violations still exports; only the report differs.
	inv := &models.Invoice{LineItems: []models.LineItem{{}}}

	out := BuildPLI(inv)
	assert.NotEmpty(t, out)
	assert.NotNil(t, ValidatePLI(inv))
}

func TestBuildXLSX(t *testing.T) {
	inv := &models.Invoice{
		InvoiceNumber: "INV-001",
		Currency:      "USD",
		LineItems:     []models.LineItem{cleanItem()},
	}

	data, err := BuildXLSX(inv)
	require.NoError(t, err)
	assert.Greater(t, len(data), 1000, "workbook should not be empty")
	// XLSX is a zip container.
	assert.Equal(t, []byte{'P', 'K'}, data[:2])
}
