package calc

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoicepli/invoice-pli-service/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func sampleInvoice() models.Invoice {
	return models.Invoice{
		InvoiceNumber: "INV-001",
		Date:          "2024-03-15",
		Currency:      "USD",
		WeightUnit:    "KG",
		FreightValue:  dec("10"),
		LineItems: []models.LineItem{
			{
				Description:   "Widget",
				Quantity:      dec("10"),
				UnitMeasure:   "UN",
				UnitPrice:     dec("2.50"),
				Total:         dec("25.00"),
				NetWeight:     dec("12"),
				UnitNetWeight: dec("1.2"),
				WeightUnit:    "KG",
			},
			{
				Description:   "Gadget",
				Quantity:      dec("4"),
				UnitMeasure:   "UN",
				UnitPrice:     dec("5.00"),
				Total:         dec("20.00"),
				NetWeight:     dec("8"),
				UnitNetWeight: dec("2"),
				WeightUnit:    "KG",
			},
		},
	}
}

func TestApplyFieldChangeQuantity(t *testing.T) {
	inv := sampleInvoice()

	out := ApplyFieldChange(inv, "lineItems.0.quantity", "4")

	item := out.LineItems[0]
	assert.True(t, item.Total.Equal(dec("10.00")), "total = quantity x unitPrice, got %s", item.Total)
	// The row weight stays; the per-unit weight is back-solved.
	assert.True(t, item.NetWeight.Equal(dec("12")), "netWeight must be preserved, got %s", item.NetWeight)
	assert.True(t, item.UnitNetWeight.Equal(dec("3")), "unitNetWeight back-solved, got %s", item.UnitNetWeight)

	// The input is untouched.
	assert.True(t, inv.LineItems[0].Quantity.Equal(dec("10")))
}

func TestApplyFieldChangeUnitPrice(t *testing.T) {
	out := ApplyFieldChange(sampleInvoice(), "lineItems.1.unitPrice", "3.333")

	assert.True(t, out.LineItems[1].Total.Equal(dec("13.33")), "got %s", out.LineItems[1].Total)
	assert.True(t, out.Subtotal.Equal(dec("38.33")), "subtotal got %s", out.Subtotal)
}

func TestApplyFieldChangeUnitNetWeight(t *testing.T) {
	out := ApplyFieldChange(sampleInvoice(), "lineItems.0.unitNetWeight", "0.5")

	assert.True(t, out.LineItems[0].NetWeight.Equal(dec("5")), "netWeight = quantity x unitNetWeight, got %s", out.LineItems[0].NetWeight)
	assert.True(t, out.TotalNetWeight.Equal(dec("13")), "got %s", out.TotalNetWeight)
}

func TestApplyFieldChangeNetWeightBackSolves(t *testing.T) {
	out := ApplyFieldChange(sampleInvoice(), "lineItems.0.netWeight", "15")

	assert.True(t, out.LineItems[0].UnitNetWeight.Equal(dec("1.5")), "got %s", out.LineItems[0].UnitNetWeight)
}

func TestApplyFieldChangeZeroQuantity(t *testing.T) {
	out := ApplyFieldChange(sampleInvoice(), "lineItems.0.quantity", "0")

	assert.True(t, out.LineItems[0].Total.IsZero())
	assert.True(t, out.LineItems[0].UnitNetWeight.IsZero(), "no back-solving against zero quantity")
}

func TestApplyFieldChangeClampsNegatives(t *testing.T) {
	out := ApplyFieldChange(sampleInvoice(), "lineItems.0.quantity", "-5")

	assert.True(t, out.LineItems[0].Quantity.Equal(dec("5")), "got %s", out.LineItems[0].Quantity)
}

func TestApplyFieldChangeUnparsableDegradesToZero(t *testing.T) {
	out := ApplyFieldChange(sampleInvoice(), "lineItems.0.unitPrice", "abc")

	assert.True(t, out.LineItems[0].UnitPrice.IsZero())
	assert.True(t, out.LineItems[0].Total.IsZero())
}

func TestApplyFieldChangeBadPath(t *testing.T) {
	inv := sampleInvoice()

	out := ApplyFieldChange(inv, "lineItems.7.quantity", "1")
	assert.Len(t, out.LineItems, 2)
	assert.True(t, out.LineItems[0].Quantity.Equal(dec("10")))
}

func TestGrandTotalIdentity(t *testing.T) {
	inv := sampleInvoice()
	inv.InsuranceValue = dec("5")
	inv.TaxValue = dec("2.50")
	inv.OtherChargesValue = dec("1")

	out := ApplyFieldChange(inv, "freightValue", "10")

	// 45.00 + 10 + 5 + 2.50 + 1
	assert.True(t, out.Subtotal.Equal(dec("45.00")), "got %s", out.Subtotal)
	assert.True(t, out.GrandTotal.Equal(dec("63.50")), "got %s", out.GrandTotal)
}

func TestHeaderUppercasing(t *testing.T) {
	out := ApplyFieldChange(sampleInvoice(), "incoterm", " fob ")
	assert.Equal(t, "FOB", out.Incoterm)

	out = ApplyFieldChange(out, "countryOfOrigin", "cn")
	assert.Equal(t, "CN", out.CountryOfOrigin)
}

func TestWeightUnitConversion(t *testing.T) {
	inv := sampleInvoice()

	// 20 KG of line weight expressed in tonnes on the document.
	out := ApplyFieldChange(inv, "weightUnit", "TON")
	assert.True(t, out.TotalNetWeight.Equal(dec("0.02")), "got %s", out.TotalNetWeight)

	// Line items in pounds roll up through kilograms.
	inv.LineItems[0].WeightUnit = "LB"
	inv.LineItems[1].NetWeight = decimal.Zero
	out = ApplyFieldChange(inv, "weightUnit", "KG")
	assert.True(t, out.TotalNetWeight.Equal(dec("5.4431")), "got %s", out.TotalNetWeight)
}

func TestDeriveDueDate(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		terms    string
		expected string
	}{
		{"net 30", "2024-03-15", "NET 30", "2024-04-14"},
		{"net with noise", "2024-03-15", "Payment NET60 days", "2024-05-14"},
		{"dias", "2024-03-15", "30 DIAS", "2024-04-14"},
		{"a vista", "2024-03-15", "A VISTA", "2024-03-15"},
		{"antecipado", "2024-03-15", "PAGAMENTO ANTECIPADO", "2024-03-15"},
		{"cash in advance", "2024-01-31", "CASH IN ADVANCE", "2024-01-31"},
		{"days after bl", "2024-03-15", "LC 90 DAYS AFTER B/L", "2024-06-13"},
		{"unparsable terms", "2024-03-15", "CAD", ""},
		{"no date", "", "NET 30", ""},
		{"bad date", "15/03/2024", "NET 30", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inv := models.Invoice{Date: tc.date, PaymentTerms: tc.terms}
			out := ApplyFieldChange(inv, "paymentTerms", tc.terms)
			assert.Equal(t, tc.expected, out.DueDate)
		})
	}
}

func TestDueDateRecomputedOnDateEdit(t *testing.T) {
	inv := sampleInvoice()
	inv.PaymentTerms = "NET 30"

	out := ApplyFieldChange(inv, "date", "2024-06-01")
	assert.Equal(t, "2024-07-01", out.DueDate)
}

func TestAddItem(t *testing.T) {
	out := AddItem(sampleInvoice())

	require.Len(t, out.LineItems, 3)
	added := out.LineItems[2]
	assert.Equal(t, "UN", added.UnitMeasure)
	assert.Equal(t, "KG", added.WeightUnit)
	assert.True(t, out.Subtotal.Equal(dec("45.00")), "blank item must not move the subtotal")
}

func TestDuplicateItem(t *testing.T) {
	inv := sampleInvoice()

	out := DuplicateItem(inv, 0)

	require.Len(t, out.LineItems, 3)
	assert.Equal(t, "Widget", out.LineItems[1].Description)
	assert.Equal(t, "Gadget", out.LineItems[2].Description)
	assert.True(t, out.Subtotal.Equal(dec("70.00")), "got %s", out.Subtotal)

	// Editing the copy leaves the source row alone.
	edited := ApplyFieldChange(out, "lineItems.1.description", "Widget B")
	assert.Equal(t, "Widget", edited.LineItems[0].Description)
	assert.Equal(t, "Widget B", edited.LineItems[1].Description)
}

func TestRemoveItem(t *testing.T) {
	out := RemoveItem(sampleInvoice(), 0)

	require.Len(t, out.LineItems, 1)
	assert.Equal(t, "Gadget", out.LineItems[0].Description)
	assert.True(t, out.Subtotal.Equal(dec("20.00")), "got %s", out.Subtotal)
	assert.True(t, out.TotalNetWeight.Equal(dec("8")), "got %s", out.TotalNetWeight)

	out = RemoveItem(out, 5)
	assert.Len(t, out.LineItems, 1, "out-of-range removal is a no-op")
}

func TestNormalize(t *testing.T) {
	inv := models.Invoice{
		Date:         "2024-03-15",
		PaymentTerms: "NET 15",
		LineItems: []models.LineItem{
			{Quantity: dec("3"), UnitPrice: dec("7"), NetWeight: dec("6")},
		},
	}

	out := Normalize(inv)

	assert.Equal(t, "KG", out.WeightUnit)
	assert.Equal(t, "KG", out.LineItems[0].WeightUnit)
	assert.True(t, out.LineItems[0].Total.Equal(dec("21.00")), "got %s", out.LineItems[0].Total)
	assert.True(t, out.LineItems[0].UnitNetWeight.Equal(dec("2")), "got %s", out.LineItems[0].UnitNetWeight)
	assert.True(t, out.Subtotal.Equal(dec("21.00")))
	assert.Equal(t, "2024-03-30", out.DueDate)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"1234.56", "1234.56"},
		{"1.234,56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"12,5", "12.5"},
		{"1 234,56", "1234.56"},
		{"-3.5", "-3.5"},
		{"", "0"},
		{"abc", "0"},
		{"12.34.56", "0"},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got := ParseAmount(tc.raw)
			assert.True(t, got.Equal(dec(tc.expected)), "ParseAmount(%q) = %s, want %s", tc.raw, got, tc.expected)
		})
	}
}
