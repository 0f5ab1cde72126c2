package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider answers the metadata and line-items prompts with canned JSON.
type stubProvider struct {
	metadata string
	items    string
}

func (s *stubProvider) ExtractData(ctx context.Context, prompt string, fileData []byte, mimeType string) (string, error) {
	if strings.Contains(prompt, "LINE ITEMS") {
		return s.items, nil
	}
	return s.metadata, nil
}

const metadataResponse = `{
	"invoiceNumber": "INV-001",
	"packingListNumber": "PL-001",
	"date": "2024-03-15",
	"exporterName": "Acme Exports Ltd",
	"importerName": "Importadora Brasil SA",
	"currency": "usd",
	"incoterm": " fob ",
	"paymentTerms": "NET 30",
	"countryOfOrigin": "cn",
	"totalGrossWeight": "1.250,50",
	"grandTotal": 62.5,
	"freightValue": "10",
	"insuranceValue": 2.5
}`

const tupleItemsResponse = "```json\n" +
	`[["Rolamento de esferas","P-100",10,"UN",2.5,25,12,"12345","8482.10.10"],
	  ["Conversor","P-200",5,null,5,25,8,"67890","85044010"]]` +
	"\n```"

func TestExtractFromTupleResponse(t *testing.T) {
	provider := &stubProvider{metadata: metadataResponse, items: tupleItemsResponse}

	invoice, _, err := NewExtractor(provider).Extract(context.Background(), []byte("pdf"), "application/pdf", "invoice.pdf")
	require.NoError(t, err)

	assert.Equal(t, "INV-001", invoice.InvoiceNumber)
	assert.Equal(t, "USD", invoice.Currency, "currency is uppercased")
	assert.Equal(t, "FOB", invoice.Incoterm, "incoterm is trimmed and uppercased")
	assert.Equal(t, "CN", invoice.CountryOfOrigin)
	assert.True(t, invoice.TotalGrossWeight.Equal(decimal.RequireFromString("1250.50")), "got %s", invoice.TotalGrossWeight)

	require.Len(t, invoice.LineItems, 2)
	first := invoice.LineItems[0]
	assert.Equal(t, "Rolamento de esferas", first.Description)
	assert.Equal(t, "P-100", first.PartNumber)
	assert.True(t, first.Quantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "UN", first.UnitMeasure)
	assert.Equal(t, "12345", first.ManufacturerRef)
	assert.Equal(t, "8482.10.10", first.NCM)

	assert.Equal(t, "UN", invoice.LineItems[1].UnitMeasure, "null unit falls back to UN")

	// Normalization ran: document aggregates are filled in.
	assert.True(t, invoice.Subtotal.Equal(decimal.NewFromInt(50)), "got %s", invoice.Subtotal)
	assert.True(t, invoice.TotalNetWeight.Equal(decimal.NewFromInt(20)), "got %s", invoice.TotalNetWeight)
	assert.Equal(t, "2024-04-14", invoice.DueDate, "due date derived from NET 30")
}

func TestExtractFromRecordResponse(t *testing.T) {
	items := `{"lineItems":[{"description":"Widget","quantity":"3","unitPrice":"1,5","total":"4.5","netWeight":2,"ncm":"84821010"}]}`
	provider := &stubProvider{metadata: metadataResponse, items: items}

	invoice, _, err := NewExtractor(provider).Extract(context.Background(), nil, "application/pdf", "x.pdf")
	require.NoError(t, err)

	require.Len(t, invoice.LineItems, 1)
	item := invoice.LineItems[0]
	assert.Equal(t, "Widget", item.Description)
	assert.True(t, item.UnitPrice.Equal(decimal.RequireFromString("1.5")), "comma decimal parsed, got %s", item.UnitPrice)
	assert.Equal(t, "UN", item.UnitMeasure)
	assert.Equal(t, "KG", item.WeightUnit)
}

func TestExtractConfidence(t *testing.T) {
	// Line totals (50) + freight (10) + insurance (2.5) = 62.5 = grand total,
	// so the consistency bonus applies on top of the field scores.
	provider := &stubProvider{metadata: metadataResponse, items: tupleItemsResponse}

	invoice, _, err := NewExtractor(provider).Extract(context.Background(), nil, "application/pdf", "x.pdf")
	require.NoError(t, err)

	// Critical: number, grand total, exporter, items   = 0.60
	// Important: date, currency, importer, incoterm,   = 0.25
	//            country of origin (no net weight)
	// Bonus: totals consistent                         = 0.10
	assert.InDelta(t, 0.95, invoice.Confidence, 0.001)
}

func TestExtractRejectsUnparsableMetadata(t *testing.T) {
	provider := &stubProvider{metadata: "sorry, I cannot do that", items: tupleItemsResponse}

	_, _, err := NewExtractor(provider).Extract(context.Background(), nil, "application/pdf", "x.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata")
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}
