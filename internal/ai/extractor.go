package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/invoicepli/invoice-pli-service/internal/calc"
	"github.com/invoicepli/invoice-pli-service/internal/models"
)

// Extractor turns an uploaded invoice document into structured data. The work
// is split into two prompts — header metadata and the line-items table — run
// concurrently against the provider, because large item tables overflow a
// single structured response.
type Extractor struct {
	provider Provider
}

// NewExtractor creates a new AI extractor
func NewExtractor(provider Provider) *Extractor {
	return &Extractor{provider: provider}
}

// Extract processes the document and returns a normalized invoice.
func (e *Extractor) Extract(ctx context.Context, fileData []byte, mimeType, filename string) (*models.Invoice, float64, error) {
	startTime := time.Now()

	filePrefix := fmt.Sprintf("[SYSTEM: FILE CONTEXT] Filename: %s\n\n", filename)

	var metadataJSON, itemsJSON string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := e.provider.ExtractData(gctx, filePrefix+metadataPrompt, fileData, mimeType)
		if err != nil {
			return fmt.Errorf("metadata extraction failed: %w", err)
		}
		metadataJSON = out
		return nil
	})
	g.Go(func() error {
		out, err := e.provider.ExtractData(gctx, filePrefix+lineItemsPrompt, fileData, mimeType)
		if err != nil {
			return fmt.Errorf("line-items extraction failed: %w", err)
		}
		itemsJSON = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, time.Since(startTime).Seconds(), err
	}

	invoice, err := e.parseMetadata(metadataJSON)
	if err != nil {
		return nil, time.Since(startTime).Seconds(), fmt.Errorf("failed to parse metadata response: %w", err)
	}

	items, err := parseLineItems(itemsJSON)
	if err != nil {
		return nil, time.Since(startTime).Seconds(), fmt.Errorf("failed to parse line-items response: %w", err)
	}
	invoice.LineItems = items
	invoice.ProcessedAt = time.Now()

	// Confidence is scored on the raw extraction, before normalization
	// overwrites the derived totals.
	confidence := calculateConfidence(invoice)

	// Recompute every derived figure so the document starts consistent
	// regardless of what the model returned.
	normalized := calc.Normalize(*invoice)
	normalized.Confidence = confidence

	return &normalized, time.Since(startTime).Seconds(), nil
}

// parseMetadata converts the metadata JSON response into an invoice header.
func (e *Extractor) parseMetadata(response string) (*models.Invoice, error) {
	cleaned := stripFences(response)

	// interface{} for numeric fields: models sometimes return strings with
	// thousands separators.
	var raw struct {
		InvoiceNumber        string      `json:"invoiceNumber"`
		PackingListNumber    string      `json:"packingListNumber"`
		Date                 string      `json:"date"`
		ExporterName         string      `json:"exporterName"`
		ExporterAddress      string      `json:"exporterAddress"`
		ExporterTaxID        string      `json:"exporterTaxId"`
		ImporterName         string      `json:"importerName"`
		ImporterAddress      string      `json:"importerAddress"`
		ImporterTaxID        string      `json:"importerTaxId"`
		Currency             string      `json:"currency"`
		Incoterm             string      `json:"incoterm"`
		PaymentTerms         string      `json:"paymentTerms"`
		CountryOfOrigin      string      `json:"countryOfOrigin"`
		CountryOfAcquisition string      `json:"countryOfAcquisition"`
		CountryOfProvenance  string      `json:"countryOfProvenance"`
		PortOfLoading        string      `json:"portOfLoading"`
		PortOfDischarge      string      `json:"portOfDischarge"`
		VolumeType           string      `json:"volumeType"`
		TotalPackages        interface{} `json:"totalPackages"`
		TotalNetWeight       interface{} `json:"totalNetWeight"`
		TotalGrossWeight     interface{} `json:"totalGrossWeight"`
		GrandTotal           interface{} `json:"grandTotal"`
		FreightValue         interface{} `json:"freightValue"`
		InsuranceValue       interface{} `json:"insuranceValue"`
		TaxValue             interface{} `json:"taxValue"`
		OtherChargesValue    interface{} `json:"otherChargesValue"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("JSON parse error: %w - Response: %s", err, cleaned)
	}

	invoice := &models.Invoice{
		InvoiceNumber:        raw.InvoiceNumber,
		PackingListNumber:    raw.PackingListNumber,
		Date:                 raw.Date,
		ExporterName:         raw.ExporterName,
		ExporterAddress:      raw.ExporterAddress,
		ExporterTaxID:        raw.ExporterTaxID,
		ImporterName:         raw.ImporterName,
		ImporterAddress:      raw.ImporterAddress,
		ImporterTaxID:        raw.ImporterTaxID,
		Currency:             strings.ToUpper(strings.TrimSpace(raw.Currency)),
		Incoterm:             strings.ToUpper(strings.TrimSpace(raw.Incoterm)),
		PaymentTerms:         raw.PaymentTerms,
		CountryOfOrigin:      strings.ToUpper(strings.TrimSpace(raw.CountryOfOrigin)),
		CountryOfAcquisition: strings.ToUpper(strings.TrimSpace(raw.CountryOfAcquisition)),
		CountryOfProvenance:  strings.ToUpper(strings.TrimSpace(raw.CountryOfProvenance)),
		PortOfLoading:        raw.PortOfLoading,
		PortOfDischarge:      raw.PortOfDischarge,
		VolumeType:           raw.VolumeType,
		WeightUnit:           "KG",
		TotalPackages:        int(parseDecimal(raw.TotalPackages).IntPart()),
		TotalNetWeight:       parseDecimal(raw.TotalNetWeight),
		TotalGrossWeight:     parseDecimal(raw.TotalGrossWeight),
		GrandTotal:           parseDecimal(raw.GrandTotal),
		FreightValue:         parseDecimal(raw.FreightValue),
		InsuranceValue:       parseDecimal(raw.InsuranceValue),
		TaxValue:             parseDecimal(raw.TaxValue),
		OtherChargesValue:    parseDecimal(raw.OtherChargesValue),
	}
	return invoice, nil
}

// parseLineItems decodes the minified array-of-arrays response. The model is
// asked for tuples but sometimes answers with an object wrapper or a list of
// records, so all three are accepted.
func parseLineItems(response string) ([]models.LineItem, error) {
	cleaned := stripFences(response)

	var wrapper struct {
		LineItems json.RawMessage `json:"lineItems"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wrapper); err == nil && wrapper.LineItems != nil {
		cleaned = string(wrapper.LineItems)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &rows); err != nil {
		return nil, fmt.Errorf("JSON parse error: %w - Response: %s", err, cleaned)
	}

	var items []models.LineItem
	for _, row := range rows {
		trimmed := strings.TrimSpace(string(row))
		if strings.HasPrefix(trimmed, "[") {
			var tuple []interface{}
			if err := json.Unmarshal(row, &tuple); err != nil {
				continue
			}
			items = append(items, itemFromTuple(tuple))
			continue
		}

		var record struct {
			Description     string      `json:"description"`
			PartNumber      string      `json:"partNumber"`
			Quantity        interface{} `json:"quantity"`
			UnitMeasure     string      `json:"unitMeasure"`
			UnitPrice       interface{} `json:"unitPrice"`
			Total           interface{} `json:"total"`
			NetWeight       interface{} `json:"netWeight"`
			ManufacturerRef string      `json:"manufacturerRef"`
			NCM             string      `json:"ncm"`
		}
		if err := json.Unmarshal(row, &record); err != nil {
			continue
		}
		items = append(items, models.LineItem{
			Description:     record.Description,
			PartNumber:      record.PartNumber,
			Quantity:        parseDecimal(record.Quantity),
			UnitMeasure:     defaultString(record.UnitMeasure, "UN"),
			UnitPrice:       parseDecimal(record.UnitPrice),
			Total:           parseDecimal(record.Total),
			NetWeight:       parseDecimal(record.NetWeight),
			ManufacturerRef: record.ManufacturerRef,
			NCM:             record.NCM,
			WeightUnit:      "KG",
		})
	}
	return items, nil
}

// itemFromTuple maps the fixed tuple columns:
// 0 description, 1 part number, 2 quantity, 3 unit, 4 unit price,
// 5 total, 6 net weight, 7 manufacturer ref, 8 NCM.
func itemFromTuple(tuple []interface{}) models.LineItem {
	item := models.LineItem{UnitMeasure: "UN", WeightUnit: "KG"}
	get := func(i int) interface{} {
		if i < len(tuple) {
			return tuple[i]
		}
		return nil
	}

	item.Description = stringAt(get(0))
	item.PartNumber = stringAt(get(1))
	item.Quantity = parseDecimal(get(2))
	if unit := stringAt(get(3)); unit != "" {
		item.UnitMeasure = unit
	}
	item.UnitPrice = parseDecimal(get(4))
	item.Total = parseDecimal(get(5))
	item.NetWeight = parseDecimal(get(6))
	item.ManufacturerRef = stringAt(get(7))
	item.NCM = stringAt(get(8))
	return item
}

// stripFences removes markdown code fences around a JSON response.
func stripFences(response string) string {
	cleaned := strings.TrimSpace(response)
	backticks := "```"
	cleaned = strings.ReplaceAll(cleaned, backticks+"json", "")
	cleaned = strings.ReplaceAll(cleaned, backticks, "")
	return strings.TrimSpace(cleaned)
}

func stringAt(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", val), "0"), ".")
	default:
		return fmt.Sprintf("%v", val)
	}
}

func defaultString(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// parseDecimal handles flexible number parsing from interface{}
// Supports: numbers, strings, strings with commas (e.g., "3,965.34")
func parseDecimal(v interface{}) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}

	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val)
	case int:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case string:
		return calc.ParseAmount(val)
	case json.Number:
		d, err := decimal.NewFromString(string(val))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// calculateConfidence scores extraction quality.
//
// Critical fields — 0.15 each (0.60 total):
//
//	invoice number, grand total > 0, exporter name, at least one line item
//
// Important fields — 0.05 each (0.30 total):
//
//	date, currency, importer name, incoterm, net weight > 0, country of origin
//
// Bonus — 0.10:
//
//	grand total ~ sum of line totals + freight + insurance + tax + other
//	(within 5%)
func calculateConfidence(inv *models.Invoice) float64 {
	var score float64

	if inv.InvoiceNumber != "" {
		score += 0.15
	}
	if inv.GrandTotal.IsPositive() {
		score += 0.15
	}
	if inv.ExporterName != "" {
		score += 0.15
	}
	if len(inv.LineItems) > 0 {
		score += 0.15
	}

	if inv.Date != "" {
		score += 0.05
	}
	if inv.Currency != "" {
		score += 0.05
	}
	if inv.ImporterName != "" {
		score += 0.05
	}
	if inv.Incoterm != "" {
		score += 0.05
	}
	if inv.TotalNetWeight.IsPositive() {
		score += 0.05
	}
	if inv.CountryOfOrigin != "" {
		score += 0.05
	}

	// The subtotal is derived later; score the raw line totals here.
	itemsTotal := decimal.Zero
	for _, item := range inv.LineItems {
		itemsTotal = itemsTotal.Add(item.Total)
	}
	if inv.GrandTotal.IsPositive() && itemsTotal.IsPositive() {
		expected := itemsTotal.
			Add(inv.FreightValue).
			Add(inv.InsuranceValue).
			Add(inv.TaxValue).
			Add(inv.OtherChargesValue)
		diff := inv.GrandTotal.Sub(expected).Abs()
		tolerance := inv.GrandTotal.Mul(decimal.NewFromFloat(0.05))
		if diff.LessThanOrEqual(tolerance) {
			score += 0.10
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
