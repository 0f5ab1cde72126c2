// Package calc implements the deterministic recalculation engine: one field
// edit in, a fully consistent invoice out. No I/O, no errors — unparsable
// numeric input degrades to zero and edits are never rejected.
package calc

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invoicepli/invoice-pli-service/internal/models"
)

const dateLayout = "2006-01-02"

// nonNegativeFields lists numeric fields where a leading minus sign is
// stripped instead of rejecting the edit.
var nonNegativeFields = map[string]bool{
	"quantity":          true,
	"unitPrice":         true,
	"total":             true,
	"netWeight":         true,
	"unitNetWeight":     true,
	"subtotal":          true,
	"freightValue":      true,
	"insuranceValue":    true,
	"taxValue":          true,
	"otherChargesValue": true,
	"totalNetWeight":    true,
	"totalGrossWeight":  true,
	"totalPackages":     true,
}

// ApplyFieldChange writes newValue into the field named by fieldPath and
// recomputes every dependent figure. Header fields use the bare field name
// ("freightValue"); item fields use "lineItems.<index>.<field>". The input
// invoice is not mutated.
func ApplyFieldChange(inv models.Invoice, fieldPath, newValue string) models.Invoice {
	out := Clone(inv)

	itemIdx, field, isItem := splitFieldPath(fieldPath)
	if isItem {
		if itemIdx < 0 || itemIdx >= len(out.LineItems) {
			return out
		}
		applyItemChange(&out, itemIdx, field, newValue)
		return out
	}

	applyHeaderChange(&out, field, newValue)
	return out
}

// AddItem appends a blank line item and re-runs the document rollup.
func AddItem(inv models.Invoice) models.Invoice {
	out := Clone(inv)
	out.LineItems = append(out.LineItems, models.LineItem{
		UnitMeasure: "UN",
		WeightUnit:  "KG",
	})
	rollup(&out)
	return out
}

// DuplicateItem deep-copies the item at idx and inserts the copy right after
// it. Mutating the copy never alters the original.
func DuplicateItem(inv models.Invoice, idx int) models.Invoice {
	out := Clone(inv)
	if idx < 0 || idx >= len(out.LineItems) {
		return out
	}
	copied := out.LineItems[idx] // LineItem holds no references, value copy is deep
	out.LineItems = append(out.LineItems, models.LineItem{})
	copy(out.LineItems[idx+2:], out.LineItems[idx+1:])
	out.LineItems[idx+1] = copied
	rollup(&out)
	return out
}

// RemoveItem deletes the item at idx and re-runs the document rollup.
func RemoveItem(inv models.Invoice, idx int) models.Invoice {
	out := Clone(inv)
	if idx < 0 || idx >= len(out.LineItems) {
		return out
	}
	out.LineItems = append(out.LineItems[:idx], out.LineItems[idx+1:]...)
	rollup(&out)
	return out
}

// Normalize recomputes every derived figure from the raw values: missing item
// totals and unit weights, the document rollup and the due date. Used once
// after extraction so the document starts out consistent.
func Normalize(inv models.Invoice) models.Invoice {
	out := Clone(inv)
	if out.WeightUnit == "" {
		out.WeightUnit = "KG"
	}
	for i := range out.LineItems {
		item := &out.LineItems[i]
		if item.WeightUnit == "" {
			item.WeightUnit = "KG"
		}
		if item.Total.IsZero() && item.Quantity.IsPositive() && item.UnitPrice.IsPositive() {
			item.Total = round2(item.Quantity.Mul(item.UnitPrice))
		}
		if item.UnitNetWeight.IsZero() {
			item.UnitNetWeight = backSolveUnitWeight(item.NetWeight, item.Quantity)
		}
	}
	rollup(&out)
	deriveDueDate(&out)
	return out
}

// Clone returns an independent copy of the invoice.
func Clone(inv models.Invoice) models.Invoice {
	out := inv
	out.LineItems = make([]models.LineItem, len(inv.LineItems))
	copy(out.LineItems, inv.LineItems)
	return out
}

func splitFieldPath(path string) (idx int, field string, isItem bool) {
	parts := strings.Split(path, ".")
	if len(parts) == 3 && parts[0] == "lineItems" {
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, "", false
		}
		return n, parts[2], true
	}
	return 0, path, false
}

func applyItemChange(inv *models.Invoice, idx int, field, raw string) {
	item := &inv.LineItems[idx]
	affectsTotals := true

	switch field {
	case "quantity":
		item.Quantity = parseClamped(field, raw)
		item.Total = round2(item.Quantity.Mul(item.UnitPrice))
		// Quantity edits preserve the row weight and back-solve the
		// per-unit figure.
		item.UnitNetWeight = backSolveUnitWeight(item.NetWeight, item.Quantity)
	case "unitPrice":
		item.UnitPrice = parseClamped(field, raw)
		item.Total = round2(item.Quantity.Mul(item.UnitPrice))
	case "total":
		item.Total = parseClamped(field, raw)
	case "unitNetWeight":
		item.UnitNetWeight = parseClamped(field, raw)
		item.NetWeight = round4(item.Quantity.Mul(item.UnitNetWeight))
	case "netWeight":
		item.NetWeight = parseClamped(field, raw)
		item.UnitNetWeight = backSolveUnitWeight(item.NetWeight, item.Quantity)
	case "weightUnit":
		item.WeightUnit = strings.ToUpper(strings.TrimSpace(raw))
	case "description":
		item.Description = raw
		affectsTotals = false
	case "partNumber":
		item.PartNumber = raw
		affectsTotals = false
	case "productCode":
		item.ProductCode = raw
		affectsTotals = false
	case "ncm":
		item.NCM = raw
		affectsTotals = false
	case "unitMeasure":
		item.UnitMeasure = raw
		affectsTotals = false
	case "manufacturerRef":
		item.ManufacturerRef = raw
		affectsTotals = false
	case "taxClassificationDetail":
		item.TaxClassificationDetail = raw
		affectsTotals = false
	case "legalAct":
		item.LegalAct = raw
		affectsTotals = false
	case "attributes":
		item.Attributes = raw
		affectsTotals = false
	default:
		affectsTotals = false
	}

	if affectsTotals {
		rollup(inv)
	}
}

func applyHeaderChange(inv *models.Invoice, field, raw string) {
	switch field {
	case "freightValue":
		inv.FreightValue = parseClamped(field, raw)
		rollup(inv)
	case "insuranceValue":
		inv.InsuranceValue = parseClamped(field, raw)
		rollup(inv)
	case "taxValue":
		inv.TaxValue = parseClamped(field, raw)
		rollup(inv)
	case "otherChargesValue":
		inv.OtherChargesValue = parseClamped(field, raw)
		rollup(inv)
	case "totalGrossWeight":
		inv.TotalGrossWeight = parseClamped(field, raw)
	case "totalPackages":
		inv.TotalPackages = int(parseClamped(field, raw).IntPart())
	case "weightUnit":
		inv.WeightUnit = strings.ToUpper(strings.TrimSpace(raw))
		rollup(inv)
	case "date":
		inv.Date = raw
		deriveDueDate(inv)
	case "paymentTerms":
		inv.PaymentTerms = raw
		deriveDueDate(inv)
	case "dueDate":
		inv.DueDate = raw
	case "invoiceNumber":
		inv.InvoiceNumber = raw
	case "packingListNumber":
		inv.PackingListNumber = raw
	case "exporterName":
		inv.ExporterName = raw
	case "exporterAddress":
		inv.ExporterAddress = raw
	case "exporterTaxId":
		inv.ExporterTaxID = raw
	case "importerName":
		inv.ImporterName = raw
	case "importerAddress":
		inv.ImporterAddress = raw
	case "importerTaxId":
		inv.ImporterTaxID = raw
	case "incoterm":
		inv.Incoterm = strings.ToUpper(strings.TrimSpace(raw))
	case "currency":
		inv.Currency = strings.ToUpper(strings.TrimSpace(raw))
	case "countryOfOrigin":
		inv.CountryOfOrigin = strings.ToUpper(strings.TrimSpace(raw))
	case "countryOfAcquisition":
		inv.CountryOfAcquisition = strings.ToUpper(strings.TrimSpace(raw))
	case "countryOfProvenance":
		inv.CountryOfProvenance = strings.ToUpper(strings.TrimSpace(raw))
	case "portOfLoading":
		inv.PortOfLoading = raw
	case "portOfDischarge":
		inv.PortOfDischarge = raw
	case "volumeType":
		inv.VolumeType = raw
	}
}

// rollup recomputes the document aggregates: subtotal from line totals, total
// net weight normalized through kilograms and converted back to the document
// unit, and the grand total.
func rollup(inv *models.Invoice) {
	subtotal := decimal.Zero
	weightKG := decimal.Zero
	for _, item := range inv.LineItems {
		subtotal = subtotal.Add(item.Total)
		weightKG = weightKG.Add(toKilograms(item.NetWeight, item.WeightUnit))
	}

	inv.Subtotal = round2(subtotal)
	inv.TotalNetWeight = round4(fromKilograms(weightKG, inv.WeightUnit))
	inv.GrandTotal = round2(inv.Subtotal.
		Add(inv.FreightValue).
		Add(inv.InsuranceValue).
		Add(inv.TaxValue).
		Add(inv.OtherChargesValue))
}

var netDaysPattern = regexp.MustCompile(`(?i)(?:net\s*(\d+)|(\d+)\s*(?:dias|days|dd\b))`)

// immediateTerms are payment-term keywords meaning the invoice is due on the
// issue date.
var immediateTerms = []string{"vista", "antecipado", "immediate", "advance", "cash in advance"}

// deriveDueDate derives dueDate from the issue date and the payment-term
// string. Unrecognized terms leave dueDate untouched.
func deriveDueDate(inv *models.Invoice) {
	if inv.Date == "" || inv.PaymentTerms == "" {
		return
	}
	issue, err := time.Parse(dateLayout, inv.Date)
	if err != nil {
		return
	}

	terms := strings.ToLower(inv.PaymentTerms)
	for _, kw := range immediateTerms {
		if strings.Contains(terms, kw) {
			inv.DueDate = inv.Date
			return
		}
	}

	if m := netDaysPattern.FindStringSubmatch(terms); m != nil {
		digits := m[1]
		if digits == "" {
			digits = m[2]
		}
		days, err := strconv.Atoi(digits)
		if err == nil && days > 0 {
			inv.DueDate = issue.AddDate(0, 0, days).Format(dateLayout)
		}
	}
}

func backSolveUnitWeight(netWeight, quantity decimal.Decimal) decimal.Decimal {
	if quantity.IsPositive() {
		return round6(netWeight.Div(quantity))
	}
	return decimal.Zero
}

func parseClamped(field, raw string) decimal.Decimal {
	d := ParseAmount(raw)
	if nonNegativeFields[field] && d.IsNegative() {
		d = d.Abs()
	}
	return d
}

// ParseAmount parses a user-entered number. Both comma and dot decimal
// separators are accepted; thousands separators are stripped. Anything
// unparsable is zero.
func ParseAmount(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero
	}
	s = strings.ReplaceAll(s, " ", "")

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		// The rightmost separator is the decimal mark.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// weightFactors converts a unit to kilograms.
var weightFactors = map[string]decimal.Decimal{
	"KG":  decimal.NewFromInt(1),
	"G":   decimal.NewFromFloat(0.001),
	"LB":  decimal.NewFromFloat(0.45359237),
	"TON": decimal.NewFromInt(1000),
	"T":   decimal.NewFromInt(1000),
}

func toKilograms(w decimal.Decimal, unit string) decimal.Decimal {
	if factor, ok := weightFactors[strings.ToUpper(strings.TrimSpace(unit))]; ok {
		return w.Mul(factor)
	}
	return w // unknown units pass through as kilograms
}

func fromKilograms(w decimal.Decimal, unit string) decimal.Decimal {
	if factor, ok := weightFactors[strings.ToUpper(strings.TrimSpace(unit))]; ok && !factor.IsZero() {
		return w.Div(factor)
	}
	return w
}

func round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
func round4(d decimal.Decimal) decimal.Decimal { return d.Round(4) }
func round6(d decimal.Decimal) decimal.Decimal { return d.Round(6) }
