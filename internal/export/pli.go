// Package export produces the outbound artifacts: the XLSX workbook, the PLI
// file and the companion validation report. Validation never blocks the
// export — a non-empty report is shipped alongside the primary file.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/invoicepli/invoice-pli-service/internal/models"
)

// HeaderRowOffset maps an item index to its spreadsheet row: one header row,
// rows counted from 1.
const HeaderRowOffset = 2

const maxDescriptionLen = 254
const maxDetailLen = 4

// Violation is one strict-rule failure on one item.
type Violation struct {
	Row     int    `json:"row"` // item index + HeaderRowOffset
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Report collects every violation across all items.
type Report struct {
	Violations []Violation `json:"violations"`
}

// FirstField returns the field name of the first violation, as a hint for the
// live checklist.
func (r *Report) FirstField() string {
	if r == nil || len(r.Violations) == 0 {
		return ""
	}
	return r.Violations[0].Field
}

// ValidatePLI applies the strict per-item PLI rule set. It returns nil when
// the invoice is clean. Violations are collected across all items, never
// short-circuited.
func ValidatePLI(inv *models.Invoice) *Report {
	var violations []Violation
	add := func(row int, field, message string) {
		violations = append(violations, Violation{Row: row, Field: field, Message: message})
	}

	for i, item := range inv.LineItems {
		row := i + HeaderRowOffset

		if strings.TrimSpace(item.ProductCode) == "" {
			add(row, "CODIGO_PRODUTO", "CODIGO_PRODUTO obrigatorio")
		}
		if strings.TrimSpace(item.NCM) == "" {
			add(row, "NCM", "NCM obrigatorio")
		}

		detail := strings.TrimSpace(item.TaxClassificationDetail)
		if detail == "" {
			add(row, "DETALHE_NCM", "DETALHE_NCM obrigatorio")
		} else if len(detail) > maxDetailLen {
			add(row, "DETALHE_NCM", fmt.Sprintf("DETALHE_NCM excede %d caracteres", maxDetailLen))
		}

		if utf8.RuneCountInString(item.Description) > maxDescriptionLen {
			add(row, "DESCRICAO", fmt.Sprintf("DESCRICAO excede %d caracteres", maxDescriptionLen))
		}

		// Numeric inputs degrade to zero on parse failure upstream, so a
		// zero here means missing or unparsable.
		if !item.NetWeight.IsPositive() {
			add(row, "PESO_LIQUIDO", "PESO_LIQUIDO invalido ou nao informado")
		}
		if !item.UnitPrice.IsPositive() {
			add(row, "PRECO_UNITARIO", "PRECO_UNITARIO invalido ou nao informado")
		}

		ref := strings.TrimSpace(item.ManufacturerRef)
		if ref == "" {
			add(row, "CODIGO_FABRICANTE", "CODIGO_FABRICANTE obrigatorio")
		} else if !isNumeric(ref) {
			add(row, "CODIGO_FABRICANTE", "CODIGO_FABRICANTE deve ser numerico")
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &Report{Violations: violations}
}

// Render produces the plain-text report: UTF-8 BOM for legacy text editors,
// one blank-line-separated block per offending row, "Linha: N" followed by
// indented bullets.
func (r *Report) Render() []byte {
	var buf bytes.Buffer
	buf.WriteString("\uFEFF")

	lastRow := -1
	first := true
	for _, v := range r.Violations {
		if v.Row != lastRow {
			if !first {
				buf.WriteString("\n")
			}
			fmt.Fprintf(&buf, "Linha: %d\n", v.Row)
			lastRow = v.Row
			first = false
		}
		fmt.Fprintf(&buf, "  - %s\n", v.Message)
	}
	return buf.Bytes()
}

// isNumeric accepts integers and decimals with comma or dot separator.
func isNumeric(s string) bool {
	normalized := strings.Replace(strings.ReplaceAll(s, " ", ""), ",", ".", 1)
	_, err := decimal.NewFromString(normalized)
	return err == nil
}
