// Package compliance evaluates the live checklist that drives the editor's
// conformance indicator. The whole report is recomputed from scratch on every
// invoice snapshot; nothing here blocks editing.
package compliance

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/invoicepli/invoice-pli-service/internal/export"
	"github.com/invoicepli/invoice-pli-service/internal/models"
	"github.com/invoicepli/invoice-pli-service/internal/refdata"
)

// Status of one checklist group, ordered least to most severe.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusInvalid Status = "invalid"
	StatusMissing Status = "missing"
)

var severity = map[Status]int{
	StatusOK:      0,
	StatusWarning: 1,
	StatusInvalid: 2,
	StatusMissing: 3,
}

// ChecklistItem is the outcome of one compliance rule group.
type ChecklistItem struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Status   Status   `json:"status"`
	Message  string   `json:"message,omitempty"`
	Expected string   `json:"expected,omitempty"`
	Details  []string `json:"details,omitempty"`
}

// Report is the full evaluation of one invoice snapshot.
type Report struct {
	FieldErrors          map[string]string `json:"fieldErrors"`
	Checklist            []ChecklistItem   `json:"checklist"`
	CompliancePercentage int               `json:"compliancePercentage"`
}

// NCMIndex is the tariff-code lookup the engine needs.
type NCMIndex interface {
	Description(code string) (string, bool)
}

// Engine evaluates the checklist. Stateless apart from the injected index.
type Engine struct {
	ncm NCMIndex
}

// NewEngine creates a checklist engine backed by the given tariff index.
func NewEngine(ncm NCMIndex) *Engine {
	return &Engine{ncm: ncm}
}

const maxDescriptionLen = 254

var ncmPattern = regexp.MustCompile(`^\d{8}$`)
var hasLetterPattern = regexp.MustCompile(`[A-Za-z]`)

// Evaluate runs every rule group against the invoice.
func (e *Engine) Evaluate(inv *models.Invoice) *Report {
	r := &Report{FieldErrors: map[string]string{}}

	r.add(e.checkIdentifiers(inv, r))
	r.add(e.checkParties(inv, r))
	r.add(e.checkWeightsAndVolumes(inv, r))
	r.add(e.checkTradeTerms(inv, r))
	r.add(e.checkCountries(inv, r))
	r.add(e.checkItems(inv))
	r.add(e.checkTechnicalDetail(inv))
	r.add(e.checkNCM(inv))

	ok := 0
	for _, item := range r.Checklist {
		if item.Status == StatusOK {
			ok++
		}
	}
	r.CompliancePercentage = int(math.Round(100 * float64(ok) / float64(len(r.Checklist))))
	return r
}

func (r *Report) add(item ChecklistItem) {
	r.Checklist = append(r.Checklist, item)
}

// group accumulates layered checks; the most severe status wins.
type group struct {
	item ChecklistItem
}

func newGroup(id, title string) *group {
	return &group{item: ChecklistItem{ID: id, Title: title, Status: StatusOK}}
}

func (g *group) flag(status Status, message string) {
	g.item.Details = append(g.item.Details, message)
	if severity[status] > severity[g.item.Status] {
		g.item.Status = status
		g.item.Message = message
	}
}

func (g *group) done() ChecklistItem {
	return g.item
}

func (e *Engine) checkIdentifiers(inv *models.Invoice, r *Report) ChecklistItem {
	g := newGroup("identifiers", "Identificacao do documento")

	if strings.TrimSpace(inv.InvoiceNumber) == "" {
		r.FieldErrors["invoiceNumber"] = "Numero da invoice obrigatorio"
		g.flag(StatusMissing, "Numero da invoice nao informado")
	}
	if strings.TrimSpace(inv.PackingListNumber) == "" {
		r.FieldErrors["packingListNumber"] = "Numero do packing list obrigatorio"
		g.flag(StatusMissing, "Numero do packing list nao informado")
	}
	if inv.Date == "" {
		r.FieldErrors["date"] = "Data de emissao obrigatoria"
		g.flag(StatusMissing, "Data de emissao nao informada")
	}
	if inv.DueDate == "" {
		g.flag(StatusMissing, "Data de vencimento nao informada")
	}
	// ISO strings compare lexically; no timezone conversion involved.
	if inv.Date != "" && inv.DueDate != "" && inv.DueDate < inv.Date {
		r.FieldErrors["dueDate"] = "Vencimento anterior a emissao"
		g.flag(StatusInvalid, "Data de vencimento anterior a data de emissao")
	}
	return g.done()
}

func (e *Engine) checkParties(inv *models.Invoice, r *Report) ChecklistItem {
	g := newGroup("parties", "Exportador e importador")

	fields := []struct {
		value, path, label string
	}{
		{inv.ExporterName, "exporterName", "Nome do exportador"},
		{inv.ExporterAddress, "exporterAddress", "Endereco do exportador"},
		{inv.ImporterName, "importerName", "Nome do importador"},
		{inv.ImporterAddress, "importerAddress", "Endereco do importador"},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			r.FieldErrors[f.path] = f.label + " obrigatorio"
			g.flag(StatusMissing, f.label+" nao informado")
		}
	}
	return g.done()
}

func (e *Engine) checkWeightsAndVolumes(inv *models.Invoice, r *Report) ChecklistItem {
	g := newGroup("weights", "Pesos e volumes")

	if !inv.TotalNetWeight.IsPositive() {
		r.FieldErrors["totalNetWeight"] = "Peso liquido deve ser maior que zero"
		g.flag(StatusMissing, "Peso liquido total nao informado")
	}
	if !inv.TotalGrossWeight.IsPositive() {
		r.FieldErrors["totalGrossWeight"] = "Peso bruto deve ser maior que zero"
		g.flag(StatusMissing, "Peso bruto total nao informado")
	}
	if inv.TotalNetWeight.IsPositive() && inv.TotalGrossWeight.IsPositive() &&
		inv.TotalNetWeight.GreaterThan(inv.TotalGrossWeight) {
		r.FieldErrors["totalNetWeight"] = "Peso liquido maior que o peso bruto"
		g.flag(StatusInvalid, "Peso liquido excede o peso bruto")
	}
	if inv.TotalPackages <= 0 {
		r.FieldErrors["totalPackages"] = "Quantidade de volumes deve ser maior que zero"
		g.flag(StatusMissing, "Quantidade de volumes nao informada")
	}
	if strings.TrimSpace(inv.VolumeType) == "" {
		r.FieldErrors["volumeType"] = "Tipo de volume obrigatorio"
		g.flag(StatusMissing, "Tipo de volume nao informado")
	}
	return g.done()
}

func (e *Engine) checkTradeTerms(inv *models.Invoice, r *Report) ChecklistItem {
	g := newGroup("trade-terms", "Termos comerciais")
	g.item.Expected = "Incoterm, moeda e condicao de pagamento das tabelas de referencia"

	switch {
	case strings.TrimSpace(inv.Incoterm) == "":
		r.FieldErrors["incoterm"] = "Incoterm obrigatorio"
		g.flag(StatusMissing, "Incoterm nao informado")
	case !refdata.IsValidIncoterm(inv.Incoterm):
		// Cross-confusion beats a generic invalid-value message.
		if refdata.IsValidCurrency(inv.Incoterm) {
			r.FieldErrors["incoterm"] = fmt.Sprintf("%q parece uma moeda, nao um incoterm", inv.Incoterm)
			g.flag(StatusInvalid, fmt.Sprintf("Incoterm %q parece uma moeda, nao um incoterm", inv.Incoterm))
		} else {
			r.FieldErrors["incoterm"] = fmt.Sprintf("Incoterm %q desconhecido", inv.Incoterm)
			g.flag(StatusInvalid, fmt.Sprintf("Incoterm %q fora da tabela de referencia", inv.Incoterm))
		}
	}

	switch {
	case strings.TrimSpace(inv.Currency) == "":
		r.FieldErrors["currency"] = "Moeda obrigatoria"
		g.flag(StatusMissing, "Moeda nao informada")
	case !refdata.IsValidCurrency(inv.Currency):
		if refdata.IsValidIncoterm(inv.Currency) {
			r.FieldErrors["currency"] = fmt.Sprintf("%q parece um incoterm, nao uma moeda", inv.Currency)
			g.flag(StatusInvalid, fmt.Sprintf("Moeda %q parece um incoterm, nao uma moeda", inv.Currency))
		} else {
			r.FieldErrors["currency"] = fmt.Sprintf("Moeda %q desconhecida", inv.Currency)
			g.flag(StatusInvalid, fmt.Sprintf("Moeda %q fora da tabela de referencia", inv.Currency))
		}
	}

	switch {
	case strings.TrimSpace(inv.PaymentTerms) == "":
		r.FieldErrors["paymentTerms"] = "Condicao de pagamento obrigatoria"
		g.flag(StatusMissing, "Condicao de pagamento nao informada")
	case !refdata.IsValidPaymentTerm(inv.PaymentTerms):
		g.flag(StatusWarning, fmt.Sprintf("Condicao de pagamento %q fora da tabela de referencia", inv.PaymentTerms))
	}
	return g.done()
}

func (e *Engine) checkCountries(inv *models.Invoice, r *Report) ChecklistItem {
	g := newGroup("countries", "Paises")

	fields := []struct {
		value, path, label string
	}{
		{inv.CountryOfOrigin, "countryOfOrigin", "Pais de origem"},
		{inv.CountryOfAcquisition, "countryOfAcquisition", "Pais de aquisicao"},
		{inv.CountryOfProvenance, "countryOfProvenance", "Pais de procedencia"},
	}
	for _, f := range fields {
		switch {
		case strings.TrimSpace(f.value) == "":
			r.FieldErrors[f.path] = f.label + " obrigatorio"
			g.flag(StatusMissing, f.label+" nao informado")
		case !refdata.IsValidCountry(f.value):
			if refdata.IsValidCurrency(f.value) {
				r.FieldErrors[f.path] = fmt.Sprintf("%q parece uma moeda, nao um pais", f.value)
				g.flag(StatusInvalid, fmt.Sprintf("%s %q parece uma moeda, nao um pais", f.label, f.value))
			} else {
				r.FieldErrors[f.path] = fmt.Sprintf("Pais %q desconhecido", f.value)
				g.flag(StatusInvalid, fmt.Sprintf("%s %q fora da tabela de referencia", f.label, f.value))
			}
		}
	}
	return g.done()
}

func (e *Engine) checkItems(inv *models.Invoice) ChecklistItem {
	g := newGroup("items", "Itens da invoice")

	if len(inv.LineItems) == 0 {
		g.flag(StatusMissing, "Nenhum item informado")
		return g.done()
	}
	for i, item := range inv.LineItems {
		if strings.TrimSpace(item.Description) == "" {
			g.flag(StatusMissing, fmt.Sprintf("Item %d sem descricao", i+1))
		} else if utf8.RuneCountInString(item.Description) > maxDescriptionLen {
			g.flag(StatusInvalid, fmt.Sprintf("Item %d: descricao excede %d caracteres", i+1, maxDescriptionLen))
		}
	}
	return g.done()
}

// checkTechnicalDetail folds the strict PLI rule set into a single entry,
// hinting at the first offending field only.
func (e *Engine) checkTechnicalDetail(inv *models.Invoice) ChecklistItem {
	g := newGroup("technical", "Detalhamento tecnico PLI")
	g.item.Expected = "Todos os itens passam na validacao estrita do PLI"

	report := export.ValidatePLI(inv)
	if report == nil {
		return g.done()
	}

	hint := report.FirstField()
	if len(hint) > 40 {
		hint = hint[:40] + "..."
	}
	g.flag(StatusWarning, fmt.Sprintf("%d pendencia(s) para o PLI (ex.: %s)", len(report.Violations), hint))
	return g.done()
}

func (e *Engine) checkNCM(inv *models.Invoice) ChecklistItem {
	g := newGroup("ncm", "Classificacao NCM")

	for i, item := range inv.LineItems {
		code := strings.TrimSpace(item.NCM)
		digits := stripNonDigits(code)

		if code == "" {
			// A part number that itself resolves as an NCM suggests the
			// two columns came in swapped from extraction.
			if partDigits := stripNonDigits(item.PartNumber); ncmPattern.MatchString(partDigits) {
				if _, known := e.ncm.Description(partDigits); known {
					g.flag(StatusWarning, fmt.Sprintf("Item %d: part number parece um NCM valido - campos trocados?", i+1))
					continue
				}
			}
			g.flag(StatusMissing, fmt.Sprintf("Item %d sem NCM", i+1))
			continue
		}

		if hasLetterPattern.MatchString(code) {
			g.flag(StatusInvalid, fmt.Sprintf("Item %d: NCM %q contem letras", i+1, code))
			continue
		}
		if !ncmPattern.MatchString(digits) {
			g.flag(StatusInvalid, fmt.Sprintf("Item %d: NCM %q nao tem 8 digitos", i+1, code))
			continue
		}
		if _, known := e.ncm.Description(digits); !known {
			g.flag(StatusInvalid, fmt.Sprintf("Item %d: NCM %q desconhecido", i+1, code))
		}
	}
	return g.done()
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
