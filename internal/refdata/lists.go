package refdata

import "strings"

// ReferenceItem is one entry of a static reference list.
type ReferenceItem struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Incoterms per Incoterms 2020.
var Incoterms = []ReferenceItem{
	{"EXW", "Ex Works"},
	{"FCA", "Free Carrier"},
	{"FAS", "Free Alongside Ship"},
	{"FOB", "Free On Board"},
	{"CFR", "Cost and Freight"},
	{"CIF", "Cost, Insurance and Freight"},
	{"CPT", "Carriage Paid To"},
	{"CIP", "Carriage and Insurance Paid To"},
	{"DAP", "Delivered At Place"},
	{"DPU", "Delivered at Place Unloaded"},
	{"DDP", "Delivered Duty Paid"},
}

// Currencies covers the codes accepted on the import declaration.
var Currencies = []ReferenceItem{
	{"USD", "Dolar dos Estados Unidos"},
	{"EUR", "Euro"},
	{"BRL", "Real"},
	{"GBP", "Libra Esterlina"},
	{"JPY", "Iene"},
	{"CNY", "Yuan Renminbi"},
	{"CHF", "Franco Suico"},
	{"CAD", "Dolar Canadense"},
	{"ARS", "Peso Argentino"},
	{"MXN", "Peso Mexicano"},
	{"INR", "Rupia Indiana"},
	{"KRW", "Won"},
	{"SEK", "Coroa Sueca"},
	{"AUD", "Dolar Australiano"},
}

// Countries uses ISO 3166-1 alpha-2 codes.
var Countries = []ReferenceItem{
	{"BR", "Brasil"},
	{"US", "Estados Unidos"},
	{"CN", "China"},
	{"DE", "Alemanha"},
	{"JP", "Japao"},
	{"KR", "Coreia do Sul"},
	{"IT", "Italia"},
	{"FR", "Franca"},
	{"GB", "Reino Unido"},
	{"ES", "Espanha"},
	{"MX", "Mexico"},
	{"AR", "Argentina"},
	{"CL", "Chile"},
	{"IN", "India"},
	{"TW", "Taiwan"},
	{"NL", "Paises Baixos"},
	{"CH", "Suica"},
	{"CA", "Canada"},
	{"SE", "Suecia"},
	{"SG", "Singapura"},
	{"VN", "Vietna"},
	{"TH", "Tailandia"},
	{"MY", "Malasia"},
	{"PT", "Portugal"},
	{"BE", "Belgica"},
	{"AT", "Austria"},
	{"PL", "Polonia"},
	{"TR", "Turquia"},
	{"AU", "Australia"},
	{"ZA", "Africa do Sul"},
}

// PaymentTerms lists the condition codes accepted by the declaration systems.
var PaymentTerms = []ReferenceItem{
	{"A VISTA", "Pagamento a vista"},
	{"ANTECIPADO", "Pagamento antecipado"},
	{"NET 15", "Pagamento em 15 dias"},
	{"NET 30", "Pagamento em 30 dias"},
	{"NET 45", "Pagamento em 45 dias"},
	{"NET 60", "Pagamento em 60 dias"},
	{"NET 90", "Pagamento em 90 dias"},
	{"NET 120", "Pagamento em 120 dias"},
	{"CAD", "Cash Against Documents"},
	{"LC", "Carta de Credito"},
}

func contains(list []ReferenceItem, code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, item := range list {
		if item.Code == code {
			return true
		}
	}
	return false
}

// IsValidIncoterm reports membership in the incoterm list.
func IsValidIncoterm(code string) bool { return contains(Incoterms, code) }

// IsValidCurrency reports membership in the currency list.
func IsValidCurrency(code string) bool { return contains(Currencies, code) }

// IsValidCountry reports membership in the country list.
func IsValidCountry(code string) bool { return contains(Countries, code) }

// IsValidPaymentTerm reports membership in the payment-term list.
func IsValidPaymentTerm(code string) bool { return contains(PaymentTerms, code) }
