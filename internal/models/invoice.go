package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice represents a commercial invoice being prepared for customs entry.
// Dates are kept as ISO "YYYY-MM-DD" strings end to end so date-order checks
// can compare lexically without timezone conversion.
type Invoice struct {
	ID uuid.UUID `json:"id,omitempty"`

	// Identifiers
	InvoiceNumber     string `json:"invoiceNumber,omitempty"`
	PackingListNumber string `json:"packingListNumber,omitempty"`
	Date              string `json:"date,omitempty"`    // issue date
	DueDate           string `json:"dueDate,omitempty"` // derived from date + paymentTerms

	// Parties
	ExporterName    string `json:"exporterName,omitempty"`
	ExporterAddress string `json:"exporterAddress,omitempty"`
	ExporterTaxID   string `json:"exporterTaxId,omitempty"`
	ImporterName    string `json:"importerName,omitempty"`
	ImporterAddress string `json:"importerAddress,omitempty"`
	ImporterTaxID   string `json:"importerTaxId,omitempty"`

	// Trade terms
	Incoterm     string `json:"incoterm,omitempty"`
	Currency     string `json:"currency,omitempty"`
	PaymentTerms string `json:"paymentTerms,omitempty"`

	// Countries and logistics
	CountryOfOrigin      string `json:"countryOfOrigin,omitempty"`
	CountryOfAcquisition string `json:"countryOfAcquisition,omitempty"`
	CountryOfProvenance  string `json:"countryOfProvenance,omitempty"`
	PortOfLoading        string `json:"portOfLoading,omitempty"`
	PortOfDischarge      string `json:"portOfDischarge,omitempty"`

	// Weights and volumes
	TotalNetWeight   decimal.Decimal `json:"totalNetWeight"`
	TotalGrossWeight decimal.Decimal `json:"totalGrossWeight"`
	WeightUnit       string          `json:"weightUnit,omitempty"` // document display unit (KG default)
	TotalPackages    int             `json:"totalPackages"`
	VolumeType       string          `json:"volumeType,omitempty"`

	// Financials. GrandTotal is always recomputed, never hand-edited.
	Subtotal          decimal.Decimal `json:"subtotal"`
	FreightValue      decimal.Decimal `json:"freightValue"`
	InsuranceValue    decimal.Decimal `json:"insuranceValue"`
	TaxValue          decimal.Decimal `json:"taxValue"`
	OtherChargesValue decimal.Decimal `json:"otherChargesValue"`
	GrandTotal        decimal.Decimal `json:"grandTotal"`

	LineItems []LineItem `json:"lineItems"`

	// Metadata
	SourceFileURL string    `json:"sourceFileUrl,omitempty"`
	Confidence    float64   `json:"confidence,omitempty"`
	ProcessedAt   time.Time `json:"processedAt,omitempty"`
}

// LineItem is one row of the invoice items table.
type LineItem struct {
	Description string `json:"description"`
	PartNumber  string `json:"partNumber,omitempty"`
	ProductCode string `json:"productCode,omitempty"`
	NCM         string `json:"ncm,omitempty"` // 8-digit tariff code

	Quantity    decimal.Decimal `json:"quantity"`
	UnitMeasure string          `json:"unitMeasure,omitempty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Total       decimal.Decimal `json:"total"` // = round2(quantity * unitPrice)

	NetWeight     decimal.Decimal `json:"netWeight"`     // total net weight of the row
	UnitNetWeight decimal.Decimal `json:"unitNetWeight"` // per-unit figure, back-solved on quantity edits
	WeightUnit    string          `json:"weightUnit,omitempty"`

	// Opaque metadata carried through to the PLI export
	ManufacturerRef         string `json:"manufacturerRef,omitempty"`
	TaxClassificationDetail string `json:"taxClassificationDetail,omitempty"`
	LegalAct                string `json:"legalAct,omitempty"`
	Attributes              string `json:"attributes,omitempty"`
}

// ExtractResponse is the payload returned by the extraction endpoint.
type ExtractResponse struct {
	Success       bool     `json:"success"`
	Invoice       *Invoice `json:"invoice,omitempty"`
	Error         string   `json:"error,omitempty"`
	AIDuration    float64  `json:"aiDuration,omitempty"`
	TotalDuration float64  `json:"totalDuration"`
}

// Config represents the service configuration
type Config struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	AI      AIConfig      `yaml:"ai"`
	Refdata RefdataConfig `yaml:"refdata"`
}

// AIConfig represents AI provider configuration
type AIConfig struct {
	OpenAI OpenAIConfig `yaml:"openai"`
	Gemini GeminiConfig `yaml:"gemini"`

	DefaultProvider string `yaml:"default_provider"` // "openai" or "gemini"
}

// OpenAIConfig for OpenAI/Azure OpenAI
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

// GeminiConfig for Google Gemini
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// RefdataConfig controls the NCM index loader
type RefdataConfig struct {
	PrimaryURL string   `yaml:"primary_url"`
	MirrorURLs []string `yaml:"mirror_urls"`
}
