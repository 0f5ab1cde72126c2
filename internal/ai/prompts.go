package ai

// metadataPrompt extracts header, entities, logistics and financials. Line
// items are handled by a separate prompt so large tables cannot starve the
// header fields out of the response.
const metadataPrompt = `You are an expert Customs Data Analyst.
EXTRACT global metadata from the Invoice.

SCOPE: Header, Entities, Logistics, Financials.
IGNORE: Line Items.

OUTPUT JSON matching this structure (use null if missing):
{
  "invoiceNumber": "string",
  "packingListNumber": "string",
  "date": "YYYY-MM-DD",
  "exporterName": "string",
  "importerName": "string",
  "currency": "USD",
  "grandTotal": 0.00,
  "incoterm": "string",
  "exporterAddress": "string",
  "exporterTaxId": "string",
  "importerAddress": "string",
  "importerTaxId": "string",
  "countryOfOrigin": "string",
  "countryOfAcquisition": "string",
  "countryOfProvenance": "string",
  "portOfLoading": "string",
  "portOfDischarge": "string",
  "totalNetWeight": 0.0,
  "totalGrossWeight": 0.0,
  "totalPackages": 0,
  "volumeType": "string",
  "paymentTerms": "string",
  "freightValue": 0.0,
  "insuranceValue": 0.0,
  "taxValue": 0.0,
  "otherChargesValue": 0.0
}

Country fields use ISO 3166-1 alpha-2 codes. NEVER invent values.`

// lineItemsPrompt asks for a minified array of arrays to keep the response
// compact for invoices with hundreds of rows.
const lineItemsPrompt = `EXTRACT the LINE ITEMS table of the Invoice.
RETURN A MINIFIED JSON ARRAY OF ARRAYS.

Columns:
0. Description (String)
1. Buyer Part Number (String/null)
2. Quantity (Number)
3. Unit (String)
4. Unit Price (Number)
5. Total Value (Number)
6. Net Weight (Number)
7. Manufacturer Part Number (String/null)
8. NCM (String/null)

Example:
[
  ["Widget A", "SKU123", 10, "PCS", 5.00, 50.00, 1.0, "MREF", "8517.13.00"]
]`
