package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/invoicepli/invoice-pli-service/internal/models"
)

// pliColumns is the fixed column order of the PLI file.
var pliColumns = []string{
	"CODIGO_PRODUTO", "NCM", "DETALHE_NCM", "DESCRICAO", "QUANTIDADE",
	"UNIDADE", "PRECO_UNITARIO", "VALOR_TOTAL", "PESO_LIQUIDO",
	"CODIGO_FABRICANTE", "ATO_LEGAL", "ATRIBUTOS",
}

// BuildPLI renders the semicolon-separated PLI file. Validation problems do
// not stop the file from being produced; they go to the companion report.
func BuildPLI(inv *models.Invoice) []byte {
	var buf bytes.Buffer
	buf.WriteString("\uFEFF")
	buf.WriteString(strings.Join(pliColumns, ";"))
	buf.WriteString("\n")

	for _, item := range inv.LineItems {
		fields := []string{
			sanitizePLI(item.ProductCode),
			sanitizePLI(item.NCM),
			sanitizePLI(item.TaxClassificationDetail),
			sanitizePLI(item.Description),
			item.Quantity.String(),
			sanitizePLI(item.UnitMeasure),
			item.UnitPrice.String(),
			item.Total.String(),
			item.NetWeight.String(),
			sanitizePLI(item.ManufacturerRef),
			sanitizePLI(item.LegalAct),
			sanitizePLI(item.Attributes),
		}
		buf.WriteString(strings.Join(fields, ";"))
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

// sanitizePLI keeps the field separator out of cell values.
func sanitizePLI(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ";", ",")
}

// BuildXLSX renders the invoice as a two-sheet workbook: header fields on the
// first sheet, one line item per row on the second.
func BuildXLSX(inv *models.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const headerSheet = "Invoice"
	const itemsSheet = "Itens"

	f.SetSheetName("Sheet1", headerSheet)
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, fmt.Errorf("failed to create items sheet: %w", err)
	}

	headerRows := [][]interface{}{
		{"Invoice", inv.InvoiceNumber},
		{"Packing List", inv.PackingListNumber},
		{"Data", inv.Date},
		{"Vencimento", inv.DueDate},
		{"Exportador", inv.ExporterName},
		{"Endereco Exportador", inv.ExporterAddress},
		{"Importador", inv.ImporterName},
		{"Endereco Importador", inv.ImporterAddress},
		{"Incoterm", inv.Incoterm},
		{"Moeda", inv.Currency},
		{"Condicao de Pagamento", inv.PaymentTerms},
		{"Pais de Origem", inv.CountryOfOrigin},
		{"Pais de Aquisicao", inv.CountryOfAcquisition},
		{"Pais de Procedencia", inv.CountryOfProvenance},
		{"Peso Liquido Total", inv.TotalNetWeight.String()},
		{"Peso Bruto Total", inv.TotalGrossWeight.String()},
		{"Volumes", inv.TotalPackages},
		{"Tipo de Volume", inv.VolumeType},
		{"Subtotal", inv.Subtotal.String()},
		{"Frete", inv.FreightValue.String()},
		{"Seguro", inv.InsuranceValue.String()},
		{"Impostos", inv.TaxValue.String()},
		{"Outras Despesas", inv.OtherChargesValue.String()},
		{"Total Geral", inv.GrandTotal.String()},
	}
	for i, row := range headerRows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(headerSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write header row: %w", err)
		}
	}

	itemHeader := []interface{}{
		"Descricao", "Part Number", "Codigo Produto", "NCM", "Quantidade",
		"Unidade", "Preco Unitario", "Total", "Peso Liquido", "Peso Unitario",
		"Unidade Peso", "Codigo Fabricante", "Detalhe NCM",
	}
	if err := f.SetSheetRow(itemsSheet, "A1", &itemHeader); err != nil {
		return nil, fmt.Errorf("failed to write items header: %w", err)
	}
	for i, item := range inv.LineItems {
		row := []interface{}{
			item.Description, item.PartNumber, item.ProductCode, item.NCM,
			item.Quantity.String(), item.UnitMeasure, item.UnitPrice.String(),
			item.Total.String(), item.NetWeight.String(), item.UnitNetWeight.String(),
			item.WeightUnit, item.ManufacturerRef, item.TaxClassificationDetail,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(itemsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write item row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
