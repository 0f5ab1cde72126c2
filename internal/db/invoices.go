package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/invoicepli/invoice-pli-service/internal/models"
)

// InvoiceSummary is the list-view row: a few denormalized columns, not the
// full document.
type InvoiceSummary struct {
	ID            uuid.UUID `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	ExporterName  string    `json:"exporter_name"`
	ImporterName  string    `json:"importer_name"`
	Currency      string    `json:"currency"`
	GrandTotal    float64   `json:"grand_total"`
	SourceFileURL string    `json:"source_file_url"`
	CreatedAt     time.Time `json:"created_at"`
}

// SaveInvoice inserts the invoice, storing the full document as JSON next to
// the denormalized list columns. A zero ID is assigned here.
func SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	doc, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to serialize invoice: %w", err)
	}

	grandTotal, _ := inv.GrandTotal.Float64()
	query := `
		INSERT INTO invoices (
			id, invoice_number, exporter_name, importer_name,
			currency, grand_total, source_file_url, document
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = Pool.Exec(ctx, query,
		inv.ID, inv.InvoiceNumber, inv.ExporterName, inv.ImporterName,
		inv.Currency, grandTotal, inv.SourceFileURL, doc,
	)
	return err
}

// GetInvoices lists the most recent invoices.
func GetInvoices(ctx context.Context, limit int) ([]InvoiceSummary, error) {
	query := `
		SELECT id, COALESCE(invoice_number, ''), COALESCE(exporter_name, ''),
		       COALESCE(importer_name, ''), COALESCE(currency, ''),
		       COALESCE(grand_total, 0), COALESCE(source_file_url, ''), created_at
		FROM invoices
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []InvoiceSummary
	for rows.Next() {
		var s InvoiceSummary
		err := rows.Scan(
			&s.ID, &s.InvoiceNumber, &s.ExporterName, &s.ImporterName,
			&s.Currency, &s.GrandTotal, &s.SourceFileURL, &s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, s)
	}
	return invoices, rows.Err()
}

// GetInvoiceByID retrieves the full invoice document.
func GetInvoiceByID(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	var doc []byte
	err := Pool.QueryRow(ctx, `SELECT document FROM invoices WHERE id = $1`, invoiceID).Scan(&doc)
	if err != nil {
		return nil, err
	}

	var inv models.Invoice
	if err := json.Unmarshal(doc, &inv); err != nil {
		return nil, fmt.Errorf("failed to decode invoice document: %w", err)
	}
	return &inv, nil
}

// UpdateInvoice replaces the stored document and refreshes the denormalized
// columns.
func UpdateInvoice(ctx context.Context, inv *models.Invoice) error {
	doc, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to serialize invoice: %w", err)
	}

	grandTotal, _ := inv.GrandTotal.Float64()
	query := `
		UPDATE invoices SET
			invoice_number = $2, exporter_name = $3, importer_name = $4,
			currency = $5, grand_total = $6, source_file_url = $7,
			document = $8, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := Pool.Exec(ctx, query,
		inv.ID, inv.InvoiceNumber, inv.ExporterName, inv.ImporterName,
		inv.Currency, grandTotal, inv.SourceFileURL, doc,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice %s not found", inv.ID)
	}
	return nil
}

// DeleteInvoice removes an invoice.
func DeleteInvoice(ctx context.Context, invoiceID string) error {
	_, err := Pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, invoiceID)
	return err
}
