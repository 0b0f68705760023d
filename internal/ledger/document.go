// Package ledger holds the tabular receipts ledger: a fixed header plus
// one row per processed receipt, serialized as an xlsx workbook.
package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"ledgerbot/internal/receipt"
)

// Header is the ledger column schema. The exact strings matter: prior
// runs wrote documents with this header and Decode rejects anything
// else, so changing a title is a breaking format change.
var Header = []string{
	"Date",
	"Merchant",
	"Total Amount",
	"Currency",
	"Items",
	"Tax",
	"Payment Method",
	"Processed At",
}

// Document is an in-memory ledger: the header plus ordered data rows.
// It is built either fresh via New or from a prior serialized document
// via Decode; Append is the only mutation.
type Document struct {
	rows [][]string
}

// New creates an empty document containing only the header.
func New() *Document {
	return &Document{}
}

// Len returns the number of data rows, excluding the header.
func (d *Document) Len() int {
	return len(d.rows)
}

// Rows returns a copy of the data rows in append order.
func (d *Document) Rows() [][]string {
	rows := make([][]string, len(d.rows))
	for i, row := range d.rows {
		rows[i] = append([]string(nil), row...)
	}
	return rows
}

// Append adds exactly one row for the record. Prior rows and the header
// are never touched; calling Append twice with the same record produces
// two rows, duplicate detection is the caller's policy.
func (d *Document) Append(r *receipt.Record) {
	d.rows = append(d.rows, []string{
		r.Date,
		r.MerchantName,
		formatAmount(r.TotalAmount),
		r.Currency,
		summarizeItems(r.Items),
		formatAmount(r.TaxAmount),
		r.PaymentMethod,
		r.ProcessedAt.Format("2006-01-02 15:04:05"),
	})
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// summarizeItems flattens line items into a single cell, e.g.
// "Coffee (2x$3.50); Bagel (1x$2.25)".
func summarizeItems(items []receipt.Item) string {
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		qty := strconv.FormatFloat(item.Quantity, 'f', -1, 64)
		parts = append(parts, fmt.Sprintf("%s (%sx$%s)", item.Name, qty, formatAmount(item.UnitPrice)))
	}
	return strings.Join(parts, "; ")
}
