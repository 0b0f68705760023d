package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Sentinel values substituted for fields the model could not read.
// Records never carry empty or null fields past normalization.
const (
	UnknownValue        = "N/A"
	UnspecifiedCurrency = "unspecified"
)

// Item is a single line item on a receipt.
type Item struct {
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Record is the canonical structured result of extracting one receipt.
// All fields are defaulted by Normalize; none is ever empty.
type Record struct {
	MerchantName  string    `json:"merchant_name"`
	Date          string    `json:"date"` // ISO calendar date or UnknownValue
	TotalAmount   float64   `json:"total_amount"`
	Currency      string    `json:"currency"`
	TaxAmount     float64   `json:"tax_amount"`
	PaymentMethod string    `json:"payment_method"`
	Items         []Item    `json:"items"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// Fingerprint identifies a receipt for duplicate detection. ProcessedAt
// is excluded: it is assigned per submission, so including it would make
// every resubmission look new.
func (r *Record) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.2f", r.MerchantName, r.Date, r.TotalAmount)))
	return hex.EncodeToString(sum[:])
}

// ProcessedReceipt is the audit row persisted locally after a receipt
// has been published to the ledger.
type ProcessedReceipt struct {
	ID          string    `json:"id"`
	ChatID      int64     `json:"chat_id"`
	Fingerprint string    `json:"fingerprint"`
	Record      Record    `json:"record"`
	CreatedAt   time.Time `json:"created_at"`
}
