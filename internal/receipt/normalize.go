package receipt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NormalizationError indicates the model response could not be turned
// into a Record. A half-parsed record never reaches the ledger.
type NormalizationError struct {
	Err error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalizing extraction response: %v", e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// looseNumber accepts both JSON numbers and numeric strings. The model
// is told to emit numbers but frequently quotes them anyway.
type looseNumber float64

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*n = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "n/a") {
		*n = 0
		return nil
	}
	// Strip currency symbols and thousands separators the model sometimes leaves in.
	s = strings.TrimLeft(s, "$€£¥ ")
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = looseNumber(f)
	return nil
}

// wireRecord mirrors the JSON schema the extraction prompt asks for.
// Items stay raw so a single malformed entry can be dropped without
// rejecting the record.
type wireRecord struct {
	MerchantName  string            `json:"merchant_name"`
	Date          string            `json:"date"`
	TotalAmount   looseNumber       `json:"total_amount"`
	Currency      string            `json:"currency"`
	TaxAmount     looseNumber       `json:"tax_amount"`
	PaymentMethod string            `json:"payment_method"`
	Items         []json.RawMessage `json:"items"`
}

type wireItem struct {
	Name      string      `json:"name"`
	Quantity  looseNumber `json:"quantity"`
	Price     looseNumber `json:"price"`
	UnitPrice looseNumber `json:"unit_price"`
}

// dateFormats are the calendar formats the model has been observed to
// emit despite being asked for ISO dates.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// Normalize parses a raw extraction response into a fully-defaulted
// Record. It is pure: now becomes the record's ProcessedAt so callers
// control the clock. Malformed top-level JSON yields a
// NormalizationError and no record.
func Normalize(rawText string, now time.Time) (*Record, error) {
	jsonText, err := extractJSONObject(rawText)
	if err != nil {
		return nil, &NormalizationError{Err: err}
	}

	var wire wireRecord
	if err := json.Unmarshal([]byte(jsonText), &wire); err != nil {
		return nil, &NormalizationError{Err: fmt.Errorf("unmarshaling json: %w", err)}
	}

	record := &Record{
		MerchantName:  defaultText(wire.MerchantName, UnknownValue),
		Date:          normalizeDate(wire.Date),
		TotalAmount:   clampAmount(float64(wire.TotalAmount)),
		Currency:      normalizeCurrency(wire.Currency),
		TaxAmount:     clampAmount(float64(wire.TaxAmount)),
		PaymentMethod: defaultText(wire.PaymentMethod, UnknownValue),
		Items:         normalizeItems(wire.Items),
		ProcessedAt:   now,
	}

	return record, nil
}

// extractJSONObject strips markdown code fences and surrounding prose,
// keeping only the first top-level JSON object in the response.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	if idx := strings.LastIndex(text, "```"); idx != -1 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}

func defaultText(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") || strings.EqualFold(s, "unknown") {
		return fallback
	}
	return s
}

// normalizeDate converts any recognized format to ISO YYYY-MM-DD.
// Unparsable dates fall back to the sentinel instead of failing the
// whole record.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
		return UnknownValue
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return UnknownValue
}

func normalizeCurrency(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 || s == "N/A" {
		return UnspecifiedCurrency
	}
	return s
}

// clampAmount maps negative or non-finite amounts to zero. A negative
// total on a receipt is a misread, not a refund we want to record.
func clampAmount(f float64) float64 {
	if f < 0 || f != f {
		return 0
	}
	return f
}

// normalizeItems decodes each item entry independently; entries that
// fail to parse as objects are dropped without affecting the record.
func normalizeItems(raw []json.RawMessage) []Item {
	items := make([]Item, 0, len(raw))
	for _, entry := range raw {
		var wi wireItem
		if err := json.Unmarshal(entry, &wi); err != nil {
			continue
		}
		name := defaultText(wi.Name, "")
		if name == "" {
			continue
		}
		quantity := float64(wi.Quantity)
		if quantity <= 0 {
			quantity = 1
		}
		// The prompt asks for "price" but some schema versions emit "unit_price".
		price := float64(wi.UnitPrice)
		if price == 0 {
			price = float64(wi.Price)
		}
		items = append(items, Item{
			Name:      name,
			Quantity:  quantity,
			UnitPrice: clampAmount(price),
		})
	}
	return items
}
