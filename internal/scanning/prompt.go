package scanning

import "fmt"

// DefaultPromptVersion selects the prompt a scanner uses unless
// configured otherwise.
const DefaultPromptVersion = "v1"

// promptV1 asks for the schema receipt.Normalize understands. Buying a
// new schema means adding a new version here and teaching the
// normalizer about it, never editing an existing version in place.
const promptV1 = `Analyze this receipt image and extract the following information in JSON format:
{
    "merchant_name": "store name",
    "date": "YYYY-MM-DD",
    "total_amount": "amount as number",
    "currency": "currency code",
    "items": [
        {"name": "item name", "price": "price as number", "quantity": "qty"}
    ],
    "tax_amount": "tax as number",
    "payment_method": "cash/card/etc"
}

If any field is not clearly visible, use "N/A" or 0 for numbers.
Return ONLY valid JSON. Do not use markdown code blocks.`

var prompts = map[string]string{
	"v1": promptV1,
}

// Prompt returns the instruction text for a schema version.
func Prompt(version string) (string, error) {
	p, ok := prompts[version]
	if !ok {
		return "", fmt.Errorf("unknown prompt version %q", version)
	}
	return p, nil
}
