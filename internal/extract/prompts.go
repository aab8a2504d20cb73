package extract

import (
	"strings"

	"github.com/deveshk/invoicescan/internal/invoice"
)

// BuildPrompt assembles the extraction instructions for the given
// granularity. The field names and formats here must stay in sync with
// what the normalizer reads.
func BuildPrompt(g invoice.Granularity) string {
	var b strings.Builder

	b.WriteString("You are an invoice and receipt data extractor.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Extract the data from the attached invoice or receipt image.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n")
	b.WriteString("- Output a single JSON object.\n\n")

	b.WriteString("The object must have these fields:\n")
	b.WriteString("- \"vendor_name\": string, the store or vendor name\n")
	b.WriteString("- \"invoice_number\": string, the invoice or receipt number\n")
	b.WriteString("- \"invoice_date\": string, format \"MM/DD/YYYY\"\n")

	switch g {
	case invoice.GranularityDocument:
		b.WriteString("- \"subtotal\": number, the amount before tax\n")
		b.WriteString("- \"total_price\": number, the final amount paid\n")
		b.WriteString("- \"discount\": number, 0 if none\n")
		b.WriteString("- \"zero_rated\": boolean, true if the purchase is tax-exempt\n\n")
	default:
		b.WriteString("- \"data\": array of objects, one per line item, each with:\n")
		b.WriteString("  - \"product_name\": string; if missing, use the invoice number\n")
		b.WriteString("  - \"unit_price\": number\n")
		b.WriteString("  - \"quantity\": number\n")
		b.WriteString("  - \"total_price\": number, the line total\n")
		b.WriteString("  - \"discount\": number, 0 if none\n")
		b.WriteString("  - \"tax_rate_percent\": number, 0 if none\n\n")
		b.WriteString("Rules:\n")
		b.WriteString("- Extract every line item. Do NOT extract the invoice grand total as an item.\n")
	}

	b.WriteString("- If a text field cannot be determined, use an empty string.\n")
	b.WriteString("- If a numeric field cannot be determined, use 0.\n")
	b.WriteString("- If the image is blurry, unreadable, or not an invoice or receipt, ")
	b.WriteString("output exactly {\"error\": \"<short reason>\"} and nothing else.\n\n")

	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Do NOT use ```json or any Markdown.\n")
	b.WriteString("Output must begin with \"{\" and end with \"}\".\n")

	return b.String()
}
