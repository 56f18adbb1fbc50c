package docai

import (
	"strings"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// buildPrompt lists the closed taxonomy so the model answers with one of its
// labels; anything else is folded into Other by the normalizer later.
func buildPrompt() string {
	var b strings.Builder

	b.WriteString("You are a receipt parser.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Read the attached image of a purchase receipt.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n")
	b.WriteString("- Output a single JSON object.\n\n")

	b.WriteString("The object must have these fields:\n")
	b.WriteString("- \"is_receipt\": boolean, false if the image is not a receipt\n")
	b.WriteString("- \"merchant_name\": string or null\n")
	b.WriteString("- \"total\": number or null (the final amount paid)\n")
	b.WriteString("- \"transaction_date\": string, ISO format \"YYYY-MM-DD\", or null\n")
	b.WriteString("- \"receipt_type\": string or null (one of the categories below)\n")
	b.WriteString("- \"items\": array of objects, in the order printed, each with\n")
	b.WriteString("    \"description\": string or null,\n")
	b.WriteString("    \"quantity\": number or null,\n")
	b.WriteString("    \"total_price\": number or null\n\n")

	b.WriteString("Use ONLY the following categories for \"receipt_type\":\n")
	for _, c := range domain.Categories {
		b.WriteString("  - " + string(c) + "\n")
	}
	b.WriteString("\n")

	b.WriteString("Rules:\n")
	b.WriteString("- If a field cannot be read, set it to null. Never guess amounts.\n")
	b.WriteString("- Amounts are plain numbers without currency symbols.\n")
	b.WriteString("- If you are unsure of the category, use \"Other\".\n\n")
	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"{\" and end with \"}\".\n")

	return b.String()
}
