// Package docai extracts structured receipt data from an image using a
// generative vision model.
package docai

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// ServiceName identifies this collaborator in ExternalServiceError.
const ServiceName = "document-analysis"

// DefaultModelName is the default Gemini model used for receipt analysis.
const DefaultModelName = "gemini-2.5-flash"

// Image is the input of one analysis call.
type Image struct {
	Data     []byte
	MIMEType string
	// Ref is where the bytes came from (gs:// URI or remote URL), for logs.
	Ref string
}

// ParsedDocument is the structured result of a successful analysis.
// Every field is optional.
type ParsedDocument struct {
	Merchant        *string
	Total           *domain.Money
	TransactionDate *civil.Date
	ReceiptType     *string
	Items           []domain.LineItem
}

// Analyzer turns an image into a ParsedDocument. Any failure, timeouts
// included, is returned as a *domain.ExternalServiceError with no result.
type Analyzer interface {
	Analyze(ctx context.Context, img Image) (*ParsedDocument, error)
}
