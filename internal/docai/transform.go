package docai

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// transformModelOutput maps the decoded model object onto a ParsedDocument.
// A field of the wrong JSON type is an error. Values that no receipt could
// hold are dropped or clipped: an unreadable date, a negative total, text
// longer than its column.
func transformModelOutput(obj map[string]interface{}) (*ParsedDocument, error) {
	merchant, err := getOptionalStringField(obj, "merchant_name")
	if err != nil {
		return nil, err
	}
	receiptType, err := getOptionalStringField(obj, "receipt_type")
	if err != nil {
		return nil, err
	}
	total, err := getOptionalMoneyField(obj, "total")
	if err != nil {
		return nil, err
	}
	dateStr, err := getOptionalStringField(obj, "transaction_date")
	if err != nil {
		return nil, err
	}

	if merchant != nil {
		m := domain.Truncate(*merchant, domain.MaxMerchantLen)
		merchant = &m
	}
	if total != nil && total.IsNegative() {
		total = nil
	}

	doc := &ParsedDocument{
		Merchant:    merchant,
		Total:       total,
		ReceiptType: receiptType,
		Items:       []domain.LineItem{},
	}
	if dateStr != nil {
		if d, err := civil.ParseDate(*dateStr); err == nil {
			doc.TransactionDate = &d
		}
	}

	itemsAny, ok := obj["items"]
	if !ok || itemsAny == nil {
		return doc, nil
	}
	itemsSlice, ok := itemsAny.([]interface{})
	if !ok {
		return nil, fmt.Errorf("field %q has type %T, want array", "items", itemsAny)
	}

	for i, item := range itemsSlice {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("item %d is %T, want object", i, item)
		}
		desc, err := getOptionalStringField(m, "description")
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		qty, err := getOptionalFloat64Field(m, "quantity")
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		price, err := getOptionalMoneyField(m, "total_price")
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if desc != nil {
			d := domain.Truncate(*desc, domain.MaxDescriptionLen)
			desc = &d
		}
		doc.Items = append(doc.Items, domain.LineItem{
			Description: desc,
			Quantity:    qty,
			TotalPrice:  price,
		})
	}

	return doc, nil
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

func getOptionalFloat64Field(m map[string]interface{}, key string) (*float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case float64:
		f := val
		return &f, nil
	case int:
		f := float64(val)
		return &f, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want number or null", key, v)
	}
}

// getOptionalMoneyField also accepts numeric strings, which models emit
// for amounts more often than for other numbers.
func getOptionalMoneyField(m map[string]interface{}, key string) (*domain.Money, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case float64:
		money := domain.MoneyFromFloat(val)
		return &money, nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		money, err := domain.ParseMoney(s)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		return &money, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want number or null", key, v)
	}
}
