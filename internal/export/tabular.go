// Package export renders receipts as spreadsheets and budgets as reports.
package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// SheetName is the worksheet the receipts are written to.
const SheetName = "Receipts"

// DateLayout is the dd/mm/yyyy layout used in exports.
const DateLayout = "02/01/2006"

// Header is the fixed first row of every export.
var Header = []string{"ID", "Merchant", "Total Amount", "Transaction Date", "Receipt Category", "Item Name", "Item Price"}

const (
	noItemsName  = "No Items"
	noItemsPrice = "-"
)

// TabularRows flattens receipts into rows, header first. Each receipt takes
// max(1, len(items)) rows: metadata plus its first item, then one row per
// remaining item with the metadata columns blank.
func TabularRows(receipts []*domain.Receipt) [][]string {
	rows := [][]string{append([]string(nil), Header...)}

	for _, r := range receipts {
		merchant := domain.DefaultMerchant
		if r.Merchant != nil {
			merchant = *r.Merchant
		}
		meta := []string{
			strconv.FormatInt(r.ID, 10),
			merchant,
			r.Total().String(),
			r.EffectiveDate().In(time.UTC).Format(DateLayout),
			string(r.Category),
		}

		if len(r.ParsedItems) == 0 {
			rows = append(rows, append(meta, noItemsName, noItemsPrice))
			continue
		}

		for i, item := range r.ParsedItems {
			name, price := itemCells(item)
			if i == 0 {
				rows = append(rows, append(meta, name, price))
				continue
			}
			rows = append(rows, []string{"", "", "", "", "", name, price})
		}
	}

	return rows
}

func itemCells(item domain.LineItem) (name, price string) {
	price = noItemsPrice
	if item.Description != nil {
		name = *item.Description
	}
	if item.TotalPrice != nil {
		price = item.TotalPrice.String()
	}
	return name, price
}

// WriteXLSX renders the receipts as an .xlsx workbook into w.
func WriteXLSX(w io.Writer, receipts []*domain.Receipt) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("WriteXLSX: rename sheet: %w", err)
	}

	for i, row := range TabularRows(receipts) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("WriteXLSX: cell name: %w", err)
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("WriteXLSX: row %d: %w", i+1, err)
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("WriteXLSX: header style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(Header))
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", style); err != nil {
		return fmt.Errorf("WriteXLSX: apply header style: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("WriteXLSX: write workbook: %w", err)
	}
	return nil
}
