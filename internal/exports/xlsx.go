package exports

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"
)

const (
	resultsSheet = "Results"
	errorsSheet  = "Errors"
)

var fixedColumns = []string{
	"DocumentId", "FileName", "RemoteId", "Id", "Codigo", "Valor", "Amount",
	"Empresa", "CNPJ", "Data", "TipoBalanco",
}

// WriteWorkbook renders items as an XLSX workbook with a Results sheet and
// an Errors sheet. Extra export keys get one column each, sorted by name.
func WriteWorkbook(w io.Writer, items []Item) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(errorsSheet); err != nil {
		return fmt.Errorf("create errors sheet: %w", err)
	}

	extra := extraKeys(items)
	header := make([]any, 0, len(fixedColumns)+len(extra))
	for _, col := range fixedColumns {
		header = append(header, col)
	}
	for _, key := range extra {
		header = append(header, key)
	}
	if err := setRow(f, resultsSheet, 1, header); err != nil {
		return err
	}
	if err := setRow(f, errorsSheet, 1, []any{"DocumentId", "FileName", "Error"}); err != nil {
		return err
	}

	resultRow, errorRow := 2, 2
	for _, item := range items {
		if item.Result == nil {
			msg := "no result"
			if item.Err != nil {
				msg = item.Err.Error()
			}
			if err := setRow(f, errorsSheet, errorRow, []any{item.DocumentID, item.FileName, msg}); err != nil {
				return err
			}
			errorRow++
			continue
		}
		if err := setRow(f, resultsSheet, resultRow, resultRowValues(item, extra)); err != nil {
			return err
		}
		resultRow++
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func resultRowValues(item Item, extra []string) []any {
	r := item.Result
	var amount any
	if r.Amount.Valid {
		amount = r.Amount.Decimal.InexactFloat64()
	}
	row := []any{
		item.DocumentID, item.FileName, r.RemoteID, r.ID, r.Codigo, r.Valor, amount,
		r.Empresa, r.CNPJ, r.Data, r.TipoBalanco,
	}
	for _, key := range extra {
		v, ok := r.Fields[key]
		if !ok {
			row = append(row, nil)
			continue
		}
		row = append(row, cellValue(v))
	}
	return row
}

// cellValue flattens nested values to JSON text.
func cellValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func extraKeys(items []Item) []string {
	seen := make(map[string]struct{})
	for _, item := range items {
		if item.Result == nil {
			continue
		}
		for key := range item.Result.Fields {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
