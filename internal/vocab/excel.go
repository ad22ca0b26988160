package vocab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

type CardImportRowError struct {
	Row   int    `json:"row"`
	Term  string `json:"term,omitempty"`
	Error string `json:"error"`
}

type CardImportReport struct {
	TotalRows   int                  `json:"total_rows"`
	SuccessRows int                  `json:"success_rows"`
	FailedRows  int                  `json:"failed_rows"`
	Errors      []CardImportRowError `json:"errors"`
}

func (s *Service) ExportDeckExcel(ctx context.Context, deckID int64) ([]byte, error) {
	cards, err := s.ListCards(ctx, deckID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	headers := []string{"term", "definition", "example"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, c := range cards {
		row := i + 2
		values := []any{c.Term, c.Definition, c.Example}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "C", 28)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) ImportDeckExcel(ctx context.Context, deckID int64, r io.Reader) (*CardImportReport, error) {
	if err := s.deckExists(ctx, deckID); err != nil {
		return nil, err
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel sheet is empty")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("no data rows found")
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"term", "definition"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	report := &CardImportReport{Errors: make([]CardImportRowError, 0)}
	for i := 1; i < len(rows); i++ {
		rowNo := i + 1
		row := rows[i]
		report.TotalRows++

		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		term := get("term")
		definition := get("definition")
		example := get("example")

		if term == "" || definition == "" {
			report.FailedRows++
			report.Errors = append(report.Errors, CardImportRowError{
				Row:   rowNo,
				Term:  term,
				Error: "term and definition are required",
			})
			continue
		}

		if _, err := s.AddCard(ctx, deckID, term, definition, example); err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, CardImportRowError{
				Row:   rowNo,
				Term:  term,
				Error: err.Error(),
			})
			continue
		}
		report.SuccessRows++
	}
	return report, nil
}
