// Package export выгружает сравнение предложений в XLSX.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"procurement/internal/workflow"
)

const SheetName = "Comparison"

var headers = []string{"Rank", "Proposal", "Supplier", "Technical score", "Total price", "Cost-benefit"}

// ComparisonWorkbook строит книгу: заголовок, таблица рейтинга, сводка.
func ComparisonWorkbook(c *workflow.Comparison, title string, generated time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, err
	}

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	if err != nil {
		return nil, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"305496"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, err
	}
	money := "#,##0.00"
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &money})
	if err != nil {
		return nil, err
	}

	f.SetCellValue(SheetName, "A1", title)
	f.SetCellStyle(SheetName, "A1", "A1", titleStyle)
	f.SetCellValue(SheetName, "A2", fmt.Sprintf("Generated: %s", generated.UTC().Format("2006-01-02 15:04:05")))

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 4)
		f.SetCellValue(SheetName, cell, h)
		f.SetCellStyle(SheetName, cell, cell, headerStyle)
	}
	if err := f.SetColWidth(SheetName, "A", "F", 18); err != nil {
		return nil, err
	}

	row := 5
	for _, r := range c.Ranking {
		values := []any{r.Rank, r.ProposalID, r.SupplierID, r.TechnicalScore, r.TotalPrice.InexactFloat64(), r.CostBenefit}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			f.SetCellValue(SheetName, cell, v)
		}
		cell, _ := excelize.CoordinatesToCellName(5, row)
		f.SetCellStyle(SheetName, cell, cell, moneyStyle)
		row++
	}

	row++
	s := c.Summary
	summary := [][2]any{
		{"Proposals", s.Count},
		{"Average price", s.AveragePrice.InexactFloat64()},
		{"Average technical score", s.AverageTechnicalScore},
		{"Min price", s.MinPrice.InexactFloat64()},
		{"Max price", s.MaxPrice.InexactFloat64()},
	}
	if s.BestPriceProposalID != nil {
		summary = append(summary, [2]any{"Best price proposal", *s.BestPriceProposalID})
	}
	if s.BestTechnicalProposalID != nil {
		summary = append(summary, [2]any{"Best technical proposal", *s.BestTechnicalProposalID})
	}
	for _, kv := range summary {
		f.SetCellValue(SheetName, fmt.Sprintf("A%d", row), kv[0])
		f.SetCellValue(SheetName, fmt.Sprintf("B%d", row), kv[1])
		row++
	}
	return f, nil
}

// WriteComparison пишет книгу в w (ответ HTTP).
func WriteComparison(w io.Writer, c *workflow.Comparison, title string, generated time.Time) error {
	f, err := ComparisonWorkbook(c, title, generated)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}
