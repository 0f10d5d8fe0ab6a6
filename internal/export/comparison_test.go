package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"procurement/internal/workflow"
	"procurement/models"
)

func sample() *workflow.Comparison {
	score80, score60 := 80.0, 60.0
	c := workflow.Compare(42, []workflow.ProposalDetail{
		{
			Proposal: models.Proposal{ID: 1, SupplierID: 11, Status: models.ProposalTechnicallyApproved, TechnicalScore: &score80},
			Lines:    []models.ProposalServiceLine{{ServiceItemID: 1, Quantity: decimal.NewFromInt(1)}},
			Prices:   []models.ProposalPrice{{ServiceItemID: 1, UnitPrice: decimal.NewFromInt(1000)}},
		},
		{
			Proposal: models.Proposal{ID: 2, SupplierID: 12, Status: models.ProposalTechnicallyApproved, TechnicalScore: &score60},
			Lines:    []models.ProposalServiceLine{{ServiceItemID: 1, Quantity: decimal.NewFromInt(1)}},
			Prices:   []models.ProposalPrice{{ServiceItemID: 1, UnitPrice: decimal.NewFromInt(500)}},
		},
	})
	return &c
}

func TestWriteComparison(t *testing.T) {
	var buf bytes.Buffer
	generated := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, WriteComparison(&buf, sample(), "Manutenção 2026", generated))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	get := func(cell string) string {
		v, err := f.GetCellValue(SheetName, cell)
		require.NoError(t, err)
		return v
	}
	require.Equal(t, "Manutenção 2026", get("A1"))
	require.Equal(t, "Generated: 2026-04-01 12:00:00", get("A2"))
	require.Equal(t, "Rank", get("A4"))
	require.Equal(t, "Cost-benefit", get("F4"))

	// первая строка рейтинга: предложение 2 (60/500 = 0.12)
	require.Equal(t, "1", get("A5"))
	require.Equal(t, "2", get("B5"))
	require.Equal(t, "12", get("C5"))
	require.Equal(t, "2", get("A6"))
	require.Equal(t, "1", get("B6"))

	require.Equal(t, "Proposals", get("A8"))
	require.Equal(t, "2", get("B8"))
	require.Equal(t, "Best price proposal", get("A13"))
	require.Equal(t, "2", get("B13"))
}

func TestWriteEmptyComparison(t *testing.T) {
	c := workflow.Compare(1, nil)
	var buf bytes.Buffer
	require.NoError(t, WriteComparison(&buf, &c, "Vazia", time.Now()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(SheetName, "A6")
	require.NoError(t, err)
	require.Equal(t, "Proposals", v)
}
