package workflow

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"procurement/models"
)

type RankedProposal struct {
	Rank           int             `json:"rank"`
	ProposalID     int64           `json:"proposalId"`
	SupplierID     int64           `json:"supplierId"`
	TechnicalScore float64         `json:"technicalScore"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
	CostBenefit    float64         `json:"costBenefitScore"`
}

type ComparisonSummary struct {
	Count                   int             `json:"count"`
	AveragePrice            decimal.Decimal `json:"averagePrice"`
	AverageTechnicalScore   float64         `json:"averageTechnicalScore"`
	MinPrice                decimal.Decimal `json:"minPrice"`
	MaxPrice                decimal.Decimal `json:"maxPrice"`
	BestPriceProposalID     *int64          `json:"bestPriceProposalId,omitempty"`
	BestTechnicalProposalID *int64          `json:"bestTechnicalProposalId,omitempty"`
}

type Comparison struct {
	ProcurementID int64             `json:"procurementId"`
	Ranking       []RankedProposal  `json:"ranking"`
	Summary       ComparisonSummary `json:"summary"`
}

// TotalPrice суммирует quantity × unit_price по позициям, у которых есть
// и количество, и цена. Позиция без одного из них в сумму не входит.
func TotalPrice(lines []models.ProposalServiceLine, prices []models.ProposalPrice) decimal.Decimal {
	qty := make(map[int64]decimal.Decimal, len(lines))
	for _, l := range lines {
		qty[l.ServiceItemID] = l.Quantity
	}
	total := decimal.Zero
	for _, p := range prices {
		q, ok := qty[p.ServiceItemID]
		if !ok {
			continue
		}
		total = total.Add(q.Mul(p.UnitPrice))
	}
	return total
}

// CostBenefit = technical_score / total_price, при нулевой цене 0.
func CostBenefit(score float64, total decimal.Decimal) float64 {
	if !total.IsPositive() {
		return 0
	}
	return score / total.InexactFloat64()
}

// Compare ранжирует технически одобренные предложения. Чистая функция:
// не меняет состояние и не порождает событий.
func Compare(procurementID int64, proposals []ProposalDetail) Comparison {
	c := Comparison{ProcurementID: procurementID, Ranking: []RankedProposal{}}
	for _, d := range proposals {
		if d.Proposal.Status != models.ProposalTechnicallyApproved {
			continue
		}
		score := 0.0
		if d.Proposal.TechnicalScore != nil {
			score = *d.Proposal.TechnicalScore
		}
		total := TotalPrice(d.Lines, d.Prices)
		c.Ranking = append(c.Ranking, RankedProposal{
			ProposalID:     d.Proposal.ID,
			SupplierID:     d.Proposal.SupplierID,
			TechnicalScore: score,
			TotalPrice:     total,
			CostBenefit:    CostBenefit(score, total),
		})
	}

	sort.Slice(c.Ranking, func(i, j int) bool {
		a, b := c.Ranking[i], c.Ranking[j]
		if a.CostBenefit != b.CostBenefit {
			return a.CostBenefit > b.CostBenefit
		}
		if cmp := a.TotalPrice.Cmp(b.TotalPrice); cmp != 0 {
			return cmp < 0
		}
		return a.ProposalID < b.ProposalID
	})
	for i := range c.Ranking {
		c.Ranking[i].Rank = i + 1
	}
	c.Summary = summarize(c.Ranking)
	return c
}

func summarize(ranking []RankedProposal) ComparisonSummary {
	s := ComparisonSummary{Count: len(ranking)}
	if len(ranking) == 0 {
		return s
	}

	var (
		sumPrice  = decimal.Zero
		sumScore  float64
		bestPrice = ranking[0]
		bestTech  = ranking[0]
	)
	s.MinPrice, s.MaxPrice = ranking[0].TotalPrice, ranking[0].TotalPrice
	for _, r := range ranking {
		sumPrice = sumPrice.Add(r.TotalPrice)
		sumScore += r.TechnicalScore
		if r.TotalPrice.LessThan(s.MinPrice) {
			s.MinPrice = r.TotalPrice
		}
		if r.TotalPrice.GreaterThan(s.MaxPrice) {
			s.MaxPrice = r.TotalPrice
		}
		if c := r.TotalPrice.Cmp(bestPrice.TotalPrice); c < 0 || (c == 0 && r.ProposalID < bestPrice.ProposalID) {
			bestPrice = r
		}
		if r.TechnicalScore > bestTech.TechnicalScore ||
			(r.TechnicalScore == bestTech.TechnicalScore && r.ProposalID < bestTech.ProposalID) {
			bestTech = r
		}
	}

	n := int64(len(ranking))
	s.AveragePrice = sumPrice.Div(decimal.NewFromInt(n)).Round(2)
	s.AverageTechnicalScore = sumScore / float64(n)
	s.BestPriceProposalID = &bestPrice.ProposalID
	s.BestTechnicalProposalID = &bestTech.ProposalID
	return s
}

// Compare: сравнение предложений закупки. Результат содержит цены, поэтому
// доступен только закупщику.
func (s *Service) Compare(ctx context.Context, actor Actor, procurementID int64) (*Comparison, error) {
	if err := requireRole(actor, models.RoleBuyer); err != nil {
		return nil, err
	}
	p, err := s.store.GetProcurement(ctx, procurementID)
	if err != nil {
		return nil, err
	}
	details, err := s.store.ListProposalDetails(ctx, p.ID, models.ProposalTechnicallyApproved)
	if err != nil {
		return nil, err
	}
	c := Compare(p.ID, details)
	return &c, nil
}
