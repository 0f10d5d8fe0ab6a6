package workflow

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"procurement/models"
)

// ProposalFields: текстовые поля предложения; nil означает "не менять".
type ProposalFields struct {
	TechnicalDescription *string `json:"technicalDescription"`
	PaymentConditions    *string `json:"paymentConditions"`
	DeliveryTime         *string `json:"deliveryTime"`
	WarrantyTerms        *string `json:"warrantyTerms"`
}

type LineInput struct {
	ServiceItemID  int64           `json:"serviceItemId"`
	Quantity       decimal.Decimal `json:"quantity"`
	TechnicalNotes string          `json:"technicalNotes"`
}

type PriceInput struct {
	ServiceItemID int64           `json:"serviceItemId"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
}

// ProposalView: предложение для выдачи наружу. Для заказчика поля цен
// отсутствуют (nil и omitempty), а не обнуляются.
type ProposalView struct {
	models.Proposal
	Lines      []models.ProposalServiceLine `json:"lines"`
	Prices     []models.ProposalPrice       `json:"prices,omitempty"`
	TotalPrice *decimal.Decimal             `json:"totalPrice,omitempty"`
}

func newProposalView(d ProposalDetail, withPrices bool) ProposalView {
	v := ProposalView{Proposal: d.Proposal, Lines: d.Lines}
	if v.Lines == nil {
		v.Lines = []models.ProposalServiceLine{}
	}
	if withPrices {
		v.Prices = d.Prices
		total := TotalPrice(d.Lines, d.Prices)
		v.TotalPrice = &total
	}
	return v
}

// FilterTRItems оставляет только строки и цены, ссылающиеся на позиции
// ТЗ закупки. Остальные молча отбрасываются, skipped хранит их количество.
func FilterTRItems(valid map[int64]bool, lines []LineInput, prices []PriceInput) (keptLines []LineInput, keptPrices []PriceInput, skipped int) {
	for _, l := range lines {
		if valid[l.ServiceItemID] {
			keptLines = append(keptLines, l)
		} else {
			skipped++
		}
	}
	for _, p := range prices {
		if valid[p.ServiceItemID] {
			keptPrices = append(keptPrices, p)
		} else {
			skipped++
		}
	}
	return keptLines, keptPrices, skipped
}

func (s *Service) acceptingProposals(p *models.Procurement) error {
	if p.Status != models.ProcurementOpen {
		return preconditionf("procurement %d is %s, proposals are not accepted", p.ID, p.Status)
	}
	if p.ProposalDeadline != nil && s.now().After(*p.ProposalDeadline) {
		return preconditionf("proposal deadline of procurement %d has passed", p.ID)
	}
	return nil
}

// UpsertProposal создаёт или дополняет черновик предложения поставщика.
// На пару (закупка, поставщик) всегда существует не более одного предложения.
func (s *Service) UpsertProposal(ctx context.Context, actor Actor, procurementID int64, fields ProposalFields, lines []LineInput, prices []PriceInput) (*ProposalView, error) {
	if err := requireRole(actor, models.RoleSupplier); err != nil {
		return nil, err
	}
	var view ProposalView
	err := s.run(ctx, "proposal.upsert", actor, func(r Repository, ev *events) error {
		p, err := r.GetProcurement(ctx, procurementID)
		if err != nil {
			return err
		}
		if err := s.acceptingProposals(p); err != nil {
			return err
		}
		if p.TRID == nil {
			return preconditionf("procurement %d has no terms of reference", p.ID)
		}

		prop, err := r.EnsureProposal(ctx, p.ID, actor.ID)
		if err != nil {
			return err
		}
		if prop.Status != models.ProposalDraft {
			return invalidStatef("proposal %d is %s", prop.ID, prop.Status)
		}
		if fields.TechnicalDescription != nil {
			prop.TechnicalDescription = strings.TrimSpace(*fields.TechnicalDescription)
		}
		if fields.PaymentConditions != nil {
			prop.PaymentConditions = strings.TrimSpace(*fields.PaymentConditions)
		}
		if fields.DeliveryTime != nil {
			prop.DeliveryTime = strings.TrimSpace(*fields.DeliveryTime)
		}
		if fields.WarrantyTerms != nil {
			prop.WarrantyTerms = strings.TrimSpace(*fields.WarrantyTerms)
		}
		prop.UpdatedAt = s.now()
		if err := r.UpdateProposal(ctx, prop); err != nil {
			return err
		}

		valid, err := r.ServiceItemIDs(ctx, *p.TRID)
		if err != nil {
			return err
		}
		keptLines, keptPrices, skipped := FilterTRItems(valid, lines, prices)
		if skipped > 0 {
			s.log.Debug("skipped entries outside terms of reference",
				zap.Int64("proposal_id", prop.ID), zap.Int("skipped", skipped))
		}
		// проверяются только позиции ТЗ: чужие записи уже отброшены
		for _, l := range keptLines {
			if !l.Quantity.IsPositive() {
				return validationf("quantity for service item %d must be positive", l.ServiceItemID)
			}
		}
		for _, pr := range keptPrices {
			if pr.UnitPrice.IsNegative() {
				return validationf("unit price for service item %d must not be negative", pr.ServiceItemID)
			}
		}
		for _, l := range keptLines {
			if err := r.UpsertProposalLine(ctx, models.ProposalServiceLine{
				ProposalID:     prop.ID,
				ServiceItemID:  l.ServiceItemID,
				Quantity:       l.Quantity,
				TechnicalNotes: l.TechnicalNotes,
			}); err != nil {
				return err
			}
		}
		for _, pr := range keptPrices {
			if err := r.UpsertProposalPrice(ctx, models.ProposalPrice{
				ProposalID:    prop.ID,
				ServiceItemID: pr.ServiceItemID,
				UnitPrice:     pr.UnitPrice,
			}); err != nil {
				return err
			}
		}

		d, err := r.GetProposalDetail(ctx, prop.ID)
		if err != nil {
			return err
		}
		view = newProposalView(*d, true)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// SubmitProposal фиксирует черновик. Повторная подача возвращает Conflict.
func (s *Service) SubmitProposal(ctx context.Context, actor Actor, proposalID int64) (*ProposalView, error) {
	if err := requireRole(actor, models.RoleSupplier); err != nil {
		return nil, err
	}
	var view ProposalView
	err := s.run(ctx, "proposal.submit", actor, func(r Repository, ev *events) error {
		d, err := r.GetProposalDetail(ctx, proposalID)
		if err != nil {
			return err
		}
		prop := &d.Proposal
		if prop.SupplierID != actor.ID {
			return forbiddenf("proposal %d belongs to another supplier", prop.ID)
		}
		switch prop.Status {
		case models.ProposalDraft:
		case models.ProposalSubmitted:
			return conflictf("proposal %d is already submitted", prop.ID)
		default:
			return invalidStatef("proposal %d is %s", prop.ID, prop.Status)
		}
		p, err := r.GetProcurement(ctx, prop.ProcurementID)
		if err != nil {
			return err
		}
		if err := s.acceptingProposals(p); err != nil {
			return err
		}
		switch {
		case prop.TechnicalDescription == "":
			return validationf("technical description is required")
		case len(d.Lines) == 0:
			return validationf("at least one line quantity is required")
		case len(d.Prices) == 0:
			return validationf("at least one unit price is required")
		}

		now := s.now()
		prop.Status = models.ProposalSubmitted
		prop.SubmittedAt = &now
		prop.UpdatedAt = now
		if err := r.UpdateProposal(ctx, prop); err != nil {
			return err
		}
		view = newProposalView(*d, true)

		ev.add(EventProposalSubmitted, map[string]any{
			"procurementId": p.ID,
			"proposalId":    prop.ID,
			"supplierId":    prop.SupplierID,
		}, ToProcurement(p.ID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// TechnicalReview: техническое заключение автора ТЗ по поданному предложению.
func (s *Service) TechnicalReview(ctx context.Context, actor Actor, proposalID int64, text string, score *float64, approved bool) (*ProposalView, error) {
	if err := requireRole(actor, models.RoleRequester); err != nil {
		return nil, err
	}
	var view ProposalView
	err := s.run(ctx, "proposal.review", actor, func(r Repository, ev *events) error {
		d, err := r.GetProposalDetail(ctx, proposalID)
		if err != nil {
			return err
		}
		prop := &d.Proposal
		p, err := r.GetProcurement(ctx, prop.ProcurementID)
		if err != nil {
			return err
		}
		var tr *models.TermsOfReference
		if p.TRID != nil {
			if tr, err = r.GetTR(ctx, *p.TRID); err != nil {
				return err
			}
		}
		if err := canReviewProposal(actor, tr); err != nil {
			return err
		}

		text = strings.TrimSpace(text)
		switch {
		case text == "":
			return validationf("review text is required")
		case score == nil:
			return validationf("technical score is required")
		case *score < 0 || *score > 100:
			return validationf("technical score must be between 0 and 100")
		}
		if prop.Status != models.ProposalSubmitted {
			return invalidStatef("proposal %d is %s", prop.ID, prop.Status)
		}
		if p.Status != models.ProcurementTechnicalReview {
			return preconditionf("procurement %d is %s, not under technical review", p.ID, p.Status)
		}

		now := s.now()
		reviewer := actor.ID
		sc := *score
		prop.Status = models.ProposalTechnicallyRejected
		if approved {
			prop.Status = models.ProposalTechnicallyApproved
		}
		prop.TechnicalScore = &sc
		prop.TechnicalReview = text
		prop.ReviewerID = &reviewer
		prop.ReviewedAt = &now
		prop.UpdatedAt = now
		if err := r.UpdateProposal(ctx, prop); err != nil {
			return err
		}
		view = newProposalView(*d, false)

		ev.add(EventProposalReviewed, map[string]any{
			"procurementId": p.ID,
			"proposalId":    prop.ID,
			"status":        prop.Status,
			"score":         sc,
		}, ToRole(models.RoleBuyer))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// GetProposal: поставщик видит только своё предложение, закупщик видит цены,
// заказчик их не видит. Черновики видны только владельцу.
func (s *Service) GetProposal(ctx context.Context, actor Actor, id int64) (*ProposalView, error) {
	d, err := s.store.GetProposalDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Is(models.RoleSupplier) {
		if d.Proposal.SupplierID != actor.ID {
			return nil, forbiddenf("proposal %d belongs to another supplier", id)
		}
		v := newProposalView(*d, true)
		return &v, nil
	}
	if d.Proposal.Status == models.ProposalDraft {
		return nil, forbiddenf("proposal %d is a draft", id)
	}
	p, tr, err := s.procurementWithTR(ctx, d.Proposal.ProcurementID)
	if err != nil {
		return nil, err
	}
	withPrices, err := canSeeProposals(actor, p, tr)
	if err != nil {
		return nil, err
	}
	v := newProposalView(*d, withPrices)
	return &v, nil
}

func (s *Service) ListProposals(ctx context.Context, actor Actor, procurementID int64) ([]ProposalView, error) {
	p, tr, err := s.procurementWithTR(ctx, procurementID)
	if err != nil {
		return nil, err
	}
	withPrices, err := canSeeProposals(actor, p, tr)
	if err != nil {
		return nil, err
	}

	var details []ProposalDetail
	if actor.Is(models.RoleSupplier) {
		all, err := s.store.ListProposalDetails(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, d := range all {
			if d.Proposal.SupplierID == actor.ID {
				details = append(details, d)
			}
		}
	} else {
		details, err = s.store.ListProposalDetails(ctx, p.ID,
			models.ProposalSubmitted, models.ProposalTechnicallyApproved, models.ProposalTechnicallyRejected)
		if err != nil {
			return nil, err
		}
	}

	out := make([]ProposalView, 0, len(details))
	for _, d := range details {
		out = append(out, newProposalView(d, withPrices))
	}
	return out, nil
}

func (s *Service) procurementWithTR(ctx context.Context, procurementID int64) (*models.Procurement, *models.TermsOfReference, error) {
	p, err := s.store.GetProcurement(ctx, procurementID)
	if err != nil {
		return nil, nil, err
	}
	if p.TRID == nil {
		return p, nil, nil
	}
	tr, err := s.store.GetTR(ctx, *p.TRID)
	if err != nil {
		return nil, nil, err
	}
	return p, tr, nil
}
