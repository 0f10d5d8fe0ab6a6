package db

import (
	"context"

	"github.com/lib/pq"

	"procurement/internal/workflow"
	"procurement/models"
)

const proposalColumns = `id, procurement_id, supplier_id, status, technical_description, payment_conditions,
        delivery_time, warranty_terms, technical_score, technical_review_text, reviewer_id, reviewed_at,
        submitted_at, created_at, updated_at`

// EnsureProposal полагается на UNIQUE(procurement_id, supplier_id): параллельные
// вызовы для одной пары получают одну и ту же строку.
func (r *repo) EnsureProposal(ctx context.Context, procurementID, supplierID int64) (*models.Proposal, error) {
	_, err := r.q.ExecContext(ctx, `
        INSERT INTO proposals (procurement_id, supplier_id, status, created_at, updated_at)
        VALUES ($1, $2, $3, NOW(), NOW())
        ON CONFLICT (procurement_id, supplier_id) DO NOTHING`,
		procurementID, supplierID, models.ProposalDraft)
	if err != nil {
		return nil, mapErr(err)
	}
	p := &models.Proposal{}
	query := `SELECT ` + proposalColumns + ` FROM proposals
        WHERE procurement_id = $1 AND supplier_id = $2` + r.forUpdate()
	if err := r.getContext(ctx, p, query, procurementID, supplierID); err != nil {
		return nil, notFound(err, "proposal of supplier", supplierID)
	}
	return p, nil
}

func (r *repo) GetProposal(ctx context.Context, id int64) (*models.Proposal, error) {
	p := &models.Proposal{}
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1` + r.forUpdate()
	if err := r.getContext(ctx, p, query, id); err != nil {
		return nil, notFound(err, "proposal", id)
	}
	return p, nil
}

func (r *repo) UpdateProposal(ctx context.Context, p *models.Proposal) error {
	query := `
        UPDATE proposals SET
            status = :status, technical_description = :technical_description,
            payment_conditions = :payment_conditions, delivery_time = :delivery_time,
            warranty_terms = :warranty_terms, technical_score = :technical_score,
            technical_review_text = :technical_review_text, reviewer_id = :reviewer_id,
            reviewed_at = :reviewed_at, submitted_at = :submitted_at, updated_at = :updated_at
        WHERE id = :id`
	res, err := r.namedExec(ctx, query, p)
	if err != nil {
		return err
	}
	return mustAffect(res, "proposal", p.ID)
}

func (r *repo) UpsertProposalLine(ctx context.Context, l models.ProposalServiceLine) error {
	_, err := r.namedExec(ctx, `
        INSERT INTO proposal_service_lines (proposal_id, service_item_id, quantity, technical_notes)
        VALUES (:proposal_id, :service_item_id, :quantity, :technical_notes)
        ON CONFLICT (proposal_id, service_item_id)
        DO UPDATE SET quantity = EXCLUDED.quantity, technical_notes = EXCLUDED.technical_notes`, l)
	return err
}

func (r *repo) UpsertProposalPrice(ctx context.Context, pr models.ProposalPrice) error {
	_, err := r.namedExec(ctx, `
        INSERT INTO proposal_prices (proposal_id, service_item_id, unit_price)
        VALUES (:proposal_id, :service_item_id, :unit_price)
        ON CONFLICT (proposal_id, service_item_id)
        DO UPDATE SET unit_price = EXCLUDED.unit_price`, pr)
	return err
}

func (r *repo) GetProposalDetail(ctx context.Context, id int64) (*workflow.ProposalDetail, error) {
	p, err := r.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	details, err := r.attachLines(ctx, []models.Proposal{*p})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

func (r *repo) ListProposalDetails(ctx context.Context, procurementID int64, statuses ...models.ProposalStatus) ([]workflow.ProposalDetail, error) {
	var w where
	w.add("procurement_id = $%d", procurementID)
	if len(statuses) > 0 {
		w.add("status = ANY($%d)", pq.Array(strs(statuses)))
	}
	var props []models.Proposal
	query := `SELECT ` + proposalColumns + ` FROM proposals` + w.String() + ` ORDER BY id`
	if err := r.selectContext(ctx, &props, query, w.args...); err != nil {
		return nil, err
	}
	return r.attachLines(ctx, props)
}

func (r *repo) CountProposals(ctx context.Context, procurementID int64, status models.ProposalStatus) (int, error) {
	var n int
	err := r.getContext(ctx, &n,
		`SELECT COUNT(1) FROM proposals WHERE procurement_id = $1 AND status = $2`, procurementID, status)
	return n, err
}

// attachLines загружает строки и цены для набора предложений двумя запросами.
func (r *repo) attachLines(ctx context.Context, props []models.Proposal) ([]workflow.ProposalDetail, error) {
	out := make([]workflow.ProposalDetail, len(props))
	if len(props) == 0 {
		return out, nil
	}
	ids := make([]int64, len(props))
	index := make(map[int64]int, len(props))
	for i, p := range props {
		ids[i] = p.ID
		index[p.ID] = i
		out[i].Proposal = p
	}

	var lines []models.ProposalServiceLine
	if err := r.selectContext(ctx, &lines, `
        SELECT proposal_id, service_item_id, quantity, technical_notes
        FROM proposal_service_lines WHERE proposal_id = ANY($1)
        ORDER BY proposal_id, service_item_id`, pq.Array(ids)); err != nil {
		return nil, err
	}
	var prices []models.ProposalPrice
	if err := r.selectContext(ctx, &prices, `
        SELECT proposal_id, service_item_id, unit_price
        FROM proposal_prices WHERE proposal_id = ANY($1)
        ORDER BY proposal_id, service_item_id`, pq.Array(ids)); err != nil {
		return nil, err
	}
	for _, l := range lines {
		d := &out[index[l.ProposalID]]
		d.Lines = append(d.Lines, l)
	}
	for _, p := range prices {
		d := &out[index[p.ProposalID]]
		d.Prices = append(d.Prices, p)
	}
	return out, nil
}
