package db

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"procurement/internal/workflow"
	"procurement/models"
)

const procurementColumns = `id, title, description, status, creator_id, requester_id, organization_id,
        tr_id, proposal_deadline, created_at, updated_at`

func (r *repo) CreateProcurement(ctx context.Context, p *models.Procurement) error {
	query := `
        INSERT INTO procurements
            (title, description, status, creator_id, requester_id, organization_id,
             tr_id, proposal_deadline, created_at, updated_at)
        VALUES
            (:title, :description, :status, :creator_id, :requester_id, :organization_id,
             :tr_id, :proposal_deadline, :created_at, :updated_at)
        RETURNING id`
	id, err := insertID(ctx, r.q, query, p)
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (r *repo) GetProcurement(ctx context.Context, id int64) (*models.Procurement, error) {
	p := &models.Procurement{}
	query := `SELECT ` + procurementColumns + ` FROM procurements WHERE id = $1` + r.forUpdate()
	if err := r.getContext(ctx, p, query, id); err != nil {
		return nil, notFound(err, "procurement", id)
	}
	return p, nil
}

func (r *repo) GetProcurementByTR(ctx context.Context, trID int64) (*models.Procurement, error) {
	p := &models.Procurement{}
	query := `SELECT ` + procurementColumns + ` FROM procurements WHERE tr_id = $1` + r.forUpdate()
	if err := r.getContext(ctx, p, query, trID); err != nil {
		return nil, notFound(err, "procurement for terms of reference", trID)
	}
	return p, nil
}

func (r *repo) UpdateProcurement(ctx context.Context, p *models.Procurement) error {
	query := `
        UPDATE procurements SET
            title = :title, description = :description, status = :status,
            requester_id = :requester_id, tr_id = :tr_id,
            proposal_deadline = :proposal_deadline, updated_at = :updated_at
        WHERE id = :id`
	res, err := r.namedExec(ctx, query, p)
	if err != nil {
		return err
	}
	return mustAffect(res, "procurement", p.ID)
}

func (r *repo) ListProcurements(ctx context.Context, f workflow.ProcurementFilter) ([]models.Procurement, error) {
	query, args := procurementListQuery(f)
	out := []models.Procurement{}
	if err := r.selectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// procurementListQuery: requester_id AND (status IN statuses OR есть приглашение на e-mail).
func procurementListQuery(f workflow.ProcurementFilter) (string, []any) {
	var w where
	if f.RequesterID != nil {
		w.add("requester_id = $%d", *f.RequesterID)
	}
	if len(f.Statuses) > 0 || f.InvitedEmail != "" {
		statuses := w.arg(pq.Array(strs(f.Statuses)))
		email := w.arg(f.InvitedEmail)
		w.conds = append(w.conds, fmt.Sprintf(
			"(status = ANY(%s) OR EXISTS (SELECT 1 FROM invites i WHERE i.procurement_id = procurements.id AND i.email = %s))",
			statuses, email))
	}
	query := `SELECT ` + procurementColumns + ` FROM procurements` + w.String() +
		` ORDER BY id DESC` + w.page(f.Limit, f.Offset)
	return query, w.args
}
