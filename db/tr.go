package db

import (
	"context"

	"github.com/lib/pq"

	"procurement/internal/workflow"
	"procurement/models"
)

const trColumns = `id, creator_id, title, objective, description, situation, scope, safety_rules,
        estimated_budget, max_execution_days, status, approver_id, approval_comments, rejection_reason,
        created_at, updated_at, submitted_at, approved_at, rejected_at`

func (r *repo) CreateTR(ctx context.Context, tr *models.TermsOfReference) error {
	query := `
        INSERT INTO terms_of_reference
            (creator_id, title, objective, description, situation, scope, safety_rules,
             estimated_budget, max_execution_days, status, created_at, updated_at)
        VALUES
            (:creator_id, :title, :objective, :description, :situation, :scope, :safety_rules,
             :estimated_budget, :max_execution_days, :status, :created_at, :updated_at)
        RETURNING id`
	id, err := insertID(ctx, r.q, query, tr)
	if err != nil {
		return err
	}
	tr.ID = id
	return nil
}

func (r *repo) GetTR(ctx context.Context, id int64) (*models.TermsOfReference, error) {
	tr := &models.TermsOfReference{}
	query := `SELECT ` + trColumns + ` FROM terms_of_reference WHERE id = $1` + r.forUpdate()
	if err := r.getContext(ctx, tr, query, id); err != nil {
		return nil, notFound(err, "terms of reference", id)
	}
	items := []models.ServiceLineItem{}
	if err := r.selectContext(ctx, &items,
		`SELECT * FROM service_line_items WHERE tr_id = $1 ORDER BY item_order`, id); err != nil {
		return nil, err
	}
	tr.Items = items
	return tr, nil
}

func (r *repo) UpdateTR(ctx context.Context, tr *models.TermsOfReference) error {
	query := `
        UPDATE terms_of_reference SET
            title = :title, objective = :objective, description = :description,
            situation = :situation, scope = :scope, safety_rules = :safety_rules,
            estimated_budget = :estimated_budget, max_execution_days = :max_execution_days,
            status = :status, approver_id = :approver_id, approval_comments = :approval_comments,
            rejection_reason = :rejection_reason, updated_at = :updated_at,
            submitted_at = :submitted_at, approved_at = :approved_at, rejected_at = :rejected_at
        WHERE id = :id`
	res, err := r.namedExec(ctx, query, tr)
	if err != nil {
		return err
	}
	return mustAffect(res, "terms of reference", tr.ID)
}

// ReplaceServiceItems удаляет прежние позиции ТЗ и сохраняет новые.
func (r *repo) ReplaceServiceItems(ctx context.Context, trID int64, items []models.ServiceLineItem) ([]models.ServiceLineItem, error) {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM service_line_items WHERE tr_id = $1`, trID); err != nil {
		return nil, err
	}
	query := `
        INSERT INTO service_line_items (tr_id, item_order, code, description, unit, quantity)
        VALUES (:tr_id, :item_order, :code, :description, :unit, :quantity)
        RETURNING id`
	saved := make([]models.ServiceLineItem, 0, len(items))
	for _, it := range items {
		it.TRID = trID
		id, err := insertID(ctx, r.q, query, it)
		if err != nil {
			return nil, err
		}
		it.ID = id
		saved = append(saved, it)
	}
	return saved, nil
}

func (r *repo) ListTRs(ctx context.Context, f workflow.TRFilter) ([]models.TermsOfReference, error) {
	var w where
	if f.CreatorID != nil {
		w.add("creator_id = $%d", *f.CreatorID)
	}
	if len(f.ExcludeStatuses) > 0 {
		w.add("status <> ALL($%d)", pq.Array(strs(f.ExcludeStatuses)))
	}
	query := `SELECT ` + trColumns + ` FROM terms_of_reference` + w.String() +
		` ORDER BY id DESC` + w.page(f.Limit, f.Offset)

	trs := []models.TermsOfReference{}
	if err := r.selectContext(ctx, &trs, query, w.args...); err != nil {
		return nil, err
	}
	if len(trs) == 0 {
		return trs, nil
	}

	ids := make([]int64, len(trs))
	for i, tr := range trs {
		ids[i] = tr.ID
	}
	var items []models.ServiceLineItem
	if err := r.selectContext(ctx, &items,
		`SELECT * FROM service_line_items WHERE tr_id = ANY($1) ORDER BY tr_id, item_order`,
		pq.Array(ids)); err != nil {
		return nil, err
	}
	byTR := make(map[int64][]models.ServiceLineItem, len(trs))
	for _, it := range items {
		byTR[it.TRID] = append(byTR[it.TRID], it)
	}
	for i := range trs {
		trs[i].Items = byTR[trs[i].ID]
		if trs[i].Items == nil {
			trs[i].Items = []models.ServiceLineItem{}
		}
	}
	return trs, nil
}

func (r *repo) ServiceItemIDs(ctx context.Context, trID int64) (map[int64]bool, error) {
	var ids []int64
	if err := r.selectContext(ctx, &ids, `SELECT id FROM service_line_items WHERE tr_id = $1`, trID); err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
