package db

import (
	"context"

	"procurement/models"
)

const inviteColumns = `id, procurement_id, email, token, accepted, accepted_at, created_by, created_at`

func (r *repo) CreateInvite(ctx context.Context, inv *models.Invite) error {
	query := `
        INSERT INTO invites (procurement_id, email, token, accepted, created_by, created_at)
        VALUES (:procurement_id, :email, :token, FALSE, :created_by, :created_at)
        RETURNING id`
	id, err := insertID(ctx, r.q, query, inv)
	if err != nil {
		return err
	}
	inv.ID = id
	return nil
}

func (r *repo) GetInviteByToken(ctx context.Context, token string) (*models.Invite, error) {
	inv := &models.Invite{}
	query := `SELECT ` + inviteColumns + ` FROM invites WHERE token = $1`
	if err := r.getContext(ctx, inv, query, token); err != nil {
		return nil, notFound(err, "invite", "token")
	}
	return inv, nil
}

func (r *repo) InviteExists(ctx context.Context, procurementID int64, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM invites WHERE procurement_id = $1 AND email = $2)`
	err := r.getContext(ctx, &exists, query, procurementID, email)
	return exists, err
}

func (r *repo) ListInvites(ctx context.Context, procurementID int64) ([]models.Invite, error) {
	out := []models.Invite{}
	query := `SELECT ` + inviteColumns + ` FROM invites WHERE procurement_id = $1 ORDER BY id`
	if err := r.selectContext(ctx, &out, query, procurementID); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkInviteAccepted делает условный UPDATE: строка меняется, только если
// приглашение ещё не принято.
func (r *repo) MarkInviteAccepted(ctx context.Context, inv *models.Invite) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE invites SET accepted = TRUE, accepted_at = $2 WHERE id = $1 AND NOT accepted`,
		inv.ID, inv.AcceptedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
