package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"procurement/models"
)

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", validationf("invalid e-mail %q", raw)
	}
	return strings.ToLower(addr.Address), nil
}

// Invite приглашает поставщика по e-mail. Повторное приглашение того же
// адреса в ту же закупку возвращает Conflict.
func (s *Service) Invite(ctx context.Context, actor Actor, procurementID int64, email string) (*models.Invite, error) {
	if err := requireRole(actor, models.RoleBuyer); err != nil {
		return nil, err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	var inv *models.Invite
	err = s.run(ctx, "invite.create", actor, func(r Repository, ev *events) error {
		p, err := r.GetProcurement(ctx, procurementID)
		if err != nil {
			return err
		}
		if p.Status == models.ProcurementTechnicalReview || p.Status == models.ProcurementClosed {
			return invalidStatef("procurement %d is %s", p.ID, p.Status)
		}
		exists, err := r.InviteExists(ctx, p.ID, email)
		if err != nil {
			return err
		}
		if exists {
			return conflictf("%s is already invited to procurement %d", email, p.ID)
		}

		token, err := s.token()
		if err != nil {
			return fmt.Errorf("generate invite token: %w", err)
		}
		inv = &models.Invite{
			ProcurementID: p.ID,
			Email:         email,
			Token:         token,
			CreatedBy:     actor.ID,
			CreatedAt:     s.now(),
		}
		if err := r.CreateInvite(ctx, inv); err != nil {
			return err
		}

		ev.add(EventInviteSent, map[string]any{
			"procurementId": p.ID,
			"inviteId":      inv.ID,
			"email":         email,
		}, ToProcurement(p.ID))

		u, err := r.GetUserByEmail(ctx, email)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if u.Role == models.RoleSupplier {
			ev.add(EventInviteReceived, map[string]any{
				"procurementId": p.ID,
				"title":         p.Title,
				"token":         token,
			}, ToUser(u.ID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// AcceptInvite принимает приглашение ровно один раз (compare-and-set).
func (s *Service) AcceptInvite(ctx context.Context, actor Actor, token string) (*models.Invite, error) {
	if err := requireRole(actor, models.RoleSupplier); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, validationf("token is required")
	}

	var inv *models.Invite
	err := s.run(ctx, "invite.accept", actor, func(r Repository, ev *events) error {
		var err error
		inv, err = r.GetInviteByToken(ctx, token)
		if err != nil {
			return err
		}
		if !sameEmail(inv.Email, actor.Email) {
			return forbiddenf("invite was issued to another e-mail")
		}
		if inv.Accepted {
			return conflictf("invite %d is already accepted", inv.ID)
		}
		now := s.now()
		inv.AcceptedAt = &now
		ok, err := r.MarkInviteAccepted(ctx, inv)
		if err != nil {
			return err
		}
		if !ok {
			return conflictf("invite %d is already accepted", inv.ID)
		}
		inv.Accepted = true

		ev.add(EventInviteAccepted, map[string]any{
			"procurementId": inv.ProcurementID,
			"inviteId":      inv.ID,
			"supplierId":    actor.ID,
		}, ToProcurement(inv.ProcurementID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) ListInvites(ctx context.Context, actor Actor, procurementID int64) ([]models.Invite, error) {
	if err := requireRole(actor, models.RoleBuyer); err != nil {
		return nil, err
	}
	if _, err := s.store.GetProcurement(ctx, procurementID); err != nil {
		return nil, err
	}
	return s.store.ListInvites(ctx, procurementID)
}
