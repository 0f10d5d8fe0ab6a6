package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"procurement/models"
)

type ProcurementInput struct {
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	RequesterEmail   string     `json:"requesterEmail"`
	ProposalDeadline *time.Time `json:"proposalDeadline"`
}

// ProcurementUpdate: частичное изменение, nil означает "не менять".
type ProcurementUpdate struct {
	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	RequesterEmail   *string    `json:"requesterEmail"`
	ProposalDeadline *time.Time `json:"proposalDeadline"`
}

type OpenResult struct {
	Procurement *models.Procurement `json:"procurement"`
	Opened      bool                `json:"opened"`
	Warning     string              `json:"warning,omitempty"`
}

const warnNoInvites = "no suppliers have been invited; repeat with force to open anyway"

// CreateProcurement создаёт закупку в статусе TR_PENDING и назначает заказчика.
func (s *Service) CreateProcurement(ctx context.Context, actor Actor, in ProcurementInput) (*models.Procurement, error) {
	if err := requireRole(actor, models.RoleBuyer); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, validationf("title is required")
	}
	if in.ProposalDeadline != nil && !in.ProposalDeadline.After(s.now()) {
		return nil, validationf("proposal deadline must be in the future")
	}

	var p *models.Procurement
	err := s.run(ctx, "procurement.create", actor, func(r Repository, ev *events) error {
		requester, err := resolveRequester(ctx, r, in.RequesterEmail, actor.OrganizationID)
		if err != nil {
			return err
		}
		now := s.now()
		p = &models.Procurement{
			Title:            title,
			Description:      strings.TrimSpace(in.Description),
			Status:           models.ProcurementTRPending,
			CreatorID:        actor.ID,
			OrganizationID:   actor.OrganizationID,
			ProposalDeadline: in.ProposalDeadline,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if requester != nil {
			p.RequesterID = &requester.ID
		}
		if err := r.CreateProcurement(ctx, p); err != nil {
			return err
		}

		ev.add(EventProcurementCreated, map[string]any{
			"procurementId": p.ID,
			"title":         p.Title,
		}, ToOrg(p.OrganizationID))
		if requester != nil {
			ev.add(EventProcurementAssigned, map[string]any{
				"procurementId": p.ID,
				"title":         p.Title,
			}, ToUser(requester.ID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// resolveRequester: явный e-mail активного заказчика, иначе любой
// доступный заказчик (сначала своей организации), иначе никто.
func resolveRequester(ctx context.Context, r Repository, email string, orgID int64) (*models.User, error) {
	if email = strings.TrimSpace(email); email != "" {
		u, err := r.GetUserByEmail(ctx, email)
		switch {
		case err == nil && u.Role == models.RoleRequester && u.Active:
			return u, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}
	u, err := r.FindRequester(ctx, orgID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// UpdateProcurement меняет поля закупки до её закрытия.
func (s *Service) UpdateProcurement(ctx context.Context, actor Actor, id int64, upd ProcurementUpdate) (*models.Procurement, error) {
	if err := requireRole(actor, models.RoleBuyer); err != nil {
		return nil, err
	}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return nil, validationf("title must not be empty")
	}
	if upd.ProposalDeadline != nil && !upd.ProposalDeadline.After(s.now()) {
		return nil, validationf("proposal deadline must be in the future")
	}

	var p *models.Procurement
	err := s.run(ctx, "procurement.update", actor, func(r Repository, ev *events) error {
		var err error
		p, err = r.GetProcurement(ctx, id)
		if err != nil {
			return err
		}
		if p.Status == models.ProcurementClosed {
			return invalidStatef("procurement %d is closed", p.ID)
		}
		if upd.Title != nil {
			p.Title = strings.TrimSpace(*upd.Title)
		}
		if upd.Description != nil {
			p.Description = strings.TrimSpace(*upd.Description)
		}
		if upd.ProposalDeadline != nil {
			p.ProposalDeadline = upd.ProposalDeadline
		}

		var assigned *models.User
		if upd.RequesterEmail != nil {
			u, err := r.GetUserByEmail(ctx, strings.TrimSpace(*upd.RequesterEmail))
			if errors.Is(err, ErrNotFound) {
				return validationf("no requester with e-mail %q", *upd.RequesterEmail)
			}
			if err != nil {
				return err
			}
			if u.Role != models.RoleRequester || !u.Active {
				return validationf("user %q is not an active requester", u.Email)
			}
			if p.RequesterID == nil || *p.RequesterID != u.ID {
				p.RequesterID = &u.ID
				assigned = u
			}
		}

		p.UpdatedAt = s.now()
		if err := r.UpdateProcurement(ctx, p); err != nil {
			return err
		}
		ev.add(EventProcurementUpdated, map[string]any{"procurementId": p.ID}, ToProcurement(p.ID))
		if assigned != nil {
			ev.add(EventProcurementAssigned, map[string]any{
				"procurementId": p.ID,
				"title":         p.Title,
			}, ToUser(assigned.ID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// LinkTR привязывает ТЗ к закупке и выравнивает статус закупки по статусу ТЗ.
func (s *Service) LinkTR(ctx context.Context, actor Actor, id, trID int64) (*models.Procurement, error) {
	var p *models.Procurement
	err := s.run(ctx, "procurement.link_tr", actor, func(r Repository, ev *events) error {
		var err error
		p, err = r.GetProcurement(ctx, id)
		if err != nil {
			return err
		}
		tr, err := r.GetTR(ctx, trID)
		if err != nil {
			return err
		}
		if err := canLinkTR(actor, p, tr); err != nil {
			return err
		}
		if p.TRID != nil {
			return conflictf("procurement %d already has terms of reference %d", p.ID, *p.TRID)
		}
		switch p.Status {
		case models.ProcurementTRPending, models.ProcurementTRSubmitted, models.ProcurementTRApproved:
		default:
			return invalidStatef("procurement %d is %s", p.ID, p.Status)
		}
		other, err := r.GetProcurementByTR(ctx, tr.ID)
		if err == nil {
			return conflictf("terms of reference %d is already linked to procurement %d", tr.ID, other.ID)
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		p.TRID = &tr.ID
		p.Status = procurementStatusFor(tr.Status)
		p.UpdatedAt = s.now()
		if err := r.UpdateProcurement(ctx, p); err != nil {
			return err
		}
		ev.add(EventProcurementTRLinked, map[string]any{
			"procurementId": p.ID,
			"trId":          tr.ID,
			"status":        p.Status,
		}, ToProcurement(p.ID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// OpenProcurement открывает приём предложений. Без приглашений и без force
// возвращает предупреждение и ничего не меняет.
func (s *Service) OpenProcurement(ctx context.Context, actor Actor, id int64, deadline *time.Time, force bool) (*OpenResult, error) {
	if err := requireRole(actor, models.RoleBuyer); err != nil {
		return nil, err
	}

	res := &OpenResult{}
	err := s.run(ctx, "procurement.open", actor, func(r Repository, ev *events) error {
		p, err := r.GetProcurement(ctx, id)
		if err != nil {
			return err
		}
		res.Procurement = p
		if p.TRID == nil {
			return preconditionf("procurement %d has no terms of reference", p.ID)
		}
		tr, err := r.GetTR(ctx, *p.TRID)
		if err != nil {
			return err
		}
		if tr.Status != models.TRApproved {
			return preconditionf("terms of reference %d is %s, not approved", tr.ID, tr.Status)
		}
		if p.Status != models.ProcurementTRApproved {
			return preconditionf("procurement %d is %s", p.ID, p.Status)
		}
		now := s.now()
		if deadline != nil && !deadline.After(now) {
			return validationf("proposal deadline must be in the future")
		}

		invites, err := r.ListInvites(ctx, p.ID)
		if err != nil {
			return err
		}
		if len(invites) == 0 && !force {
			res.Warning = warnNoInvites
			return nil
		}

		p.Status = models.ProcurementOpen
		if deadline != nil {
			p.ProposalDeadline = deadline
		}
		p.UpdatedAt = now
		if err := r.UpdateProcurement(ctx, p); err != nil {
			return err
		}
		res.Opened = true

		audiences := []Audience{ToProcurement(p.ID), ToRole(models.RoleSupplier)}
		for _, inv := range invites {
			u, err := r.GetUserByEmail(ctx, inv.Email)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if u.Role == models.RoleSupplier {
				audiences = append(audiences, ToUser(u.ID))
			}
		}
		payload := map[string]any{"procurementId": p.ID, "title": p.Title}
		if p.ProposalDeadline != nil {
			payload["proposalDeadline"] = *p.ProposalDeadline
		}
		ev.add(EventProcurementOpened, payload, audiences...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CloseProcurement завершает приём предложений и переводит закупку на техническую экспертизу.
func (s *Service) CloseProcurement(ctx context.Context, actor Actor, id int64) (*models.Procurement, error) {
	if err := requireRole(actor, models.RoleBuyer); err != nil {
		return nil, err
	}
	var p *models.Procurement
	err := s.run(ctx, "procurement.close", actor, func(r Repository, ev *events) error {
		var err error
		p, err = r.GetProcurement(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != models.ProcurementOpen {
			return invalidStatef("procurement %d is %s", p.ID, p.Status)
		}
		p.Status = models.ProcurementTechnicalReview
		p.UpdatedAt = s.now()
		if err := r.UpdateProcurement(ctx, p); err != nil {
			return err
		}
		audiences := []Audience{ToProcurement(p.ID)}
		if p.RequesterID != nil {
			audiences = append(audiences, ToUser(*p.RequesterID))
		}
		ev.add(EventProcurementClosed, map[string]any{"procurementId": p.ID, "title": p.Title}, audiences...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FinalizeProcurement закрывает закупку, когда все поданные предложения рассмотрены.
func (s *Service) FinalizeProcurement(ctx context.Context, actor Actor, id int64) (*models.Procurement, error) {
	if err := requireRole(actor, models.RoleBuyer); err != nil {
		return nil, err
	}
	var p *models.Procurement
	err := s.run(ctx, "procurement.finalize", actor, func(r Repository, ev *events) error {
		var err error
		p, err = r.GetProcurement(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != models.ProcurementTechnicalReview {
			return invalidStatef("procurement %d is %s", p.ID, p.Status)
		}
		pending, err := r.CountProposals(ctx, p.ID, models.ProposalSubmitted)
		if err != nil {
			return err
		}
		if pending > 0 {
			return preconditionf("%d proposals are still awaiting technical review", pending)
		}
		p.Status = models.ProcurementClosed
		p.UpdatedAt = s.now()
		if err := r.UpdateProcurement(ctx, p); err != nil {
			return err
		}
		ev.add(EventProcurementFinalized, map[string]any{"procurementId": p.ID},
			ToProcurement(p.ID), ToOrg(p.OrganizationID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetProcurement(ctx context.Context, actor Actor, id int64) (*models.Procurement, error) {
	p, err := s.store.GetProcurement(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkProcurementVisible(ctx, s.store, actor, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListProcurements применяет правила видимости на уровне выборки.
func (s *Service) ListProcurements(ctx context.Context, actor Actor, limit, offset int) ([]models.Procurement, error) {
	f := ProcurementFilter{}
	f.Limit, f.Offset = page(limit, offset)
	switch actor.Role {
	case models.RoleBuyer, models.RoleAdmin:
	case models.RoleRequester:
		id := actor.ID
		f.RequesterID = &id
	case models.RoleSupplier:
		f.Statuses = []models.ProcurementStatus{models.ProcurementOpen, models.ProcurementTechnicalReview}
		f.InvitedEmail = strings.ToLower(actor.Email)
	default:
		return nil, forbiddenf("role %s cannot list procurements", actor.Role)
	}
	return s.store.ListProcurements(ctx, f)
}

func (s *Service) checkProcurementVisible(ctx context.Context, r Repository, actor Actor, p *models.Procurement) error {
	invited := false
	if actor.Is(models.RoleSupplier) && actor.Email != "" {
		var err error
		invited, err = r.InviteExists(ctx, p.ID, strings.ToLower(actor.Email))
		if err != nil {
			return err
		}
	}
	return canReadProcurement(actor, p, invited)
}
