package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"procurement/models"
)

// TRFields: редактируемые поля технического задания.
type TRFields struct {
	Title            string           `json:"title"`
	Objective        string           `json:"objective"`
	Description      string           `json:"description"`
	Situation        string           `json:"situation"`
	Scope            string           `json:"scope"`
	SafetyRules      string           `json:"safetyRules"`
	EstimatedBudget  *decimal.Decimal `json:"estimatedBudget"`
	MaxExecutionDays int              `json:"maxExecutionDays"`
}

// ServiceItemInput: позиция услуги во входных данных.
type ServiceItemInput struct {
	Order       int             `json:"order"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
}

func (f TRFields) validate() error {
	if f.EstimatedBudget != nil && f.EstimatedBudget.IsNegative() {
		return validationf("estimated budget must not be negative")
	}
	if f.MaxExecutionDays < 0 {
		return validationf("maximum execution term must not be negative")
	}
	return nil
}

func (f TRFields) apply(tr *models.TermsOfReference) {
	tr.Title = strings.TrimSpace(f.Title)
	tr.Objective = strings.TrimSpace(f.Objective)
	tr.Description = strings.TrimSpace(f.Description)
	tr.Situation = f.Situation
	tr.Scope = f.Scope
	tr.SafetyRules = f.SafetyRules
	tr.MaxExecutionDays = f.MaxExecutionDays
	tr.EstimatedBudget = decimal.NullDecimal{}
	if f.EstimatedBudget != nil {
		tr.EstimatedBudget = decimal.NewNullDecimal(*f.EstimatedBudget)
	}
}

// buildServiceItems проверяет позиции: описание обязательно, количество > 0,
// порядковые номера уникальны (нулевой номер заменяется позицией в списке).
func buildServiceItems(in []ServiceItemInput) ([]models.ServiceLineItem, error) {
	items := make([]models.ServiceLineItem, 0, len(in))
	seen := make(map[int]bool, len(in))
	for i, it := range in {
		if strings.TrimSpace(it.Description) == "" {
			return nil, validationf("item %d: description is required", i+1)
		}
		if !it.Quantity.IsPositive() {
			return nil, validationf("item %d: quantity must be positive", i+1)
		}
		order := it.Order
		if order == 0 {
			order = i + 1
		}
		if order < 0 || seen[order] {
			return nil, validationf("item %d: order %d is invalid or duplicated", i+1, order)
		}
		seen[order] = true
		items = append(items, models.ServiceLineItem{
			Order:       order,
			Code:        strings.TrimSpace(it.Code),
			Description: strings.TrimSpace(it.Description),
			Unit:        strings.TrimSpace(it.Unit),
			Quantity:    it.Quantity,
		})
	}
	return items, nil
}

// CreateDraft создаёт ТЗ в статусе DRAFT. Если указан procurementID,
// ТЗ сразу привязывается к закупке в той же транзакции.
func (s *Service) CreateDraft(ctx context.Context, actor Actor, fields TRFields, in []ServiceItemInput, procurementID *int64) (*models.TermsOfReference, error) {
	if err := requireRole(actor, models.RoleRequester); err != nil {
		return nil, err
	}
	if err := fields.validate(); err != nil {
		return nil, err
	}
	items, err := buildServiceItems(in)
	if err != nil {
		return nil, err
	}

	var tr *models.TermsOfReference
	err = s.run(ctx, "tr.create", actor, func(r Repository, ev *events) error {
		now := s.now()
		tr = &models.TermsOfReference{
			CreatorID: actor.ID,
			Status:    models.TRDraft,
			CreatedAt: now,
			UpdatedAt: now,
		}
		fields.apply(tr)
		if err := r.CreateTR(ctx, tr); err != nil {
			return err
		}
		saved, err := r.ReplaceServiceItems(ctx, tr.ID, items)
		if err != nil {
			return err
		}
		tr.Items = saved

		if procurementID == nil {
			return nil
		}
		p, err := r.GetProcurement(ctx, *procurementID)
		if err != nil {
			return err
		}
		if p.RequesterID == nil || *p.RequesterID != actor.ID {
			return forbiddenf("procurement %d is assigned to another requester", p.ID)
		}
		if p.TRID != nil {
			return conflictf("procurement %d already has terms of reference", p.ID)
		}
		if p.Status != models.ProcurementTRPending {
			return invalidStatef("procurement %d is %s", p.ID, p.Status)
		}
		p.TRID = &tr.ID
		p.UpdatedAt = now
		if err := r.UpdateProcurement(ctx, p); err != nil {
			return err
		}
		ev.add(EventProcurementTRLinked, map[string]any{
			"procurementId": p.ID,
			"trId":          tr.ID,
		}, ToProcurement(p.ID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// UpdateTR заменяет поля и позиции ТЗ целиком. Отклонённое ТЗ
// возвращается в черновик.
func (s *Service) UpdateTR(ctx context.Context, actor Actor, id int64, fields TRFields, in []ServiceItemInput) (*models.TermsOfReference, error) {
	if err := fields.validate(); err != nil {
		return nil, err
	}
	items, err := buildServiceItems(in)
	if err != nil {
		return nil, err
	}

	var tr *models.TermsOfReference
	err = s.run(ctx, "tr.update", actor, func(r Repository, ev *events) error {
		var err error
		tr, err = r.GetTR(ctx, id)
		if err != nil {
			return err
		}
		if err := canEditTR(actor, tr); err != nil {
			return err
		}
		fields.apply(tr)
		if tr.Status == models.TRRejected {
			tr.Status = models.TRDraft
		}
		tr.UpdatedAt = s.now()
		if err := r.UpdateTR(ctx, tr); err != nil {
			return err
		}
		tr.Items, err = r.ReplaceServiceItems(ctx, tr.ID, items)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// SubmitTR отправляет ТЗ закупщикам на согласование.
func (s *Service) SubmitTR(ctx context.Context, actor Actor, id int64) (*models.TermsOfReference, error) {
	var tr *models.TermsOfReference
	err := s.run(ctx, "tr.submit", actor, func(r Repository, ev *events) error {
		var err error
		tr, err = r.GetTR(ctx, id)
		if err != nil {
			return err
		}
		if err := canEditTR(actor, tr); err != nil {
			return err
		}
		switch {
		case tr.Title == "":
			return validationf("title is required")
		case tr.Objective == "":
			return validationf("objective is required")
		case tr.Description == "":
			return validationf("description is required")
		case len(tr.Items) == 0:
			return validationf("at least one service line item is required")
		}

		now := s.now()
		tr.Status = models.TRSubmitted
		tr.SubmittedAt = &now
		tr.UpdatedAt = now
		if err := r.UpdateTR(ctx, tr); err != nil {
			return err
		}
		p, err := syncProcurement(ctx, r, tr.ID, models.ProcurementTRSubmitted, now)
		if err != nil {
			return err
		}

		payload := map[string]any{"trId": tr.ID, "title": tr.Title, "creatorId": tr.CreatorID}
		if p != nil {
			payload["procurementId"] = p.ID
		}
		ev.add(EventTRSubmitted, payload, ToRole(models.RoleBuyer))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// DecideTR согласует ТЗ или отклоняет его с комментарием.
func (s *Service) DecideTR(ctx context.Context, actor Actor, id int64, approved bool, comments string) (*models.TermsOfReference, error) {
	if err := requireRole(actor, models.RoleBuyer); err != nil {
		return nil, err
	}
	comments = strings.TrimSpace(comments)
	if !approved && comments == "" {
		return nil, validationf("rejection requires comments")
	}

	var tr *models.TermsOfReference
	err := s.run(ctx, "tr.decide", actor, func(r Repository, ev *events) error {
		var err error
		tr, err = r.GetTR(ctx, id)
		if err != nil {
			return err
		}
		if tr.Status != models.TRSubmitted {
			return invalidStatef("terms of reference %d is %s", tr.ID, tr.Status)
		}

		now := s.now()
		approver := actor.ID
		tr.ApproverID = &approver
		tr.UpdatedAt = now
		target := models.ProcurementTRApproved
		if approved {
			tr.Status = models.TRApproved
			tr.ApprovedAt = &now
			tr.ApprovalComments = comments
		} else {
			tr.Status = models.TRRejected
			tr.RejectedAt = &now
			tr.RejectionReason = comments
			tr.SubmittedAt = nil
			target = models.ProcurementTRPending
		}
		if err := r.UpdateTR(ctx, tr); err != nil {
			return err
		}
		if _, err := syncProcurement(ctx, r, tr.ID, target, now); err != nil {
			return err
		}

		ev.add(EventTRDecided, map[string]any{
			"trId":     tr.ID,
			"status":   tr.Status,
			"comments": comments,
		}, ToUser(tr.CreatorID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// GetTR возвращает ТЗ с позициями по правилам видимости.
func (s *Service) GetTR(ctx context.Context, actor Actor, id int64) (*models.TermsOfReference, error) {
	tr, err := s.store.GetTR(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Is(models.RoleSupplier) {
		p, err := s.store.GetProcurementByTR(ctx, tr.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, forbiddenf("terms of reference %d is not visible", tr.ID)
			}
			return nil, err
		}
		if err := s.checkProcurementVisible(ctx, s.store, actor, p); err != nil {
			return nil, err
		}
		return tr, nil
	}
	if err := canReadTR(actor, tr); err != nil {
		return nil, err
	}
	return tr, nil
}

// ListTRs: заказчик видит свои ТЗ, закупщик видит все, кроме черновиков.
func (s *Service) ListTRs(ctx context.Context, actor Actor, limit, offset int) ([]models.TermsOfReference, error) {
	f := TRFilter{}
	f.Limit, f.Offset = page(limit, offset)
	switch actor.Role {
	case models.RoleRequester:
		id := actor.ID
		f.CreatorID = &id
	case models.RoleBuyer, models.RoleAdmin:
		f.ExcludeStatuses = []models.TRStatus{models.TRDraft}
	default:
		return nil, forbiddenf("role %s cannot list terms of reference", actor.Role)
	}
	return s.store.ListTRs(ctx, f)
}

// syncProcurement переводит привязанную закупку в статус, соответствующий
// статусу ТЗ. Вызывается внутри транзакции решения по ТЗ.
func syncProcurement(ctx context.Context, r Repository, trID int64, status models.ProcurementStatus, now time.Time) (*models.Procurement, error) {
	p, err := r.GetProcurementByTR(ctx, trID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case models.ProcurementTRPending, models.ProcurementTRSubmitted, models.ProcurementTRApproved:
	default:
		return nil, invalidStatef("procurement %d is %s", p.ID, p.Status)
	}
	p.Status = status
	p.UpdatedAt = now
	if err := r.UpdateProcurement(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func procurementStatusFor(trStatus models.TRStatus) models.ProcurementStatus {
	switch trStatus {
	case models.TRSubmitted:
		return models.ProcurementTRSubmitted
	case models.TRApproved:
		return models.ProcurementTRApproved
	default:
		return models.ProcurementTRPending
	}
}
