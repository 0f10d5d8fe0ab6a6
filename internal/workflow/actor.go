package workflow

import (
	"slices"
	"strings"

	"procurement/models"
)

// Actor: аутентифицированный участник операции. Роль приходит от
// Identity Gate и считается достоверной на время одной операции.
type Actor struct {
	ID             int64       `json:"id"`
	Role           models.Role `json:"role"`
	Email          string      `json:"email"`
	OrganizationID int64       `json:"organizationId"`
}

func (a Actor) Is(roles ...models.Role) bool {
	return slices.Contains(roles, a.Role)
}

// Проверки прав. Каждая операция вызывает ровно одну из них на входе.

func requireRole(a Actor, roles ...models.Role) error {
	if a.ID <= 0 {
		return forbiddenf("anonymous actor")
	}
	if !a.Is(roles...) {
		return forbiddenf("role %s is not allowed", a.Role)
	}
	return nil
}

func canEditTR(a Actor, tr *models.TermsOfReference) error {
	if err := requireRole(a, models.RoleRequester); err != nil {
		return err
	}
	if tr.CreatorID != a.ID {
		return forbiddenf("only the creator can modify terms of reference %d", tr.ID)
	}
	if tr.Status != models.TRDraft && tr.Status != models.TRRejected {
		return invalidStatef("terms of reference %d is %s", tr.ID, tr.Status)
	}
	return nil
}

func canReadTR(a Actor, tr *models.TermsOfReference) error {
	switch a.Role {
	case models.RoleBuyer, models.RoleAdmin:
		if tr.Status == models.TRDraft {
			return forbiddenf("terms of reference %d is a draft", tr.ID)
		}
		return nil
	case models.RoleRequester:
		if tr.CreatorID == a.ID {
			return nil
		}
	}
	return forbiddenf("terms of reference %d is not visible", tr.ID)
}

func canReadProcurement(a Actor, p *models.Procurement, invited bool) error {
	switch a.Role {
	case models.RoleBuyer, models.RoleAdmin:
		return nil
	case models.RoleRequester:
		if p.RequesterID != nil && *p.RequesterID == a.ID {
			return nil
		}
	case models.RoleSupplier:
		if invited || p.Status == models.ProcurementOpen || p.Status == models.ProcurementTechnicalReview {
			return nil
		}
	}
	return forbiddenf("procurement %d is not visible", p.ID)
}

func canLinkTR(a Actor, p *models.Procurement, tr *models.TermsOfReference) error {
	if a.Is(models.RoleBuyer) {
		return nil
	}
	if a.Is(models.RoleRequester) && tr.CreatorID == a.ID && p.RequesterID != nil && *p.RequesterID == a.ID {
		return nil
	}
	return forbiddenf("actor %d cannot link terms of reference to procurement %d", a.ID, p.ID)
}

func canReviewProposal(a Actor, tr *models.TermsOfReference) error {
	if err := requireRole(a, models.RoleRequester); err != nil {
		return err
	}
	if tr == nil || tr.CreatorID != a.ID {
		return forbiddenf("only the terms of reference creator can review proposals")
	}
	return nil
}

// canSeeProposals возвращает, видны ли актору цены предложений.
func canSeeProposals(a Actor, p *models.Procurement, tr *models.TermsOfReference) (withPrices bool, err error) {
	switch a.Role {
	case models.RoleBuyer:
		return true, nil
	case models.RoleAdmin:
		// администратор видит предложения, но не цены
		return false, nil
	case models.RoleRequester:
		if p.RequesterID != nil && *p.RequesterID == a.ID {
			return false, nil
		}
		if tr != nil && tr.CreatorID == a.ID {
			return false, nil
		}
	case models.RoleSupplier:
		return true, nil
	}
	return false, forbiddenf("proposals of procurement %d are not visible", p.ID)
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
