package workflow_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"procurement/internal/workflow"
	"procurement/internal/workflow/workflowtest"
	"procurement/models"
)

type fixture struct {
	ctx   context.Context
	store *workflowtest.Store
	notes *workflowtest.Notifier
	svc   *workflow.Service
	clock time.Time

	buyer, requester, otherRequester, supplier, otherSupplier workflow.Actor
}

func actorOf(u models.User) workflow.Actor {
	return workflow.Actor{ID: u.ID, Role: u.Role, Email: u.Email, OrganizationID: u.OrganizationID}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: workflowtest.NewStore(),
		notes: &workflowtest.Notifier{},
		clock: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	f.svc = workflow.NewService(f.store,
		workflow.WithNotifier(f.notes),
		workflow.WithClock(func() time.Time { return f.clock }))

	add := func(email string, role models.Role) workflow.Actor {
		return actorOf(f.store.AddUser(models.User{Email: email, Name: email, Role: role, OrganizationID: 1, Active: true}))
	}
	f.buyer = add("buyer@org.gov", models.RoleBuyer)
	f.requester = add("requester@org.gov", models.RoleRequester)
	f.otherRequester = add("other.requester@org.gov", models.RoleRequester)
	f.supplier = add("supplier@x.com", models.RoleSupplier)
	f.otherSupplier = add("sales@y.com", models.RoleSupplier)
	return f
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func qty(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func twoItems() []workflow.ServiceItemInput {
	return []workflow.ServiceItemInput{
		{Code: "S-01", Description: "Limpeza de calhas", Unit: "m", Quantity: qty("120")},
		{Code: "S-02", Description: "Pintura de fachada", Unit: "m2", Quantity: qty("300")},
	}
}

func trFields() workflow.TRFields {
	return workflow.TRFields{
		Title:       "Manutenção predial",
		Objective:   "Manter o prédio sede",
		Description: "Serviços de manutenção preventiva",
	}
}

// createProcurement создаёт закупку, назначенную на f.requester.
func (f *fixture) createProcurement(t *testing.T) *models.Procurement {
	t.Helper()
	p, err := f.svc.CreateProcurement(f.ctx, f.buyer, workflow.ProcurementInput{
		Title:          "Manutenção 2026",
		RequesterEmail: f.requester.Email,
	})
	require.NoError(t, err)
	return p
}

// approvedProcurement проводит закупку до TR_APPROVED через ТЗ с двумя позициями.
func (f *fixture) approvedProcurement(t *testing.T) (*models.Procurement, *models.TermsOfReference) {
	t.Helper()
	p := f.createProcurement(t)
	tr, err := f.svc.CreateDraft(f.ctx, f.requester, trFields(), twoItems(), &p.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitTR(f.ctx, f.requester, tr.ID)
	require.NoError(t, err)
	tr, err = f.svc.DecideTR(f.ctx, f.buyer, tr.ID, true, "ok")
	require.NoError(t, err)
	p, err = f.svc.GetProcurement(f.ctx, f.buyer, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.ProcurementTRApproved, p.Status)
	return p, tr
}

// openProcurement приглашает f.supplier и открывает приём предложений.
func (f *fixture) openProcurement(t *testing.T) (*models.Procurement, *models.TermsOfReference) {
	t.Helper()
	p, tr := f.approvedProcurement(t)
	_, err := f.svc.Invite(f.ctx, f.buyer, p.ID, f.supplier.Email)
	require.NoError(t, err)
	res, err := f.svc.OpenProcurement(f.ctx, f.buyer, p.ID, nil, false)
	require.NoError(t, err)
	require.True(t, res.Opened)
	return res.Procurement, tr
}

// submitProposal создаёт и подаёт предложение с ценами по всем позициям.
func (f *fixture) submitProposal(t *testing.T, supplier workflow.Actor, p *models.Procurement, tr *models.TermsOfReference, prices ...string) *workflow.ProposalView {
	t.Helper()
	desc := "Equipe própria"
	var lines []workflow.LineInput
	var pr []workflow.PriceInput
	for i, it := range tr.Items {
		lines = append(lines, workflow.LineInput{ServiceItemID: it.ID, Quantity: it.Quantity})
		if i < len(prices) {
			pr = append(pr, workflow.PriceInput{ServiceItemID: it.ID, UnitPrice: qty(prices[i])})
		}
	}
	v, err := f.svc.UpsertProposal(f.ctx, supplier, p.ID, workflow.ProposalFields{TechnicalDescription: &desc}, lines, pr)
	require.NoError(t, err)
	v, err = f.svc.SubmitProposal(f.ctx, supplier, v.ID)
	require.NoError(t, err)
	return v
}
