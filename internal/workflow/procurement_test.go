package workflow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"procurement/internal/workflow"
	"procurement/models"
)

func TestCreateProcurement(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateProcurement(f.ctx, f.requester, workflow.ProcurementInput{Title: "x"})
	require.ErrorIs(t, err, workflow.ErrForbidden)

	_, err = f.svc.CreateProcurement(f.ctx, f.buyer, workflow.ProcurementInput{Title: "  "})
	require.ErrorIs(t, err, workflow.ErrValidation)

	past := f.clock.Add(-time.Hour)
	_, err = f.svc.CreateProcurement(f.ctx, f.buyer, workflow.ProcurementInput{Title: "x", ProposalDeadline: &past})
	require.ErrorIs(t, err, workflow.ErrValidation)

	p, err := f.svc.CreateProcurement(f.ctx, f.buyer, workflow.ProcurementInput{
		Title:          "Reforma",
		RequesterEmail: f.otherRequester.Email,
	})
	require.NoError(t, err)
	require.Equal(t, models.ProcurementTRPending, p.Status)
	require.Equal(t, f.otherRequester.ID, *p.RequesterID)
	require.Equal(t, []string{"ORG:1"}, f.notes.Audiences(workflow.EventProcurementCreated))
	require.Equal(t, []string{"USER:" + itoa(f.otherRequester.ID)}, f.notes.Audiences(workflow.EventProcurementAssigned))
}

func TestCreateProcurementFallsBackToAnyRequester(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.CreateProcurement(f.ctx, f.buyer, workflow.ProcurementInput{
		Title:          "Sem solicitante",
		RequesterEmail: "nobody@org.gov",
	})
	require.NoError(t, err)
	require.NotNil(t, p.RequesterID)
	require.Equal(t, f.requester.ID, *p.RequesterID)
}

func TestUpdateProcurement(t *testing.T) {
	f := newFixture(t)
	p := f.createProcurement(t)
	f.notes.Reset()

	title := "Manutenção 2026 (revisada)"
	email := f.otherRequester.Email
	p, err := f.svc.UpdateProcurement(f.ctx, f.buyer, p.ID, workflow.ProcurementUpdate{Title: &title, RequesterEmail: &email})
	require.NoError(t, err)
	require.Equal(t, title, p.Title)
	require.Equal(t, f.otherRequester.ID, *p.RequesterID)
	require.Equal(t, []string{"USER:" + itoa(f.otherRequester.ID)}, f.notes.Audiences(workflow.EventProcurementAssigned))

	bad := f.supplier.Email
	_, err = f.svc.UpdateProcurement(f.ctx, f.buyer, p.ID, workflow.ProcurementUpdate{RequesterEmail: &bad})
	require.ErrorIs(t, err, workflow.ErrValidation)
}

func TestLinkTR(t *testing.T) {
	f := newFixture(t)
	p := f.createProcurement(t)

	tr, err := f.svc.CreateDraft(f.ctx, f.requester, trFields(), twoItems(), nil)
	require.NoError(t, err)
	_, err = f.svc.SubmitTR(f.ctx, f.requester, tr.ID)
	require.NoError(t, err)

	_, err = f.svc.LinkTR(f.ctx, f.otherRequester, p.ID, tr.ID)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	p, err = f.svc.LinkTR(f.ctx, f.requester, p.ID, tr.ID)
	require.NoError(t, err)
	require.Equal(t, tr.ID, *p.TRID)
	require.Equal(t, models.ProcurementTRSubmitted, p.Status)

	other := f.createProcurement(t)
	_, err = f.svc.LinkTR(f.ctx, f.buyer, other.ID, tr.ID)
	require.ErrorIs(t, err, workflow.ErrConflict)
}

func TestOpenWithoutApprovedTRFails(t *testing.T) {
	f := newFixture(t)
	p := f.createProcurement(t)

	_, err := f.svc.OpenProcurement(f.ctx, f.buyer, p.ID, nil, true)
	require.ErrorIs(t, err, workflow.ErrPrecondition)

	tr, err := f.svc.CreateDraft(f.ctx, f.requester, trFields(), twoItems(), &p.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitTR(f.ctx, f.requester, tr.ID)
	require.NoError(t, err)

	_, err = f.svc.OpenProcurement(f.ctx, f.buyer, p.ID, nil, true)
	require.ErrorIs(t, err, workflow.ErrPrecondition)

	p, err = f.svc.GetProcurement(f.ctx, f.buyer, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.ProcurementTRSubmitted, p.Status)
}

func TestOpenWithoutInvitesWarns(t *testing.T) {
	f := newFixture(t)
	p, _ := f.approvedProcurement(t)

	res, err := f.svc.OpenProcurement(f.ctx, f.buyer, p.ID, nil, false)
	require.NoError(t, err)
	require.False(t, res.Opened)
	require.NotEmpty(t, res.Warning)
	require.Equal(t, models.ProcurementTRApproved, res.Procurement.Status)

	deadline := f.clock.Add(72 * time.Hour)
	res, err = f.svc.OpenProcurement(f.ctx, f.buyer, p.ID, &deadline, true)
	require.NoError(t, err)
	require.True(t, res.Opened)
	require.Empty(t, res.Warning)
	require.Equal(t, models.ProcurementOpen, res.Procurement.Status)
	require.True(t, deadline.Equal(*res.Procurement.ProposalDeadline))
}

func TestOpenNotifiesInvitedSuppliers(t *testing.T) {
	f := newFixture(t)
	p, _ := f.openProcurement(t)

	require.Equal(t, []string{
		"PROCUREMENT:" + itoa(p.ID),
		"ROLE:SUPPLIER",
		"USER:" + itoa(f.supplier.ID),
	}, f.notes.Audiences(workflow.EventProcurementOpened))
}

func TestOpenRejectsPastDeadline(t *testing.T) {
	f := newFixture(t)
	p, _ := f.approvedProcurement(t)

	past := f.clock.Add(-time.Minute)
	_, err := f.svc.OpenProcurement(f.ctx, f.buyer, p.ID, &past, true)
	require.ErrorIs(t, err, workflow.ErrValidation)
}

func TestCloseAndFinalize(t *testing.T) {
	f := newFixture(t)
	p, tr := f.approvedProcurement(t)

	_, err := f.svc.CloseProcurement(f.ctx, f.buyer, p.ID)
	require.ErrorIs(t, err, workflow.ErrInvalidState)

	_, err = f.svc.Invite(f.ctx, f.buyer, p.ID, f.supplier.Email)
	require.NoError(t, err)
	_, err = f.svc.OpenProcurement(f.ctx, f.buyer, p.ID, nil, false)
	require.NoError(t, err)
	prop := f.submitProposal(t, f.supplier, p, tr, "10", "20")

	p, err = f.svc.CloseProcurement(f.ctx, f.buyer, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.ProcurementTechnicalReview, p.Status)
	require.Contains(t, f.notes.Audiences(workflow.EventProcurementClosed), "USER:"+itoa(f.requester.ID))

	_, err = f.svc.Invite(f.ctx, f.buyer, p.ID, "late@z.com")
	require.ErrorIs(t, err, workflow.ErrInvalidState)

	_, err = f.svc.FinalizeProcurement(f.ctx, f.buyer, p.ID)
	require.ErrorIs(t, err, workflow.ErrPrecondition, "submitted proposal is still unreviewed")

	score := 70.0
	_, err = f.svc.TechnicalReview(f.ctx, f.requester, prop.ID, "Atende", &score, true)
	require.NoError(t, err)

	p, err = f.svc.FinalizeProcurement(f.ctx, f.buyer, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.ProcurementClosed, p.Status)

	title := "tarde demais"
	_, err = f.svc.UpdateProcurement(f.ctx, f.buyer, p.ID, workflow.ProcurementUpdate{Title: &title})
	require.ErrorIs(t, err, workflow.ErrInvalidState)
}

func TestProcurementVisibility(t *testing.T) {
	f := newFixture(t)
	p, _ := f.approvedProcurement(t)
	_, err := f.svc.Invite(f.ctx, f.buyer, p.ID, f.supplier.Email)
	require.NoError(t, err)

	list := func(a workflow.Actor) []models.Procurement {
		out, err := f.svc.ListProcurements(f.ctx, a, 0, 0)
		require.NoError(t, err)
		return out
	}

	require.Len(t, list(f.buyer), 1)
	require.Len(t, list(f.requester), 1)
	require.Empty(t, list(f.otherRequester))
	require.Len(t, list(f.supplier), 1, "invited supplier sees the procurement before it opens")
	require.Empty(t, list(f.otherSupplier))

	_, err = f.svc.GetProcurement(f.ctx, f.otherSupplier, p.ID)
	require.ErrorIs(t, err, workflow.ErrForbidden)
	_, err = f.svc.GetProcurement(f.ctx, f.otherRequester, p.ID)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	_, err = f.svc.OpenProcurement(f.ctx, f.buyer, p.ID, nil, false)
	require.NoError(t, err)
	require.Len(t, list(f.otherSupplier), 1, "open procurements are public to suppliers")

	_, err = f.svc.GetProcurement(f.ctx, f.buyer, 9999)
	require.ErrorIs(t, err, workflow.ErrNotFound)
}
