package workflow_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"procurement/internal/workflow"
	"procurement/models"
)

func TestUpsertProposalRequiresOpenProcurement(t *testing.T) {
	f := newFixture(t)
	p, _ := f.approvedProcurement(t)

	_, err := f.svc.UpsertProposal(f.ctx, f.supplier, p.ID, workflow.ProposalFields{}, nil, nil)
	require.ErrorIs(t, err, workflow.ErrPrecondition)

	_, err = f.svc.UpsertProposal(f.ctx, f.buyer, p.ID, workflow.ProposalFields{}, nil, nil)
	require.ErrorIs(t, err, workflow.ErrForbidden)
}

func TestUpsertProposalIsIdempotent(t *testing.T) {
	f := newFixture(t)
	p, tr := f.openProcurement(t)
	item := tr.Items[0].ID

	desc := "v1"
	first, err := f.svc.UpsertProposal(f.ctx, f.supplier, p.ID, workflow.ProposalFields{TechnicalDescription: &desc},
		[]workflow.LineInput{{ServiceItemID: item, Quantity: qty("100")}},
		[]workflow.PriceInput{{ServiceItemID: item, UnitPrice: qty("9.50")}})
	require.NoError(t, err)
	require.Equal(t, models.ProposalDraft, first.Status)

	desc = "v2"
	second, err := f.svc.UpsertProposal(f.ctx, f.supplier, p.ID, workflow.ProposalFields{TechnicalDescription: &desc},
		[]workflow.LineInput{{ServiceItemID: item, Quantity: qty("120")}},
		[]workflow.PriceInput{{ServiceItemID: item, UnitPrice: qty("10")}})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.False(t, first.CreatedAt.IsZero())
	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.Equal(t, 1, f.store.Proposals(p.ID))
	require.Equal(t, "v2", second.TechnicalDescription)
	require.Len(t, second.Lines, 1)
	require.Len(t, second.Prices, 1)
	require.True(t, qty("1200").Equal(*second.TotalPrice))
}

func TestUpsertProposalSkipsForeignItems(t *testing.T) {
	f := newFixture(t)
	p, tr := f.openProcurement(t)

	v, err := f.svc.UpsertProposal(f.ctx, f.supplier, p.ID, workflow.ProposalFields{},
		[]workflow.LineInput{
			{ServiceItemID: tr.Items[0].ID, Quantity: qty("1")},
			{ServiceItemID: 987654, Quantity: qty("1")},
		},
		[]workflow.PriceInput{{ServiceItemID: 987654, UnitPrice: qty("1")}})
	require.NoError(t, err)
	require.Len(t, v.Lines, 1)
	require.Empty(t, v.Prices)

	// невалидные значения у чужих позиций не валят весь запрос
	v, err = f.svc.UpsertProposal(f.ctx, f.supplier, p.ID, workflow.ProposalFields{},
		[]workflow.LineInput{
			{ServiceItemID: tr.Items[1].ID, Quantity: qty("2")},
			{ServiceItemID: 987654, Quantity: qty("0")},
		},
		[]workflow.PriceInput{
			{ServiceItemID: tr.Items[1].ID, UnitPrice: qty("5")},
			{ServiceItemID: 987655, UnitPrice: qty("-3")},
		})
	require.NoError(t, err)
	require.Len(t, v.Lines, 2)
	require.Len(t, v.Prices, 1)
	require.True(t, qty("10").Equal(*v.TotalPrice))
}

func TestFilterTRItems(t *testing.T) {
	valid := map[int64]bool{1: true, 2: true}
	lines, prices, skipped := workflow.FilterTRItems(valid,
		[]workflow.LineInput{{ServiceItemID: 1}, {ServiceItemID: 3}},
		[]workflow.PriceInput{{ServiceItemID: 2}, {ServiceItemID: 4}, {ServiceItemID: 5}})
	require.Len(t, lines, 1)
	require.Len(t, prices, 1)
	require.Equal(t, 3, skipped)
}

func TestUpsertProposalValidation(t *testing.T) {
	f := newFixture(t)
	p, tr := f.openProcurement(t)
	item := tr.Items[0].ID

	_, err := f.svc.UpsertProposal(f.ctx, f.supplier, p.ID, workflow.ProposalFields{},
		[]workflow.LineInput{{ServiceItemID: item, Quantity: qty("0")}}, nil)
	require.ErrorIs(t, err, workflow.ErrValidation)

	_, err = f.svc.UpsertProposal(f.ctx, f.supplier, p.ID, workflow.ProposalFields{}, nil,
		[]workflow.PriceInput{{ServiceItemID: item, UnitPrice: qty("-1")}})
	require.ErrorIs(t, err, workflow.ErrValidation)
	require.Equal(t, 0, f.store.Proposals(p.ID))
}

func TestSubmitProposal(t *testing.T) {
	f := newFixture(t)
	p, tr := f.openProcurement(t)

	empty, err := f.svc.UpsertProposal(f.ctx, f.supplier, p.ID, workflow.ProposalFields{}, nil, nil)
	require.NoError(t, err)
	_, err = f.svc.SubmitProposal(f.ctx, f.supplier, empty.ID)
	require.ErrorIs(t, err, workflow.ErrValidation)

	_, err = f.svc.SubmitProposal(f.ctx, f.otherSupplier, empty.ID)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	v := f.submitProposal(t, f.supplier, p, tr, "10", "20")
	require.Equal(t, models.ProposalSubmitted, v.Status)
	require.NotNil(t, v.SubmittedAt)
	require.Equal(t, []string{"PROCUREMENT:" + itoa(p.ID)}, f.notes.Audiences(workflow.EventProposalSubmitted))

	_, err = f.svc.SubmitProposal(f.ctx, f.supplier, v.ID)
	require.ErrorIs(t, err, workflow.ErrConflict)

	_, err = f.svc.UpsertProposal(f.ctx, f.supplier, p.ID, workflow.ProposalFields{}, nil, nil)
	require.ErrorIs(t, err, workflow.ErrInvalidState)
}

func TestProposalDeadline(t *testing.T) {
	f := newFixture(t)
	p, tr := f.approvedProcurement(t)
	deadline := f.clock.Add(24 * time.Hour)
	_, err := f.svc.OpenProcurement(f.ctx, f.buyer, p.ID, &deadline, true)
	require.NoError(t, err)

	f.clock = deadline.Add(time.Second)
	_, err = f.svc.UpsertProposal(f.ctx, f.supplier, p.ID, workflow.ProposalFields{},
		[]workflow.LineInput{{ServiceItemID: tr.Items[0].ID, Quantity: qty("1")}}, nil)
	require.ErrorIs(t, err, workflow.ErrPrecondition)
}

func TestProposalVisibility(t *testing.T) {
	f := newFixture(t)
	p, tr := f.openProcurement(t)

	draft, err := f.svc.UpsertProposal(f.ctx, f.otherSupplier, p.ID, workflow.ProposalFields{},
		[]workflow.LineInput{{ServiceItemID: tr.Items[0].ID, Quantity: qty("1")}}, nil)
	require.NoError(t, err)
	submitted := f.submitProposal(t, f.supplier, p, tr, "10", "20")

	_, err = f.svc.GetProposal(f.ctx, f.buyer, draft.ID)
	require.ErrorIs(t, err, workflow.ErrForbidden, "drafts are private to the supplier")
	_, err = f.svc.GetProposal(f.ctx, f.otherSupplier, submitted.ID)
	require.ErrorIs(t, err, workflow.ErrForbidden)
	_, err = f.svc.GetProposal(f.ctx, f.otherRequester, submitted.ID)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	forBuyer, err := f.svc.GetProposal(f.ctx, f.buyer, submitted.ID)
	require.NoError(t, err)
	require.Len(t, forBuyer.Prices, 2)
	require.True(t, qty("7200").Equal(*forBuyer.TotalPrice))

	forRequester, err := f.svc.GetProposal(f.ctx, f.requester, submitted.ID)
	require.NoError(t, err)
	require.Nil(t, forRequester.Prices)
	require.Nil(t, forRequester.TotalPrice)
	require.Len(t, forRequester.Lines, 2)

	raw, err := json.Marshal(forRequester)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.NotContains(t, fields, "prices")
	require.NotContains(t, fields, "totalPrice")
	require.Contains(t, fields, "lines")

	// цены видят только закупщик и сам поставщик
	admin := actorOf(f.store.AddUser(models.User{Email: "admin@org.gov", Role: models.RoleAdmin, OrganizationID: 1, Active: true}))
	forAdmin, err := f.svc.GetProposal(f.ctx, admin, submitted.ID)
	require.NoError(t, err)
	require.Nil(t, forAdmin.Prices)
	require.Nil(t, forAdmin.TotalPrice)
	raw, err = json.Marshal(forAdmin)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "unitPrice")
	require.NotContains(t, string(raw), "totalPrice")

	adminList, err := f.svc.ListProposals(f.ctx, admin, p.ID)
	require.NoError(t, err)
	require.Len(t, adminList, 1)
	require.Nil(t, adminList[0].Prices)
	require.Nil(t, adminList[0].TotalPrice)

	_, err = f.svc.Compare(f.ctx, admin, p.ID)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	list, err := f.svc.ListProposals(f.ctx, f.buyer, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1, "buyer list excludes drafts")

	own, err := f.svc.ListProposals(f.ctx, f.otherSupplier, p.ID)
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, draft.ID, own[0].ID)
}

func TestTechnicalReview(t *testing.T) {
	f := newFixture(t)
	p, tr := f.openProcurement(t)
	v := f.submitProposal(t, f.supplier, p, tr, "10", "20")
	score := 85.0

	_, err := f.svc.TechnicalReview(f.ctx, f.requester, v.ID, "ok", &score, true)
	require.ErrorIs(t, err, workflow.ErrPrecondition, "procurement is still open")

	_, err = f.svc.CloseProcurement(f.ctx, f.buyer, p.ID)
	require.NoError(t, err)

	_, err = f.svc.TechnicalReview(f.ctx, f.otherRequester, v.ID, "ok", &score, true)
	require.ErrorIs(t, err, workflow.ErrForbidden)
	_, err = f.svc.TechnicalReview(f.ctx, f.buyer, v.ID, "ok", &score, true)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	tooHigh := 101.0
	_, err = f.svc.TechnicalReview(f.ctx, f.requester, v.ID, "ok", &tooHigh, true)
	require.ErrorIs(t, err, workflow.ErrValidation)
	_, err = f.svc.TechnicalReview(f.ctx, f.requester, v.ID, "", &score, true)
	require.ErrorIs(t, err, workflow.ErrValidation)

	got, err := f.svc.TechnicalReview(f.ctx, f.requester, v.ID, "Atende ao escopo", &score, true)
	require.NoError(t, err)
	require.Equal(t, models.ProposalTechnicallyApproved, got.Status)
	require.Equal(t, 85.0, *got.TechnicalScore)
	require.Equal(t, f.requester.ID, *got.ReviewerID)
	require.Nil(t, got.Prices)
	require.Equal(t, []string{"ROLE:BUYER"}, f.notes.Audiences(workflow.EventProposalReviewed))

	_, err = f.svc.TechnicalReview(f.ctx, f.requester, v.ID, "de novo", &score, false)
	require.ErrorIs(t, err, workflow.ErrInvalidState)
}
