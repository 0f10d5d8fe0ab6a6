package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"procurement/internal/workflow"
)

func TestInviteTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	p, _ := f.approvedProcurement(t)

	inv, err := f.svc.Invite(f.ctx, f.buyer, p.ID, "  Supplier@X.com ")
	require.NoError(t, err)
	require.Equal(t, f.supplier.Email, inv.Email)
	require.Len(t, inv.Token, 64)

	_, err = f.svc.Invite(f.ctx, f.buyer, p.ID, "supplier@x.com")
	require.ErrorIs(t, err, workflow.ErrConflict)

	invites, err := f.svc.ListInvites(f.ctx, f.buyer, p.ID)
	require.NoError(t, err)
	require.Len(t, invites, 1)
}

func TestInviteValidation(t *testing.T) {
	f := newFixture(t)
	p := f.createProcurement(t)

	_, err := f.svc.Invite(f.ctx, f.buyer, p.ID, "not-an-email")
	require.ErrorIs(t, err, workflow.ErrValidation)

	_, err = f.svc.Invite(f.ctx, f.requester, p.ID, "a@b.com")
	require.ErrorIs(t, err, workflow.ErrForbidden)

	_, err = f.svc.Invite(f.ctx, f.buyer, 4242, "a@b.com")
	require.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestInviteNotifiesRegisteredSupplier(t *testing.T) {
	f := newFixture(t)
	p := f.createProcurement(t)
	f.notes.Reset()

	inv, err := f.svc.Invite(f.ctx, f.buyer, p.ID, f.supplier.Email)
	require.NoError(t, err)
	require.Equal(t, []string{"PROCUREMENT:" + itoa(p.ID)}, f.notes.Audiences(workflow.EventInviteSent))
	require.Equal(t, []string{"USER:" + itoa(f.supplier.ID)}, f.notes.Audiences(workflow.EventInviteReceived))

	for _, ev := range f.notes.Events() {
		if ev.Name == workflow.EventInviteReceived {
			require.Equal(t, inv.Token, ev.Payload["token"])
		}
	}

	_, err = f.svc.Invite(f.ctx, f.buyer, p.ID, "unknown@z.com")
	require.NoError(t, err)
	require.Len(t, f.notes.Audiences(workflow.EventInviteReceived), 1, "unregistered address gets no in-app event")
}

func TestAcceptInvite(t *testing.T) {
	f := newFixture(t)
	p := f.createProcurement(t)

	inv, err := f.svc.Invite(f.ctx, f.buyer, p.ID, f.supplier.Email)
	require.NoError(t, err)

	_, err = f.svc.AcceptInvite(f.ctx, f.supplier, "no-such-token")
	require.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = f.svc.AcceptInvite(f.ctx, f.otherSupplier, inv.Token)
	require.ErrorIs(t, err, workflow.ErrForbidden, "e-mail mismatch")

	_, err = f.svc.AcceptInvite(f.ctx, f.buyer, inv.Token)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	got, err := f.svc.AcceptInvite(f.ctx, f.supplier, inv.Token)
	require.NoError(t, err)
	require.True(t, got.Accepted)
	require.NotNil(t, got.AcceptedAt)
	require.Equal(t, []string{"PROCUREMENT:" + itoa(p.ID)}, f.notes.Audiences(workflow.EventInviteAccepted))

	_, err = f.svc.AcceptInvite(f.ctx, f.supplier, inv.Token)
	require.ErrorIs(t, err, workflow.ErrConflict)
	require.Len(t, f.notes.Audiences(workflow.EventInviteAccepted), 1)
}

func TestAcceptInviteConcurrently(t *testing.T) {
	f := newFixture(t)
	p := f.createProcurement(t)
	inv, err := f.svc.Invite(f.ctx, f.buyer, p.ID, f.supplier.Email)
	require.NoError(t, err)

	const n = 8
	errs := make(chan error, n)
	for range n {
		go func() {
			_, err := f.svc.AcceptInvite(f.ctx, f.supplier, inv.Token)
			errs <- err
		}()
	}
	ok := 0
	for range n {
		if err := <-errs; err == nil {
			ok++
		} else {
			require.ErrorIs(t, err, workflow.ErrConflict)
		}
	}
	require.Equal(t, 1, ok)
}

func TestInviteWithFixedTokenSource(t *testing.T) {
	f := newFixture(t)
	svc := workflow.NewService(f.store, workflow.WithTokenSource(func() (string, error) { return "fixed-token", nil }))
	p := f.createProcurement(t)

	inv, err := svc.Invite(f.ctx, f.buyer, p.ID, f.supplier.Email)
	require.NoError(t, err)
	require.Equal(t, "fixed-token", inv.Token)

	_, err = svc.AcceptInvite(f.ctx, f.supplier, "fixed-token")
	require.NoError(t, err)
}
