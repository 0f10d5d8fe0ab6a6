package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"procurement/internal/workflow"
	"procurement/internal/workflow/workflowtest"
	"procurement/models"
)

func newGate(t *testing.T) (*Gate, *workflowtest.Store, models.User) {
	t.Helper()
	store := workflowtest.NewStore()
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	u := store.AddUser(models.User{
		Email: "Buyer@Org.gov", Role: models.RoleBuyer, OrganizationID: 3,
		PasswordHash: hash, Active: true,
	})
	return NewGate(store, NewIssuer("test-secret", time.Hour)), store, u
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("short")
	require.Error(t, err)

	hash, err := HashPassword("long-enough")
	require.NoError(t, err)
	require.True(t, CheckPassword(hash, "long-enough"))
	require.False(t, CheckPassword(hash, "long-enougH"))
}

func TestLogin(t *testing.T) {
	g, _, u := newGate(t)
	ctx := context.Background()

	res, err := g.Login(ctx, " BUYER@org.gov ", "s3cret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.Equal(t, u.ID, res.User.ID)

	actor, err := g.Resolve(ctx, res.Token)
	require.NoError(t, err)
	require.Equal(t, workflow.Actor{ID: u.ID, Role: models.RoleBuyer, Email: "buyer@org.gov", OrganizationID: 3}, actor)

	_, err = g.Login(ctx, "buyer@org.gov", "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = g.Login(ctx, "ghost@org.gov", "s3cret-pass")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestResolveRejectsBadTokens(t *testing.T) {
	g, _, u := newGate(t)
	ctx := context.Background()

	_, err := g.Resolve(ctx, "not-a-jwt")
	require.ErrorIs(t, err, ErrUnauthorized)

	foreign, _, err := NewIssuer("other-secret", time.Hour).Issue(&u)
	require.NoError(t, err)
	_, err = g.Resolve(ctx, foreign)
	require.ErrorIs(t, err, ErrUnauthorized)

	past := NewIssuer("test-secret", time.Hour)
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := past.Issue(&u)
	require.NoError(t, err)
	_, err = g.Resolve(ctx, expired)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestResolveRejectsDisabledUser(t *testing.T) {
	store := workflowtest.NewStore()
	u := store.AddUser(models.User{Email: "off@org.gov", Role: models.RoleSupplier, Active: false})
	iss := NewIssuer("k", time.Hour)
	g := NewGate(store, iss)

	token, _, err := iss.Issue(&u)
	require.NoError(t, err)
	_, err = g.Resolve(context.Background(), token)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestMiddleware(t *testing.T) {
	g, _, u := newGate(t)
	token, _, err := g.issuer.Issue(&u)
	require.NoError(t, err)

	var got workflow.Actor
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/procurements", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "reason")

	req = httptest.NewRequest(http.MethodGet, "/api/procurements", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/procurements", nil)
	req.Header.Set("Authorization", "bearer "+token)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, models.RoleBuyer, got.Role)
}
