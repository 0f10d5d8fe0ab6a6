package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"procurement/internal/workflow"
)

func TestOutcome(t *testing.T) {
	require.Equal(t, "ok", Outcome(nil))
	require.Equal(t, "validation", Outcome(fmt.Errorf("%w: title", workflow.ErrValidation)))
	require.Equal(t, "precondition", Outcome(workflow.ErrInvalidState))
	require.Equal(t, "conflict", Outcome(workflow.ErrConflict))
	require.Equal(t, "error", Outcome(errors.New("db down")))
}

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveOperation("tr.submit", nil, 3*time.Millisecond)
	m.ObserveOperation("tr.submit", workflow.ErrInvalidState, time.Millisecond)
	m.ObserveOperation("tr.submit", workflow.ErrInvalidState, time.Millisecond)
	m.ObserveNotification("nats", errors.New("closed"))
	m.ObserveRequest(http.MethodPost, http.StatusConflict)

	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("tr.submit", "ok")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("tr.submit", "precondition")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("nats", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "409")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveOperation("procurement.open", nil, time.Millisecond)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `procurement_operations_total{op="procurement.open",outcome="ok"} 1`)
	require.Contains(t, w.Body.String(), "go_goroutines")
}
