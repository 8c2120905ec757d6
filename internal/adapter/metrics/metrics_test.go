package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLendingOutcome(t *testing.T) {
	m := New("lending")

	m.LendingOutcome("borrow", "ok")
	m.LendingOutcome("borrow", "ok")
	m.LendingOutcome("borrow", "cannot_borrow")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LendingOutcomes.WithLabelValues("borrow", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LendingOutcomes.WithLabelValues("borrow", "cannot_borrow")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LendingOutcomes.WithLabelValues("return", "ok")))
}

func TestObserveHTTP(t *testing.T) {
	m := New("lending")

	m.ObserveHTTP(http.MethodGet, "/books", http.StatusOK, 20*time.Millisecond)
	m.ObserveHTTP(http.MethodGet, "/books", http.StatusOK, 5*time.Millisecond)
	m.ObserveHTTP(http.MethodPost, "/loans", http.StatusUnprocessableEntity, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/books", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/loans", "422")))
}

func TestHandler(t *testing.T) {
	m := New("lending")
	m.LendingOutcome("return", "already_returned")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `lending_loan_operations_total{operation="return",outcome="already_returned"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
