package privacy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/inferloop/tabsdc/pkg/errors"
)

func TestNewPrivacyBudgetManagerValidatesEpsilon(t *testing.T) {
	_, err := NewPrivacyBudgetManager(0)
	require.Error(t, err)

	_, err = NewPrivacyBudgetManager(-1)
	require.Error(t, err)

	pbm, err := NewPrivacyBudgetManager(1.0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, pbm.GetRemainingBudget())
}

func TestSpendDrawsDownBudget(t *testing.T) {
	pbm, err := NewPrivacyBudgetManager(1.0)
	require.NoError(t, err)

	txn, err := pbm.Spend(0.3, "histogram query")
	require.NoError(t, err)
	assert.NotEmpty(t, txn.ID)
	assert.False(t, txn.Timestamp.IsZero())
	assert.Equal(t, 0.3, txn.EpsilonUsed)
	assert.Equal(t, "histogram query", txn.Purpose)

	assert.InDelta(t, 0.7, pbm.GetRemainingBudget(), 1e-9)
	assert.True(t, pbm.CanSpend(0.69))
	assert.False(t, pbm.CanSpend(0.71))
}

func TestSpendRejectsOverdraw(t *testing.T) {
	pbm, err := NewPrivacyBudgetManager(1.0)
	require.NoError(t, err)

	_, err = pbm.Spend(0.9, "summary statistics")
	require.NoError(t, err)

	_, err = pbm.Spend(0.2, "correlation query")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodePrivacyBudgetExceeded, appErr.Code)

	// A failed spend leaves the ledger untouched
	assert.InDelta(t, 0.1, pbm.GetRemainingBudget(), 1e-9)
	assert.Len(t, pbm.GetTransactionHistory(0), 1)
}

func TestSpendValidatesEpsilon(t *testing.T) {
	pbm, err := NewPrivacyBudgetManager(1.0)
	require.NoError(t, err)

	_, err = pbm.Spend(0, "free query")
	require.Error(t, err)

	_, err = pbm.Spend(-0.5, "refund")
	require.Error(t, err)
}

func TestGetStatusTracksHealth(t *testing.T) {
	pbm, err := NewPrivacyBudgetManager(1.0)
	require.NoError(t, err)

	status := pbm.GetStatus()
	assert.Equal(t, "healthy", status.HealthStatus)
	assert.Equal(t, 0.0, status.Utilization)
	assert.Empty(t, status.Warnings)
	assert.Equal(t, 0, status.TransactionCount)
	assert.Equal(t, 1.0, status.TotalEpsilon)

	_, err = pbm.Spend(0.5, "count query")
	require.NoError(t, err)
	assert.Equal(t, "healthy", pbm.GetStatus().HealthStatus)

	_, err = pbm.Spend(0.3, "mean query")
	require.NoError(t, err)
	status = pbm.GetStatus()
	assert.Equal(t, "warning", status.HealthStatus)
	assert.Contains(t, status.Warnings, "privacy budget running low")
	assert.InDelta(t, 0.8, status.Utilization, 1e-9)

	_, err = pbm.Spend(0.15, "histogram query")
	require.NoError(t, err)
	status = pbm.GetStatus()
	assert.Equal(t, "critical", status.HealthStatus)
	assert.Contains(t, status.Warnings, "privacy budget nearly exhausted")
	assert.InDelta(t, 0.05, status.RemainingEpsilon, 1e-9)
}

func TestGetTransactionHistoryNewestLast(t *testing.T) {
	pbm, err := NewPrivacyBudgetManager(1.0)
	require.NoError(t, err)

	for _, purpose := range []string{"count query", "mean query", "histogram query"} {
		_, err = pbm.Spend(0.1, purpose)
		require.NoError(t, err)
	}

	recent := pbm.GetTransactionHistory(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "mean query", recent[0].Purpose)
	assert.Equal(t, "histogram query", recent[1].Purpose)

	assert.Len(t, pbm.GetTransactionHistory(0), 3)
	assert.Len(t, pbm.GetTransactionHistory(10), 3)
}

func TestResetClearsLedger(t *testing.T) {
	pbm, err := NewPrivacyBudgetManager(1.0)
	require.NoError(t, err)

	_, err = pbm.Spend(0.6, "summary statistics")
	require.NoError(t, err)

	pbm.Reset()

	assert.Equal(t, 1.0, pbm.GetRemainingBudget())
	status := pbm.GetStatus()
	assert.Equal(t, 0.0, status.ConsumedEpsilon)
	assert.Equal(t, 0, status.TransactionCount)
	assert.Equal(t, "healthy", status.HealthStatus)
}

func TestConcurrentSpending(t *testing.T) {
	pbm, err := NewPrivacyBudgetManager(1.0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pbm.Spend(0.05, "worker query")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 10, pbm.GetStatus().TransactionCount)
	assert.InDelta(t, 0.5, pbm.GetRemainingBudget(), 1e-9)
}
