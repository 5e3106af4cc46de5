package privacy

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inferloop/tabsdc/pkg/constants"
	"github.com/inferloop/tabsdc/pkg/errors"
)

// PrivacyBudgetManager tracks cumulative privacy budget consumption across
// queries. The ledger is advisory: engines never spend from it on their own,
// the caller decides which queries draw it down. Safe for concurrent use.
type PrivacyBudgetManager struct {
	mu              sync.RWMutex
	totalEpsilon    float64
	consumedEpsilon float64
	lastReset       time.Time
	transactions    []BudgetTransaction
}

// BudgetTransaction records a single budget expenditure.
type BudgetTransaction struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	EpsilonUsed float64   `json:"epsilon_used"`
	Purpose     string    `json:"purpose"`
}

// BudgetStatus provides current budget status information.
type BudgetStatus struct {
	TotalEpsilon     float64   `json:"total_epsilon"`
	ConsumedEpsilon  float64   `json:"consumed_epsilon"`
	RemainingEpsilon float64   `json:"remaining_epsilon"`
	Utilization      float64   `json:"utilization"`
	LastReset        time.Time `json:"last_reset"`
	TransactionCount int       `json:"transaction_count"`
	HealthStatus     string    `json:"health_status"`
	Warnings         []string  `json:"warnings"`
}

// NewPrivacyBudgetManager creates a manager with the given total epsilon
// budget.
func NewPrivacyBudgetManager(totalEpsilon float64) (*PrivacyBudgetManager, error) {
	if err := errors.CheckEpsilon(totalEpsilon); err != nil {
		return nil, err
	}

	return &PrivacyBudgetManager{
		totalEpsilon: totalEpsilon,
		lastReset:    time.Now(),
		transactions: make([]BudgetTransaction, 0),
	}, nil
}

// CanSpend checks if the budget allows spending the requested amount.
func (pbm *PrivacyBudgetManager) CanSpend(epsilon float64) bool {
	pbm.mu.RLock()
	defer pbm.mu.RUnlock()

	return pbm.canSpendInternal(epsilon)
}

// Spend draws the requested amount from the budget and records a
// transaction. Spending more than remains fails without changing the
// ledger.
func (pbm *PrivacyBudgetManager) Spend(epsilon float64, purpose string) (*BudgetTransaction, error) {
	if err := errors.CheckEpsilon(epsilon); err != nil {
		return nil, err
	}

	pbm.mu.Lock()
	defer pbm.mu.Unlock()

	if !pbm.canSpendInternal(epsilon) {
		return nil, errors.NewPrivacyError(errors.CodePrivacyBudgetExceeded,
			fmt.Sprintf("insufficient budget: need ε=%g, have ε=%g",
				epsilon, pbm.totalEpsilon-pbm.consumedEpsilon))
	}

	transaction := BudgetTransaction{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		EpsilonUsed: epsilon,
		Purpose:     purpose,
	}

	pbm.transactions = append(pbm.transactions, transaction)
	pbm.consumedEpsilon += epsilon

	return &transaction, nil
}

// GetRemainingBudget returns the remaining epsilon budget.
func (pbm *PrivacyBudgetManager) GetRemainingBudget() float64 {
	pbm.mu.RLock()
	defer pbm.mu.RUnlock()

	return math.Max(0, pbm.totalEpsilon-pbm.consumedEpsilon)
}

// GetStatus returns the current budget status with health warnings.
func (pbm *PrivacyBudgetManager) GetStatus() *BudgetStatus {
	pbm.mu.RLock()
	defer pbm.mu.RUnlock()

	utilization := pbm.consumedEpsilon / pbm.totalEpsilon

	healthStatus := "healthy"
	warnings := []string{}
	if utilization >= constants.BudgetCriticalThreshold {
		healthStatus = "critical"
		warnings = append(warnings, "privacy budget nearly exhausted")
	} else if utilization >= constants.BudgetWarningThreshold {
		healthStatus = "warning"
		warnings = append(warnings, "privacy budget running low")
	}

	return &BudgetStatus{
		TotalEpsilon:     pbm.totalEpsilon,
		ConsumedEpsilon:  pbm.consumedEpsilon,
		RemainingEpsilon: math.Max(0, pbm.totalEpsilon-pbm.consumedEpsilon),
		Utilization:      utilization,
		LastReset:        pbm.lastReset,
		TransactionCount: len(pbm.transactions),
		HealthStatus:     healthStatus,
		Warnings:         warnings,
	}
}

// GetTransactionHistory returns the most recent transactions, newest last.
// A non-positive limit returns the full history.
func (pbm *PrivacyBudgetManager) GetTransactionHistory(limit int) []BudgetTransaction {
	pbm.mu.RLock()
	defer pbm.mu.RUnlock()

	if limit <= 0 || limit > len(pbm.transactions) {
		limit = len(pbm.transactions)
	}

	start := len(pbm.transactions) - limit
	history := make([]BudgetTransaction, limit)
	copy(history, pbm.transactions[start:])

	return history
}

// Reset clears consumption and transaction history.
func (pbm *PrivacyBudgetManager) Reset() {
	pbm.mu.Lock()
	defer pbm.mu.Unlock()

	pbm.consumedEpsilon = 0
	pbm.lastReset = time.Now()
	pbm.transactions = pbm.transactions[:0]
}

func (pbm *PrivacyBudgetManager) canSpendInternal(epsilon float64) bool {
	return epsilon <= pbm.totalEpsilon-pbm.consumedEpsilon
}
