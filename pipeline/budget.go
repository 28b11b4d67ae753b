package pipeline

import (
	"errors"
	"fmt"
)

const (
	// DefaultTotalBudget is the fixed spend ceiling per session, in dollars.
	DefaultTotalBudget = 300.0
	// DefaultPerOperationCap bounds any single operation's estimated cost.
	DefaultPerOperationCap = 50.0
)

// BudgetCode is the machine-readable code carried on budget rejections.
const BudgetCode = "BUDGET_EXCEEDED"

// BudgetExceededError rejects an operation whose predicted cumulative cost
// would cross the budget or the per-operation cap. It is never retried and
// never swallowed.
type BudgetExceededError struct {
	Code      string  `json:"code"`
	Spent     float64 `json:"spent"`
	Estimated float64 `json:"estimated"`
	Limit     float64 `json:"limit"`
	Reason    string  `json:"reason"`
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s: %s (spent $%.2f, estimated $%.2f, limit $%.2f)",
		e.Code, e.Reason, e.Spent, e.Estimated, e.Limit)
}

// IsBudgetExceeded reports whether err is (or wraps) a budget rejection.
func IsBudgetExceeded(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}

// Budget is the session spend policy. Zero fields take the defaults.
type Budget struct {
	Total           float64 `json:"total" yaml:"total"`
	PerOperationCap float64 `json:"perOperationCap" yaml:"per_operation_cap"`
}

func DefaultBudget() Budget {
	return Budget{Total: DefaultTotalBudget, PerOperationCap: DefaultPerOperationCap}
}

func (b Budget) normalized() Budget {
	if b.Total <= 0 {
		b.Total = DefaultTotalBudget
	}
	if b.PerOperationCap <= 0 {
		b.PerOperationCap = DefaultPerOperationCap
	}
	return b
}

// Authorize decides whether an operation with the given cost estimate may
// proceed on top of the spend so far. No generation call may be dispatched
// once predicted cumulative cost exceeds the budget.
func (b Budget) Authorize(spent, estimate float64) error {
	nb := b.normalized()
	if estimate > nb.PerOperationCap {
		return &BudgetExceededError{
			Code:      BudgetCode,
			Spent:     spent,
			Estimated: estimate,
			Limit:     nb.PerOperationCap,
			Reason:    "operation exceeds per-operation cost cap",
		}
	}
	if spent+estimate > nb.Total {
		return &BudgetExceededError{
			Code:      BudgetCode,
			Spent:     spent,
			Estimated: estimate,
			Limit:     nb.Total,
			Reason:    "predicted cumulative cost exceeds session budget",
		}
	}
	return nil
}

// Remaining reports the unspent budget, never negative.
func (b Budget) Remaining(spent float64) float64 {
	left := b.normalized().Total - spent
	if left < 0 {
		return 0
	}
	return left
}
