package pipeline

import (
	"errors"
	"strings"
	"testing"
)

func TestBudgetAuthorize(t *testing.T) {
	b := Budget{Total: 300, PerOperationCap: 50}

	if err := b.Authorize(100, 2.50); err != nil {
		t.Fatalf("within budget should be authorized, got %v", err)
	}

	err := b.Authorize(298, 2.50)
	if err == nil {
		t.Fatal("expected rejection when predicted cost exceeds budget")
	}
	var be *BudgetExceededError
	if !errors.As(err, &be) {
		t.Fatalf("expected BudgetExceededError, got %T", err)
	}
	if be.Code != BudgetCode {
		t.Errorf("code = %q, want %q", be.Code, BudgetCode)
	}
	if !strings.Contains(err.Error(), BudgetCode) {
		t.Errorf("message %q should carry the machine code", err.Error())
	}
}

func TestBudgetPerOperationCap(t *testing.T) {
	b := DefaultBudget()

	if err := b.Authorize(0, 75); !IsBudgetExceeded(err) {
		t.Fatalf("expected per-operation cap rejection, got %v", err)
	}
	if err := b.Authorize(0, 50); err != nil {
		t.Fatalf("estimate at the cap should be authorized, got %v", err)
	}
}

func TestBudgetExactBoundary(t *testing.T) {
	b := Budget{Total: 300, PerOperationCap: 300}

	if err := b.Authorize(297.50, 2.50); err != nil {
		t.Fatalf("hitting the budget exactly should be authorized, got %v", err)
	}
	if err := b.Authorize(297.51, 2.50); !IsBudgetExceeded(err) {
		t.Fatalf("expected rejection just past the budget, got %v", err)
	}
}

func TestBudgetRemaining(t *testing.T) {
	b := Budget{Total: 300}
	if got := b.Remaining(120); got != 180 {
		t.Errorf("Remaining = %v, want 180", got)
	}
	if got := b.Remaining(400); got != 0 {
		t.Errorf("Remaining past budget = %v, want 0", got)
	}
}
