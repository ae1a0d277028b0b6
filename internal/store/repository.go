/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all ledger data access required by the assistant-service. By defining
 * an interface, we decouple the business logic and the tool dispatcher from
 * the storage implementation (PostgreSQL in production, the in-memory store
 * for demo mode and tests).
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For user identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/voicebank/assistant-service/internal/domain"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailTaken        = errors.New("email already registered")
	ErrAccountNotFound   = errors.New("account not found")
	ErrCardNotFound      = errors.New("card not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// WithdrawOutcome reports the result of a committed withdrawal.
type WithdrawOutcome struct {
	Transaction  *domain.Transaction
	BalanceCents int64 // source account balance after the debit
}

// TransferOutcome reports the result of a committed transfer. ToBalanceCents
// is unchanged when the destination is external (no credit is applied).
type TransferOutcome struct {
	Transaction      *domain.Transaction
	FromBalanceCents int64
	ToBalanceCents   int64
}

// Repository defines the set of methods for interacting with the ledger.
// Every call is scoped to a user; one process serves one shared ledger but
// rows are always selected per user.
type Repository interface {
	// User methods
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	// CreateUserWithDefaults registers a user and provisions the default
	// checking/savings accounts and their cards in one atomic step.
	CreateUserWithDefaults(ctx context.Context, name, email string) (*domain.User, error)

	// Query surface consumed by the UI API
	FindAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Account, error)
	FindCardsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Card, error)
	FindTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error)

	// Ledger operations backing the tool dispatcher.
	// FindAccountBySelector matches by exact id or case-insensitive substring
	// of the account type; the first match wins.
	FindAccountBySelector(ctx context.Context, userID uuid.UUID, selector string) (*domain.Account, error)
	// Withdraw applies a guarded conditional debit: the balance is reduced
	// only if it covers the amount, in the same storage operation that checks
	// it. A transaction row is appended atomically with the debit.
	Withdraw(ctx context.Context, userID uuid.UUID, accountID string, amountCents int64, description string) (*WithdrawOutcome, error)
	// Transfer debits `from` with the same guarded conditional update,
	// credits `to` unless either side is external, and appends exactly one
	// transaction row against the source. All three steps commit together or
	// not at all.
	Transfer(ctx context.Context, userID uuid.UUID, from, to *domain.Account, amountCents int64) (*TransferOutcome, error)
	// SetCardStatus matches a card by exact last-4 digits or case-insensitive
	// substring of its label.
	SetCardStatus(ctx context.Context, userID uuid.UUID, selector, status string) (*domain.Card, error)
	// TransactionHistory returns at most limit rows, newest date first.
	TransactionHistory(ctx context.Context, userID uuid.UUID, accountID string, limit int) ([]domain.Transaction, error)
}
