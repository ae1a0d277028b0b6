/**
 * @description
 * This file defines the core domain models for the assistant-service.
 * These structs represent the ledger entities (users, accounts, cards,
 * transactions) and the data transfer objects used by the tool dispatcher
 * and the HTTP API layer.
 *
 * @notes
 * - Monetary amounts are stored as `int64` in the smallest currency unit
 *   (cents), which avoids floating-point inaccuracies with financial data.
 *   Dollar values only appear at the presentation edge (tool results and
 *   API responses).
 * - Transactions are append-only ledger entries; nothing updates or deletes
 *   them after creation.
 */

package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Card status values. Status is the only mutable field on a card.
const (
	CardStatusActive   = "active"
	CardStatusInactive = "inactive"
)

// User owns a set of accounts, and through them cards and transactions.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is a ledger account. External accounts represent outside transfer
// destinations: debits against them are logged but credits are never applied.
type Account struct {
	ID           string    `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Type         string    `json:"type"` // free text, e.g. "Checking", "Savings"
	BalanceCents int64     `json:"balance_cents"`
	Number       string    `json:"number"` // display number, cosmetic only
	External     bool      `json:"external"`
	CreatedAt    time.Time `json:"created_at"`
}

// Card is linked to exactly one account. Only its status changes after
// creation.
type Card struct {
	ID              string `json:"id"`
	LinkedAccountID string `json:"linked_account_id"`
	Type            string `json:"type"` // display label, e.g. "Visa Platinum"
	Last4           string `json:"last4"`
	Status          string `json:"status"`
}

// Transaction is one immutable ledger entry. Negative amounts are debits,
// positive amounts are credits.
type Transaction struct {
	ID          int64     `json:"id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	AccountID   string    `json:"account_id"`
}

// GetBalanceArgs is the argument payload of the get_balance tool.
type GetBalanceArgs struct {
	AccountType string `json:"accountType"`
}

// TransferFundsArgs is the argument payload of the transfer_funds tool.
// Amounts arrive from the model as JSON numbers in dollars.
type TransferFundsArgs struct {
	Amount      float64 `json:"amount"`
	FromAccount string  `json:"fromAccount"`
	ToAccount   string  `json:"toAccount"`
}

// WithdrawFundsArgs is the argument payload of the withdraw_funds tool.
type WithdrawFundsArgs struct {
	Amount      float64 `json:"amount"`
	AccountType string  `json:"accountType"`
}

// TransactionHistoryArgs is the argument payload of the
// get_transaction_history tool. Limit defaults to 3 when omitted.
type TransactionHistoryArgs struct {
	AccountType string `json:"accountType"`
	Limit       int    `json:"limit"`
}

// SetCardStatusArgs is the argument payload of the set_card_status tool.
// Either CardLast4 or CardType selects the card; last-4 wins when both are
// present.
type SetCardStatusArgs struct {
	CardLast4 string `json:"cardLast4"`
	CardType  string `json:"cardType"`
	Status    string `json:"status"`
}

// RegisterUserRequest is the DTO for the registration API endpoint.
type RegisterUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CentsFromDollars converts a dollar amount received on the wire into cents.
// The boolean is false for NaN and infinities.
func CentsFromDollars(amount float64) (int64, bool) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, false
	}
	return int64(math.Round(amount * 100)), true
}

// DollarsFromCents converts an internal cent amount to a display dollar value.
func DollarsFromCents(cents int64) float64 {
	return float64(cents) / 100
}

// NormalizeCardStatus maps user- or model-supplied status strings ("Active",
// "INACTIVE", ...) onto the canonical card status values.
func NormalizeCardStatus(status string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case CardStatusActive:
		return CardStatusActive, true
	case CardStatusInactive:
		return CardStatusInactive, true
	}
	return "", false
}
