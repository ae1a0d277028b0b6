/**
 * @description
 * This file contains the core business logic for the assistant-service. The
 * `Service` struct orchestrates all ledger operations behind the tool
 * dispatcher and the HTTP API: balance reads, withdrawals, transfers,
 * transaction history, card status changes and user registration.
 *
 * Key features:
 * - Resolves fuzzy account/card selectors before touching balances.
 * - Validates amounts once, at the boundary, and rejects non-positive values.
 * - Publishes ledger mutation events to RabbitMQ for asynchronous consumers;
 *   publishing is best effort and never fails the operation.
 *
 * @dependencies
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voicebank/assistant-service/internal/domain"
	"github.com/voicebank/assistant-service/internal/store"
	"github.com/voicebank/assistant-service/pkg/rabbitmq"
)

// ErrInvalidCardStatus is returned when a status outside {active, inactive}
// is requested.
var ErrInvalidCardStatus = errors.New("invalid card status")

// ErrMissingCardSelector is returned when neither last-4 digits nor a card
// label was supplied.
var ErrMissingCardSelector = errors.New("card selector required")

// WithdrawResult carries the outcome of a committed withdrawal back to the
// dispatcher and API layers.
type WithdrawResult struct {
	Account      *domain.Account
	BalanceCents int64
	Transaction  *domain.Transaction
}

// TransferResult carries the outcome of a committed transfer.
type TransferResult struct {
	From             *domain.Account
	To               *domain.Account
	FromBalanceCents int64
	ToBalanceCents   int64
	Transaction      *domain.Transaction
}

// Service provides the core ledger business logic.
type Service struct {
	repo   store.Repository
	events rabbitmq.Publisher
}

// NewService creates a new ledger service instance. events may be a fallback
// publisher when RabbitMQ is unavailable.
func NewService(repo store.Repository, events rabbitmq.Publisher) *Service {
	return &Service{repo: repo, events: events}
}

// GetBalance resolves the selector and returns the matching account.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID, selector string) (*domain.Account, error) {
	return s.repo.FindAccountBySelector(ctx, userID, selector)
}

// Withdraw debits the selected account. The storage layer enforces the
// balance guard; a withdrawal that exceeds the balance leaves it unchanged.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, selector string, amountCents int64) (*WithdrawResult, error) {
	if amountCents <= 0 {
		return nil, store.ErrInvalidAmount
	}
	account, err := s.repo.FindAccountBySelector(ctx, userID, selector)
	if err != nil {
		return nil, err
	}
	outcome, err := s.repo.Withdraw(ctx, userID, account.ID, amountCents, "ATM Withdrawal")
	if err != nil {
		return nil, err
	}

	s.publish(ctx, rabbitmq.RoutingKeyTransactionCreated, rabbitmq.LedgerEvent{
		UserID:      userID,
		AccountID:   account.ID,
		Kind:        "withdrawal",
		AmountCents: -amountCents,
		Description: outcome.Transaction.Description,
	})

	return &WithdrawResult{
		Account:      account,
		BalanceCents: outcome.BalanceCents,
		Transaction:  outcome.Transaction,
	}, nil
}

// Transfer resolves both selectors and moves funds atomically. Exactly one
// ledger entry is appended, against the source account. Credits are skipped
// when either side is external.
func (s *Service) Transfer(ctx context.Context, userID uuid.UUID, fromSelector, toSelector string, amountCents int64) (*TransferResult, error) {
	if amountCents <= 0 {
		return nil, store.ErrInvalidAmount
	}
	from, err := s.repo.FindAccountBySelector(ctx, userID, fromSelector)
	if err != nil {
		return nil, err
	}
	to, err := s.repo.FindAccountBySelector(ctx, userID, toSelector)
	if err != nil {
		return nil, err
	}

	outcome, err := s.repo.Transfer(ctx, userID, from, to, amountCents)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, rabbitmq.RoutingKeyTransactionCreated, rabbitmq.LedgerEvent{
		UserID:      userID,
		AccountID:   from.ID,
		Kind:        "transfer",
		AmountCents: -amountCents,
		Description: outcome.Transaction.Description,
	})

	return &TransferResult{
		From:             from,
		To:               to,
		FromBalanceCents: outcome.FromBalanceCents,
		ToBalanceCents:   outcome.ToBalanceCents,
		Transaction:      outcome.Transaction,
	}, nil
}

// TransactionHistory returns at most limit entries for the selected account,
// newest date first. An account with no entries yields an empty slice.
func (s *Service) TransactionHistory(ctx context.Context, userID uuid.UUID, selector string, limit int) ([]domain.Transaction, error) {
	account, err := s.repo.FindAccountBySelector(ctx, userID, selector)
	if err != nil {
		return nil, err
	}
	return s.repo.TransactionHistory(ctx, userID, account.ID, limit)
}

// SetCardStatus locks or unlocks a card. The card is selected by exact
// last-4 digits when provided, otherwise by label substring.
func (s *Service) SetCardStatus(ctx context.Context, userID uuid.UUID, last4, cardType, status string) (*domain.Card, error) {
	normalized, ok := domain.NormalizeCardStatus(status)
	if !ok {
		return nil, ErrInvalidCardStatus
	}
	selector := strings.TrimSpace(last4)
	if selector == "" {
		selector = strings.TrimSpace(cardType)
	}
	if selector == "" {
		return nil, ErrMissingCardSelector
	}

	card, err := s.repo.SetCardStatus(ctx, userID, selector, normalized)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, rabbitmq.RoutingKeyCardStatusChanged, rabbitmq.LedgerEvent{
		UserID:      userID,
		AccountID:   card.LinkedAccountID,
		Kind:        "card_status",
		Description: card.Type + " -> " + normalized,
	})

	return card, nil
}

// RegisterUser creates a user and provisions the default accounts and cards.
func (s *Service) RegisterUser(ctx context.Context, name, email string) (*domain.User, error) {
	return s.repo.CreateUserWithDefaults(ctx, name, email)
}

// UserByEmail returns the user owning the given email address.
func (s *Service) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.repo.FindUserByEmail(ctx, email)
}

// UserByID returns the user with the given id.
func (s *Service) UserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.repo.FindUserByID(ctx, userID)
}

// AccountsForUser lists the user's accounts for the UI.
func (s *Service) AccountsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	return s.repo.FindAccountsByUserID(ctx, userID)
}

// CardsForUser lists the user's cards for the UI.
func (s *Service) CardsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Card, error) {
	return s.repo.FindCardsByUserID(ctx, userID)
}

// TransactionsForUser lists all of the user's ledger entries for the UI.
func (s *Service) TransactionsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	return s.repo.FindTransactionsByUserID(ctx, userID)
}

func (s *Service) publish(ctx context.Context, routingKey string, event rabbitmq.LedgerEvent) {
	if s.events == nil {
		return
	}
	event.Timestamp = time.Now()
	if err := s.events.PublishLedgerEvent(ctx, routingKey, event); err != nil {
		log.Printf("level=warn component=ledger_service msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}
