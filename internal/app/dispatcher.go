/**
 * @description
 * This file contains the tool dispatcher: it translates a {name, arguments}
 * pair emitted by the upstream AI endpoint into exactly one ledger service
 * call and produces a JSON-serializable result object. Storage errors never
 * propagate as faults; every failure is folded into an `{error: "..."}`
 * payload so the conversation is never left waiting for a tool result.
 *
 * Each dispatch runs under a timeout; a hung storage call surfaces as a
 * typed timeout error through the same error path. A duplicate tool-call
 * event with a new call-id is a fresh operation; no deduplication is done.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/voicebank/assistant-service/internal/domain"
	"github.com/voicebank/assistant-service/internal/store"
)

// Tool names recognized by the dispatcher.
const (
	ToolGetBalance         = "get_balance"
	ToolTransferFunds      = "transfer_funds"
	ToolWithdrawFunds      = "withdraw_funds"
	ToolTransactionHistory = "get_transaction_history"
	ToolSetCardStatus      = "set_card_status"
)

const defaultHistoryLimit = 3

// RateLimiter bounds how often one session may dispatch tools. Implemented
// by the Redis limiter; a nil limiter disables the check.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Dispatcher maps tool calls onto ledger service operations.
type Dispatcher struct {
	svc            *Service
	timeout        time.Duration
	limiter        RateLimiter
	limitPerMinute int
}

// NewDispatcher creates a dispatcher with the given per-call timeout.
func NewDispatcher(svc *Service, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{svc: svc, timeout: timeout}
}

// SetRateLimiter installs an optional per-session dispatch rate limit.
func (d *Dispatcher) SetRateLimiter(limiter RateLimiter, perMinute int) {
	d.limiter = limiter
	d.limitPerMinute = perMinute
}

// Dispatch executes one tool call for the given user and session. It always
// returns a JSON-marshalable result; failures come back as {"error": "..."}.
func (d *Dispatcher) Dispatch(ctx context.Context, userID uuid.UUID, sessionKey, name, rawArgs string) map[string]any {
	if d.limiter != nil && d.limitPerMinute > 0 {
		count, retryAfter, err := d.limiter.ConsumeRateLimit(ctx, "tool_dispatch", sessionKey, d.limitPerMinute, time.Minute)
		if err != nil {
			log.Printf("level=warn component=dispatcher msg=\"rate limiter unavailable; allowing call\" session=%s err=%v", sessionKey, err)
		} else if count > d.limitPerMinute {
			return map[string]any{"error": "too many requests, please wait a moment", "retry_after_seconds": retryAfter}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result, err := d.dispatch(ctx, userID, name, rawArgs)
	if err != nil {
		return errorResult(err)
	}
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, userID uuid.UUID, name, rawArgs string) (map[string]any, error) {
	switch name {
	case ToolGetBalance:
		var args domain.GetBalanceArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return nil, errBadArguments
		}
		account, err := d.svc.GetBalance(ctx, userID, args.AccountType)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"accountType": account.Type,
			"balance":     domain.DollarsFromCents(account.BalanceCents),
		}, nil

	case ToolTransferFunds:
		var args domain.TransferFundsArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return nil, errBadArguments
		}
		cents, ok := domain.CentsFromDollars(args.Amount)
		if !ok {
			return nil, store.ErrInvalidAmount
		}
		result, err := d.svc.Transfer(ctx, userID, args.FromAccount, args.ToAccount, cents)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"success":     true,
			"message":     "Transferred $" + formatDollars(cents) + " from " + result.From.Type + " to " + result.To.Type,
			"fromBalance": domain.DollarsFromCents(result.FromBalanceCents),
		}, nil

	case ToolWithdrawFunds:
		var args domain.WithdrawFundsArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return nil, errBadArguments
		}
		cents, ok := domain.CentsFromDollars(args.Amount)
		if !ok {
			return nil, store.ErrInvalidAmount
		}
		result, err := d.svc.Withdraw(ctx, userID, args.AccountType, cents)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"success": true,
			"message": "Withdrawn $" + formatDollars(cents),
			"balance": domain.DollarsFromCents(result.BalanceCents),
		}, nil

	case ToolTransactionHistory:
		var args domain.TransactionHistoryArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return nil, errBadArguments
		}
		if args.Limit <= 0 {
			args.Limit = defaultHistoryLimit
		}
		entries, err := d.svc.TransactionHistory(ctx, userID, args.AccountType, args.Limit)
		if err != nil {
			return nil, err
		}
		history := make([]map[string]any, 0, len(entries))
		for _, entry := range entries {
			history = append(history, map[string]any{
				"date":        entry.Date.Format("2006-01-02"),
				"description": entry.Description,
				"amount":      domain.DollarsFromCents(entry.AmountCents),
			})
		}
		return map[string]any{
			"accountType":  args.AccountType,
			"transactions": history,
		}, nil

	case ToolSetCardStatus:
		var args domain.SetCardStatusArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return nil, errBadArguments
		}
		card, err := d.svc.SetCardStatus(ctx, userID, args.CardLast4, args.CardType, args.Status)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"success":  true,
			"cardType": card.Type,
			"last4":    card.Last4,
			"status":   card.Status,
		}, nil
	}

	return nil, errUnknownTool
}

var (
	errBadArguments = errors.New("could not parse tool arguments")
	errUnknownTool  = errors.New("unknown tool")
)

// errorResult maps the error taxonomy onto spoken-explanation-friendly
// payloads. The upstream model turns these into a reply; nothing here should
// leak internals.
func errorResult(err error) map[string]any {
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		return map[string]any{"error": "account not found"}
	case errors.Is(err, store.ErrCardNotFound):
		return map[string]any{"error": "card not found"}
	case errors.Is(err, store.ErrInsufficientFunds):
		return map[string]any{"error": "insufficient funds"}
	case errors.Is(err, store.ErrInvalidAmount):
		return map[string]any{"error": "invalid amount"}
	case errors.Is(err, ErrInvalidCardStatus):
		return map[string]any{"error": "card status must be Active or Inactive"}
	case errors.Is(err, ErrMissingCardSelector):
		return map[string]any{"error": "which card? provide the last four digits or the card name"}
	case errors.Is(err, errBadArguments):
		return map[string]any{"error": "could not parse tool arguments"}
	case errors.Is(err, errUnknownTool):
		return map[string]any{"error": "unknown tool"}
	case errors.Is(err, context.DeadlineExceeded):
		return map[string]any{"error": "timeout: the operation took too long"}
	}
	log.Printf("level=error component=dispatcher msg=\"storage failure\" err=%v", err)
	return map[string]any{"error": "a storage error occurred"}
}

func formatDollars(cents int64) string {
	return fmt.Sprintf("%.2f", domain.DollarsFromCents(cents))
}
