/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL needed to query and mutate the ledger
 * tables (users, accounts, cards, transactions).
 *
 * Every balance-reducing statement uses a guarded conditional update
 * (`... SET balance_cents = balance_cents - $1 ... AND balance_cents >= $1`)
 * so that insufficient-funds detection happens inside the storage engine and
 * stays race-free under concurrent sessions. The transfer operation wraps its
 * debit, credit and ledger log in one database transaction.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voicebank/assistant-service/internal/domain"
)

// Default provisioning for newly registered users, matching the demo ledger.
const (
	defaultCheckingCents = 100000 // $1000.00
	defaultSavingsCents  = 500000 // $5000.00
)

// PostgresRepository is a concrete implementation of the Repository interface
// for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, user_id, account_type, balance_cents, display_number, external, created_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Type, &a.BalanceCents, &a.Number, &a.External, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindUserByEmail retrieves a user by their (unique) email address.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, full_name, email, created_at FROM users WHERE lower(btrim(email)) = lower(btrim($1))`
	err := r.db.QueryRow(ctx, query, email).Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByID retrieves a user by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, full_name, email, created_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUserWithDefaults registers a user and provisions the default
// checking/savings accounts plus one card per account, all in one database
// transaction. Display numbers and card digits are derived from a string
// hash of (email, entity id) for per-user cosmetic uniqueness only.
func (r *PostgresRepository) CreateUserWithDefaults(ctx context.Context, name, email string) (*domain.User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	user := domain.User{ID: uuid.New(), Name: name, Email: strings.TrimSpace(email)}
	err = tx.QueryRow(ctx,
		`INSERT INTO users (id, full_name, email) VALUES ($1, $2, $3) RETURNING created_at`,
		user.ID, user.Name, user.Email,
	).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	suffix := user.ID.String()[:8]
	accounts := []domain.Account{
		{ID: "acc_chk_" + suffix, Type: "Checking", BalanceCents: defaultCheckingCents},
		{ID: "acc_sav_" + suffix, Type: "Savings", BalanceCents: defaultSavingsCents},
	}
	for _, acct := range accounts {
		number := "**** " + DisplayDigits(user.Email+"/"+acct.ID)
		_, err = tx.Exec(ctx,
			`INSERT INTO accounts (id, user_id, account_type, balance_cents, display_number, external) VALUES ($1, $2, $3, $4, $5, false)`,
			acct.ID, user.ID, acct.Type, acct.BalanceCents, number,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to provision account %s: %w", acct.ID, err)
		}
	}

	cards := []domain.Card{
		{ID: "crd_" + suffix + "_1", Type: "Visa Platinum", Status: domain.CardStatusActive, LinkedAccountID: accounts[0].ID},
		{ID: "crd_" + suffix + "_2", Type: "Mastercard Gold", Status: domain.CardStatusInactive, LinkedAccountID: accounts[1].ID},
	}
	for _, card := range cards {
		last4 := DisplayDigits(user.Email + "/" + card.ID)
		_, err = tx.Exec(ctx,
			`INSERT INTO cards (id, linked_account_id, card_type, last4, status) VALUES ($1, $2, $3, $4, $5)`,
			card.ID, card.LinkedAccountID, card.Type, last4, card.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to provision card %s: %w", card.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindAccountsByUserID returns all accounts owned by a user.
func (r *PostgresRepository) FindAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &a.BalanceCents, &a.Number, &a.External, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// FindCardsByUserID returns all cards linked to any of the user's accounts.
func (r *PostgresRepository) FindCardsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Card, error) {
	query := `
		SELECT c.id, c.linked_account_id, c.card_type, c.last4, c.status
		FROM cards c
		JOIN accounts a ON a.id = c.linked_account_id
		WHERE a.user_id = $1
		ORDER BY c.id
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := []domain.Card{}
	for rows.Next() {
		var c domain.Card
		if err := rows.Scan(&c.ID, &c.LinkedAccountID, &c.Type, &c.Last4, &c.Status); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// FindTransactionsByUserID returns all ledger entries posted against any of
// the user's accounts, newest first.
func (r *PostgresRepository) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	query := `
		SELECT t.id, t.posted_on, t.description, t.amount_cents, t.account_id
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.user_id = $1
		ORDER BY t.posted_on DESC, t.id DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// FindAccountBySelector resolves an account by exact id or case-insensitive
// substring of the account type. The first match wins; this fuzziness is
// deliberate, the voice interface relies on it.
func (r *PostgresRepository) FindAccountBySelector(ctx context.Context, userID uuid.UUID, selector string) (*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE user_id = $1 AND (id = $2 OR account_type ILIKE '%' || $2 || '%')
		ORDER BY (id = $2) DESC, created_at, id
		LIMIT 1
	`
	return scanAccount(r.db.QueryRow(ctx, query, userID, strings.TrimSpace(selector)))
}

// Withdraw debits an account with a guarded conditional update and appends
// the ledger entry in the same database transaction. A zero-row update means
// the balance did not cover the amount.
func (r *PostgresRepository) Withdraw(ctx context.Context, userID uuid.UUID, accountID string, amountCents int64, description string) (*WithdrawOutcome, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	outcome := &WithdrawOutcome{}
	err = tx.QueryRow(ctx,
		`UPDATE accounts SET balance_cents = balance_cents - $1
		 WHERE id = $2 AND user_id = $3 AND balance_cents >= $1
		 RETURNING balance_cents`,
		amountCents, accountID, userID,
	).Scan(&outcome.BalanceCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	entry, err := insertLedgerEntry(ctx, tx, accountID, -amountCents, description)
	if err != nil {
		return nil, err
	}
	outcome.Transaction = entry

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return outcome, nil
}

// Transfer moves funds between two resolved accounts. The debit, the credit
// and the single ledger entry commit together or not at all. Credits are
// skipped when either side is external; the debit and the log still happen.
func (r *PostgresRepository) Transfer(ctx context.Context, userID uuid.UUID, from, to *domain.Account, amountCents int64) (*TransferOutcome, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	outcome := &TransferOutcome{ToBalanceCents: to.BalanceCents}
	err = tx.QueryRow(ctx,
		`UPDATE accounts SET balance_cents = balance_cents - $1
		 WHERE id = $2 AND user_id = $3 AND balance_cents >= $1
		 RETURNING balance_cents`,
		amountCents, from.ID, userID,
	).Scan(&outcome.FromBalanceCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	if !from.External && !to.External {
		err = tx.QueryRow(ctx,
			`UPDATE accounts SET balance_cents = balance_cents + $1 WHERE id = $2 RETURNING balance_cents`,
			amountCents, to.ID,
		).Scan(&outcome.ToBalanceCents)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrAccountNotFound
			}
			return nil, err
		}
	}

	entry, err := insertLedgerEntry(ctx, tx, from.ID, -amountCents, "Transfer to "+to.Type)
	if err != nil {
		return nil, err
	}
	outcome.Transaction = entry

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return outcome, nil
}

// SetCardStatus updates the status of the first card matching the selector
// (exact last-4 digits or case-insensitive substring of the label).
func (r *PostgresRepository) SetCardStatus(ctx context.Context, userID uuid.UUID, selector, status string) (*domain.Card, error) {
	query := `
		UPDATE cards SET status = $1
		WHERE id = (
			SELECT c.id
			FROM cards c
			JOIN accounts a ON a.id = c.linked_account_id
			WHERE a.user_id = $2 AND (c.last4 = $3 OR c.card_type ILIKE '%' || $3 || '%')
			ORDER BY c.id
			LIMIT 1
		)
		RETURNING id, linked_account_id, card_type, last4, status
	`
	var c domain.Card
	err := r.db.QueryRow(ctx, query, status, userID, strings.TrimSpace(selector)).
		Scan(&c.ID, &c.LinkedAccountID, &c.Type, &c.Last4, &c.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	return &c, nil
}

// TransactionHistory returns at most limit ledger entries for one account,
// newest date first.
func (r *PostgresRepository) TransactionHistory(ctx context.Context, userID uuid.UUID, accountID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 3
	}
	query := `
		SELECT t.id, t.posted_on, t.description, t.amount_cents, t.account_id
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.user_id = $1 AND t.account_id = $2
		ORDER BY t.posted_on DESC, t.id DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, userID, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func insertLedgerEntry(ctx context.Context, tx pgx.Tx, accountID string, amountCents int64, description string) (*domain.Transaction, error) {
	entry := &domain.Transaction{
		AccountID:   accountID,
		AmountCents: amountCents,
		Description: description,
	}
	err := tx.QueryRow(ctx,
		`INSERT INTO transactions (posted_on, description, amount_cents, account_id)
		 VALUES (CURRENT_DATE, $1, $2, $3)
		 RETURNING id, posted_on`,
		description, amountCents, accountID,
	).Scan(&entry.ID, &entry.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to log ledger entry: %w", err)
	}
	return entry, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	transactions := []domain.Transaction{}
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.Date, &t.Description, &t.AmountCents, &t.AccountID); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// DisplayDigits derives four decimal digits from a seed string with a simple
// FNV-1a hash. Cosmetic uniqueness only, not a security mechanism.
func DisplayDigits(seed string) string {
	h := fnv.New32a()
	h.Write([]byte(seed))
	return fmt.Sprintf("%04d", h.Sum32()%10000)
}
