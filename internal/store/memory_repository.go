/**
 * @description
 * This file provides an in-memory implementation of the `Repository`
 * interface. It backs demo mode (no DATABASE_URL configured) and the test
 * suite. A single mutex serializes every operation, so the guarded
 * check-and-set discipline of the PostgreSQL implementation holds here too:
 * the balance check and the deduction happen atomically under the lock, and
 * multi-step transfers are applied as a unit or not at all.
 */

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voicebank/assistant-service/internal/domain"
)

// MemoryRepository is a mutex-guarded in-memory ledger.
type MemoryRepository struct {
	mu           sync.Mutex
	users        []domain.User
	accounts     []domain.Account
	cards        []domain.Card
	transactions []domain.Transaction
	nextTxID     int64
	now          func() time.Time
}

// NewMemoryRepository creates an empty in-memory ledger.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextTxID: 1, now: time.Now}
}

// SeedDemo loads the demo ledger: one user with a checking account at
// $5420.50, a savings account at $12500.00, one external transfer target,
// two cards and two historical transactions. It returns the demo user.
func (r *MemoryRepository) SeedDemo() *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := domain.User{ID: uuid.New(), Name: "Demo User", Email: "demo@example.com", CreatedAt: r.now()}
	r.users = append(r.users, user)
	r.accounts = append(r.accounts,
		domain.Account{ID: "acc_chk_01", UserID: user.ID, Type: "Checking", BalanceCents: 542050, Number: "**** 4421", CreatedAt: r.now()},
		domain.Account{ID: "acc_sav_01", UserID: user.ID, Type: "Savings", BalanceCents: 1250000, Number: "**** 9928", CreatedAt: r.now()},
		domain.Account{ID: "acc_ext_02", UserID: user.ID, Type: "External (Mom)", BalanceCents: 0, Number: "**** 1122", External: true, CreatedAt: r.now()},
	)
	r.cards = append(r.cards,
		domain.Card{ID: "crd_001", LinkedAccountID: "acc_chk_01", Type: "Visa Platinum", Last4: "4242", Status: domain.CardStatusActive},
		domain.Card{ID: "crd_002", LinkedAccountID: "acc_sav_01", Type: "Mastercard Gold", Last4: "8811", Status: domain.CardStatusInactive},
	)
	r.transactions = append(r.transactions,
		domain.Transaction{ID: r.nextTxID, Date: mustDate("2023-10-24"), Description: "Grocery Store", AmountCents: -15025, AccountID: "acc_chk_01"},
		domain.Transaction{ID: r.nextTxID + 1, Date: mustDate("2023-10-23"), Description: "Salary Deposit", AmountCents: 320000, AccountID: "acc_chk_01"},
	)
	r.nextTxID += 2
	return &user
}

func mustDate(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func (r *MemoryRepository) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(email))
	for i := range r.users {
		if strings.ToLower(r.users[i].Email) == needle {
			user := r.users[i]
			return &user, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryRepository) FindUserByID(_ context.Context, userID uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.users {
		if r.users[i].ID == userID {
			user := r.users[i]
			return &user, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryRepository) CreateUserWithDefaults(_ context.Context, name, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	trimmed := strings.TrimSpace(email)
	for i := range r.users {
		if strings.EqualFold(r.users[i].Email, trimmed) {
			return nil, ErrEmailTaken
		}
	}

	user := domain.User{ID: uuid.New(), Name: name, Email: trimmed, CreatedAt: r.now()}
	r.users = append(r.users, user)

	suffix := user.ID.String()[:8]
	checking := domain.Account{
		ID: "acc_chk_" + suffix, UserID: user.ID, Type: "Checking",
		BalanceCents: defaultCheckingCents, CreatedAt: r.now(),
	}
	checking.Number = "**** " + DisplayDigits(user.Email+"/"+checking.ID)
	savings := domain.Account{
		ID: "acc_sav_" + suffix, UserID: user.ID, Type: "Savings",
		BalanceCents: defaultSavingsCents, CreatedAt: r.now(),
	}
	savings.Number = "**** " + DisplayDigits(user.Email+"/"+savings.ID)
	r.accounts = append(r.accounts, checking, savings)

	cardA := domain.Card{ID: "crd_" + suffix + "_1", LinkedAccountID: checking.ID, Type: "Visa Platinum", Status: domain.CardStatusActive}
	cardA.Last4 = DisplayDigits(user.Email + "/" + cardA.ID)
	cardB := domain.Card{ID: "crd_" + suffix + "_2", LinkedAccountID: savings.ID, Type: "Mastercard Gold", Status: domain.CardStatusInactive}
	cardB.Last4 = DisplayDigits(user.Email + "/" + cardB.ID)
	r.cards = append(r.cards, cardA, cardB)

	return &user, nil
}

func (r *MemoryRepository) FindAccountsByUserID(_ context.Context, userID uuid.UUID) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	accounts := []domain.Account{}
	for i := range r.accounts {
		if r.accounts[i].UserID == userID {
			accounts = append(accounts, r.accounts[i])
		}
	}
	return accounts, nil
}

func (r *MemoryRepository) FindCardsByUserID(_ context.Context, userID uuid.UUID) ([]domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cards := []domain.Card{}
	for i := range r.cards {
		if acct := r.accountByID(r.cards[i].LinkedAccountID); acct != nil && acct.UserID == userID {
			cards = append(cards, r.cards[i])
		}
	}
	return cards, nil
}

func (r *MemoryRepository) FindTransactionsByUserID(_ context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	transactions := []domain.Transaction{}
	for i := range r.transactions {
		if acct := r.accountByID(r.transactions[i].AccountID); acct != nil && acct.UserID == userID {
			transactions = append(transactions, r.transactions[i])
		}
	}
	sortNewestFirst(transactions)
	return transactions, nil
}

func (r *MemoryRepository) FindAccountBySelector(_ context.Context, userID uuid.UUID, selector string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct := r.findAccountLocked(userID, selector)
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	snapshot := *acct
	return &snapshot, nil
}

func (r *MemoryRepository) Withdraw(_ context.Context, userID uuid.UUID, accountID string, amountCents int64, description string) (*WithdrawOutcome, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	acct := r.accountByID(accountID)
	if acct == nil || acct.UserID != userID {
		return nil, ErrAccountNotFound
	}
	// Check-and-set under the lock, same semantics as the SQL guard.
	if acct.BalanceCents < amountCents {
		return nil, ErrInsufficientFunds
	}
	acct.BalanceCents -= amountCents
	entry := r.appendEntryLocked(accountID, -amountCents, description)
	return &WithdrawOutcome{Transaction: entry, BalanceCents: acct.BalanceCents}, nil
}

func (r *MemoryRepository) Transfer(_ context.Context, userID uuid.UUID, from, to *domain.Account, amountCents int64) (*TransferOutcome, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	source := r.accountByID(from.ID)
	dest := r.accountByID(to.ID)
	if source == nil || source.UserID != userID || dest == nil {
		return nil, ErrAccountNotFound
	}
	if source.BalanceCents < amountCents {
		return nil, ErrInsufficientFunds
	}

	source.BalanceCents -= amountCents
	if !source.External && !dest.External {
		dest.BalanceCents += amountCents
	}
	entry := r.appendEntryLocked(source.ID, -amountCents, "Transfer to "+dest.Type)

	return &TransferOutcome{
		Transaction:      entry,
		FromBalanceCents: source.BalanceCents,
		ToBalanceCents:   dest.BalanceCents,
	}, nil
}

func (r *MemoryRepository) SetCardStatus(_ context.Context, userID uuid.UUID, selector, status string) (*domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(selector))
	for i := range r.cards {
		card := &r.cards[i]
		acct := r.accountByID(card.LinkedAccountID)
		if acct == nil || acct.UserID != userID {
			continue
		}
		if card.Last4 == strings.TrimSpace(selector) || strings.Contains(strings.ToLower(card.Type), needle) {
			card.Status = status
			snapshot := *card
			return &snapshot, nil
		}
	}
	return nil, ErrCardNotFound
}

func (r *MemoryRepository) TransactionHistory(_ context.Context, userID uuid.UUID, accountID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 3
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	acct := r.accountByID(accountID)
	if acct == nil || acct.UserID != userID {
		return nil, ErrAccountNotFound
	}

	transactions := []domain.Transaction{}
	for i := range r.transactions {
		if r.transactions[i].AccountID == accountID {
			transactions = append(transactions, r.transactions[i])
		}
	}
	sortNewestFirst(transactions)
	if len(transactions) > limit {
		transactions = transactions[:limit]
	}
	return transactions, nil
}

// accountByID returns a pointer into the backing slice; callers must hold mu.
func (r *MemoryRepository) accountByID(id string) *domain.Account {
	for i := range r.accounts {
		if r.accounts[i].ID == id {
			return &r.accounts[i]
		}
	}
	return nil
}

// findAccountLocked applies the selector policy: exact id first, then the
// first case-insensitive substring match on the account type.
func (r *MemoryRepository) findAccountLocked(userID uuid.UUID, selector string) *domain.Account {
	trimmed := strings.TrimSpace(selector)
	needle := strings.ToLower(trimmed)
	for i := range r.accounts {
		if r.accounts[i].UserID == userID && r.accounts[i].ID == trimmed {
			return &r.accounts[i]
		}
	}
	for i := range r.accounts {
		if r.accounts[i].UserID == userID && strings.Contains(strings.ToLower(r.accounts[i].Type), needle) {
			return &r.accounts[i]
		}
	}
	return nil
}

func (r *MemoryRepository) appendEntryLocked(accountID string, amountCents int64, description string) *domain.Transaction {
	entry := domain.Transaction{
		ID:          r.nextTxID,
		Date:        r.now().Truncate(24 * time.Hour),
		Description: description,
		AmountCents: amountCents,
		AccountID:   accountID,
	}
	r.nextTxID++
	r.transactions = append(r.transactions, entry)
	snapshot := entry
	return &snapshot
}

func sortNewestFirst(transactions []domain.Transaction) {
	sort.SliceStable(transactions, func(i, j int) bool {
		if transactions[i].Date.Equal(transactions[j].Date) {
			return transactions[i].ID > transactions[j].ID
		}
		return transactions[i].Date.After(transactions[j].Date)
	})
}
