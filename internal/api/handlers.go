/**
 * @description
 * This file contains the HTTP handlers for the assistant-service's CRUD API.
 * The browser UI uses these endpoints to render the dashboard: user lookup,
 * account/card/transaction listings, and registration (which provisions the
 * default accounts and cards). Handlers parse requests, call the application
 * service, and write JSON responses; ledger mutations happen only through
 * the voice relay, never here.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/voicebank/assistant-service/internal/app"
	"github.com/voicebank/assistant-service/internal/domain"
	"github.com/voicebank/assistant-service/internal/store"
)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service *app.Service
}

// NewHandlers creates the API handler set.
func NewHandlers(service *app.Service) *Handlers {
	return &Handlers{service: service}
}

// accountResponse is the UI-facing account shape; balances are presented in
// dollars, the ledger keeps cents.
type accountResponse struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Balance  float64 `json:"balance"`
	Number   string  `json:"number"`
	External bool    `json:"external"`
}

type cardResponse struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Last4           string `json:"last4"`
	Status          string `json:"status"`
	LinkedAccountID string `json:"linkedAccountId"`
}

type transactionResponse struct {
	ID          int64   `json:"id"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	AccountID   string  `json:"accountId"`
}

func toAccountResponses(accounts []domain.Account) []accountResponse {
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountResponse{
			ID:       a.ID,
			Type:     a.Type,
			Balance:  domain.DollarsFromCents(a.BalanceCents),
			Number:   a.Number,
			External: a.External,
		})
	}
	return out
}

func toCardResponses(cards []domain.Card) []cardResponse {
	out := make([]cardResponse, 0, len(cards))
	for _, c := range cards {
		out = append(out, cardResponse{
			ID:              c.ID,
			Type:            c.Type,
			Last4:           c.Last4,
			Status:          c.Status,
			LinkedAccountID: c.LinkedAccountID,
		})
	}
	return out
}

func toTransactionResponses(transactions []domain.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(transactions))
	for _, t := range transactions {
		out = append(out, transactionResponse{
			ID:          t.ID,
			Date:        t.Date.Format("2006-01-02"),
			Description: t.Description,
			Amount:      domain.DollarsFromCents(t.AmountCents),
			AccountID:   t.AccountID,
		})
	}
	return out
}

// GetUserHandler returns the user owning the given email address.
// GET /api/user?email=...
func (h *Handlers) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		respondWithError(w, http.StatusBadRequest, "email required")
		return
	}
	user, err := h.service.UserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			respondWithError(w, http.StatusNotFound, "user not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

// ListAccountsHandler returns the user's accounts.
// GET /api/accounts?userId=...
func (h *Handlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	accounts, err := h.service.AccountsForUser(r.Context(), userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	respondWithJSON(w, http.StatusOK, toAccountResponses(accounts))
}

// ListCardsHandler returns the user's cards.
// GET /api/cards?userId=...
func (h *Handlers) ListCardsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	cards, err := h.service.CardsForUser(r.Context(), userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	respondWithJSON(w, http.StatusOK, toCardResponses(cards))
}

// ListTransactionsHandler returns every ledger entry posted against any of
// the user's accounts, newest first.
// GET /api/transactions?userId=...
func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	transactions, err := h.service.TransactionsForUser(r.Context(), userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	respondWithJSON(w, http.StatusOK, toTransactionResponses(transactions))
}

// RegisterHandler creates a user and provisions the default accounts/cards.
// POST /api/register {"name": "...", "email": "..."}
func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" {
		respondWithError(w, http.StatusBadRequest, "name and email required")
		return
	}

	user, err := h.service.RegisterUser(r.Context(), req.Name, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			respondWithError(w, http.StatusConflict, "email already registered")
			return
		}
		log.Printf("level=error component=api msg=\"registration failed\" err=%v", err)
		respondWithError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	respondWithJSON(w, http.StatusCreated, user)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("userId"))
	if raw == "" {
		respondWithError(w, http.StatusBadRequest, "userId required")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid userId")
		return uuid.Nil, false
	}
	return userID, true
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("level=error component=api msg=\"response encoding failed\" err=%v", err)
	}
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
