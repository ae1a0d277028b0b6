package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/voicebank/assistant-service/internal/app"
	"github.com/voicebank/assistant-service/internal/store"
)

func newTestServer(t *testing.T, authSecret string) (*httptest.Server, uuid.UUID) {
	t.Helper()
	repo := store.NewMemoryRepository()
	user := repo.SeedDemo()
	svc := app.NewService(repo, nil)

	relayStub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(Routes(NewHandlers(svc), relayStub, authSecret))
	t.Cleanup(server.Close)
	return server, user.ID
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, "")

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestGetUserHandler(t *testing.T) {
	server, _ := newTestServer(t, "")

	testCases := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{name: "found", query: "?email=demo@example.com", wantStatus: http.StatusOK},
		{name: "missing email", query: "", wantStatus: http.StatusBadRequest},
		{name: "unknown email", query: "?email=nobody@example.com", wantStatus: http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(server.URL + "/api/user" + tc.query)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
		})
	}
}

func TestListAccountsHandler(t *testing.T) {
	server, userID := newTestServer(t, "")

	resp, err := http.Get(server.URL + "/api/accounts?userId=" + userID.String())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var accounts []accountResponse
	decodeBody(t, resp, &accounts)
	if len(accounts) != 3 {
		t.Fatalf("got %d accounts, want 3", len(accounts))
	}
	byType := map[string]accountResponse{}
	for _, a := range accounts {
		byType[a.Type] = a
	}
	if byType["Checking"].Balance != 5420.50 {
		t.Errorf("checking balance = %v, want 5420.50", byType["Checking"].Balance)
	}
	if !byType["External (Mom)"].External {
		t.Error("external account not flagged as external")
	}
}

func TestListAccountsHandlerRejectsBadUserID(t *testing.T) {
	server, _ := newTestServer(t, "")

	for _, query := range []string{"", "?userId=not-a-uuid"} {
		resp, err := http.Get(server.URL + "/api/accounts" + query)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("query %q status = %d, want 400", query, resp.StatusCode)
		}
	}
}

func TestListTransactionsHandler(t *testing.T) {
	server, userID := newTestServer(t, "")

	resp, err := http.Get(server.URL + "/api/transactions?userId=" + userID.String())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var transactions []transactionResponse
	decodeBody(t, resp, &transactions)
	if len(transactions) != 2 {
		t.Fatalf("got %d transactions, want 2", len(transactions))
	}
	if transactions[0].Description != "Grocery Store" || transactions[0].Amount != -150.25 {
		t.Errorf("newest entry = %+v", transactions[0])
	}
	if transactions[0].Date != "2023-10-24" {
		t.Errorf("date = %q, want 2023-10-24", transactions[0].Date)
	}
}

func TestRegisterHandler(t *testing.T) {
	server, _ := newTestServer(t, "")

	post := func(body string) *http.Response {
		resp, err := http.Post(server.URL+"/api/register", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		return resp
	}

	resp := post(`{"name":"Ada Lovelace","email":"ada@example.com"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("registration status = %d, want 201", resp.StatusCode)
	}

	resp = post(`{"name":"Ada Again","email":"ada@example.com"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", resp.StatusCode)
	}

	resp = post(`{"name":"","email":""}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty fields status = %d, want 400", resp.StatusCode)
	}

	resp = post(`not json`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	server, userID := newTestServer(t, secret)
	url := server.URL + "/api/accounts?userId=" + userID.String()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing token status = %d, want 401", resp.StatusCode)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "demo"}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", resp.StatusCode)
	}
}
