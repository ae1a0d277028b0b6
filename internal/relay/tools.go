package relay

// DefaultInstructions is the assistant prompt sent in the session.update
// event when none is configured.
const DefaultInstructions = "You are a helpful banking assistant. You can check balances, transfer funds, withdraw money, and view history. Be concise."

// accountTypeEnum constrains account selectors in the tool schema. The
// ledger's selector matching is fuzzier than this, but the enum keeps the
// model's output predictable.
var accountTypeEnum = []string{"Checking", "Savings"}

// toolDefinitions declares the five banking tools to the upstream endpoint.
func toolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Type:        "function",
			Name:        "get_balance",
			Description: "Get the balance of a specific account type",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"accountType": map[string]any{"type": "string", "enum": accountTypeEnum},
				},
				"required": []string{"accountType"},
			},
		},
		{
			Type:        "function",
			Name:        "transfer_funds",
			Description: "Transfer money between internal accounts",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"amount":      map[string]any{"type": "number"},
					"fromAccount": map[string]any{"type": "string"},
					"toAccount":   map[string]any{"type": "string"},
				},
				"required": []string{"amount", "fromAccount", "toAccount"},
			},
		},
		{
			Type:        "function",
			Name:        "withdraw_funds",
			Description: "Withdraw money from an account (e.g. ATM or external)",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"amount":      map[string]any{"type": "number"},
					"accountType": map[string]any{"type": "string", "enum": accountTypeEnum},
				},
				"required": []string{"amount", "accountType"},
			},
		},
		{
			Type:        "function",
			Name:        "get_transaction_history",
			Description: "Get the recent transaction history for an account",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"accountType": map[string]any{"type": "string", "enum": accountTypeEnum},
					"limit":       map[string]any{"type": "number", "description": "Number of transactions to fetch"},
				},
				"required": []string{"accountType"},
			},
		},
		{
			Type:        "function",
			Name:        "set_card_status",
			Description: "Lock or unlock a debit/credit card",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"cardLast4": map[string]any{"type": "string"},
					"cardType":  map[string]any{"type": "string"},
					"status":    map[string]any{"type": "string", "enum": []string{"Active", "Inactive"}},
				},
				"required": []string{"status"},
			},
		},
	}
}

func newSessionUpdate(instructions string) sessionUpdate {
	if instructions == "" {
		instructions = DefaultInstructions
	}
	return sessionUpdate{
		Type: eventTypeSessionUpdate,
		Session: sessionConfig{
			Modalities:   []string{"audio", "text"},
			Instructions: instructions,
			Tools:        toolDefinitions(),
		},
	}
}
