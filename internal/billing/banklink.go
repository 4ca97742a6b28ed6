package billing

import (
	"context" // Context for provider calls
	"errors"  // Sentinel errors
	"fmt"     // Error wrapping
	"strconv" // User id formatting

	"github.com/plaid/plaid-go/v29/plaid" // Plaid API client
)

// ErrNoBankAccount is returned when a linked item has no account to charge
var ErrNoBankAccount = errors.New("linked item has no bank account")

// BankLinker links a user's bank account and turns it into a payment source
type BankLinker interface {
	CreateLinkToken(ctx context.Context, userID uint) (string, error)
	ExchangePublicToken(ctx context.Context, userID uint, publicToken, accountID string) (string, error)
}

// SandboxLinker returns canned tokens without calling Plaid
type SandboxLinker struct{}

// SandboxPaymentSource is the payment source every sandbox exchange yields
const SandboxPaymentSource = "pm_card_visa"

// CreateLinkToken returns a deterministic sandbox token
func (SandboxLinker) CreateLinkToken(_ context.Context, userID uint) (string, error) {
	return "mock_link_token_sandbox_" + strconv.FormatUint(uint64(userID), 10), nil
}

// ExchangePublicToken always yields the sandbox card
func (SandboxLinker) ExchangePublicToken(_ context.Context, _ uint, _, _ string) (string, error) {
	return SandboxPaymentSource, nil
}

// PlaidLinker uses Plaid Link and the Plaid/Stripe processor integration
type PlaidLinker struct {
	client     *plaid.APIClient
	clientName string
}

// NewPlaidLinker creates a linker for the sandbox or production environment
func NewPlaidLinker(clientID, secret string, production bool) *PlaidLinker {
	cfg := plaid.NewConfiguration()
	cfg.AddDefaultHeader("PLAID-CLIENT-ID", clientID)
	cfg.AddDefaultHeader("PLAID-SECRET", secret)
	if production {
		cfg.UseEnvironment(plaid.Production)
	} else {
		cfg.UseEnvironment(plaid.Sandbox)
	}
	return &PlaidLinker{client: plaid.NewAPIClient(cfg), clientName: "vidvault"}
}

// CreateLinkToken starts a Plaid Link session for userID
func (l *PlaidLinker) CreateLinkToken(ctx context.Context, userID uint) (string, error) {
	user := plaid.LinkTokenCreateRequestUser{ClientUserId: strconv.FormatUint(uint64(userID), 10)}
	req := plaid.NewLinkTokenCreateRequest(l.clientName, "en", []plaid.CountryCode{plaid.COUNTRYCODE_US}, user)
	req.SetProducts([]plaid.Products{plaid.PRODUCTS_AUTH})
	resp, _, err := l.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*req).Execute()
	if err != nil {
		return "", fmt.Errorf("create link token: %w", err)
	}
	return resp.GetLinkToken(), nil
}

// ExchangePublicToken swaps the Link public token for a Stripe bank account token.
// Without an accountID the item's first account is used.
func (l *PlaidLinker) ExchangePublicToken(ctx context.Context, _ uint, publicToken, accountID string) (string, error) {
	exchange, _, err := l.client.PlaidApi.ItemPublicTokenExchange(ctx).
		ItemPublicTokenExchangeRequest(*plaid.NewItemPublicTokenExchangeRequest(publicToken)).Execute()
	if err != nil {
		return "", fmt.Errorf("exchange public token: %w", err)
	}
	accessToken := exchange.GetAccessToken()
	if accountID == "" {
		accounts, _, err := l.client.PlaidApi.AccountsGet(ctx).
			AccountsGetRequest(*plaid.NewAccountsGetRequest(accessToken)).Execute()
		if err != nil {
			return "", fmt.Errorf("list accounts: %w", err)
		}
		if len(accounts.GetAccounts()) == 0 {
			return "", ErrNoBankAccount
		}
		accountID = accounts.GetAccounts()[0].GetAccountId()
	}
	token, _, err := l.client.PlaidApi.ProcessorStripeBankAccountTokenCreate(ctx).
		ProcessorStripeBankAccountTokenCreateRequest(*plaid.NewProcessorStripeBankAccountTokenCreateRequest(accessToken, accountID)).
		Execute()
	if err != nil {
		return "", fmt.Errorf("create stripe bank account token: %w", err)
	}
	return token.GetStripeBankAccountToken(), nil
}
