package service

import (
	"context"
	"sort"

	"github.com/efreitasn/clob/internal/domain"
	"github.com/efreitasn/clob/internal/ledger"
)

// DepositRequest represents the input for crediting an account.
type DepositRequest struct {
	Account string
	Asset   string
	Amount  int64
}

// BalanceResponse represents the balances of one account.
type BalanceResponse struct {
	Account  string
	Balances []AssetBalance
}

// AssetBalance is the balance of a single asset, in its smallest unit.
type AssetBalance struct {
	Asset  string
	Amount int64
}

// AccountService handles account funding and balance queries against
// the settlement ledger.
type AccountService struct {
	accounts ledger.Accounts
}

// NewAccountService creates a new AccountService.
func NewAccountService(accounts ledger.Accounts) *AccountService {
	return &AccountService{accounts: accounts}
}

// Deposit credits amount of asset to the account.
func (s *AccountService) Deposit(ctx context.Context, req DepositRequest) error {
	if !identifierRegex.MatchString(req.Account) {
		return &domain.ValidationError{Message: "account must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	if !assetRegex.MatchString(req.Asset) {
		return &domain.ValidationError{Message: "asset must match ^[A-Z][A-Z0-9]{0,15}$"}
	}
	if req.Amount <= 0 {
		return &domain.ValidationError{Message: "amount must be a positive integer"}
	}
	return s.accounts.Deposit(ctx, req.Account, req.Asset, req.Amount)
}

// GetBalance returns every asset the account has held, sorted by asset.
func (s *AccountService) GetBalance(ctx context.Context, account string) (*BalanceResponse, error) {
	if !identifierRegex.MatchString(account) {
		return nil, &domain.ValidationError{Message: "account must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	balances, err := s.accounts.Balances(ctx, account)
	if err != nil {
		return nil, err
	}

	resp := &BalanceResponse{Account: account, Balances: make([]AssetBalance, 0, len(balances))}
	for asset, amount := range balances {
		resp.Balances = append(resp.Balances, AssetBalance{Asset: asset, Amount: amount})
	}
	sort.Slice(resp.Balances, func(i, j int) bool {
		return resp.Balances[i].Asset < resp.Balances[j].Asset
	})
	return resp, nil
}
