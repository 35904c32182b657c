package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/rickgao/vault-relay/internal/model"
)

// ErrNoChildAccounts is returned when a vault has no child accounts to watch.
var ErrNoChildAccounts = errors.New("vault has no child accounts")

// ResolutionError wraps any failure to turn a vault address into child accounts.
type ResolutionError struct {
	Vault string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve vault %s: %v", e.Vault, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// GetVaultDetails fetches the details of a single vault.
func (c *Client) GetVaultDetails(ctx context.Context, vault string) (*VaultDetailsResponse, error) {
	req := InfoRequest{
		Type:         "vaultDetails",
		VaultAddress: vault,
	}

	var resp VaultDetailsResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("get vault details %s: %w", vault, err)
	}
	return &resp, nil
}

// ResolveChildAccounts returns the vault's child accounts in the order the venue lists them.
// Every failure is a *ResolutionError.
func (c *Client) ResolveChildAccounts(ctx context.Context, vault string) ([]model.Account, error) {
	details, err := c.GetVaultDetails(ctx, vault)
	if err != nil {
		return nil, &ResolutionError{Vault: vault, Err: err}
	}

	if details.Relationship == nil || len(details.Relationship.Data.ChildAddresses) == 0 {
		return nil, &ResolutionError{Vault: vault, Err: ErrNoChildAccounts}
	}

	accounts := make([]model.Account, 0, len(details.Relationship.Data.ChildAddresses))
	for _, addr := range details.Relationship.Data.ChildAddresses {
		account, err := model.ParseAccount(addr)
		if err != nil {
			return nil, &ResolutionError{Vault: vault, Err: err}
		}
		accounts = append(accounts, account)
	}

	c.logger.Debug("resolved child accounts", "vault", vault, "count", len(accounts))
	return accounts, nil
}
