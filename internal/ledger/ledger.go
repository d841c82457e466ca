package ledger

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidAmount is returned for zero or negative mutation amounts
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrStorage is returned when the backing store fails; the mutation is
	// guaranteed not to have been partially applied.
	ErrStorage = errors.New("ledger storage failure")
)

// Store is the fiat balance ledger. All amounts are in fen (currency
// subunits). Implementations must make Credit and ReserveAndCharge
// linearizable per account: two concurrent charges against the same account
// must never both observe a balance that covers only one of them. Operations
// on different accounts must not contend on a single global lock.
type Store interface {
	// Credit unconditionally adds amountFen to the account balance,
	// creating the account on first use, and returns the new balance.
	Credit(ctx context.Context, accountID string, amountFen int64) (int64, error)

	// Balance returns the current balance, zero for unknown accounts.
	Balance(ctx context.Context, accountID string) (int64, error)

	// ReserveAndCharge atomically checks that the balance covers
	// amountFen plus minReserveFen and, if so, debits amountFen.
	// Returns false without mutating state when funds are insufficient.
	ReserveAndCharge(ctx context.Context, accountID string, amountFen, minReserveFen int64) (bool, error)
}

// NormalizeAccount canonicalizes a chain address for use as a ledger key.
// EVM addresses are case-insensitive hex; the checksum casing callers send
// must not split one account into several.
func NormalizeAccount(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
